// Package scraper is the embeddable entry point to the screener pipeline.
// It wires readers, decoder and channels together behind two calls: a
// bounded CollectPairs for one-shot snapshots and an unbounded Stream that
// hands every decoded batch to a callback.
package scraper

import (
	"context"
	"fmt"
	"time"

	appconfig "dexflow/config"
	"dexflow/internal/channel"
	"dexflow/logger"
	"dexflow/models"
	"dexflow/processor"
	"dexflow/reader/dexscreener"
)

// StreamCallback receives each decoded pair batch. Callbacks run on the
// stream goroutine; slow callbacks slow consumption, not decoding.
type StreamCallback func(batch models.BatchPairsMessage)

type Scraper struct {
	config *appconfig.Config
	log    *logger.Log
}

func New(cfg *appconfig.Config) *Scraper {
	return &Scraper{
		config: cfg,
		log:    logger.GetLogger(),
	}
}

// CollectPairs streams one target until a full batch of records has been
// gathered or the timeout elapses, whichever comes first. Records gathered
// before a terminal reader failure are returned alongside the error.
func (s *Scraper) CollectPairs(ctx context.Context, target appconfig.TargetConfig, timeout time.Duration) ([]models.TradingPairRecord, error) {
	cfg := *s.config
	cfg.Source.Targets = []appconfig.TargetConfig{target}

	ch := channel.NewChannels(s.rawBuffer(), s.normBuffer())
	dec := processor.NewDecoder(&cfg, ch)
	rdr := dexscreener.NewReader(&cfg, target, ch)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := dec.Start(runCtx); err != nil {
		return nil, err
	}
	if err := rdr.Start(runCtx); err != nil {
		dec.Stop()
		return nil, err
	}
	defer func() {
		cancel()
		rdr.Stop()
		dec.Stop()
		ch.Close()
	}()

	want := cfg.Processor.BatchSize
	deadline := time.After(timeout)
	var records []models.TradingPairRecord

	for {
		select {
		case <-ctx.Done():
			return records, ctx.Err()
		case <-deadline:
			return records, nil
		case err := <-rdr.Fatal():
			return records, err
		case batch := <-ch.Pairs.Norm:
			records = append(records, batch.Entries...)
			if want > 0 && len(records) >= want {
				return records, nil
			}
		}
	}
}

// Stream decodes every configured target until the context is cancelled.
// Cancellation is a clean stop and returns nil; a reader exhausting its
// reconnect budget is terminal and returns the underlying error.
func (s *Scraper) Stream(ctx context.Context, callback StreamCallback) error {
	if len(s.config.Source.Targets) == 0 {
		return fmt.Errorf("no stream targets configured")
	}

	ch := channel.NewChannels(s.rawBuffer(), s.normBuffer())
	dec := processor.NewDecoder(s.config, ch)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := dec.Start(runCtx); err != nil {
		return err
	}

	fatal := make(chan error, len(s.config.Source.Targets))
	readers := make([]*dexscreener.Reader, 0, len(s.config.Source.Targets))
	for _, target := range s.config.Source.Targets {
		rdr := dexscreener.NewReader(s.config, target, ch)
		if err := rdr.Start(runCtx); err != nil {
			cancel()
			for _, started := range readers {
				started.Stop()
			}
			dec.Stop()
			return err
		}
		readers = append(readers, rdr)
		go func(r *dexscreener.Reader) {
			select {
			case err := <-r.Fatal():
				fatal <- err
			case <-runCtx.Done():
			}
		}(rdr)
	}

	defer func() {
		cancel()
		for _, rdr := range readers {
			rdr.Stop()
		}
		dec.Stop()
		ch.Close()
	}()

	s.log.WithComponent("scraper").WithFields(logger.Fields{
		"targets": len(readers),
	}).Info("streaming started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-fatal:
			return err
		case batch, ok := <-ch.Pairs.Norm:
			if !ok {
				return nil
			}
			callback(batch)
		}
	}
}

func (s *Scraper) rawBuffer() int {
	if s.config.Channels.RawBuffer > 0 {
		return s.config.Channels.RawBuffer
	}
	return 100
}

func (s *Scraper) normBuffer() int {
	if s.config.Channels.ProcessedBuffer > 0 {
		return s.config.Channels.ProcessedBuffer
	}
	return 100
}
