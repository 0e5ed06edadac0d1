// Package processor turns raw websocket frames into typed record batches.
// Decoder workers pull frames off the shared raw channel, run the binary
// decoder, filter pair records against their target's bounds, and batch the
// survivors per type for the writers.
package processor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	appconfig "dexflow/config"
	"dexflow/internal/channel"
	"dexflow/logger"
	"dexflow/models"
	"dexflow/protocol"
)

const profileBatchKey = "profiles"

type Decoder struct {
	config   *appconfig.Config
	channels *channel.Channels
	targets  map[string]appconfig.TargetConfig
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	// Batching
	pairBatches    map[string]*models.BatchPairsMessage
	ohlcBatches    map[string]*models.BatchOHLCMessage
	profileBatches map[string]*models.BatchProfilesMessage
	lastFlush      map[string]time.Time

	// Metrics. Counters are bumped from worker goroutines without the
	// batch lock, so they stay atomic.
	framesProcessed atomic.Int64
	batchesFlushed  atomic.Int64
	recordsDecoded  atomic.Int64
	recordsFiltered atomic.Int64
	skipsCount      atomic.Int64
	errorsCount     atomic.Int64
}

func NewDecoder(cfg *appconfig.Config, channels *channel.Channels) *Decoder {
	targets := make(map[string]appconfig.TargetConfig, len(cfg.Source.Targets))
	for _, t := range cfg.Source.Targets {
		targets[t.Name] = t
	}

	return &Decoder{
		config:         cfg,
		channels:       channels,
		targets:        targets,
		wg:             &sync.WaitGroup{},
		log:            logger.GetLogger(),
		pairBatches:    make(map[string]*models.BatchPairsMessage),
		ohlcBatches:    make(map[string]*models.BatchOHLCMessage),
		profileBatches: make(map[string]*models.BatchProfilesMessage),
		lastFlush:      make(map[string]time.Time),
	}
}

func (d *Decoder) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("decoder already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	log := d.log.WithComponent("decoder").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting decoder")

	numWorkers := d.config.Processor.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting decoder workers")

	for i := 0; i < numWorkers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	// Start batch flusher
	d.wg.Add(1)
	go d.batchFlusher()

	// Start metrics reporter
	go d.metricsReporter(ctx)

	log.Info("decoder started successfully")
	return nil
}

func (d *Decoder) Stop() {
	d.mu.Lock()
	d.running = false
	d.mu.Unlock()

	d.log.WithComponent("decoder").Info("stopping decoder")

	// Flush remaining batches
	d.flushAllBatches()

	d.wg.Wait()
	d.log.WithComponent("decoder").Info("decoder stopped")
}

func (d *Decoder) worker(workerID int) {
	defer d.wg.Done()

	log := d.log.WithComponent("decoder").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "decoder",
	})

	log.Info("starting decoder worker")

	for {
		select {
		case <-d.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case rawMsg, ok := <-d.channels.Raw:
			if !ok {
				log.Info("raw channel closed, worker stopping")
				return
			}

			start := time.Now()
			recordsDecoded := d.processFrame(rawMsg)
			duration := time.Since(start)

			d.framesProcessed.Add(1)

			logger.LogPerformanceEntry(log, "decoder", "process_frame", duration, logger.Fields{
				"worker_id":       workerID,
				"source":          rawMsg.Source,
				"frame_bytes":     len(rawMsg.Data),
				"records_decoded": recordsDecoded,
			})
		}
	}
}

func (d *Decoder) processFrame(rawMsg models.RawFrameMessage) int {
	log := d.log.WithComponent("decoder").WithFields(logger.Fields{
		"source":      rawMsg.Source,
		"frame_bytes": len(rawMsg.Data),
		"operation":   "process_frame",
	})

	target, known := d.targets[rawMsg.Source]

	outcomes := protocol.DecodeMessage(rawMsg.Data)

	var pairs []models.TradingPairRecord
	var candles []models.OHLCRecord
	var tokenProfiles []models.TokenProfileRecord
	skips := 0
	filtered := 0

	now := time.Now().UTC()
	for _, out := range outcomes {
		if !out.OK() {
			skips++
			d.skipsCount.Add(1)
			log.WithFields(logger.Fields{
				"chunk":  out.Chunk,
				"reason": string(out.Skip),
				"detail": out.Detail,
			}).Debug("chunk skipped")
			continue
		}

		switch {
		case out.Pair != nil:
			if known && !keepPair(target, out.Pair, now) {
				filtered++
				d.recordsFiltered.Add(1)
				continue
			}
			pairs = append(pairs, *out.Pair)
		case out.Candle != nil:
			candles = append(candles, *out.Candle)
		case out.Profile != nil:
			tokenProfiles = append(tokenProfiles, *out.Profile)
		}
	}

	decoded := len(pairs) + len(candles) + len(tokenProfiles)
	d.recordsDecoded.Add(int64(decoded))
	logger.IncrementRecordsDecoded(decoded)
	logger.IncrementDecodeSkips(skips)

	if decoded == 0 && skips == 0 && filtered == 0 {
		log.Debug("frame carried no records")
		return 0
	}

	if len(pairs) > 0 {
		d.addToPairBatch(rawMsg, target, pairs)
	}
	if len(candles) > 0 {
		d.addToOHLCBatches(rawMsg, target, candles)
	}
	if len(tokenProfiles) > 0 {
		d.addToProfileBatch(rawMsg, tokenProfiles)
	}

	log.WithFields(logger.Fields{
		"pairs":    len(pairs),
		"candles":  len(candles),
		"profiles": len(tokenProfiles),
		"skipped":  skips,
		"filtered": filtered,
	}).Info("frame processed")

	logger.LogDataFlowEntry(log, "raw_channel", "batch_channels", decoded, "decoded_records")

	return decoded
}

func (d *Decoder) addToPairBatch(rawMsg models.RawFrameMessage, target appconfig.TargetConfig, entries []models.TradingPairRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// One batch per target and chain. Records from multi-chain targets
	// split so writers can partition by chain.
	byChain := make(map[string][]models.TradingPairRecord)
	for _, e := range entries {
		byChain[e.Chain] = append(byChain[e.Chain], e)
	}

	for chain, chainEntries := range byChain {
		batchKey := fmt.Sprintf("pairs_%s_%s", rawMsg.Source, chain)

		batch, exists := d.pairBatches[batchKey]
		if !exists {
			batch = &models.BatchPairsMessage{
				BatchID:     uuid.New().String(),
				Chain:       chain,
				Timeframe:   target.Timeframe,
				Entries:     make([]models.TradingPairRecord, 0, d.config.Processor.BatchSize),
				RecordCount: 0,
				Timestamp:   rawMsg.ReceivedAt,
				ProcessedAt: time.Now(),
			}
			d.pairBatches[batchKey] = batch
			d.lastFlush[batchKey] = time.Now()
		}

		batch.Entries = append(batch.Entries, chainEntries...)
		batch.RecordCount = len(batch.Entries)
		if rawMsg.ReceivedAt.After(batch.Timestamp) {
			batch.Timestamp = rawMsg.ReceivedAt
		}

		if batch.RecordCount >= d.config.Processor.BatchSize {
			d.flushBatch(batchKey)
		}
	}
}

func (d *Decoder) addToOHLCBatches(rawMsg models.RawFrameMessage, target appconfig.TargetConfig, candles []models.OHLCRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range candles {
		candles[i].Timeframe = target.Timeframe
	}

	bySymbol := make(map[string][]models.OHLCRecord)
	for _, c := range candles {
		bySymbol[c.Symbol] = append(bySymbol[c.Symbol], c)
	}

	for symbol, symbolCandles := range bySymbol {
		batchKey := fmt.Sprintf("ohlc_%s", symbol)

		batch, exists := d.ohlcBatches[batchKey]
		if !exists {
			batch = &models.BatchOHLCMessage{
				BatchID:     uuid.New().String(),
				Symbol:      symbol,
				Entries:     make([]models.OHLCRecord, 0, d.config.Processor.BatchSize),
				RecordCount: 0,
				Timestamp:   rawMsg.ReceivedAt,
				ProcessedAt: time.Now(),
			}
			d.ohlcBatches[batchKey] = batch
			d.lastFlush[batchKey] = time.Now()
		}

		batch.Entries = append(batch.Entries, symbolCandles...)
		batch.RecordCount = len(batch.Entries)
		if rawMsg.ReceivedAt.After(batch.Timestamp) {
			batch.Timestamp = rawMsg.ReceivedAt
		}

		if batch.RecordCount >= d.config.Processor.BatchSize {
			d.flushBatch(batchKey)
		}
	}
}

func (d *Decoder) addToProfileBatch(rawMsg models.RawFrameMessage, entries []models.TokenProfileRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()

	batch, exists := d.profileBatches[profileBatchKey]
	if !exists {
		batch = &models.BatchProfilesMessage{
			BatchID:     uuid.New().String(),
			Entries:     make([]models.TokenProfileRecord, 0, d.config.Processor.BatchSize),
			RecordCount: 0,
			Timestamp:   rawMsg.ReceivedAt,
			ProcessedAt: time.Now(),
		}
		d.profileBatches[profileBatchKey] = batch
		d.lastFlush[profileBatchKey] = time.Now()
	}

	batch.Entries = append(batch.Entries, entries...)
	batch.RecordCount = len(batch.Entries)
	if rawMsg.ReceivedAt.After(batch.Timestamp) {
		batch.Timestamp = rawMsg.ReceivedAt
	}

	if batch.RecordCount >= d.config.Processor.BatchSize {
		d.flushBatch(profileBatchKey)
	}
}

func (d *Decoder) batchFlusher() {
	defer d.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.flushTimedOutBatches()
		}
	}
}

func (d *Decoder) flushTimedOutBatches() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for batchKey, lastFlush := range d.lastFlush {
		if now.Sub(lastFlush) >= d.config.Processor.BatchTimeout {
			d.flushBatch(batchKey)
		}
	}
}

// flushBatch requires d.mu held. Batches survive a full downstream channel
// and are retried on the next tick.
func (d *Decoder) flushBatch(batchKey string) {
	if batch, ok := d.pairBatches[batchKey]; ok && batch.RecordCount > 0 {
		log := d.log.WithComponent("decoder").WithFields(logger.Fields{
			"batch_id":     batch.BatchID,
			"batch_key":    batchKey,
			"chain":        batch.Chain,
			"record_count": batch.RecordCount,
			"operation":    "flush_batch",
		})
		if d.channels.Pairs.SendNorm(d.ctx, *batch) {
			d.batchesFlushed.Add(1)
			delete(d.pairBatches, batchKey)
			delete(d.lastFlush, batchKey)
			log.Info("pairs batch flushed")
			logger.LogDataFlowEntry(log, "decoder", "pairs_channel", batch.RecordCount, "batch")
		} else if d.ctx.Err() == nil {
			log.Warn("pairs channel is full, batch not sent")
		}
		return
	}

	if batch, ok := d.ohlcBatches[batchKey]; ok && batch.RecordCount > 0 {
		log := d.log.WithComponent("decoder").WithFields(logger.Fields{
			"batch_id":     batch.BatchID,
			"batch_key":    batchKey,
			"symbol":       batch.Symbol,
			"record_count": batch.RecordCount,
			"operation":    "flush_batch",
		})
		if d.channels.OHLC.SendNorm(d.ctx, *batch) {
			d.batchesFlushed.Add(1)
			delete(d.ohlcBatches, batchKey)
			delete(d.lastFlush, batchKey)
			log.Info("ohlc batch flushed")
			logger.LogDataFlowEntry(log, "decoder", "ohlc_channel", batch.RecordCount, "batch")
		} else if d.ctx.Err() == nil {
			log.Warn("ohlc channel is full, batch not sent")
		}
		return
	}

	if batch, ok := d.profileBatches[batchKey]; ok && batch.RecordCount > 0 {
		log := d.log.WithComponent("decoder").WithFields(logger.Fields{
			"batch_id":     batch.BatchID,
			"batch_key":    batchKey,
			"record_count": batch.RecordCount,
			"operation":    "flush_batch",
		})
		if d.channels.Profiles.SendNorm(d.ctx, *batch) {
			d.batchesFlushed.Add(1)
			delete(d.profileBatches, batchKey)
			delete(d.lastFlush, batchKey)
			log.Info("profiles batch flushed")
			logger.LogDataFlowEntry(log, "decoder", "profiles_channel", batch.RecordCount, "batch")
		} else if d.ctx.Err() == nil {
			log.Warn("profiles channel is full, batch not sent")
		}
	}
}

func (d *Decoder) flushAllBatches() {
	d.mu.Lock()
	defer d.mu.Unlock()

	log := d.log.WithComponent("decoder").WithFields(logger.Fields{"operation": "flush_all_batches"})
	log.Info("flushing all remaining batches")

	for batchKey := range d.lastFlush {
		d.flushBatch(batchKey)
	}

	log.WithFields(logger.Fields{"remaining_batches": len(d.lastFlush)}).Info("all batches flushed")
}

func (d *Decoder) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reportMetrics()
		}
	}
}

func (d *Decoder) reportMetrics() {
	framesProcessed := d.framesProcessed.Load()
	batchesFlushed := d.batchesFlushed.Load()
	recordsDecoded := d.recordsDecoded.Load()
	recordsFiltered := d.recordsFiltered.Load()
	skipsCount := d.skipsCount.Load()
	errorsCount := d.errorsCount.Load()

	d.mu.RLock()
	activeBatches := len(d.lastFlush)
	d.mu.RUnlock()

	skipRate := float64(0)
	if recordsDecoded+skipsCount > 0 {
		skipRate = float64(skipsCount) / float64(recordsDecoded+skipsCount)
	}

	avgRecordsPerFrame := float64(0)
	if framesProcessed > 0 {
		avgRecordsPerFrame = float64(recordsDecoded) / float64(framesProcessed)
	}

	log := d.log.WithComponent("decoder")
	d.log.LogMetric("decoder", "frames_processed", framesProcessed, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "batches_flushed", batchesFlushed, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "records_decoded", recordsDecoded, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "records_filtered", recordsFiltered, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "skips_count", skipsCount, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "errors_count", errorsCount, "counter", logger.Fields{})
	d.log.LogMetric("decoder", "skip_rate", skipRate, "gauge", logger.Fields{})
	d.log.LogMetric("decoder", "active_batches", activeBatches, "gauge", logger.Fields{})

	log.WithFields(logger.Fields{
		"frames_processed":      framesProcessed,
		"batches_flushed":       batchesFlushed,
		"records_decoded":       recordsDecoded,
		"records_filtered":      recordsFiltered,
		"skips_count":           skipsCount,
		"skip_rate":             skipRate,
		"active_batches":        activeBatches,
		"avg_records_per_frame": avgRecordsPerFrame,
		"raw_channel_len":       len(d.channels.Raw),
		"raw_channel_cap":       cap(d.channels.Raw),
	}).Info("decoder metrics")
}
