package writer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	appconfig "dexflow/config"
	"dexflow/logger"
	"dexflow/models"
)

// FileWriter exports decoded batches to local files. Pair batches land in
// per-chain dated files, candle batches in per-symbol files. The mt5 format
// renders candles as MetaTrader import rows and falls back to csv for pairs.
type FileWriter struct {
	config  *appconfig.Config
	pairsCh <-chan models.BatchPairsMessage
	ohlcCh  <-chan models.BatchOHLCMessage
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	dir     string
}

func NewFileWriter(cfg *appconfig.Config, pairsCh <-chan models.BatchPairsMessage, ohlcCh <-chan models.BatchOHLCMessage) (*FileWriter, error) {
	dir := cfg.Writer.File.Directory
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory %s: %w", dir, err)
	}

	fw := &FileWriter{
		config:  cfg,
		pairsCh: pairsCh,
		ohlcCh:  ohlcCh,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		dir:     dir,
	}

	fw.log.WithComponent("file_writer").WithFields(logger.Fields{
		"directory": dir,
		"format":    cfg.Writer.File.Format,
	}).Info("file writer initialized")

	return fw, nil
}

func (fw *FileWriter) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return fmt.Errorf("file writer already running")
	}
	fw.running = true
	fw.ctx = ctx
	fw.mu.Unlock()

	fw.log.WithComponent("file_writer").Info("starting file writer")

	fw.wg.Add(2)
	go fw.pairsWorker()
	go fw.ohlcWorker()

	return nil
}

func (fw *FileWriter) Stop() {
	fw.mu.Lock()
	fw.running = false
	fw.mu.Unlock()

	fw.log.WithComponent("file_writer").Info("stopping file writer")
	fw.wg.Wait()
	fw.log.WithComponent("file_writer").Info("file writer stopped")
}

func (fw *FileWriter) pairsWorker() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case batch, ok := <-fw.pairsCh:
			if !ok {
				return
			}
			if err := fw.writePairsBatch(batch); err != nil {
				fw.log.WithComponent("file_writer").WithError(err).WithFields(logger.Fields{
					"batch_id": batch.BatchID,
					"chain":    batch.Chain,
				}).Error("failed to write pairs batch")
			}
		}
	}
}

func (fw *FileWriter) ohlcWorker() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case batch, ok := <-fw.ohlcCh:
			if !ok {
				return
			}
			if err := fw.writeOHLCBatch(batch); err != nil {
				fw.log.WithComponent("file_writer").WithError(err).WithFields(logger.Fields{
					"batch_id": batch.BatchID,
					"symbol":   batch.Symbol,
				}).Error("failed to write ohlc batch")
			}
		}
	}
}

func (fw *FileWriter) writePairsBatch(batch models.BatchPairsMessage) error {
	date := batch.Timestamp.UTC().Format("20060102")

	switch fw.config.Writer.File.Format {
	case "jsonl":
		path := filepath.Join(fw.dir, fmt.Sprintf("pairs_%s_%s.jsonl", batch.Chain, date))
		return fw.appendJSONL(path, batch.Entries)
	default:
		path := filepath.Join(fw.dir, fmt.Sprintf("pairs_%s_%s.csv", batch.Chain, date))
		return fw.appendPairsCSV(path, batch.Entries)
	}
}

func (fw *FileWriter) writeOHLCBatch(batch models.BatchOHLCMessage) error {
	switch fw.config.Writer.File.Format {
	case "jsonl":
		date := batch.Timestamp.UTC().Format("20060102")
		path := filepath.Join(fw.dir, fmt.Sprintf("ohlc_%s_%s.jsonl", batch.Symbol, date))
		return fw.appendJSONL(path, batch.Entries)
	case "mt5":
		path := filepath.Join(fw.dir, fmt.Sprintf("%s.csv", batch.Symbol))
		return fw.appendMT5(path, batch.Entries)
	default:
		date := batch.Timestamp.UTC().Format("20060102")
		path := filepath.Join(fw.dir, fmt.Sprintf("ohlc_%s_%s.csv", batch.Symbol, date))
		return fw.appendOHLCCSV(path, batch.Entries)
	}
}

func (fw *FileWriter) appendJSONL(path string, entries any) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	switch v := entries.(type) {
	case []models.TradingPairRecord:
		for _, e := range v {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	case []models.OHLCRecord:
		for _, e := range v {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fw *FileWriter) appendPairsCSV(path string, entries []models.TradingPairRecord) error {
	f, isNew, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		header := []string{
			"chain", "protocol", "pair_address",
			"base_token_name", "base_token_symbol", "base_token_address",
			"price", "price_usd", "price_change_h24",
			"liquidity_usd", "volume_h24", "fdv",
			"created_at", "decoded_at",
		}
		if err := cw.Write(header); err != nil {
			return err
		}
	}

	for _, e := range entries {
		createdAt := ""
		if e.CreatedAt != nil {
			createdAt = e.CreatedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			e.Chain, e.Protocol, e.PairAddress,
			e.BaseTokenName, e.BaseTokenSymbol, e.BaseTokenAddress,
			csvDouble(e.Price), csvDouble(e.PriceUsd), csvDouble(e.PriceChangeH24),
			csvDouble(e.LiquidityUsd), csvDouble(e.VolumeH24), csvDouble(e.FDV),
			createdAt, e.DecodedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func (fw *FileWriter) appendOHLCCSV(path string, entries []models.OHLCRecord) error {
	f, isNew, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if isNew {
		header := []string{"symbol", "timeframe", "timestamp", "open", "high", "low", "close", "volume"}
		if err := cw.Write(header); err != nil {
			return err
		}
	}

	for _, e := range entries {
		row := []string{
			e.Symbol, e.Timeframe, e.Timestamp.UTC().Format(time.RFC3339),
			strconv.FormatFloat(e.Open, 'f', -1, 64),
			strconv.FormatFloat(e.High, 'f', -1, 64),
			strconv.FormatFloat(e.Low, 'f', -1, 64),
			strconv.FormatFloat(e.Close, 'f', -1, 64),
			strconv.FormatFloat(e.Volume, 'f', -1, 64),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func (fw *FileWriter) appendMT5(path string, entries []models.OHLCRecord) error {
	f, _, err := openAppend(path)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, e := range entries {
		if _, err := fmt.Fprintln(f, e.MT5Row()); err != nil {
			return err
		}
	}
	return nil
}

func openAppend(path string) (*os.File, bool, error) {
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, false, err
	}
	return f, isNew, nil
}

func csvDouble(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
