package writer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "dexflow/config"
	"dexflow/internal/metadata"
	"dexflow/logger"
	"dexflow/models"
)

// PairParquetRecord is the parquet schema for decoded pair snapshots.
// Metric columns are optional so that values absent from the wire stay
// absent in the file instead of turning into zeros.
type PairParquetRecord struct {
	Chain            string   `parquet:"name=chain, type=BYTE_ARRAY, convertedtype=UTF8"`
	Protocol         string   `parquet:"name=protocol, type=BYTE_ARRAY, convertedtype=UTF8"`
	PairAddress      string   `parquet:"name=pair_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	BaseTokenName    string   `parquet:"name=base_token_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	BaseTokenSymbol  string   `parquet:"name=base_token_symbol, type=BYTE_ARRAY, convertedtype=UTF8"`
	BaseTokenAddress string   `parquet:"name=base_token_address, type=BYTE_ARRAY, convertedtype=UTF8"`
	Price            *float64 `parquet:"name=price, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceUsd         *float64 `parquet:"name=price_usd, type=DOUBLE, repetitiontype=OPTIONAL"`
	PriceChangeH24   *float64 `parquet:"name=price_change_h24, type=DOUBLE, repetitiontype=OPTIONAL"`
	LiquidityUsd     *float64 `parquet:"name=liquidity_usd, type=DOUBLE, repetitiontype=OPTIONAL"`
	VolumeH24        *float64 `parquet:"name=volume_h24, type=DOUBLE, repetitiontype=OPTIONAL"`
	FDV              *float64 `parquet:"name=fdv, type=DOUBLE, repetitiontype=OPTIONAL"`
	CreatedAt        *int64   `parquet:"name=created_at, type=INT64, repetitiontype=OPTIONAL"`
	DecodedAt        int64    `parquet:"name=decoded_at, type=INT64"`
}

type pairsWriter struct {
	config      *appconfig.Config
	pairsCh     <-chan models.BatchPairsMessage
	s3Client    *s3.Client
	ctx         context.Context
	wg          *sync.WaitGroup
	mu          sync.RWMutex
	running     bool
	log         *logger.Log
	buffer      map[string][]models.TradingPairRecord
	flushTicker *time.Ticker
	metaGen     *metadata.Generator
}

// PairsWriter is an exported alias for pairsWriter allowing external packages
// to interact with the writer while keeping the underlying implementation private.
type PairsWriter = pairsWriter

func newPairsWriter(cfg *appconfig.Config, pairsCh <-chan models.BatchPairsMessage) (*pairsWriter, error) {
	log := logger.GetLogger()

	ctx := context.Background()

	loadOpts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		log.WithComponent("s3_writer").WithError(err).Warn("failed to load AWS configuration")
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	creds, err := awsConfig.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	metaDir, err := os.MkdirTemp("", "iceberg")
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %w", err)
	}

	gen := metadata.NewGenerator(metaDir, cfg.Dexflow.Name)

	w := &pairsWriter{
		config:   cfg,
		pairsCh:  pairsCh,
		s3Client: s3Client,
		wg:       &sync.WaitGroup{},
		log:      log,
		metaGen:  gen,
	}

	log.WithComponent("s3_writer").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 writer initialized")

	return w, nil
}

// NewPairsWriter constructs a new PairsWriter instance.
func NewPairsWriter(cfg *appconfig.Config, pairsCh <-chan models.BatchPairsMessage) (*PairsWriter, error) {
	return newPairsWriter(cfg, pairsCh)
}

func (w *pairsWriter) start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("s3 writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting s3 writer")

	w.buffer = make(map[string][]models.TradingPairRecord)
	w.flushTicker = time.NewTicker(w.config.Writer.Buffer.FlushInterval)

	numWorkers := w.config.Writer.MaxWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	log.WithFields(logger.Fields{"workers": numWorkers}).Info("starting s3 writer workers")

	for i := 0; i < numWorkers; i++ {
		w.wg.Add(1)
		go w.worker(i)
	}

	w.wg.Add(1)
	go w.flushWorker()

	log.Info("s3 writer started successfully")
	return nil
}

func (w *pairsWriter) stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	w.log.WithComponent("s3_writer").Info("stopping s3 writer")
	w.wg.Wait()
	w.log.WithComponent("s3_writer").Info("s3 writer stopped")
}

func (w *pairsWriter) worker(workerID int) {
	defer w.wg.Done()

	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"worker_id": workerID,
		"worker":    "s3_writer",
	})

	log.Info("starting s3 writer worker")

	for {
		select {
		case <-w.ctx.Done():
			log.Info("worker stopped due to context cancellation")
			return
		case batch, ok := <-w.pairsCh:
			if !ok {
				log.Info("pairs channel closed, worker stopping")
				return
			}
			w.addBatch(batch)
		}
	}
}

func (w *pairsWriter) addBatch(batch models.BatchPairsMessage) {
	key := w.bufferKey(batch.Chain, batch.Timeframe)
	w.mu.Lock()
	w.buffer[key] = append(w.buffer[key], batch.Entries...)
	w.mu.Unlock()
}

func (w *pairsWriter) bufferKey(chain, timeframe string) string {
	return fmt.Sprintf("%s|%s", chain, timeframe)
}

func (w *pairsWriter) flushWorker() {
	defer w.wg.Done()

	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-w.ctx.Done():
			w.flushBuffers("shutdown")
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-w.flushTicker.C:
			w.flushBuffers("interval")
		}
	}
}

func (w *pairsWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[string][]models.TradingPairRecord)
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for key, entries := range buffers {
		if len(entries) == 0 {
			continue
		}
		parts := strings.SplitN(key, "|", 2)
		batch := models.BatchPairsMessage{
			BatchID:     uuid.New().String(),
			Chain:       parts[0],
			Timeframe:   parts[1],
			Entries:     entries,
			RecordCount: len(entries),
			Timestamp:   time.Now(),
		}
		w.processBatch(batch)
	}
}

func (w *pairsWriter) processBatch(batch models.BatchPairsMessage) {
	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"chain":        batch.Chain,
		"timeframe":    batch.Timeframe,
		"record_count": batch.RecordCount,
		"timestamp":    batch.Timestamp,
		"operation":    "process_batch",
	})

	log.Info("processing batch")

	if batch.RecordCount == 0 {
		log.Debug("batch has no records, skipping")
		return
	}

	s3Key := w.generateS3Key(batch)
	log = log.WithFields(logger.Fields{"s3_key": s3Key})

	parquetData, fileSize, err := w.createParquetFile(batch.Entries)
	if err != nil {
		log.WithError(err).Error("failed to create parquet file")
		return
	}

	err = w.uploadToS3(s3Key, parquetData)
	if err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"bucket": w.config.Storage.S3.Bucket, "s3_key": s3Key}).
			Error("failed to upload to S3")
		return
	}

	logger.IncrementS3Write(fileSize)

	log.WithFields(logger.Fields{
		"file_size": fileSize,
	}).Info("batch processed and uploaded successfully")

	df := metadata.DataFile{
		Path:        fmt.Sprintf("s3://%s/%s", w.config.Storage.S3.Bucket, s3Key),
		FileSize:    fileSize,
		RecordCount: int64(batch.RecordCount),
		Chain:       batch.Chain,
		Timeframe:   batch.Timeframe,
		Date:        batch.Timestamp.Format("2006-01-02"),
		Timestamp:   batch.Timestamp,
	}
	if err := w.metaGen.AddFile(df); err != nil {
		log.WithError(err).Warn("failed to update metadata")
	}
}

func (w *pairsWriter) generateS3Key(batch models.BatchPairsMessage) string {
	timestamp := batch.Timestamp

	// Build key parts from additional keys in order
	var parts []string
	for _, k := range w.config.Writer.Partitioning.AdditionalKeys {
		switch k {
		case "chain":
			parts = append(parts, fmt.Sprintf("chain=%s", batch.Chain))
		case "timeframe":
			if batch.Timeframe != "" {
				parts = append(parts, fmt.Sprintf("timeframe=%s", batch.Timeframe))
			}
		}
	}

	// Time-based partition path
	timeFormat := w.config.Writer.Partitioning.TimeFormat
	timePath := strings.ReplaceAll(timeFormat, "{year}", fmt.Sprintf("%04d", timestamp.Year()))
	timePath = strings.ReplaceAll(timePath, "{month}", fmt.Sprintf("%02d", timestamp.Month()))
	timePath = strings.ReplaceAll(timePath, "{day}", fmt.Sprintf("%02d", timestamp.Day()))
	timePath = strings.ReplaceAll(timePath, "{hour}", fmt.Sprintf("%02d", timestamp.Hour()))

	parts = append(parts, timePath)

	ts := timestamp.UTC().Format("20060102150405")
	filename := fmt.Sprintf("dex_pairs_%s_%s.parquet", batch.Chain, ts)

	key := filepath.Join(append(parts, filename)...)

	// Convert to forward slashes for S3
	return filepath.ToSlash(key)
}

func (w *pairsWriter) createParquetFile(entries []models.TradingPairRecord) ([]byte, int64, error) {
	// Records without addresses never leave the decoder, but the writer is
	// the last stop before durable storage, so re-check here.
	validEntries := make([]models.TradingPairRecord, 0, len(entries))
	for _, e := range entries {
		if e.Chain == "" || e.PairAddress == "" {
			continue
		}
		validEntries = append(validEntries, e)
	}

	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"entries_count": len(validEntries),
		"operation":     "create_parquet_file",
	})
	log.Info("creating parquet file")

	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(PairParquetRecord), 4)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch w.config.Writer.Formats.Parquet.Compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "lzo":
		pw.CompressionType = parquet.CompressionCodec_LZO
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for _, entry := range validEntries {
		record := PairParquetRecord{
			Chain:            entry.Chain,
			Protocol:         entry.Protocol,
			PairAddress:      entry.PairAddress,
			BaseTokenName:    entry.BaseTokenName,
			BaseTokenSymbol:  entry.BaseTokenSymbol,
			BaseTokenAddress: entry.BaseTokenAddress,
			Price:            entry.Price,
			PriceUsd:         entry.PriceUsd,
			PriceChangeH24:   entry.PriceChangeH24,
			LiquidityUsd:     entry.LiquidityUsd,
			VolumeH24:        entry.VolumeH24,
			FDV:              entry.FDV,
			DecodedAt:        entry.DecodedAt.UnixMilli(),
		}
		if entry.CreatedAt != nil {
			ms := entry.CreatedAt.UnixMilli()
			record.CreatedAt = &ms
		}

		if err := pw.Write(record); err != nil {
			pw.WriteStop()
			return nil, 0, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return nil, 0, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}

	data := fw.Bytes()

	log.WithFields(logger.Fields{
		"file_size":     len(data),
		"entries_count": len(validEntries),
		"compression":   w.config.Writer.Formats.Parquet.Compression,
	}).Info("parquet file created successfully")

	return data, int64(len(data)), nil
}

func (w *pairsWriter) uploadToS3(key string, data []byte) error {
	log := w.log.WithComponent("s3_writer").WithFields(logger.Fields{
		"operation": "upload_to_s3",
		"data_size": len(data),
	})
	log.Info("uploading to S3")

	input := &s3.PutObjectInput{
		Bucket:      aws.String(w.config.Storage.S3.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type":    "parquet",
			"compression":     w.config.Writer.Formats.Parquet.Compression,
			"dexflow-version": w.config.Dexflow.Version,
		},
	}

	ctx := context.WithoutCancel(w.ctx)
	_, err := w.s3Client.PutObject(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to upload to S3 bucket %s: %w", w.config.Storage.S3.Bucket, err)
	}

	log.Info("successfully uploaded to S3")
	return nil
}

// Start exposes the start method of pairsWriter.
func (w *PairsWriter) Start(ctx context.Context) error { return w.start(ctx) }

// Stop exposes the stop method of pairsWriter.
func (w *PairsWriter) Stop() { w.stop() }
