package writer

import (
	"testing"
	"time"

	appconfig "dexflow/config"
	"dexflow/logger"
	"dexflow/models"
)

func TestAddBatchAndBufferKey(t *testing.T) {
	w := &PairsWriter{
		log:    logger.GetLogger(),
		buffer: make(map[string][]models.TradingPairRecord),
	}
	batch := models.BatchPairsMessage{
		Chain:       "solana",
		Timeframe:   "h6",
		Entries:     []models.TradingPairRecord{{Chain: "solana", PairAddress: "Pair1111"}},
		RecordCount: 1,
	}
	w.addBatch(batch)
	key := w.bufferKey("solana", "h6")
	entries, ok := w.buffer[key]
	if !ok || len(entries) != 1 {
		t.Fatalf("expected batch to be added, got %v", w.buffer)
	}
}

func TestGenerateS3Key(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Writer.Partitioning.TimeFormat = "year={year}/month={month}/day={day}/hour={hour}"
	cfg.Writer.Partitioning.AdditionalKeys = []string{"chain", "timeframe"}

	w := &PairsWriter{config: cfg, log: logger.GetLogger()}
	batch := models.BatchPairsMessage{
		Chain:     "solana",
		Timeframe: "h6",
		Timestamp: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
	}

	key := w.generateS3Key(batch)
	want := "chain=solana/timeframe=h6/year=2025/month=06/day=01/hour=09/dex_pairs_solana_20250601093000.parquet"
	if key != want {
		t.Errorf("s3 key:\n got %s\nwant %s", key, want)
	}
}

func TestCreateParquetFileSkipsRecordsWithoutAddresses(t *testing.T) {
	cfg := &appconfig.Config{}
	cfg.Writer.Formats.Parquet.Compression = "snappy"

	w := &PairsWriter{config: cfg, log: logger.GetLogger()}

	price := 1.5
	entries := []models.TradingPairRecord{
		{Chain: "solana", PairAddress: "Pair1111", Price: &price, DecodedAt: time.Now()},
		{Chain: "", PairAddress: "Pair2222", DecodedAt: time.Now()},
	}

	data, size, err := w.createParquetFile(entries)
	if err != nil {
		t.Fatalf("create parquet: %v", err)
	}
	if size == 0 || len(data) == 0 {
		t.Error("parquet file is empty")
	}
}
