package writer

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	appconfig "dexflow/config"
	"dexflow/models"
)

func testFileConfig(dir, format string) *appconfig.Config {
	cfg := &appconfig.Config{}
	cfg.Writer.File.Enabled = true
	cfg.Writer.File.Directory = dir
	cfg.Writer.File.Format = format
	return cfg
}

func TestFileWriterJSONL(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(testFileConfig(dir, "jsonl"), nil, nil)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	price := 0.0042
	batch := models.BatchPairsMessage{
		Chain:     "solana",
		Timestamp: ts,
		Entries: []models.TradingPairRecord{{
			Chain:       "solana",
			PairAddress: "Pair1111",
			PriceUsd:    &price,
			DecodedAt:   ts,
		}},
		RecordCount: 1,
	}
	if err := fw.writePairsBatch(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pairs_solana_20250601.jsonl"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	var rec models.TradingPairRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal line: %v", err)
	}
	if rec.PairAddress != "Pair1111" {
		t.Errorf("pair address: got %q", rec.PairAddress)
	}
	if rec.PriceUsd == nil || *rec.PriceUsd != price {
		t.Errorf("price usd: got %v", rec.PriceUsd)
	}
}

func TestFileWriterCSVWritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(testFileConfig(dir, "csv"), nil, nil)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := models.BatchPairsMessage{
		Chain:     "solana",
		Timestamp: ts,
		Entries: []models.TradingPairRecord{{
			Chain:       "solana",
			PairAddress: "Pair1111",
			DecodedAt:   ts,
		}},
		RecordCount: 1,
	}
	if err := fw.writePairsBatch(batch); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := fw.writePairsBatch(batch); err != nil {
		t.Fatalf("second write: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "pairs_solana_20250601.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "chain,") {
		t.Errorf("first line is not the header: %q", lines[0])
	}
	if strings.HasPrefix(lines[1], "chain,") || strings.HasPrefix(lines[2], "chain,") {
		t.Error("header repeated in data rows")
	}
}

func TestFileWriterMT5(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(testFileConfig(dir, "mt5"), nil, nil)
	if err != nil {
		t.Fatalf("new file writer: %v", err)
	}

	candle := models.OHLCRecord{
		Symbol:    "TOKUSD",
		Timestamp: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
		Open:      1.0,
		High:      1.5,
		Low:       0.9,
		Close:     1.2,
		Volume:    1000,
	}
	batch := models.BatchOHLCMessage{
		Symbol:      "TOKUSD",
		Timestamp:   candle.Timestamp,
		Entries:     []models.OHLCRecord{candle},
		RecordCount: 1,
	}
	if err := fw.writeOHLCBatch(batch); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "TOKUSD.csv"))
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	got := strings.TrimSpace(string(data))
	if got != candle.MT5Row() {
		t.Errorf("mt5 row:\n got %s\nwant %s", got, candle.MT5Row())
	}
}
