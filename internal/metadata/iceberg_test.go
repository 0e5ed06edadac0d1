package metadata

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGeneratorCreatesMetadata(t *testing.T) {
	dir := t.TempDir()
	gen := NewGenerator(dir, "dexflow")
	df := DataFile{
		Path:        "s3://bucket/chain=solana/timeframe=h6/year=2025/month=06/day=01/hour=09/file.parquet",
		FileSize:    100,
		RecordCount: 10,
		Chain:       "solana",
		Timeframe:   "h6",
		Date:        "2025-06-01",
		Timestamp:   time.Unix(0, 0),
	}
	if err := gen.AddFile(df); err != nil {
		t.Fatalf("AddFile: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "metadata", "metadata.json"))
	if err != nil {
		t.Fatalf("metadata not written: %v", err)
	}
	var tm TableMetadata
	if err := json.Unmarshal(b, &tm); err != nil {
		t.Fatalf("metadata not valid json: %v", err)
	}
	if len(tm.PartitionSpec) != 3 || tm.PartitionSpec[0].Name != PartitionChain {
		t.Errorf("partition spec: %+v", tm.PartitionSpec)
	}
	if len(tm.Snapshots) != 1 || tm.Snapshots[0].Records != 10 {
		t.Errorf("snapshots: %+v", tm.Snapshots)
	}

	manifest, err := os.ReadFile(filepath.Join(dir, "metadata", tm.Snapshots[0].Manifest))
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var entries []manifestFile
	if err := json.Unmarshal(manifest, &entries); err != nil {
		t.Fatalf("manifest not valid json: %v", err)
	}
	if len(entries) != 1 || entries[0].Partition[PartitionChain] != "solana" {
		t.Errorf("manifest entries: %+v", entries)
	}

	catalogDir := filepath.Join(dir, "catalog")
	if err := gen.WriteCatalogEntry(catalogDir); err != nil {
		t.Fatalf("catalog entry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(catalogDir, "dexflow.json")); err != nil {
		t.Fatalf("catalog entry not written: %v", err)
	}
}
