// Package metadata maintains Iceberg-style table metadata for the parquet
// files the pair writer lands on S3. Pair tables are partitioned by chain,
// timeframe, and date; the generator tracks one snapshot per written file so
// downstream query engines can time-travel over the feed.
package metadata

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Partition columns for pair tables, in spec order.
const (
	PartitionChain     = "chain"
	PartitionTimeframe = "timeframe"
	PartitionDate      = "date"
)

// DataFile describes one parquet file of pair records together with the
// partition it belongs to.
type DataFile struct {
	Path        string    `json:"path"`
	FileSize    int64     `json:"file_size_in_bytes"`
	RecordCount int64     `json:"record_count"`
	Chain       string    `json:"-"`
	Timeframe   string    `json:"-"`
	Date        string    `json:"-"`
	Timestamp   time.Time `json:"-"`
}

// manifestFile is the JSON shape persisted per snapshot. Partition values
// are spelled out so engines can prune files without opening them.
type manifestFile struct {
	Status      int            `json:"status"`
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition"`
}

// Snapshot holds minimal information required for time-travel queries.
type Snapshot struct {
	SnapshotID  int64  `json:"snapshot-id"`
	TimestampMs int64  `json:"timestamp-ms"`
	Manifest    string `json:"manifest-list"`
	Records     int64  `json:"added-records"`
}

// PartitionField names one column of the table's partition spec.
type PartitionField struct {
	Name      string `json:"name"`
	Transform string `json:"transform"`
}

// TableMetadata represents the high level Iceberg table metadata file.
type TableMetadata struct {
	FormatVersion     int              `json:"format-version"`
	TableUUID         string           `json:"table-uuid"`
	Location          string           `json:"location"`
	PartitionSpec     []PartitionField `json:"partition-spec"`
	CurrentSnapshotID int64            `json:"current-snapshot-id"`
	Snapshots         []Snapshot       `json:"snapshots"`
}

// Generator incrementally builds metadata for one pair table.
type Generator struct {
	basePath  string
	tableName string
	tableUUID string
	snapshots []Snapshot
}

// NewGenerator returns a metadata generator rooted at basePath. tableName
// becomes the catalog entry name, typically the pipeline name.
func NewGenerator(basePath, tableName string) *Generator {
	return &Generator{
		basePath:  basePath,
		tableName: tableName,
		tableUUID: uuid.NewString(),
	}
}

// pairTableSpec is the fixed partition spec for pair tables. Chain and
// timeframe are identity partitions matching the S3 key layout, date is
// derived from the batch timestamp.
func pairTableSpec() []PartitionField {
	return []PartitionField{
		{Name: PartitionChain, Transform: "identity"},
		{Name: PartitionTimeframe, Transform: "identity"},
		{Name: PartitionDate, Transform: "day"},
	}
}

// AddFile records a newly written parquet file as its own snapshot and
// rewrites the table metadata.
func (g *Generator) AddFile(df DataFile) error {
	snapID := df.Timestamp.UnixNano()
	manifestName := fmt.Sprintf("manifest-%d.json", snapID)
	manifestPath := filepath.Join(g.basePath, "metadata", manifestName)
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return err
	}
	entry := manifestFile{
		Status:      1,
		Path:        df.Path,
		FileSize:    df.FileSize,
		RecordCount: df.RecordCount,
		Partition: map[string]any{
			PartitionChain:     df.Chain,
			PartitionTimeframe: df.Timeframe,
			PartitionDate:      df.Date,
		},
	}
	b, err := json.Marshal([]manifestFile{entry})
	if err != nil {
		return err
	}
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return err
	}
	snapshot := Snapshot{
		SnapshotID:  snapID,
		TimestampMs: df.Timestamp.UnixMilli(),
		Manifest:    manifestName,
		Records:     df.RecordCount,
	}
	g.snapshots = append(g.snapshots, snapshot)
	return g.writeTableMetadata()
}

func (g *Generator) writeTableMetadata() error {
	if len(g.snapshots) == 0 {
		return nil
	}
	tm := TableMetadata{
		FormatVersion:     2,
		TableUUID:         g.tableUUID,
		Location:          g.basePath,
		PartitionSpec:     pairTableSpec(),
		CurrentSnapshotID: g.snapshots[len(g.snapshots)-1].SnapshotID,
		Snapshots:         g.snapshots,
	}
	metaPath := filepath.Join(g.basePath, "metadata", "metadata.json")
	b, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(metaPath, b, 0o644)
}

// WriteCatalogEntry creates a simple catalog entry pointing at the table metadata.
func (g *Generator) WriteCatalogEntry(catalogDir string) error {
	metaLoc := filepath.Join(g.basePath, "metadata", "metadata.json")
	entry := map[string]string{
		"name":              g.tableName,
		"metadata_location": metaLoc,
	}
	if err := os.MkdirAll(catalogDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(catalogDir, fmt.Sprintf("%s.json", g.tableName))
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
