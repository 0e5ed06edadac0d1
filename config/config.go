package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Dexflow   DexflowConfig   `yaml:"dexflow"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Reader    ReaderConfig    `yaml:"reader"`
	Processor ProcessorConfig `yaml:"processor"`
	Writer    WriterConfig    `yaml:"writer"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DexflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type ChannelsConfig struct {
	RawBuffer       int `yaml:"raw_buffer"`
	ProcessedBuffer int `yaml:"processed_buffer"`
}

type ReaderConfig struct {
	ConnectTimeout    time.Duration   `yaml:"connect_timeout"`
	ReadTimeout       time.Duration   `yaml:"read_timeout"`
	HeartbeatInterval time.Duration   `yaml:"heartbeat_interval"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	Retry             RetryConfig     `yaml:"retry"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

type ProcessorConfig struct {
	MaxWorkers   int           `yaml:"max_workers"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type WriterConfig struct {
	MaxWorkers   int                `yaml:"max_workers"`
	Buffer       BufferConfig       `yaml:"buffer"`
	Partitioning PartitioningConfig `yaml:"partitioning"`
	Formats      FormatsConfig      `yaml:"formats"`
	File         FileWriterConfig   `yaml:"file"`
}

type BufferConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type PartitioningConfig struct {
	TimeFormat     string   `yaml:"time_format"`
	AdditionalKeys []string `yaml:"additional_keys"`
}

type FormatsConfig struct {
	Parquet ParquetConfig `yaml:"parquet"`
}

type ParquetConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Compression string `yaml:"compression"`
	PageSize    int    `yaml:"page_size"`
}

// FileWriterConfig controls the local export writer. Format is one of
// jsonl, csv or mt5.
type FileWriterConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
	Format    string `yaml:"format"`
}

type SourceConfig struct {
	URL     string         `yaml:"url"`
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig describes one screener stream subscription. A preset fills
// rank and filter defaults; explicit fields override the preset.
type TargetConfig struct {
	Name      string       `yaml:"name"`
	Preset    string       `yaml:"preset"`
	Chain     string       `yaml:"chain"`
	Timeframe string       `yaml:"timeframe"`
	RankBy    string       `yaml:"rank_by"`
	Order     string       `yaml:"order"`
	DexIDs    []string     `yaml:"dex_ids"`
	Filters   FilterConfig `yaml:"filters"`
}

// FilterConfig bounds records a target keeps. Zero means unbounded.
type FilterConfig struct {
	LiquidityMin    float64 `yaml:"liquidity_min"`
	LiquidityMax    float64 `yaml:"liquidity_max"`
	VolumeH24Min    float64 `yaml:"volume_h24_min"`
	FDVMin          float64 `yaml:"fdv_min"`
	FDVMax          float64 `yaml:"fdv_max"`
	PairAgeMaxHours float64 `yaml:"pair_age_max_hours"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LoggingConfig struct {
	Level         string                 `yaml:"level"`
	Format        string                 `yaml:"format"`
	Output        string                 `yaml:"output"`
	MaxAge        int                    `yaml:"max_age"`
	Fields        map[string]interface{} `yaml:"fields"`
	DashboardName string                 `yaml:"dashboard_name"`
}

// DefaultStreamURL is the screener websocket endpoint; {timeframe} is
// substituted per target.
const DefaultStreamURL = "wss://io.dexscreener.com/dex/screener/v5/pairs/{timeframe}/1"

var (
	validTimeframes = map[string]bool{"m5": true, "h1": true, "h6": true, "h24": true}
	validOrders     = map[string]bool{"asc": true, "desc": true}
	validRankKeys   = map[string]bool{
		"trendingScoreH6": true,
		"volume":          true,
		"priceChangeH24":  true,
		"pairAge":         true,
		"liquidity":       true,
		"txns":            true,
	}
)

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	if config.Storage.Kafka.Enabled {
		if v := os.Getenv("KAFKA_BROKERS"); v != "" {
			config.Storage.Kafka.Brokers = strings.Split(strings.TrimSpace(v), ",")
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.URL == "" {
		cfg.Source.URL = DefaultStreamURL
	}
	if cfg.Reader.ConnectTimeout <= 0 {
		cfg.Reader.ConnectTimeout = 10 * time.Second
	}
	if cfg.Reader.ReadTimeout <= 0 {
		cfg.Reader.ReadTimeout = 60 * time.Second
	}
	if cfg.Reader.HeartbeatInterval <= 0 {
		cfg.Reader.HeartbeatInterval = 20 * time.Second
	}
	if cfg.Reader.RateLimit.RequestsPerSecond <= 0 {
		cfg.Reader.RateLimit.RequestsPerSecond = 0.5
	}
	if cfg.Reader.RateLimit.BurstSize <= 0 {
		cfg.Reader.RateLimit.BurstSize = 1
	}
	if cfg.Reader.Retry.MaxAttempts <= 0 {
		cfg.Reader.Retry.MaxAttempts = 10
	}
	if cfg.Reader.Retry.BaseDelay <= 0 {
		cfg.Reader.Retry.BaseDelay = time.Second
	}
	if cfg.Reader.Retry.MaxDelay <= 0 {
		cfg.Reader.Retry.MaxDelay = 5 * time.Minute
	}

	for i := range cfg.Source.Targets {
		t := &cfg.Source.Targets[i]
		if t.Preset != "" {
			applyPreset(t)
		}
		if t.Timeframe == "" {
			t.Timeframe = "h24"
		}
		if t.RankBy == "" {
			t.RankBy = "trendingScoreH6"
		}
		if t.Order == "" {
			t.Order = "desc"
		}
		if t.Name == "" {
			t.Name = t.Preset
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Dexflow.Name == "" {
		return fmt.Errorf("dexflow.name is required")
	}
	if cfg.Dexflow.Version == "" {
		return fmt.Errorf("dexflow.version is required")
	}

	if cfg.Channels.RawBuffer <= 0 {
		return fmt.Errorf("channels.raw_buffer must be greater than 0")
	}
	if cfg.Channels.ProcessedBuffer <= 0 {
		return fmt.Errorf("channels.processed_buffer must be greater than 0")
	}

	if cfg.Processor.MaxWorkers <= 0 {
		return fmt.Errorf("processor.max_workers must be greater than 0")
	}
	if cfg.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be greater than 0")
	}
	if cfg.Processor.BatchTimeout <= 0 {
		return fmt.Errorf("processor.batch_timeout must be greater than 0")
	}

	if len(cfg.Source.Targets) == 0 {
		return fmt.Errorf("source.targets must define at least one stream target")
	}
	for _, t := range cfg.Source.Targets {
		if t.Name == "" {
			return fmt.Errorf("source target is missing a name")
		}
		if t.Preset != "" {
			if _, ok := presets[t.Preset]; !ok {
				return fmt.Errorf("target %s: unknown preset %q", t.Name, t.Preset)
			}
		}
		if !validTimeframes[t.Timeframe] {
			return fmt.Errorf("target %s: timeframe %q is not one of m5, h1, h6, h24", t.Name, t.Timeframe)
		}
		if !validOrders[t.Order] {
			return fmt.Errorf("target %s: order %q must be asc or desc", t.Name, t.Order)
		}
		if !validRankKeys[t.RankBy] {
			return fmt.Errorf("target %s: unknown rank key %q", t.Name, t.RankBy)
		}
	}

	if cfg.Writer.File.Enabled {
		switch cfg.Writer.File.Format {
		case "jsonl", "csv", "mt5":
		default:
			return fmt.Errorf("writer.file.format %q must be jsonl, csv or mt5", cfg.Writer.File.Format)
		}
		if cfg.Writer.File.Directory == "" {
			return fmt.Errorf("writer.file.directory is required when the file writer is enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Writer.Buffer.FlushInterval <= 0 {
			return fmt.Errorf("writer.buffer.flush_interval must be greater than 0")
		}
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.AccessKeyID == "" || cfg.Storage.S3.SecretAccessKey == "" {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key are required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when kafka is enabled")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
