package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const baseYAML = `
dexflow:
  name: dexflow
  version: 1.0.0
channels:
  raw_buffer: 100
  processed_buffer: 50
processor:
  max_workers: 2
  batch_size: 500
  batch_timeout: 5s
source:
  targets:
    - name: trending-solana
      preset: trending
      chain: solana
logging:
  level: info
  format: json
  output: stdout
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, baseYAML))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Dexflow.Name != "dexflow" {
		t.Errorf("unexpected name: %s", cfg.Dexflow.Name)
	}
	if cfg.Source.URL != DefaultStreamURL {
		t.Errorf("default url not applied: %q", cfg.Source.URL)
	}
	if cfg.Reader.Retry.MaxAttempts != 10 || cfg.Reader.Retry.BaseDelay != time.Second {
		t.Errorf("retry defaults not applied: %+v", cfg.Reader.Retry)
	}
	if cfg.Processor.BatchTimeout != 5*time.Second {
		t.Errorf("unexpected batch timeout: %v", cfg.Processor.BatchTimeout)
	}
}

func TestPresetFillsTargetDefaults(t *testing.T) {
	body := strings.Replace(baseYAML, "preset: trending", "preset: new_pairs", 1)
	cfg, err := LoadConfig(writeConfig(t, body))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	target := cfg.Source.Targets[0]
	if target.RankBy != "pairAge" || target.Order != "asc" || target.Timeframe != "h1" {
		t.Errorf("preset not applied: %+v", target)
	}
	if target.Filters.PairAgeMaxHours != 24 {
		t.Errorf("preset filters not applied: %+v", target.Filters)
	}
	if target.Chain != "solana" {
		t.Errorf("explicit chain overridden: %q", target.Chain)
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	cases := []struct {
		name     string
		old, new string
	}{
		{"missing name", "name: dexflow", `name: ""`},
		{"zero raw buffer", "raw_buffer: 100", "raw_buffer: 0"},
		{"zero batch size", "batch_size: 500", "batch_size: 0"},
		{"unknown preset", "preset: trending", "preset: mooning"},
	}
	for _, c := range cases {
		body := strings.Replace(baseYAML, c.old, c.new, 1)
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected validation error", c.name)
		}
	}
}

func TestLoadConfigRequiresTargets(t *testing.T) {
	body := strings.Replace(baseYAML,
		"  targets:\n    - name: trending-solana\n      preset: trending\n      chain: solana\n",
		"  targets: []\n", 1)
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for empty targets")
	}
}

func TestLoadConfigInvalidTimeframe(t *testing.T) {
	body := strings.Replace(baseYAML, "chain: solana", "chain: solana\n      timeframe: h12", 1)
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for invalid timeframe")
	}
}

func TestS3ValidationWhenEnabled(t *testing.T) {
	body := baseYAML + `
storage:
  s3:
    enabled: true
    region: us-east-1
    access_key_id: key
    secret_access_key: secret
writer:
  buffer:
    flush_interval: 30s
`
	if _, err := LoadConfig(writeConfig(t, body)); err == nil {
		t.Fatal("expected error for missing bucket")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	cases := []struct {
		name  string
		valid bool
	}{
		{"valid-bucket", true},
		{"data.lake.01", true},
		{"Invalid", false},
		{"ab", false},
		{"my..bucket", false},
		{".leading", false},
	}
	for _, c := range cases {
		if got := isValidS3Bucket(c.name); got != c.valid {
			t.Errorf("isValidS3Bucket(%q) = %v, want %v", c.name, got, c.valid)
		}
	}
}

func TestStreamURL(t *testing.T) {
	src := SourceConfig{URL: DefaultStreamURL}
	target := TargetConfig{
		Name:      "gainers-eth",
		Chain:     "ethereum",
		Timeframe: "h24",
		RankBy:    "priceChangeH24",
		Order:     "desc",
		DexIDs:    []string{"uniswap"},
		Filters:   FilterConfig{LiquidityMin: 25000, VolumeH24Min: 100000, PairAgeMaxHours: 48},
	}
	u, err := src.StreamURL(target)
	if err != nil {
		t.Fatalf("StreamURL failed: %v", err)
	}
	if !strings.HasPrefix(u, "wss://io.dexscreener.com/dex/screener/v5/pairs/h24/1?") {
		t.Errorf("unexpected path: %s", u)
	}
	for _, want := range []string{
		"rankBy%5Bkey%5D=priceChangeH24",
		"rankBy%5Border%5D=desc",
		"filters%5BchainIds%5D%5B0%5D=ethereum",
		"filters%5BdexIds%5D%5B0%5D=uniswap",
		"filters%5Bliquidity%5D%5Bmin%5D=25000",
		"filters%5Bvolume%5D%5Bh24%5D%5Bmin%5D=100000",
		"filters%5BpairAge%5D%5Bmax%5D=48",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("url missing %s: %s", want, u)
		}
	}
}
