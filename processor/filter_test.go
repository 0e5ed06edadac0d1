package processor

import (
	"testing"
	"time"

	appconfig "dexflow/config"
	"dexflow/models"
)

func fptr(v float64) *float64 { return &v }

func TestKeepPair(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-6 * time.Hour)
	old := now.Add(-72 * time.Hour)

	tests := []struct {
		name   string
		target appconfig.TargetConfig
		rec    models.TradingPairRecord
		want   bool
	}{
		{
			name: "no bounds keeps everything",
			rec:  models.TradingPairRecord{Chain: "solana"},
			want: true,
		},
		{
			name:   "chain matches",
			target: appconfig.TargetConfig{Chain: "solana"},
			rec:    models.TradingPairRecord{Chain: "solana"},
			want:   true,
		},
		{
			name:   "chain mismatch",
			target: appconfig.TargetConfig{Chain: "solana"},
			rec:    models.TradingPairRecord{Chain: "ethereum"},
			want:   false,
		},
		{
			name:   "dex in allow list",
			target: appconfig.TargetConfig{DexIDs: []string{"raydium", "pumpswap"}},
			rec:    models.TradingPairRecord{Protocol: "pumpswap"},
			want:   true,
		},
		{
			name:   "dex outside allow list",
			target: appconfig.TargetConfig{DexIDs: []string{"raydium", "pumpswap"}},
			rec:    models.TradingPairRecord{Protocol: "orca"},
			want:   false,
		},
		{
			name:   "liquidity above min",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{LiquidityMin: 1000}},
			rec:    models.TradingPairRecord{LiquidityUsd: fptr(5000)},
			want:   true,
		},
		{
			name:   "liquidity below min",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{LiquidityMin: 1000}},
			rec:    models.TradingPairRecord{LiquidityUsd: fptr(500)},
			want:   false,
		},
		{
			name:   "liquidity absent with bound",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{LiquidityMin: 1000}},
			rec:    models.TradingPairRecord{},
			want:   false,
		},
		{
			name:   "liquidity above max",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{LiquidityMax: 10000}},
			rec:    models.TradingPairRecord{LiquidityUsd: fptr(50000)},
			want:   false,
		},
		{
			name:   "volume below min",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{VolumeH24Min: 50000}},
			rec:    models.TradingPairRecord{VolumeH24: fptr(100)},
			want:   false,
		},
		{
			name:   "fdv inside window",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{FDVMin: 1000, FDVMax: 1000000}},
			rec:    models.TradingPairRecord{FDV: fptr(50000)},
			want:   true,
		},
		{
			name:   "fdv above max",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{FDVMax: 1000000}},
			rec:    models.TradingPairRecord{FDV: fptr(2000000)},
			want:   false,
		},
		{
			name:   "age within bound",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{PairAgeMaxHours: 24}},
			rec:    models.TradingPairRecord{CreatedAt: &created},
			want:   true,
		},
		{
			name:   "age beyond bound",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{PairAgeMaxHours: 24}},
			rec:    models.TradingPairRecord{CreatedAt: &old},
			want:   false,
		},
		{
			name:   "age unknown with bound",
			target: appconfig.TargetConfig{Filters: appconfig.FilterConfig{PairAgeMaxHours: 24}},
			rec:    models.TradingPairRecord{},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := keepPair(tt.target, &tt.rec, now); got != tt.want {
				t.Errorf("keepPair() = %v, want %v", got, tt.want)
			}
		})
	}
}
