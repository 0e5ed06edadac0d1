package config

// Presets mirror the screener's built-in board views. A preset only fills
// fields the target leaves empty, so partial overrides in yaml keep working.
var presets = map[string]TargetConfig{
	"trending": {
		Timeframe: "h6",
		RankBy:    "trendingScoreH6",
		Order:     "desc",
	},
	"top_volume": {
		Timeframe: "h24",
		RankBy:    "volume",
		Order:     "desc",
	},
	"gainers": {
		Timeframe: "h24",
		RankBy:    "priceChangeH24",
		Order:     "desc",
		Filters:   FilterConfig{LiquidityMin: 10000, VolumeH24Min: 50000},
	},
	"new_pairs": {
		Timeframe: "h1",
		RankBy:    "pairAge",
		Order:     "asc",
		Filters:   FilterConfig{PairAgeMaxHours: 24},
	},
	"pumpfun_trending": {
		Chain:     "solana",
		Timeframe: "h1",
		RankBy:    "trendingScoreH6",
		Order:     "desc",
		DexIDs:    []string{"pumpfun"},
	},
}

// PresetNames lists the presets accepted in target configuration.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	return names
}

func applyPreset(t *TargetConfig) {
	p, ok := presets[t.Preset]
	if !ok {
		return
	}
	if t.Chain == "" {
		t.Chain = p.Chain
	}
	if t.Timeframe == "" {
		t.Timeframe = p.Timeframe
	}
	if t.RankBy == "" {
		t.RankBy = p.RankBy
	}
	if t.Order == "" {
		t.Order = p.Order
	}
	if len(t.DexIDs) == 0 {
		t.DexIDs = append([]string(nil), p.DexIDs...)
	}
	if t.Filters == (FilterConfig{}) {
		t.Filters = p.Filters
	}
}
