package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// StreamURL renders the websocket URL for one target. The endpoint uses
// PHP-style bracketed query keys (rankBy[key], filters[chainIds][0]) and a
// per-timeframe path segment.
func (c *SourceConfig) StreamURL(t TargetConfig) (string, error) {
	raw := strings.ReplaceAll(c.URL, "{timeframe}", t.Timeframe)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("source url: %w", err)
	}

	q := url.Values{}
	q.Set("rankBy[key]", t.RankBy)
	q.Set("rankBy[order]", t.Order)

	if t.Chain != "" {
		q.Set("filters[chainIds][0]", t.Chain)
	}
	for i, dex := range t.DexIDs {
		q.Set(fmt.Sprintf("filters[dexIds][%d]", i), dex)
	}

	f := t.Filters
	if f.LiquidityMin > 0 {
		q.Set("filters[liquidity][min]", formatAmount(f.LiquidityMin))
	}
	if f.LiquidityMax > 0 {
		q.Set("filters[liquidity][max]", formatAmount(f.LiquidityMax))
	}
	if f.VolumeH24Min > 0 {
		q.Set("filters[volume][h24][min]", formatAmount(f.VolumeH24Min))
	}
	if f.FDVMin > 0 {
		q.Set("filters[marketCap][min]", formatAmount(f.FDVMin))
	}
	if f.FDVMax > 0 {
		q.Set("filters[marketCap][max]", formatAmount(f.FDVMax))
	}
	if f.PairAgeMaxHours > 0 {
		q.Set("filters[pairAge][max]", formatAmount(f.PairAgeMaxHours))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
