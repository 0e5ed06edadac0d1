package processor

import (
	"time"

	appconfig "dexflow/config"
	"dexflow/models"
)

// keepPair applies a target's chain, dex, and metric bounds to a decoded
// record. The server already filters the stream, but records drift across
// bounds between ranking refreshes, so the same bounds are enforced again
// here. A record missing a metric that has a bound configured is dropped: it
// cannot be shown to satisfy the bound.
func keepPair(target appconfig.TargetConfig, rec *models.TradingPairRecord, now time.Time) bool {
	if target.Chain != "" && rec.Chain != target.Chain {
		return false
	}

	if len(target.DexIDs) > 0 {
		matched := false
		for _, dex := range target.DexIDs {
			if rec.Protocol == dex {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	f := target.Filters
	if f.LiquidityMin > 0 || f.LiquidityMax > 0 {
		if rec.LiquidityUsd == nil {
			return false
		}
		if f.LiquidityMin > 0 && *rec.LiquidityUsd < f.LiquidityMin {
			return false
		}
		if f.LiquidityMax > 0 && *rec.LiquidityUsd > f.LiquidityMax {
			return false
		}
	}

	if f.VolumeH24Min > 0 {
		if rec.VolumeH24 == nil || *rec.VolumeH24 < f.VolumeH24Min {
			return false
		}
	}

	if f.FDVMin > 0 || f.FDVMax > 0 {
		if rec.FDV == nil {
			return false
		}
		if f.FDVMin > 0 && *rec.FDV < f.FDVMin {
			return false
		}
		if f.FDVMax > 0 && *rec.FDV > f.FDVMax {
			return false
		}
	}

	if f.PairAgeMaxHours > 0 {
		age := rec.AgeHours(now)
		if age < 0 || age > f.PairAgeMaxHours {
			return false
		}
	}

	return true
}
