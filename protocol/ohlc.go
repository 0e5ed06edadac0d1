package protocol

import (
	"fmt"
	"time"

	"dexflow/models"
)

const (
	maxCandlesPerChunk = 64
	ohlcDoubleCount    = 6
)

// decodeOHLCChunk decodes one self-delimited candle chunk from the enhanced
// feed: a 2-byte-prefixed symbol, a candle count, then an aligned block of
// six doubles per candle (timestamp, open, high, low, close, volume).
// Candles are validated independently; one bad candle drops only itself.
func decodeOHLCChunk(chunk []byte, index int) []Outcome {
	symbol, off, err := readString(chunk, 0, 2, maxPairString)
	if err != nil {
		return []Outcome{{Chunk: index, Skip: reasonFor(err), Detail: "symbol"}}
	}
	if symbol == "" {
		return []Outcome{{Chunk: index, Skip: SkipInvariantViolation, Detail: "missing symbol"}}
	}
	if off >= len(chunk) {
		return []Outcome{{Chunk: index, Skip: SkipTruncatedField, Detail: "candle count"}}
	}
	count := int(chunk[off])
	off++
	if count == 0 {
		return []Outcome{{Chunk: index, Skip: SkipEmptyChunk}}
	}
	if count > maxCandlesPerChunk {
		return []Outcome{{Chunk: index, Skip: SkipInvalidLength, Detail: fmt.Sprintf("candle count %d", count)}}
	}

	off = align8(off)
	now := time.Now().UTC()
	outs := make([]Outcome, 0, count)
	for c := 0; c < count; c++ {
		vals, next, err := readDoubles(chunk, off, ohlcDoubleCount)
		if err != nil {
			outs = append(outs, Outcome{Chunk: index, Skip: reasonFor(err), Detail: fmt.Sprintf("candle %d", c)})
			break
		}
		off = next

		if out, ok := buildCandle(symbol, vals, index, c, now); ok {
			outs = append(outs, out)
		} else {
			outs = append(outs, Outcome{Chunk: index, Skip: SkipInvariantViolation, Detail: fmt.Sprintf("candle %d", c)})
		}
	}
	return outs
}

func buildCandle(symbol string, vals []float64, index, c int, now time.Time) (Outcome, bool) {
	for _, v := range vals {
		if _, ok := SanitizeDouble(v); !ok {
			return Outcome{}, false
		}
	}
	ts, o, h, l, cl, vol := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	if ts <= 0 || vol < 0 {
		return Outcome{}, false
	}
	// High must bound the body from above and low from below. Violations
	// are discarded, never repaired.
	if h < o || h < cl || l > o || l > cl || h < l {
		return Outcome{}, false
	}

	rec := models.OHLCRecord{
		Symbol:    symbol,
		Timestamp: time.Unix(int64(ts), 0).UTC(),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     cl,
		Volume:    vol,
		DecodedAt: now,
	}
	return Outcome{Chunk: index, Candle: &rec}, true
}
