package protocol

import (
	"time"

	"dexflow/models"
)

const (
	// PairChunkSize is the fixed stride of pair records inside a frame.
	PairChunkSize = 512

	maxPairString   = 100
	maxLeadingPad   = 10
	pairDoubleCount = 8

	// Creation timestamps are epoch seconds; anything past 2100
	// means the doubles block was read from a misaligned offset.
	maxCreatedAt = 4102444800
)

// decodePairChunk decodes one fixed-size pair chunk. A chunk either yields a
// complete record or is skipped whole; partially decoded values never
// escape.
func decodePairChunk(chunk []byte, index int) Outcome {
	if isPadding(chunk) {
		return Outcome{Chunk: index, Skip: SkipEmptyChunk}
	}

	off := 0
	for off < len(chunk) && off < maxLeadingPad && (chunk[off] == 0x00 || chunk[off] == 0x0A) {
		off++
	}

	var fields [6]string
	for i := range fields {
		v, next, err := readString(chunk, off, 1, maxPairString)
		if err != nil {
			return Outcome{Chunk: index, Skip: reasonFor(err), Detail: "string field " + pairFieldName(i)}
		}
		fields[i] = v
		off = next
	}

	vals, _, err := readDoubles(chunk, align8(off), pairDoubleCount)
	if err != nil {
		return Outcome{Chunk: index, Skip: reasonFor(err), Detail: "metrics block"}
	}

	rec := models.TradingPairRecord{
		Chain:            fields[0],
		Protocol:         fields[1],
		PairAddress:      fields[2],
		BaseTokenName:    fields[3],
		BaseTokenSymbol:  fields[4],
		BaseTokenAddress: fields[5],
		Price:            optionalDouble(vals[0]),
		PriceUsd:         optionalDouble(vals[1]),
		PriceChangeH24:   optionalDouble(vals[2]),
		LiquidityUsd:     optionalDouble(vals[3]),
		VolumeH24:        optionalDouble(vals[4]),
		FDV:              optionalDouble(vals[5]),
		DecodedAt:        time.Now().UTC(),
	}

	if v, ok := SanitizeDouble(vals[6]); ok && v > 0 && v < maxCreatedAt {
		t := time.Unix(int64(v), 0).UTC()
		rec.CreatedAt = &t
	}

	// The trailing double is a flag slot. Values far outside the observed
	// range mean the whole doubles block is garbage.
	if v, ok := SanitizeDouble(vals[7]); ok && (v < 0 || v > 255) {
		return Outcome{Chunk: index, Skip: SkipInvariantViolation, Detail: "flag slot out of range"}
	}

	if rec.Chain == "" || rec.PairAddress == "" || rec.BaseTokenAddress == "" {
		return Outcome{Chunk: index, Skip: SkipInvariantViolation, Detail: "missing address fields"}
	}

	return Outcome{Chunk: index, Pair: &rec}
}

func isPadding(chunk []byte) bool {
	for _, b := range chunk {
		if b != 0x00 && b != 0x0A {
			return false
		}
	}
	return true
}

func pairFieldName(i int) string {
	names := [...]string{"chain", "protocol", "pair_address", "base_token_name", "base_token_symbol", "base_token_address"}
	if i < len(names) {
		return names[i]
	}
	return "unknown"
}
