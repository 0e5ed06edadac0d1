package protocol

import (
	"errors"

	"dexflow/models"
)

var (
	// ErrTruncatedField signals a declared field running past the end of
	// its chunk.
	ErrTruncatedField = errors.New("field extends past chunk boundary")

	// ErrInvalidLength signals a declared length outside the accepted
	// range for the field.
	ErrInvalidLength = errors.New("declared length out of range")
)

// SkipReason classifies why a chunk (or a single candle) was not turned into
// a record. Decoding errors are always chunk-local; one bad chunk never
// poisons its neighbours.
type SkipReason string

const (
	SkipTruncatedField     SkipReason = "truncated_field"
	SkipInvalidLength      SkipReason = "invalid_length"
	SkipInvariantViolation SkipReason = "invariant_violation"
	SkipEmptyChunk         SkipReason = "empty_chunk"
	SkipUnrecognizedFrame  SkipReason = "unrecognized_frame"
)

// Outcome is the result of decoding one chunk, or one candle within an ohlc
// chunk. Exactly one of the record pointers is set when Skip is empty.
type Outcome struct {
	Chunk   int
	Pair    *models.TradingPairRecord
	Candle  *models.OHLCRecord
	Profile *models.TokenProfileRecord
	Skip    SkipReason
	Detail  string
}

// OK reports whether the outcome carries a decoded record.
func (o Outcome) OK() bool { return o.Skip == "" }

func reasonFor(err error) SkipReason {
	switch {
	case errors.Is(err, ErrInvalidLength):
		return SkipInvalidLength
	case errors.Is(err, ErrTruncatedField):
		return SkipTruncatedField
	default:
		return SkipInvariantViolation
	}
}
