package protocol

import (
	"encoding/binary"
	"math"
	"strings"
)

// readString decodes one length-prefixed string at off. widthBytes selects a
// 1-byte or 2-byte little-endian length prefix. A zero length is a valid
// empty string; a length above ceiling is rejected rather than trusted.
func readString(buf []byte, off, widthBytes, ceiling int) (string, int, error) {
	if off+widthBytes > len(buf) {
		return "", off, ErrTruncatedField
	}
	var n int
	if widthBytes == 2 {
		n = int(binary.LittleEndian.Uint16(buf[off:]))
	} else {
		n = int(buf[off])
	}
	off += widthBytes
	if n == 0 {
		return "", off, nil
	}
	if n > ceiling {
		return "", off, ErrInvalidLength
	}
	if off+n > len(buf) {
		return "", off, ErrTruncatedField
	}
	return cleanString(string(buf[off : off+n])), off + n, nil
}

// align8 rounds off up to the next 8-byte boundary relative to the start of
// the chunk. Numeric blocks always begin aligned.
func align8(off int) int { return (off + 7) &^ 7 }

// readDoubles decodes count consecutive little-endian float64 values.
func readDoubles(buf []byte, off, count int) ([]float64, int, error) {
	need := count * 8
	if off+need > len(buf) {
		return nil, off, ErrTruncatedField
	}
	out := make([]float64, count)
	for i := range out {
		bits := binary.LittleEndian.Uint64(buf[off+i*8:])
		out[i] = math.Float64frombits(bits)
	}
	return out, off + need, nil
}

// SanitizeDouble maps NaN and infinite values to absent. Zero is a real
// value and passes through unchanged.
func SanitizeDouble(v float64) (float64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func optionalDouble(v float64) *float64 {
	s, ok := SanitizeDouble(v)
	if !ok {
		return nil
	}
	return &s
}

// cleanString repairs invalid UTF-8 and strips control characters the feed
// occasionally embeds in token names. Everything from the first '@' or
// backslash on is garbage trailing the real value.
func cleanString(s string) string {
	s = strings.ToValidUTF8(s, "")
	if i := strings.IndexAny(s, "@\\"); i >= 0 {
		s = s[:i]
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x20 && r != 0x7f {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
