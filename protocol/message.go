// Package protocol decodes the binary frames of the DexScreener websocket
// feed. The format is undocumented; every decoder here is defensive and
// treats each chunk independently so a single corrupt record never drops a
// whole frame.
package protocol

import (
	"bytes"
	"encoding/binary"
)

const (
	// VersionLegacy frames carry fixed 512-byte pair chunks.
	VersionLegacy = "1.3.0"
	// VersionEnhanced frames carry self-delimited chunks with a 2-byte
	// length prefix and may also contain ohlc and profile payloads.
	VersionEnhanced = "1.4.0"

	MarkerPairs    = "pairs"
	MarkerOHLC     = "ohlc"
	MarkerProfiles = "profiles"

	// Bytes between the end of the type marker and the first chunk.
	legacyMarkerGap   = 4
	enhancedMarkerGap = 12

	maxVersionLen = 16
)

// DecodeMessage splits one websocket frame into per-chunk outcomes. Frames
// that do not carry a recognized header and type marker produce a single
// unrecognized-frame outcome and nothing else. Record outcomes preserve wire
// order; padding chunks are dropped silently.
func DecodeMessage(frame []byte) []Outcome {
	version, rest, ok := parseHeader(frame)
	if !ok {
		return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "bad frame header"}}
	}
	if version != VersionLegacy && version != VersionEnhanced {
		return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "unsupported version " + version}}
	}
	enhanced := version == VersionEnhanced

	marker, pos := findMarker(rest)
	if pos < 0 {
		return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "no type marker"}}
	}
	gap := legacyMarkerGap
	if enhanced {
		gap = enhancedMarkerGap
	}
	start := pos + len(marker) + gap
	if start > len(rest) {
		return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "truncated payload header"}}
	}
	payload := rest[start:]

	switch marker {
	case MarkerPairs:
		return decodePairsPayload(payload)
	case MarkerOHLC:
		if !enhanced {
			return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "ohlc payload on legacy frame"}}
		}
		return decodeFramedPayload(payload, decodeOHLCChunk)
	case MarkerProfiles:
		if !enhanced {
			return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "profiles payload on legacy frame"}}
		}
		return decodeFramedPayload(payload, decodeProfileChunk)
	}
	return []Outcome{{Skip: SkipUnrecognizedFrame, Detail: "unknown marker"}}
}

// parseHeader validates the fixed prefix (0x00, '\n', version, '\n') and
// returns the declared version plus everything after the header.
func parseHeader(frame []byte) (string, []byte, bool) {
	if len(frame) < 4 || frame[0] != 0x00 || frame[1] != '\n' {
		return "", nil, false
	}
	limit := maxVersionLen
	if len(frame)-2 < limit {
		limit = len(frame) - 2
	}
	end := bytes.IndexByte(frame[2:2+limit], '\n')
	if end < 0 {
		return "", nil, false
	}
	return string(frame[2 : 2+end]), frame[2+end+1:], true
}

func findMarker(body []byte) (string, int) {
	best, bestPos := "", -1
	for _, m := range []string{MarkerPairs, MarkerOHLC, MarkerProfiles} {
		if p := bytes.Index(body, []byte(m)); p >= 0 && (bestPos < 0 || p < bestPos) {
			best, bestPos = m, p
		}
	}
	return best, bestPos
}

func decodePairsPayload(payload []byte) []Outcome {
	var outs []Outcome
	n := len(payload) / PairChunkSize
	for i := 0; i < n; i++ {
		out := decodePairChunk(payload[i*PairChunkSize:(i+1)*PairChunkSize], i)
		if out.Skip == SkipEmptyChunk {
			continue
		}
		outs = append(outs, out)
	}
	// A trailing partial chunk is dropped, never zero-padded.
	if rem := len(payload) % PairChunkSize; rem != 0 && !isPadding(payload[n*PairChunkSize:]) {
		outs = append(outs, Outcome{Chunk: n, Skip: SkipTruncatedField, Detail: "trailing partial chunk"})
	}
	return outs
}

// decodeFramedPayload walks self-delimited chunks, each prefixed with a
// little-endian uint16 byte length. Once the framing itself is broken there
// is no way to resynchronize, so decoding stops at the first bad prefix.
func decodeFramedPayload(payload []byte, decode func([]byte, int) []Outcome) []Outcome {
	var outs []Outcome
	idx := 0
	for off := 0; off < len(payload); idx++ {
		if off+2 > len(payload) {
			outs = append(outs, Outcome{Chunk: idx, Skip: SkipTruncatedField, Detail: "chunk length prefix"})
			break
		}
		n := int(binary.LittleEndian.Uint16(payload[off:]))
		if n == 0 {
			outs = append(outs, Outcome{Chunk: idx, Skip: SkipInvalidLength, Detail: "zero chunk length"})
			break
		}
		if off+2+n > len(payload) {
			outs = append(outs, Outcome{Chunk: idx, Skip: SkipTruncatedField, Detail: "chunk body"})
			break
		}
		for _, out := range decode(payload[off+2:off+2+n], idx) {
			if out.Skip == SkipEmptyChunk {
				continue
			}
			outs = append(outs, out)
		}
		off += 2 + n
	}
	return outs
}
