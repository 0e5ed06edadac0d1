package protocol

import (
	"fmt"
	"time"

	"dexflow/models"
)

const (
	maxProfileText = 512
	maxURLLen      = 256
	maxSocialKey   = 50
	maxListEntries = 16
)

// decodeProfileChunk decodes one token profile chunk: symbol, name and
// description strings followed by counted lists of website URLs and social
// key/value pairs.
func decodeProfileChunk(chunk []byte, index int) []Outcome {
	fail := func(err error, what string) []Outcome {
		return []Outcome{{Chunk: index, Skip: reasonFor(err), Detail: what}}
	}

	symbol, off, err := readString(chunk, 0, 2, maxPairString)
	if err != nil {
		return fail(err, "symbol")
	}
	if symbol == "" {
		return []Outcome{{Chunk: index, Skip: SkipInvariantViolation, Detail: "missing symbol"}}
	}
	name, off, err := readString(chunk, off, 2, maxPairString)
	if err != nil {
		return fail(err, "name")
	}
	desc, off, err := readString(chunk, off, 2, maxProfileText)
	if err != nil {
		return fail(err, "description")
	}

	rec := models.TokenProfileRecord{
		Symbol:      symbol,
		Name:        name,
		Description: desc,
		DecodedAt:   time.Now().UTC(),
	}

	if off >= len(chunk) {
		return fail(ErrTruncatedField, "website count")
	}
	webCount := int(chunk[off])
	off++
	if webCount > maxListEntries {
		return fail(ErrInvalidLength, fmt.Sprintf("website count %d", webCount))
	}
	for i := 0; i < webCount; i++ {
		var url string
		url, off, err = readString(chunk, off, 2, maxURLLen)
		if err != nil {
			return fail(err, fmt.Sprintf("website %d", i))
		}
		if url != "" {
			rec.Websites = append(rec.Websites, url)
		}
	}

	if off >= len(chunk) {
		return fail(ErrTruncatedField, "social count")
	}
	socCount := int(chunk[off])
	off++
	if socCount > maxListEntries {
		return fail(ErrInvalidLength, fmt.Sprintf("social count %d", socCount))
	}
	for i := 0; i < socCount; i++ {
		var key, val string
		key, off, err = readString(chunk, off, 2, maxSocialKey)
		if err != nil {
			return fail(err, fmt.Sprintf("social key %d", i))
		}
		val, off, err = readString(chunk, off, 2, maxURLLen)
		if err != nil {
			return fail(err, fmt.Sprintf("social value %d", i))
		}
		if key != "" && val != "" {
			if rec.Socials == nil {
				rec.Socials = make(map[string]string, socCount)
			}
			rec.Socials[key] = val
		}
	}

	return []Outcome{{Chunk: index, Profile: &rec}}
}
