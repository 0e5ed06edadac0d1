package models

import "time"

// TokenProfileRecord is enrichment metadata for a token, decoded from
// profile frames on the enhanced feed.
type TokenProfileRecord struct {
	Symbol      string            `json:"symbol"`
	Name        string            `json:"name,omitempty"`
	Description string            `json:"description,omitempty"`
	Websites    []string          `json:"websites,omitempty"`
	Socials     map[string]string `json:"socials,omitempty"`
	DecodedAt   time.Time         `json:"decoded_at"`
}

// BatchProfilesMessage groups decoded token profiles for the writers.
type BatchProfilesMessage struct {
	BatchID     string               `json:"batch_id"`
	Entries     []TokenProfileRecord `json:"entries"`
	RecordCount int                  `json:"record_count"`
	Timestamp   time.Time            `json:"timestamp"`
	ProcessedAt time.Time            `json:"processed_at"`
}
