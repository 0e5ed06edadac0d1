package models

import "time"

// RawFrameMessage carries one binary websocket frame from the reader to the
// decoder workers. Data is the frame payload exactly as received.
type RawFrameMessage struct {
	Source     string    `json:"source"`
	URL        string    `json:"url"`
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// TradingPairRecord is one decoded trading pair snapshot. Numeric fields are
// pointers so that values missing from the wire (or non-finite) stay
// distinguishable from a real zero.
type TradingPairRecord struct {
	Chain             string     `json:"chain"`
	Protocol          string     `json:"protocol"`
	PairAddress       string     `json:"pair_address"`
	BaseTokenName     string     `json:"base_token_name"`
	BaseTokenSymbol   string     `json:"base_token_symbol"`
	BaseTokenAddress  string     `json:"base_token_address"`
	QuoteTokenSymbol  string     `json:"quote_token_symbol,omitempty"`
	QuoteTokenAddress string     `json:"quote_token_address,omitempty"`
	Price             *float64   `json:"price,omitempty"`
	PriceUsd          *float64   `json:"price_usd,omitempty"`
	PriceChangeH24    *float64   `json:"price_change_h24,omitempty"`
	LiquidityUsd      *float64   `json:"liquidity_usd,omitempty"`
	VolumeH24         *float64   `json:"volume_h24,omitempty"`
	FDV               *float64   `json:"fdv,omitempty"`
	CreatedAt         *time.Time `json:"created_at,omitempty"`
	DecodedAt         time.Time  `json:"decoded_at"`
}

// AgeHours returns the pair age relative to now, or -1 when the creation
// timestamp is unknown.
func (r *TradingPairRecord) AgeHours(now time.Time) float64 {
	if r.CreatedAt == nil {
		return -1
	}
	return now.Sub(*r.CreatedAt).Hours()
}

// BatchPairsMessage groups decoded pair records for the writers.
type BatchPairsMessage struct {
	BatchID     string              `json:"batch_id"`
	Chain       string              `json:"chain"`
	Timeframe   string              `json:"timeframe"`
	Entries     []TradingPairRecord `json:"entries"`
	RecordCount int                 `json:"record_count"`
	Timestamp   time.Time           `json:"timestamp"`
	ProcessedAt time.Time           `json:"processed_at"`
}
