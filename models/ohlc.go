package models

import (
	"fmt"
	"time"
)

// OHLCRecord is one decoded candle. All numeric fields are guaranteed finite
// by the decoder; candles with missing or inconsistent values never reach
// this type.
type OHLCRecord struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	DecodedAt time.Time `json:"decoded_at"`
}

// MT5Row renders the candle as one line of MetaTrader 5 import CSV
// (SYMBOL,DATE,TIME,OPEN,HIGH,LOW,CLOSE,VOLUME).
func (r OHLCRecord) MT5Row() string {
	ts := r.Timestamp.UTC()
	return fmt.Sprintf("%s,%s,%s,%.8f,%.8f,%.8f,%.8f,%.2f",
		r.Symbol,
		ts.Format("2006.01.02"),
		ts.Format("15:04"),
		r.Open, r.High, r.Low, r.Close, r.Volume)
}

// BatchOHLCMessage groups decoded candles for the writers.
type BatchOHLCMessage struct {
	BatchID     string       `json:"batch_id"`
	Symbol      string       `json:"symbol"`
	Entries     []OHLCRecord `json:"entries"`
	RecordCount int          `json:"record_count"`
	Timestamp   time.Time    `json:"timestamp"`
	ProcessedAt time.Time    `json:"processed_at"`
}
