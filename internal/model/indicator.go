package model

import (
	"encoding/json"
	"time"
)

// IndicatorResult is a single RSI reading for one token.
// The JSON field names are the outbound wire contract.
type IndicatorResult struct {
	Token       string  `json:"token_address"`
	RSI         float64 `json:"rsi"`
	Price       float64 `json:"price"` // price of the sample that produced this reading
	TimestampMs int64   `json:"timestamp_ms"`
}

// JSON encodes the result for publication. Fails for non-finite values.
func (r *IndicatorResult) JSON() ([]byte, error) {
	return json.Marshal(r)
}

// Emission outcomes recorded in metrics and the journal.
const (
	OutcomeDelivered      = "delivered"
	OutcomeFailed         = "failed"
	OutcomeRejected       = "rejected" // publisher circuit open
	OutcomeSerializeError = "serialize_error"
)

// EmissionRecord is the journal entry for one publication attempt.
type EmissionRecord struct {
	Token     string
	RSI       float64
	Price     float64
	Timestamp time.Time
	Outcome   string
	EntryID   string // outbound stream entry ID, empty unless delivered
	Error     string
	LatencyMs float64
}
