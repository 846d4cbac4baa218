package models

import "encoding/json"

// Envelope types accepted on the market stream.
const (
	EnvelopeTick      = "tick"
	EnvelopeTickBatch = "tick_batch"
	EnvelopeCandle    = "candle"
	EnvelopeSignal    = "signal"
	EnvelopePortfolio = "portfolio"
	EnvelopeOrder     = "order"
)

// Envelope is the discriminated union {type, payload} sent by the backend.
// Payload stays raw until the router knows which shape to decode.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
