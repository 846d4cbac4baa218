package models

// Candle is the active bar of a symbol. Time is the unix-seconds bucket start.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// CandleUpdate is the payload of the "candle" envelope.
type CandleUpdate struct {
	Symbol string `json:"symbol"`
	Candle Candle `json:"candle"`
}
