package models

// Tick is one real-time snapshot for a symbol.
// Ceiling/Floor/Reference form the exchange price-limit band for the session.
type Tick struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"changePct"`
	Volume    float64 `json:"volume"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Open      float64 `json:"open"`
	Ceiling   float64 `json:"ceiling"`
	Floor     float64 `json:"floor"`
	Reference float64 `json:"reference"`
	Timestamp int64   `json:"timestamp"` // unix ms
}

// AtCeiling / AtFloor report a price pinned to the daily limit band.
func (t Tick) AtCeiling() bool { return t.Ceiling > 0 && t.Price >= t.Ceiling }
func (t Tick) AtFloor() bool   { return t.Floor > 0 && t.Price <= t.Floor }
