package models

import "github.com/shopspring/decimal"

type Position struct {
	Symbol      string  `json:"symbol"`
	Quantity    int64   `json:"quantity"`
	AvgPrice    float64 `json:"avgPrice"`
	MarketPrice float64 `json:"marketPrice"`
}

// PnL is derived, never stored: (market - avg) * qty.
func (p Position) PnL() float64 {
	diff := decimal.NewFromFloat(p.MarketPrice).Sub(decimal.NewFromFloat(p.AvgPrice))
	return diff.Mul(decimal.NewFromInt(p.Quantity)).InexactFloat64()
}

// PnLPct is the pnl relative to the average price, in percent.
func (p Position) PnLPct() float64 {
	if p.AvgPrice == 0 {
		return 0
	}
	avg := decimal.NewFromFloat(p.AvgPrice)
	return decimal.NewFromFloat(p.MarketPrice).Sub(avg).
		Div(avg).
		Mul(decimal.NewFromInt(100)).
		Round(4).
		InexactFloat64()
}

// MarketValue is qty * market price.
func (p Position) MarketValue() float64 {
	return decimal.NewFromFloat(p.MarketPrice).Mul(decimal.NewFromInt(p.Quantity)).InexactFloat64()
}

// PositionPatch: nil fields are kept.
type PositionPatch struct {
	Quantity    *int64
	AvgPrice    *float64
	MarketPrice *float64
}

func (p PositionPatch) Apply(pos *Position) {
	if p.Quantity != nil {
		pos.Quantity = *p.Quantity
	}
	if p.AvgPrice != nil {
		pos.AvgPrice = *p.AvgPrice
	}
	if p.MarketPrice != nil {
		pos.MarketPrice = *p.MarketPrice
	}
}

// PortfolioSnapshot is the payload of the "portfolio" envelope.
type PortfolioSnapshot struct {
	Positions       []Position `json:"positions"`
	Cash            float64    `json:"cash"`
	NAV             float64    `json:"nav"`
	PurchasingPower float64    `json:"purchasingPower"`
}
