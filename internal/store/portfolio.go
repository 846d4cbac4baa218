package store

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"market_terminal/internal/models"
)

type PortfolioState struct {
	Positions       []models.Position
	Cash            float64
	NAV             float64
	PurchasingPower float64
}

// MarketValue sums qty * market price over all positions.
func (p *PortfolioState) MarketValue() float64 {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(decimal.NewFromFloat(pos.MarketPrice).Mul(decimal.NewFromInt(pos.Quantity)))
	}
	return total.InexactFloat64()
}

// UnrealizedPnL sums the derived pnl of all positions.
func (p *PortfolioState) UnrealizedPnL() float64 {
	total := decimal.Zero
	for _, pos := range p.Positions {
		total = total.Add(decimal.NewFromFloat(pos.PnL()))
	}
	return total.InexactFloat64()
}

type Portfolio struct {
	c *cell[PortfolioState]
}

func NewPortfolio(log *zap.Logger) *Portfolio {
	return &Portfolio{c: newCell("portfolio", &PortfolioState{}, log)}
}

func (p *Portfolio) State() *PortfolioState { return p.c.load() }

func (p *Portfolio) Position(symbol string) (models.Position, bool) {
	for _, pos := range p.c.load().Positions {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return models.Position{}, false
}

// Sync replaces the whole portfolio at once.
func (p *Portfolio) Sync(snap models.PortfolioSnapshot) {
	positions := make([]models.Position, len(snap.Positions))
	copy(positions, snap.Positions)
	p.c.update(func(*PortfolioState) *PortfolioState {
		return &PortfolioState{
			Positions:       positions,
			Cash:            snap.Cash,
			NAV:             snap.NAV,
			PurchasingPower: snap.PurchasingPower,
		}
	})
}

// UpdatePosition patches one position by symbol. Unknown symbols are ignored.
func (p *Portfolio) UpdatePosition(symbol string, patch models.PositionPatch) bool {
	return p.c.update(func(cur *PortfolioState) *PortfolioState {
		idx := -1
		for i := range cur.Positions {
			if cur.Positions[i].Symbol == symbol {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		next := *cur
		next.Positions = make([]models.Position, len(cur.Positions))
		copy(next.Positions, cur.Positions)
		patch.Apply(&next.Positions[idx])
		return &next
	})
}

func (p *Portfolio) Subscribe(fn func(*PortfolioState)) func() {
	return p.c.subscribe(fn)
}
