package store

import (
	"maps"

	"go.uber.org/zap"

	"market_terminal/internal/models"
)

// MarketState is an immutable snapshot. Every mutation publishes a new value,
// so comparing snapshot pointers is enough for change detection.
type MarketState struct {
	Ticks            map[string]models.Tick
	LatestTick       *models.Tick
	Candles          map[string]models.Candle
	ConnectionStatus models.ConnectionStatus
}

// Market owns ticks, candles and the process-wide connection status.
type Market struct {
	c *cell[MarketState]
}

func NewMarket(log *zap.Logger) *Market {
	return &Market{c: newCell("market", emptyMarket(models.StatusDisconnected), log)}
}

func emptyMarket(status models.ConnectionStatus) *MarketState {
	return &MarketState{
		Ticks:            map[string]models.Tick{},
		Candles:          map[string]models.Candle{},
		ConnectionStatus: status,
	}
}

func (m *Market) State() *MarketState { return m.c.load() }

func (m *Market) Tick(symbol string) (models.Tick, bool) {
	t, ok := m.c.load().Ticks[symbol]
	return t, ok
}

func (m *Market) Candle(symbol string) (models.Candle, bool) {
	c, ok := m.c.load().Candles[symbol]
	return c, ok
}

func (m *Market) ConnectionStatus() models.ConnectionStatus {
	return m.c.load().ConnectionStatus
}

// UpdateTick replaces the tick of t.Symbol and moves the latest pointer.
// No timestamp check: the last applied tick wins.
func (m *Market) UpdateTick(t models.Tick) {
	m.c.update(func(cur *MarketState) *MarketState {
		next := *cur
		next.Ticks = maps.Clone(cur.Ticks)
		next.Ticks[t.Symbol] = t
		latest := t
		next.LatestTick = &latest
		return &next
	})
}

// BulkUpdateTicks applies ticks in order, so a duplicated symbol keeps its last
// occurrence. LatestTick becomes the last element of the slice, whatever its
// timestamp. An empty batch changes nothing.
func (m *Market) BulkUpdateTicks(ticks []models.Tick) {
	if len(ticks) == 0 {
		return
	}
	m.c.update(func(cur *MarketState) *MarketState {
		next := *cur
		next.Ticks = make(map[string]models.Tick, len(cur.Ticks)+len(ticks))
		maps.Copy(next.Ticks, cur.Ticks)
		for _, t := range ticks {
			next.Ticks[t.Symbol] = t
		}
		latest := ticks[len(ticks)-1]
		next.LatestTick = &latest
		return &next
	})
}

// UpdateCandle replaces the active bar of a symbol in place.
func (m *Market) UpdateCandle(symbol string, c models.Candle) {
	m.c.update(func(cur *MarketState) *MarketState {
		next := *cur
		next.Candles = maps.Clone(cur.Candles)
		next.Candles[symbol] = c
		return &next
	})
}

func (m *Market) SetConnectionStatus(s models.ConnectionStatus) {
	m.c.update(func(cur *MarketState) *MarketState {
		if cur.ConnectionStatus == s {
			return nil
		}
		next := *cur
		next.ConnectionStatus = s
		return &next
	})
}

// Reset drops all market data. The connection status is kept.
func (m *Market) Reset() {
	m.c.update(func(cur *MarketState) *MarketState {
		return emptyMarket(cur.ConnectionStatus)
	})
}

// Subscribe is called after every mutation with the new snapshot.
func (m *Market) Subscribe(fn func(*MarketState)) func() {
	return m.c.subscribe(fn)
}

// SubscribeTick fires only when the tick of symbol changes value.
func (m *Market) SubscribeTick(symbol string, fn func(models.Tick)) func() {
	prev, seen := m.Tick(symbol)
	return m.c.subscribe(func(s *MarketState) {
		t, ok := s.Ticks[symbol]
		if !ok || (seen && t == prev) {
			return
		}
		prev, seen = t, true
		fn(t)
	})
}

// SubscribeStatus fires on connection status transitions.
func (m *Market) SubscribeStatus(fn func(models.ConnectionStatus)) func() {
	prev := m.ConnectionStatus()
	return m.c.subscribe(func(s *MarketState) {
		if s.ConnectionStatus == prev {
			return
		}
		prev = s.ConnectionStatus
		fn(prev)
	})
}
