package service

import (
	"sync/atomic"
	"time"

	"market_terminal/internal/models"
	"market_terminal/internal/store"
)

type State struct {
	startedAt   time.Time
	requireSeed bool

	wsConnected  atomic.Bool
	seeded       atomic.Bool
	lastTickUnix atomic.Int64 // unix millis
}

// NewState tracks readiness. With requireSeed the service is ready only
// after the first bulk load or cache seed completed.
func NewState(requireSeed bool) *State {
	return &State{startedAt: time.Now(), requireSeed: requireSeed}
}

// Ready means the stream is connected and, when required, the tick store
// has been seeded.
func (s *State) Ready() bool {
	return s.wsConnected.Load() && (s.seeded.Load() || !s.requireSeed)
}

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) SetSeeded(v bool) { s.seeded.Store(v) }
func (s *State) Seeded() bool     { return s.seeded.Load() }

func (s *State) TouchTick(t time.Time) { s.lastTickUnix.Store(t.UnixMilli()) }
func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.UnixMilli(u)
}

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Watch keeps the state in sync with the stores until the returned func is called.
func (s *State) Watch(market *store.Market, load *store.Load) func() {
	s.SetWSConnected(market.ConnectionStatus() == models.StatusConnected)
	s.SetSeeded(load.State().Status == models.LoadComplete)

	var lastLatest *models.Tick
	offStatus := market.SubscribeStatus(func(st models.ConnectionStatus) {
		s.SetWSConnected(st == models.StatusConnected)
	})
	offTicks := market.Subscribe(func(m *store.MarketState) {
		if m.LatestTick != nil && m.LatestTick != lastLatest {
			lastLatest = m.LatestTick
			s.TouchTick(time.Now())
		}
	})
	offLoad := load.Subscribe(func(p models.LoadProgress) {
		if p.Status == models.LoadComplete {
			s.SetSeeded(true)
		}
	})
	return func() {
		offStatus()
		offTicks()
		offLoad()
	}
}
