package store

import (
	"go.uber.org/zap"

	"market_terminal/internal/models"
)

// SignalCapacity bounds the signal history.
const SignalCapacity = 100

type SignalState struct {
	Signals []models.AgentSignal // newest first
	Latest  *models.AgentSignal
	// Seq counts every insert since the store was created; Clear keeps it.
	Seq uint64
}

type Signals struct {
	c *cell[SignalState]
}

func NewSignals(log *zap.Logger) *Signals {
	return &Signals{c: newCell("signals", &SignalState{}, log)}
}

func (s *Signals) State() *SignalState { return s.c.load() }

func (s *Signals) Latest() (models.AgentSignal, bool) {
	l := s.c.load().Latest
	if l == nil {
		return models.AgentSignal{}, false
	}
	return *l, true
}

// AddSignal prepends sig and drops the oldest entries beyond SignalCapacity.
func (s *Signals) AddSignal(sig models.AgentSignal) {
	s.c.update(func(cur *SignalState) *SignalState {
		return prependSignal(cur, sig)
	})
}

// AddSignals inserts in order, one signal at a time, under a single publish.
func (s *Signals) AddSignals(sigs []models.AgentSignal) {
	if len(sigs) == 0 {
		return
	}
	s.c.update(func(cur *SignalState) *SignalState {
		next := cur
		for _, sig := range sigs {
			next = prependSignal(next, sig)
		}
		return next
	})
}

func prependSignal(cur *SignalState, sig models.AgentSignal) *SignalState {
	n := len(cur.Signals) + 1
	if n > SignalCapacity {
		n = SignalCapacity
	}
	list := make([]models.AgentSignal, n)
	list[0] = sig
	copy(list[1:], cur.Signals)
	latest := sig
	return &SignalState{Signals: list, Latest: &latest, Seq: cur.Seq + 1}
}

func (s *Signals) Clear() {
	s.c.update(func(cur *SignalState) *SignalState {
		if len(cur.Signals) == 0 && cur.Latest == nil {
			return nil
		}
		return &SignalState{Seq: cur.Seq}
	})
}

func (s *Signals) Subscribe(fn func(*SignalState)) func() {
	return s.c.subscribe(fn)
}

// SubscribeLatest fires whenever a new signal is added.
func (s *Signals) SubscribeLatest(fn func(models.AgentSignal)) func() {
	prev := s.c.load().Latest
	return s.c.subscribe(func(st *SignalState) {
		if st.Latest == nil || st.Latest == prev {
			prev = st.Latest
			return
		}
		prev = st.Latest
		fn(*st.Latest)
	})
}

// SubscribeAdded delivers the signals each mutation inserted, oldest first.
// A bulk insert arrives as one call.
func (s *Signals) SubscribeAdded(fn func([]models.AgentSignal)) func() {
	prev := s.c.load()
	return s.c.subscribe(func(st *SignalState) {
		k := addedCount(prev, st)
		prev = st
		if k == 0 {
			return
		}
		added := make([]models.AgentSignal, k)
		for i := 0; i < k; i++ {
			added[i] = st.Signals[k-1-i]
		}
		fn(added)
	})
}

func addedCount(prev, cur *SignalState) int {
	if cur.Seq <= prev.Seq {
		return 0
	}
	return int(min(cur.Seq-prev.Seq, uint64(len(cur.Signals))))
}
