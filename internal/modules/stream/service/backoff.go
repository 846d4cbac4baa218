package service

import (
	"math/rand/v2"
	"time"
)

const (
	DefaultBaseDelay = 1000 * time.Millisecond
	DefaultJitter    = 500 * time.Millisecond
	DefaultMaxDelay  = 30000 * time.Millisecond
)

// Backoff computes reconnect delays: min(Base*2^n + U(0,Jitter), Max).
type Backoff struct {
	Base   time.Duration
	Jitter time.Duration
	Max    time.Duration

	// Rand returns a value in [0, n). Nil means math/rand/v2.
	Rand func(n int64) int64
}

func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseDelay, Jitter: DefaultJitter, Max: DefaultMaxDelay}
}

// Delay returns the wait before reconnect attempt n (0-based).
func (b Backoff) Delay(n int) time.Duration {
	if n < 0 {
		n = 0
	}
	// once Base*2^n alone reaches Max the result is Max, and the shift must not overflow
	if n >= 62 || b.Base > b.Max>>uint(n) {
		return b.Max
	}
	d := b.Base<<uint(n) + b.jitter()
	if d > b.Max {
		return b.Max
	}
	return d
}

func (b Backoff) jitter() time.Duration {
	if b.Jitter <= 0 {
		return 0
	}
	rnd := b.Rand
	if rnd == nil {
		rnd = rand.Int64N
	}
	return time.Duration(rnd(int64(b.Jitter) + 1))
}
