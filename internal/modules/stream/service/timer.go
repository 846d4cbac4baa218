package service

import "time"

// Timer is a pending reconnect. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// SystemScheduler schedules on the runtime clock.
func SystemScheduler() Scheduler { return clockScheduler{} }
