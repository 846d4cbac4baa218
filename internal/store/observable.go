package store

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// listeners is an ordered observer list. Callbacks run one by one; a panicking
// callback is logged and skipped so the producer keeps going.
type listeners[T any] struct {
	mu   sync.Mutex
	next int
	subs []listener[T]
	log  *zap.Logger
	name string
}

type listener[T any] struct {
	id int
	fn func(T)
}

func newListeners[T any](name string, log *zap.Logger) *listeners[T] {
	if log == nil {
		log = zap.NewNop()
	}
	return &listeners[T]{log: log, name: name}
}

func (l *listeners[T]) add(fn func(T)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs = append(l.subs, listener[T]{id: id, fn: fn})
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.subs {
				if s.id == id {
					l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (l *listeners[T]) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}

func (l *listeners[T]) notify(v T) {
	l.mu.Lock()
	subs := make([]listener[T], len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		l.call(s, v)
	}
}

func (l *listeners[T]) call(s listener[T], v T) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("store subscriber panicked",
				zap.String("store", l.name),
				zap.Int("subscriber", s.id),
				zap.Any("panic", r),
			)
		}
	}()
	s.fn(v)
}

// cell holds the published snapshot of a store. Readers load the pointer
// without locking; writers are serialized by mu, which is also held while
// observers run so they see snapshots in mutation order.
// Observers must not write back into the same store synchronously.
type cell[T any] struct {
	mu   sync.Mutex
	cur  atomic.Pointer[T]
	subs *listeners[*T]
}

func newCell[T any](name string, initial *T, log *zap.Logger) *cell[T] {
	c := &cell[T]{subs: newListeners[*T](name, log)}
	c.cur.Store(initial)
	return c
}

func (c *cell[T]) load() *T { return c.cur.Load() }

// update builds the next snapshot from the current one. Returning nil keeps
// the current snapshot and skips notification.
func (c *cell[T]) update(fn func(cur *T) *T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.cur.Load())
	if next == nil {
		return false
	}
	c.cur.Store(next)
	c.subs.notify(next)
	return true
}

func (c *cell[T]) subscribe(fn func(*T)) func() { return c.subs.add(fn) }
