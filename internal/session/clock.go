package session

import "sync/atomic"

// Clock issues build generations.
type Clock interface {
	// Next issues and returns a new generation.
	Next() int64
	// Current returns the most recently issued generation.
	Current() int64
}

// AtomicClock is a monotonic generation counter.
//
// Generations are logical, never wall-clock: a result belongs to generation
// N, and only the most recently issued generation may be applied.
//
// Thread-safety: safe for concurrent use (atomic operations). The watch
// controller is the only caller of Next in practice.
type AtomicClock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first Next returns 1.
func NewClock() *AtomicClock {
	return &AtomicClock{}
}

// NewClockAt creates a clock whose first Next returns start+1. Used to
// continue numbering after the generations already in the journal.
func NewClockAt(start int64) *AtomicClock {
	c := &AtomicClock{}
	c.seq.Store(start)
	return c
}

// Next returns the next generation and advances the clock.
func (c *AtomicClock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current generation without advancing.
func (c *AtomicClock) Current() int64 {
	return c.seq.Load()
}
