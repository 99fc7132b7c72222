package testutil

import (
	"sync"
	"time"
)

// ManualTimer is a debounce timer that only fires when the test says so.
type ManualTimer struct {
	mu      sync.Mutex
	c       chan time.Time
	armed   bool
	resets  int
	lastDur time.Duration
}

// C returns the fire channel.
func (t *ManualTimer) C() <-chan time.Time { return t.c }

// Reset re-arms the timer.
func (t *ManualTimer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed = true
	t.resets++
	t.lastDur = d
}

// Stop disarms the timer and reports whether it was armed.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := t.armed
	t.armed = false
	return was
}

// Armed reports whether the timer is waiting to fire.
func (t *ManualTimer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Resets returns how many times the timer was armed.
func (t *ManualTimer) Resets() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resets
}

// Fire delivers a tick if the timer is armed and reports whether it did.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if !t.armed {
		t.mu.Unlock()
		return false
	}
	t.armed = false
	t.mu.Unlock()
	t.c <- time.Time{}
	return true
}

// ManualTimers hands out ManualTimers and remembers them.
type ManualTimers struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// New creates an armed timer, mirroring time.NewTimer.
func (m *ManualTimers) New(d time.Duration) *ManualTimer {
	t := &ManualTimer{c: make(chan time.Time, 1), armed: true, resets: 1, lastDur: d}
	m.mu.Lock()
	m.timers = append(m.timers, t)
	m.mu.Unlock()
	return t
}

// Last returns the most recently created timer, or nil.
func (m *ManualTimers) Last() *ManualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.timers) == 0 {
		return nil
	}
	return m.timers[len(m.timers)-1]
}
