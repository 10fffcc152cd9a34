// Package clock provides the monotonic time source and cancellable
// one-shot timer used by the debounce coalescer and the daemon's
// background loops.
package clock

import (
	"sync/atomic"
	"time"
)

// Now returns the current time. A thin wrapper so call sites depend on
// this package rather than directly on time.Now, matching the rest of
// the daemon's background-loop idiom (time.NewTicker + select on a
// context-done channel, never an external scheduling library).
func Now() time.Time {
	return time.Now()
}

// Timer is a cancellable one-shot timer whose callback fires at most
// once, even if Reset races with an in-flight fire. Each Reset bumps a
// generation counter; the fired callback checks its captured generation
// against the current one before running, so a late timer that lost a
// race to a newer Reset becomes a no-op instead of firing twice.
type Timer struct {
	gen   atomic.Uint64
	timer *time.Timer
}

// NewTimer creates a Timer that calls fn after d, unless cancelled or
// superseded by a Reset first.
func NewTimer(d time.Duration, fn func()) *Timer {
	t := &Timer{}
	t.arm(d, fn)
	return t
}

func (t *Timer) arm(d time.Duration, fn func()) {
	gen := t.gen.Add(1)
	t.timer = time.AfterFunc(d, func() {
		if t.gen.Load() == gen {
			fn()
		}
	})
}

// Reset reschedules the timer to fire after d, invalidating any
// previously scheduled fire. Safe for concurrent use with Stop, but not
// with a concurrent Reset (the caller is expected to hold whatever lock
// protects the timer's owning slot, matching the debounce coalescer's
// per-key locking discipline).
func (t *Timer) Reset(d time.Duration, fn func()) {
	if t.timer != nil {
		t.timer.Stop()
	}
	t.arm(d, fn)
}

// Stop cancels the timer. Returns true if the call stops the timer,
// false if the timer has already fired or been stopped.
func (t *Timer) Stop() bool {
	t.gen.Add(1)
	if t.timer == nil {
		return false
	}
	return t.timer.Stop()
}
