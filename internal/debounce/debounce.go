// Package debounce implements the per-key change coalescer: repeated
// triggers for the same key within a debounce window collapse into a
// single downstream fire, scheduled for delay after the most recent
// trigger.
package debounce

import (
	"sync"
	"time"

	"github.com/dxhq/dx/internal/clock"
)

// State is a key's position in the Idle -> Scheduled -> Executing ->
// Idle cycle.
type State int

const (
	Idle State = iota
	Scheduled
	Executing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Executing:
		return "executing"
	default:
		return "unknown"
	}
}

// DefaultWatcherDelay is the debounce window applied to raw filesystem
// events arriving from the change watcher, before they reach the task
// queue.
const DefaultWatcherDelay = 100 * time.Millisecond

// DefaultAPIDelay is the debounce window applied to change notifications
// submitted through the command surface, distinct from the watcher's
// window because API callers typically batch edits over a wider span.
const DefaultAPIDelay = 300 * time.Millisecond

type slot struct {
	state State
	timer *clock.Timer
	gen   uint64
}

// Coalescer debounces Trigger calls per key, invoking fn at most once per
// settled burst of triggers. A Trigger arriving while fn is already
// running for that key does not merge into the in-flight call: it opens
// a fresh Scheduled slot with its own generation, so the resulting fire
// is never silently dropped even though it may run concurrently with
// the call it superseded in slot bookkeeping.
type Coalescer struct {
	delay time.Duration
	fn    func(key string)

	mu    sync.Mutex
	slots map[string]*slot
}

// New creates a Coalescer that calls fn(key) after delay has elapsed
// since the last Trigger(key) call.
func New(delay time.Duration, fn func(key string)) *Coalescer {
	return &Coalescer{
		delay: delay,
		fn:    fn,
		slots: make(map[string]*slot),
	}
}

// Trigger registers one change event for key, (re)scheduling its fire
// delay after now.
func (c *Coalescer) Trigger(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.slots[key]
	if !ok {
		s = &slot{}
		c.slots[key] = s
	}
	s.gen++
	gen := s.gen
	s.state = Scheduled

	if s.timer == nil {
		s.timer = clock.NewTimer(c.delay, func() { c.fire(key, gen) })
	} else {
		s.timer.Reset(c.delay, func() { c.fire(key, gen) })
	}
}

func (c *Coalescer) fire(key string, gen uint64) {
	c.mu.Lock()
	s, ok := c.slots[key]
	if !ok || s.gen != gen || s.state != Scheduled {
		c.mu.Unlock()
		return
	}
	s.state = Executing
	c.mu.Unlock()

	c.fn(key)

	c.mu.Lock()
	if s, ok := c.slots[key]; ok && s.gen == gen && s.state == Executing {
		s.state = Idle
	}
	c.mu.Unlock()
}

// State reports the current state for key (Idle if it has never been
// triggered or has settled).
func (c *Coalescer) State(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return Idle
	}
	return s.state
}

// Cancel stops any pending fire for key without waiting for it, leaving
// an in-flight execution (if any) to run to completion.
func (c *Coalescer) Cancel(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.slots[key]
	if !ok {
		return
	}
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.state == Scheduled {
		s.state = Idle
	}
}

// Pending reports whether key currently has a scheduled or executing
// fire outstanding.
func (c *Coalescer) Pending(key string) bool {
	return c.State(key) != Idle
}
