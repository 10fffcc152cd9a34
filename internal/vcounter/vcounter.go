// Package vcounter implements the monotonically increasing version
// counter used by the Handler Registry and the Tier Controller so that
// external watchers can detect "something changed" without diffing
// full state.
package vcounter

import "sync/atomic"

// Counter is a process-wide monotonically increasing counter. The zero
// value is ready to use and starts at 0.
type Counter struct {
	v atomic.Uint64
}

// Bump increments the counter and returns the new value.
func (c *Counter) Bump() uint64 {
	return c.v.Add(1)
}

// Value returns the current counter value without modifying it.
func (c *Counter) Value() uint64 {
	return c.v.Load()
}
