// Package profile tracks per-FunctionId call counters that feed the
// tier controller's promotion decisions.
package profile

import (
	"sync"
	"sync/atomic"

	"github.com/dxhq/dx/internal/identity"
)

// Counter holds the call count for a single function. Safe for
// concurrent use; RecordCall is wait-free.
type Counter struct {
	calls atomic.Uint64
}

// RecordCall increments the call counter and returns the new total.
func (c *Counter) RecordCall() uint64 {
	return c.calls.Add(1)
}

// CallCount returns the current call count.
func (c *Counter) CallCount() uint64 {
	return c.calls.Load()
}

// Store is a sync.Map-backed registry of Counters keyed by FunctionId.
// Reads (the hot path, from every call site) never take a lock; the
// rare first-write-per-function path uses sync.Map's LoadOrStore.
type Store struct {
	counters sync.Map // identity.FunctionId -> *Counter
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the Counter for id, creating it on first access.
func (s *Store) Get(id identity.FunctionId) *Counter {
	if v, ok := s.counters.Load(id); ok {
		return v.(*Counter)
	}
	actual, _ := s.counters.LoadOrStore(id, &Counter{})
	return actual.(*Counter)
}

// CallCount returns the call count for id, or 0 if it has never been
// recorded.
func (s *Store) CallCount(id identity.FunctionId) uint64 {
	if v, ok := s.counters.Load(id); ok {
		return v.(*Counter).CallCount()
	}
	return 0
}

// Reset clears the counter for id back to 0, without removing it.
func (s *Store) Reset(id identity.FunctionId) {
	if v, ok := s.counters.Load(id); ok {
		v.(*Counter).calls.Store(0)
	}
}
