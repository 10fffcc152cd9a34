// Package tier implements the tiered compilation controller: it
// promotes a function through Interpreter -> Baseline -> Optimizing ->
// AotOptimized as its call count crosses fixed thresholds, drives
// compilation through an external collab.Compiler collaborator guarded
// by a circuit breaker, and tracks on-stack-replacement entries and
// deoptimization.
package tier

import (
	"context"
	"sync"

	"github.com/dxhq/dx/internal/circuitbreaker"
	"github.com/dxhq/dx/internal/collab"
	"github.com/dxhq/dx/internal/errs"
	"github.com/dxhq/dx/internal/identity"
	"github.com/dxhq/dx/internal/profile"
	"github.com/dxhq/dx/internal/vcounter"
)

// Tier is the compilation tier a function currently runs at.
type Tier int

const (
	Interpreter Tier = iota
	Baseline
	Optimizing
	AotOptimized
)

func (t Tier) String() string {
	switch t {
	case Interpreter:
		return "interpreter"
	case Baseline:
		return "baseline"
	case Optimizing:
		return "optimizing"
	case AotOptimized:
		return "aot_optimized"
	default:
		return "unknown"
	}
}

// Thresholds holds the call-count thresholds that trigger promotion.
// Tier1 < Tier2 < Tier3 is an invariant the caller must maintain; the
// defaults below mirror typical JIT tiering ladders.
type Thresholds struct {
	Tier1 uint64 // promote to Baseline
	Tier2 uint64 // promote to Optimizing
	Tier3 uint64 // promote to AotOptimized
}

// DefaultThresholds matches the ladder used throughout the reference
// interpreter this controller is modeled on.
var DefaultThresholds = Thresholds{Tier1: 100, Tier2: 1000, Tier3: 10000}

// OsrEntry records an available on-stack-replacement transition point
// for a function at a given bytecode offset. EntryPtr is opaque to the
// controller; it is whatever the compiler collaborator produced for the
// caller to jump to, handed back verbatim by DoOsr.
type OsrEntry struct {
	Offset     int
	TargetTier Tier
	EntryPtr   uintptr
}

// Controller owns the tier map, drives promotion, and mediates
// compilation requests through a circuit-breaker-protected Compiler
// collaborator.
type Controller struct {
	ids        *identity.Mapper
	profiles   *profile.Store
	compiler   collab.Compiler
	breakers   *circuitbreaker.Registry
	breakerCfg circuitbreaker.Config
	thresholds Thresholds
	version    vcounter.Counter
	enabled    bool

	mu    sync.RWMutex
	tiers map[identity.FunctionId]Tier
	osr   map[identity.FunctionId][]OsrEntry
}

// Config configures a new Controller.
type Config struct {
	Thresholds Thresholds
	Compiler   collab.Compiler // may be nil; compile requests then fail as Disabled
	Breaker    circuitbreaker.Config
	Enabled    bool
}

// New creates a Controller sharing the given identity mapper and
// profile store (both are also used directly by callers recording raw
// calls, per the component design's separation of concerns).
func New(ids *identity.Mapper, profiles *profile.Store, cfg Config) *Controller {
	th := cfg.Thresholds
	if th.Tier1 == 0 && th.Tier2 == 0 && th.Tier3 == 0 {
		th = DefaultThresholds
	}
	return &Controller{
		ids:        ids,
		profiles:   profiles,
		compiler:   cfg.Compiler,
		breakers:   circuitbreaker.NewRegistry(),
		breakerCfg: cfg.Breaker,
		thresholds: th,
		enabled:    cfg.Enabled,
		tiers:      make(map[identity.FunctionId]Tier),
		osr:        make(map[identity.FunctionId][]OsrEntry),
	}
}

// Version returns the controller's change counter, bumped on every tier
// transition, so external watchers can detect tier changes without
// polling every function.
func (c *Controller) Version() uint64 { return c.version.Value() }

// RecordCall records one invocation of name and, if the new call count
// crosses a threshold, promotes its tier. Returns the new tier if a
// promotion occurred, or false otherwise. Promotion is monotonic: it
// never demotes, only Deoptimize resets a tier.
func (c *Controller) RecordCall(name string) (Tier, bool) {
	if !c.enabled {
		return Interpreter, false
	}
	id := c.ids.GetOrCreate(name)
	count := c.profiles.Get(id).RecordCall()

	newTier := c.tierForCount(count)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.tiers[id]
	if newTier > current {
		c.tiers[id] = newTier
		c.version.Bump()
		return newTier, true
	}
	return current, false
}

func (c *Controller) tierForCount(count uint64) Tier {
	switch {
	case count >= c.thresholds.Tier3:
		return AotOptimized
	case count >= c.thresholds.Tier2:
		return Optimizing
	case count >= c.thresholds.Tier1:
		return Baseline
	default:
		return Interpreter
	}
}

// GetTier returns the current tier for name (Interpreter if it has
// never been recorded or promoted).
func (c *Controller) GetTier(name string) Tier {
	id, ok := c.ids.Get(name)
	if !ok {
		return Interpreter
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tiers[id]
}

// CallCount returns the recorded call count for name.
func (c *Controller) CallCount(name string) uint64 {
	id, ok := c.ids.Get(name)
	if !ok {
		return 0
	}
	return c.profiles.CallCount(id)
}

// Compile requests compilation of name at tier via the Compiler
// collaborator, protected by a per-function circuit breaker: repeated
// CompilationFailed results trip the breaker, and further requests
// short-circuit without reaching the collaborator until it recovers.
func (c *Controller) Compile(ctx context.Context, name string, at Tier, source []byte) error {
	if !c.enabled {
		return errs.Disabled(name)
	}
	if c.compiler == nil {
		return errs.Disabled(name)
	}

	breaker := c.breakers.Get(name, c.breakerCfg)
	if breaker != nil && !breaker.Allow() {
		return errs.CompilationFailed("circuit open for %q, compilation unavailable", name)
	}

	_, err := c.compiler.Compile(ctx, collab.CompileRequest{
		FunctionName: name,
		Tier:         collab.Tier(at),
		Source:       source,
	})
	if err != nil {
		if breaker != nil {
			breaker.RecordFailure()
		}
		return errs.CompilationFailed("compile %q at tier %s: %v", name, at, err)
	}
	if breaker != nil {
		breaker.RecordSuccess()
	}

	id := c.ids.GetOrCreate(name)
	c.mu.Lock()
	if at > c.tiers[id] {
		c.tiers[id] = at
		c.version.Bump()
	}
	c.mu.Unlock()
	return nil
}

// Deoptimize resets name's tier to Interpreter and drops any OSR
// entries recorded for it. Call counts are preserved: deoptimization
// resets tier state only, not the profile.
func (c *Controller) Deoptimize(name string) {
	id, ok := c.ids.Get(name)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tiers[id] != Interpreter {
		c.tiers[id] = Interpreter
		c.version.Bump()
	}
	delete(c.osr, id)
}

// RegisterOsrEntry records an available OSR transition point for name.
func (c *Controller) RegisterOsrEntry(name string, entry OsrEntry) {
	id := c.ids.GetOrCreate(name)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.osr[id] = append(c.osr[id], entry)
}

// CanOsr reports whether an OSR entry exists for name at offset.
func (c *Controller) CanOsr(name string, offset int) bool {
	id, ok := c.ids.Get(name)
	if !ok {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.osr[id] {
		if e.Offset == offset {
			return true
		}
	}
	return false
}

// DoOsr validates that an OSR entry exists for name at offset and
// returns it. The controller's responsibility ends at yielding a valid
// entry; the caller performs the actual on-stack transition using the
// returned entry's metadata.
func (c *Controller) DoOsr(name string, offset int) (OsrEntry, error) {
	id, ok := c.ids.Get(name)
	if !ok {
		return OsrEntry{}, errs.NotFound(name, nil)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.osr[id] {
		if e.Offset == offset {
			return e, nil
		}
	}
	return OsrEntry{}, errs.NotFound(name, nil)
}

// Stats summarises the controller's tier distribution.
type Stats struct {
	TotalFunctions int
	TotalCalls     uint64
	ByTier         map[Tier]int
}

// Stats returns a point-in-time snapshot across all tracked functions.
func (c *Controller) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	st := Stats{ByTier: make(map[Tier]int)}
	for id, t := range c.tiers {
		st.TotalFunctions++
		st.TotalCalls += c.profiles.CallCount(id)
		st.ByTier[t]++
	}
	return st
}
