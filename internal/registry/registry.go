// Package registry implements the dynamic command/handler registry: a
// concurrent, named/aliased/versioned map of handlers supporting live
// registration, version-gated replacement, unconditional override,
// typo-tolerant lookup suggestions, and dispatch across in-process,
// subprocess, and external-plugin handler variants.
package registry

import (
	"bytes"
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dxhq/dx/internal/errs"
	"github.com/dxhq/dx/internal/vcounter"
)

// Kind identifies which handler variant a Handler dispatches through.
type Kind int

const (
	InProcess Kind = iota
	AsyncInProcess
	SubprocessScript
	ExternalPlugin
)

// Result is the outcome of a successful handler execution.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Fn is a synchronous in-process handler.
type Fn func(args []string) (Result, error)

// AsyncFn is a suspendable in-process handler: it receives a context so
// a long-running call can observe cancellation.
type AsyncFn func(ctx context.Context, args []string) (Result, error)

// PluginDispatcher executes an ExternalPlugin handler variant. The
// default registry has none configured, matching the reference
// implementation's unimplemented WASM/native plugin placeholders.
type PluginDispatcher interface {
	Dispatch(ctx context.Context, location, symbol string, args []string) (Result, error)
}

// Entry is one registered command/handler.
type Entry struct {
	Name         string
	Description  string
	Aliases      []string
	Category     string // empty means "Other"
	Version      string // empty means unversioned
	Enabled      bool
	Capabilities []string

	Kind           Kind
	Fn             Fn      // Kind == InProcess
	AsyncFn        AsyncFn // Kind == AsyncInProcess
	Interpreter    string  // Kind == SubprocessScript
	Script         string  // Kind == SubprocessScript
	PluginLocation string  // Kind == ExternalPlugin
	PluginSymbol   string  // Kind == ExternalPlugin
}

func (e Entry) category() string {
	if e.Category == "" {
		return "Other"
	}
	return e.Category
}

// Registry is a thread-safe command registry. Reads (Get, Contains,
// Execute's lookup) take a read lock; registration, override, and
// unregister take the write lock for the duration of both the name-table
// and alias-table mutation, so no observer ever sees a canonical name
// updated without its aliases (or vice versa).
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	aliases map[string]string // alias -> canonical name

	version vcounter.Counter

	plugins PluginDispatcher
}

// New creates an empty Registry. plugins may be nil; ExternalPlugin
// dispatch then always fails with ExecutionFailed.
func New(plugins PluginDispatcher) *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		aliases: make(map[string]string),
		plugins: plugins,
	}
}

// Version returns the registry's change counter, bumped by every
// register, register_override, and unregister call that mutates state.
func (r *Registry) Version() uint64 { return r.version.Value() }

// Register inserts entry if no entry exists for its name, or replaces
// the existing one if entry.Version strictly succeeds the existing
// entry's version under the component-wise integer comparison rule. An
// existing entry without a version is replaced by any entry; an entry
// without a version never replaces a versioned one. Replacement is
// silently skipped (not an error) in every other case.
func (r *Registry) Register(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[entry.Name]; ok {
		if !shouldReplace(existing, entry) {
			return
		}
		r.removeAliasesLocked(existing)
	}
	r.insertLocked(entry)
	r.version.Bump()
}

// RegisterOverride inserts entry unconditionally, replacing any existing
// entry and its aliases regardless of version.
func (r *Registry) RegisterOverride(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[entry.Name]; ok {
		r.removeAliasesLocked(existing)
	}
	r.insertLocked(entry)
	r.version.Bump()
}

func (r *Registry) insertLocked(entry Entry) {
	for _, alias := range entry.Aliases {
		r.aliases[alias] = entry.Name
	}
	r.entries[entry.Name] = entry
}

func (r *Registry) removeAliasesLocked(entry Entry) {
	for _, alias := range entry.Aliases {
		delete(r.aliases, alias)
	}
}

// Unregister removes the entry named name along with its aliases,
// returning it if it existed.
func (r *Registry) Unregister(name string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[name]
	if !ok {
		return Entry{}, false
	}
	r.removeAliasesLocked(entry)
	delete(r.entries, name)
	r.version.Bump()
	return entry, true
}

// Get looks up name directly, then as an alias, returning the resolved
// Entry.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getLocked(name)
}

func (r *Registry) getLocked(name string) (Entry, bool) {
	if e, ok := r.entries[name]; ok {
		return e, true
	}
	if canonical, ok := r.aliases[name]; ok {
		if e, ok := r.entries[canonical]; ok {
			return e, true
		}
	}
	return Entry{}, false
}

// Contains reports whether name resolves to a registered entry, directly
// or via an alias.
func (r *Registry) Contains(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.entries[name]; ok {
		return true
	}
	_, ok := r.aliases[name]
	return ok
}

// Names returns every canonical command name currently registered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered (canonical) entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ByCategory groups every registered entry by its category ("Other" if
// unset), with entries sorted by name within each category.
func (r *Registry) ByCategory() map[string][]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string][]Entry)
	for _, e := range r.entries {
		cat := e.category()
		out[cat] = append(out[cat], e)
	}
	for cat := range out {
		sort.Slice(out[cat], func(i, j int) bool { return out[cat][i].Name < out[cat][j].Name })
	}
	return out
}

// Execute looks up name, checks that it is enabled, and dispatches per
// its handler Kind. A missing name returns a NotFound error carrying up
// to three typo-tolerant suggestions.
func (r *Registry) Execute(ctx context.Context, name string, args []string) (Result, error) {
	r.mu.RLock()
	entry, ok := r.getLocked(name)
	var suggestions []string
	if !ok {
		suggestions = r.suggestLocked(name)
	}
	r.mu.RUnlock()

	if !ok {
		return Result{}, errs.NotFound(name, suggestions)
	}
	if !entry.Enabled {
		return Result{}, errs.Disabled(name)
	}

	switch entry.Kind {
	case InProcess:
		res, err := entry.Fn(args)
		if err != nil {
			return Result{}, errs.ExecutionFailed("%s: %v", name, err)
		}
		return res, nil

	case AsyncInProcess:
		res, err := entry.AsyncFn(ctx, args)
		if err != nil {
			return Result{}, errs.ExecutionFailed("%s: %v", name, err)
		}
		return res, nil

	case SubprocessScript:
		return r.executeScript(ctx, entry, args)

	case ExternalPlugin:
		if r.plugins == nil {
			return Result{}, errs.ExecutionFailed("external plugin execution not implemented: %s::%s", entry.PluginLocation, entry.PluginSymbol)
		}
		res, err := r.plugins.Dispatch(ctx, entry.PluginLocation, entry.PluginSymbol, args)
		if err != nil {
			return Result{}, errs.ExecutionFailed("%s: %v", name, err)
		}
		return res, nil

	default:
		return Result{}, errs.Internal("unknown handler kind for %q", name)
	}
}

func (r *Registry) executeScript(ctx context.Context, entry Entry, args []string) (Result, error) {
	cmdArgs := append([]string{"-c", entry.Script}, args...)
	cmd := exec.CommandContext(ctx, entry.Interpreter, cmdArgs...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return Result{}, errs.ExecutionFailed("%s", strings.TrimSpace(stderr.String()))
		}
		return Result{}, errs.ExecutionFailed("%s: %v", entry.Script, err)
	}

	return Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

const maxSuggestions = 3

// suggestLocked returns up to three registered names similar to name:
// Levenshtein distance <= 2, or substring containment in either
// direction, ordered by distance ascending then name ascending. Caller
// must hold at least a read lock.
func (r *Registry) suggestLocked(name string) []string {
	type scored struct {
		name     string
		distance int
	}
	var candidates []scored
	for cmd := range r.entries {
		d := levenshtein(name, cmd)
		if d <= 2 || strings.Contains(cmd, name) || strings.Contains(name, cmd) {
			candidates = append(candidates, scored{name: cmd, distance: d})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].name < candidates[j].name
	})
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.name
	}
	return out
}

func levenshtein(a, b string) int {
	ar, br := []rune(a), []rune(b)
	if len(ar) == 0 {
		return len(br)
	}
	if len(br) == 0 {
		return len(ar)
	}

	prev := make([]int, len(br)+1)
	cur := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ar); i++ {
		cur[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = min3(del, ins, sub)
		}
		prev, cur = cur, prev
	}
	return prev[len(br)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func shouldReplace(existing, incoming Entry) bool {
	switch {
	case existing.Version != "" && incoming.Version != "":
		return compareVersions(incoming.Version, existing.Version) > 0
	case existing.Version == "" && incoming.Version != "":
		return true
	case existing.Version != "" && incoming.Version == "":
		return false
	default:
		return true
	}
}

// compareVersions implements the registry's version precedence rule:
// split on '.', take each component's leading decimal-digit prefix
// (ignoring any non-digit suffix such as "-alpha"), treat a missing
// component as 0, and compare the resulting integer sequences
// lexicographically. Returns <0, 0, or >0 per strings.Compare
// conventions.
func compareVersions(a, b string) int {
	ap, bp := parseVersionParts(a), parseVersionParts(b)
	n := len(ap)
	if len(bp) > n {
		n = len(bp)
	}
	for i := 0; i < n; i++ {
		var av, bv int
		if i < len(ap) {
			av = ap[i]
		}
		if i < len(bp) {
			bv = bp[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

func parseVersionParts(version string) []int {
	parts := strings.Split(version, ".")
	out := make([]int, len(parts))
	for i, part := range parts {
		j := 0
		for j < len(part) && part[j] >= '0' && part[j] <= '9' {
			j++
		}
		if j == 0 {
			out[i] = 0
			continue
		}
		n, _ := strconv.Atoi(part[:j])
		out[i] = n
	}
	return out
}
