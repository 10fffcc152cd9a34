// Package watcher adapts github.com/fsnotify/fsnotify into the daemon's
// change-notification pipeline: it watches a project root recursively,
// feeding every observed path into a debounce.Coalescer under a single
// project-wide key, so a burst of edits across many files collapses
// into a single downstream Full task.
package watcher

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dxhq/dx/internal/debounce"
)

// ChangeKind classifies an observed filesystem event.
type ChangeKind int

const (
	Modified ChangeKind = iota
	Created
	Removed
	Renamed
)

func (k ChangeKind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	case Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// Change is one observed filesystem event, collected for the task that
// a debounce fire eventually builds.
type Change struct {
	Path string
	Kind ChangeKind
}

func fromFsnotifyOp(op fsnotify.Op) ChangeKind {
	switch {
	case op&fsnotify.Create != 0:
		return Created
	case op&fsnotify.Remove != 0:
		return Removed
	case op&fsnotify.Rename != 0:
		return Renamed
	default:
		return Modified
	}
}

// Watcher recursively watches a project root and coalesces the changes
// it observes through a debounce.Coalescer, handing the accumulated
// paths to onFire once the burst settles.
type Watcher struct {
	root   string
	fsw    *fsnotify.Watcher
	log    *slog.Logger
	debnc  *debounce.Coalescer
	onFire func(changes []Change)

	mu      sync.Mutex
	pending map[string]Change

	closeOnce sync.Once
	done      chan struct{}

	include []string
	exclude []string
}

// Option configures optional Watcher behaviour not needed by most callers.
type Option func(*Watcher)

// WithGlobs restricts reported changes to paths matching at least one
// include pattern (when any are given) and none of the exclude
// patterns. Patterns are matched against the path's base name with
// filepath.Match, mirroring shell glob semantics.
func WithGlobs(include, exclude []string) Option {
	return func(w *Watcher) {
		w.include = include
		w.exclude = exclude
	}
}

func (w *Watcher) matchesFilters(path string) bool {
	base := filepath.Base(path)
	for _, pat := range w.exclude {
		if ok, _ := filepath.Match(pat, base); ok {
			return false
		}
	}
	if len(w.include) == 0 {
		return true
	}
	for _, pat := range w.include {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// debounceKey is the single Coalescer key this watcher triggers under:
// every path change in the project debounces together, since the
// downstream task is a project-wide Full check rather than a per-file
// one.
const debounceKey = "root"

// Open starts recursively watching root and returns the live Watcher.
// Every observed change is recorded and the debounce window (delay) is
// (re)armed; once the window settles, onFire is called with every
// distinct path changed since the previous fire (or since Open). Call
// Close to stop watching.
func Open(root string, delay time.Duration, onFire func(changes []Change), log *slog.Logger, opts ...Option) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		root:    root,
		fsw:     fsw,
		log:     log,
		onFire:  onFire,
		pending: make(map[string]Change),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.debnc = debounce.New(delay, func(string) { w.flush() })

	if err := w.addRecursive(root); err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if isIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				w.log.Warn("watcher add failed", "path", path, "error", addErr)
			}
		}
		return nil
	})
}

func isIgnoredDir(name string) bool {
	switch name {
	case ".git", "node_modules", "target", "vendor", ".venv", "__pycache__":
		return true
	default:
		return false
	}
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	kind := fromFsnotifyOp(ev.Op)

	if kind == Created {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !isIgnoredDir(filepath.Base(ev.Name)) {
				if err := w.fsw.Add(ev.Name); err != nil {
					w.log.Warn("watcher add failed for new directory", "path", ev.Name, "error", err)
				}
			}
		}
	}

	if !w.matchesFilters(ev.Name) {
		return
	}

	w.mu.Lock()
	w.pending[ev.Name] = Change{Path: ev.Name, Kind: kind}
	w.mu.Unlock()

	w.debnc.Trigger(debounceKey)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	changes := make([]Change, 0, len(w.pending))
	for _, c := range w.pending {
		changes = append(changes, c)
	}
	w.pending = make(map[string]Change)
	w.mu.Unlock()

	if len(changes) > 0 && w.onFire != nil {
		w.onFire(changes)
	}
}

// Close stops watching and releases the underlying OS watch handle.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return w.fsw.Close()
}
