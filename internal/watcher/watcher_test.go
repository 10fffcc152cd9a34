package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestOpenDetectsFileModification(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var fired []Change
	done := make(chan struct{}, 1)

	w, err := Open(dir, 50*time.Millisecond, func(changes []Change) {
		mu.Lock()
		fired = append(fired, changes...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	time.Sleep(30 * time.Millisecond)
	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected onFire to be called after a file modification")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(fired) == 0 {
		t.Fatal("expected at least one change reported")
	}
}

func TestOpenCoalescesBurstIntoSingleFire(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	fireCount := 0
	var lastSize int

	w, err := Open(dir, 80*time.Millisecond, func(changes []Change) {
		mu.Lock()
		fireCount++
		lastSize = len(changes)
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "f"+string(rune('0'+i))+".txt")
		if err := os.WriteFile(name, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(250 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fireCount != 1 {
		t.Fatalf("expected exactly one coalesced fire, got %d", fireCount)
	}
	if lastSize == 0 {
		t.Fatal("expected the coalesced fire to carry at least one change")
	}
}

func TestCloseStopsDeliveringEvents(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	fireCount := 0

	w, err := Open(dir, 30*time.Millisecond, func(changes []Change) {
		mu.Lock()
		fireCount++
		mu.Unlock()
	}, nil)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "after-close.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if fireCount != 0 {
		t.Fatalf("expected no fires after Close, got %d", fireCount)
	}
}

func TestWithGlobsExcludeFiltersMatchingPaths(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	fireCount := 0

	w, err := Open(dir, 30*time.Millisecond, func(changes []Change) {
		mu.Lock()
		fireCount++
		mu.Unlock()
	}, nil, WithGlobs(nil, []string{"*.log"}))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "noisy.log"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	got := fireCount
	mu.Unlock()
	if got != 0 {
		t.Fatalf("expected excluded path to never fire, got %d fires", got)
	}
}

func TestWithGlobsIncludeOnlyFiltersNonMatchingPaths(t *testing.T) {
	dir := t.TempDir()

	var mu sync.Mutex
	var fired []Change
	done := make(chan struct{}, 1)

	w, err := Open(dir, 30*time.Millisecond, func(changes []Change) {
		mu.Lock()
		fired = append(fired, changes...)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}, nil, WithGlobs([]string{"*.go"}, nil))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected the included .go path to fire")
	}

	mu.Lock()
	defer mu.Unlock()
	for _, c := range fired {
		if filepath.Ext(c.Path) != ".go" {
			t.Fatalf("expected only .go changes to be reported, got %q", c.Path)
		}
	}
}

func TestIsIgnoredDir(t *testing.T) {
	cases := map[string]bool{
		".git":         true,
		"node_modules": true,
		"target":       true,
		"vendor":       true,
		".venv":        true,
		"__pycache__":  true,
		"src":          false,
		"internal":     false,
	}
	for name, want := range cases {
		if got := isIgnoredDir(name); got != want {
			t.Errorf("isIgnoredDir(%q) = %v, want %v", name, got, want)
		}
	}
}
