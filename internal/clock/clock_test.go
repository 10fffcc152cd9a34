package clock

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestTimerFiresOnce(t *testing.T) {
	var fires atomic.Int32
	tm := NewTimer(10*time.Millisecond, func() { fires.Add(1) })
	_ = tm
	time.Sleep(50 * time.Millisecond)
	if got := fires.Load(); got != 1 {
		t.Fatalf("expected exactly 1 fire, got %d", got)
	}
}

func TestTimerResetSupersedesPendingFire(t *testing.T) {
	var fires atomic.Int32
	tm := NewTimer(5*time.Millisecond, func() { fires.Add(1) })
	// Reset before the first fire has a chance to run; the stale
	// generation must not fire.
	tm.Reset(30*time.Millisecond, func() { fires.Add(100) })
	time.Sleep(60 * time.Millisecond)
	if got := fires.Load(); got != 100 {
		t.Fatalf("expected only the reset callback to fire (100), got %d", got)
	}
}

func TestTimerStopPreventsFire(t *testing.T) {
	var fires atomic.Int32
	tm := NewTimer(10*time.Millisecond, func() { fires.Add(1) })
	if !tm.Stop() {
		t.Fatal("expected Stop to report success before fire")
	}
	time.Sleep(30 * time.Millisecond)
	if got := fires.Load(); got != 0 {
		t.Fatalf("expected no fire after Stop, got %d", got)
	}
}
