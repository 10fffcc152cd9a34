package tier

import (
	"testing"

	"github.com/dxhq/dx/internal/identity"
	"github.com/dxhq/dx/internal/profile"
)

func newController(th Thresholds) *Controller {
	return New(identity.NewMapper(), profile.NewStore(), Config{
		Thresholds: th,
		Enabled:    true,
	})
}

func TestRecordCallPromotesAtThresholds(t *testing.T) {
	c := newController(Thresholds{Tier1: 10, Tier2: 100, Tier3: 1000})

	if got := c.GetTier("f"); got != Interpreter {
		t.Fatalf("expected initial tier Interpreter, got %s", got)
	}

	for i := 0; i < 9; i++ {
		if _, promoted := c.RecordCall("f"); promoted {
			t.Fatalf("unexpected promotion before threshold at call %d", i+1)
		}
	}

	newTier, promoted := c.RecordCall("f")
	if !promoted || newTier != Baseline {
		t.Fatalf("expected promotion to Baseline on 10th call, got %s promoted=%v", newTier, promoted)
	}
	if got := c.GetTier("f"); got != Baseline {
		t.Fatalf("expected GetTier to report Baseline, got %s", got)
	}
}

func TestTierNeverDecreasesWithoutDeopt(t *testing.T) {
	c := newController(Thresholds{Tier1: 5, Tier2: 50, Tier3: 500})
	prev := Interpreter
	for i := 0; i < 600; i++ {
		c.RecordCall("f")
		cur := c.GetTier("f")
		if cur < prev {
			t.Fatalf("tier decreased from %s to %s without deopt at call %d", prev, cur, i)
		}
		prev = cur
	}
	if prev != AotOptimized {
		t.Fatalf("expected eventual promotion to AotOptimized, got %s", prev)
	}
}

func TestDeoptimizeResetsTierPreservesCallCount(t *testing.T) {
	c := newController(Thresholds{Tier1: 2, Tier2: 20, Tier3: 200})
	c.RecordCall("f")
	c.RecordCall("f")
	if c.GetTier("f") != Baseline {
		t.Fatal("expected Baseline before deopt")
	}
	countBefore := c.CallCount("f")

	c.Deoptimize("f")
	if c.GetTier("f") != Interpreter {
		t.Fatal("expected Interpreter after deopt")
	}
	if c.CallCount("f") != countBefore {
		t.Fatalf("expected call count preserved across deopt, got %d want %d", c.CallCount("f"), countBefore)
	}
}

func TestOsrEntryLifecycle(t *testing.T) {
	c := newController(DefaultThresholds)
	if c.CanOsr("f", 10) {
		t.Fatal("expected no OSR entry before registration")
	}
	c.RegisterOsrEntry("f", OsrEntry{Offset: 10, TargetTier: Optimizing})
	if !c.CanOsr("f", 10) {
		t.Fatal("expected OSR entry after registration")
	}
	c.Deoptimize("f")
	if c.CanOsr("f", 10) {
		t.Fatal("expected deopt to drop OSR entries")
	}
}

func TestDoOsrReturnsTheMatchingEntry(t *testing.T) {
	c := newController(DefaultThresholds)
	c.RegisterOsrEntry("f", OsrEntry{Offset: 10, TargetTier: Optimizing, EntryPtr: 0xABCD})

	entry, err := c.DoOsr("f", 10)
	if err != nil {
		t.Fatalf("expected a valid OSR entry, got error %v", err)
	}
	if entry.TargetTier != Optimizing || entry.EntryPtr != 0xABCD {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestDoOsrFailsForUnknownFunction(t *testing.T) {
	c := newController(DefaultThresholds)
	if _, err := c.DoOsr("never-called", 10); err == nil {
		t.Fatal("expected an error for a function with no recorded identity")
	}
}

func TestDoOsrFailsForMissingOffset(t *testing.T) {
	c := newController(DefaultThresholds)
	c.RegisterOsrEntry("f", OsrEntry{Offset: 10, TargetTier: Optimizing})

	if _, err := c.DoOsr("f", 20); err == nil {
		t.Fatal("expected an error when no OSR entry matches the given offset")
	}
}

func TestDisabledControllerNeverPromotes(t *testing.T) {
	c := New(identity.NewMapper(), profile.NewStore(), Config{Thresholds: Thresholds{Tier1: 1, Tier2: 2, Tier3: 3}, Enabled: false})
	for i := 0; i < 10; i++ {
		if _, promoted := c.RecordCall("f"); promoted {
			t.Fatal("disabled controller must never promote")
		}
	}
	if got := c.CallCount("f"); got != 0 {
		t.Fatalf("disabled controller must not record calls, got %d", got)
	}
}
