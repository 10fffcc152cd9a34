package tier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dxhq/dx/internal/circuitbreaker"
	"github.com/dxhq/dx/internal/collab"
	"github.com/dxhq/dx/internal/identity"
	"github.com/dxhq/dx/internal/profile"
)

type fakeCompiler struct{ failures int }

func (f *fakeCompiler) Compile(ctx context.Context, req collab.CompileRequest) (collab.CompileResult, error) {
	if f.failures > 0 {
		f.failures--
		return collab.CompileResult{}, errors.New("compile backend unavailable")
	}
	return collab.CompileResult{Artifact: []byte("ok")}, nil
}

func TestCompileSuccessPromotesTier(t *testing.T) {
	c := New(identity.NewMapper(), profile.NewStore(), Config{
		Compiler: &fakeCompiler{},
		Enabled:  true,
		Breaker:  circuitbreaker.Config{ErrorPct: 50, WindowDuration: time.Second, OpenDuration: time.Second},
	})
	if err := c.Compile(context.Background(), "f", Optimizing, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := c.GetTier("f"); got != Optimizing {
		t.Fatalf("expected Optimizing after compile, got %s", got)
	}
}

func TestCompileTripsBreakerAfterRepeatedFailures(t *testing.T) {
	c := New(identity.NewMapper(), profile.NewStore(), Config{
		Compiler: &fakeCompiler{failures: 100},
		Enabled:  true,
		Breaker:  circuitbreaker.Config{ErrorPct: 50, WindowDuration: time.Minute, OpenDuration: time.Minute, HalfOpenProbes: 1},
	})
	var lastErr error
	for i := 0; i < 10; i++ {
		lastErr = c.Compile(context.Background(), "f", Baseline, nil)
	}
	if lastErr == nil {
		t.Fatal("expected compile to keep failing")
	}
	if got := lastErr.Error(); !containsCircuitOpen(got) {
		t.Fatalf("expected circuit to trip and short-circuit further compiler calls, last error: %q", got)
	}
}

func TestCompileWithNoCompilerIsDisabled(t *testing.T) {
	c := New(identity.NewMapper(), profile.NewStore(), Config{Enabled: true})
	err := c.Compile(context.Background(), "f", Baseline, nil)
	if err == nil {
		t.Fatal("expected error when no compiler collaborator is configured")
	}
}

func containsCircuitOpen(s string) bool {
	for i := 0; i+len("circuit open") <= len(s); i++ {
		if s[i:i+len("circuit open")] == "circuit open" {
			return true
		}
	}
	return false
}
