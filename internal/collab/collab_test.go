package collab

import (
	"context"
	"testing"
)

func TestTierStringCoversAllValues(t *testing.T) {
	cases := map[Tier]string{
		TierInterpreter:  "interpreter",
		TierBaseline:     "baseline",
		TierOptimizing:   "optimizing",
		TierAotOptimized: "aot-optimized",
		Tier(99):         "unknown",
	}
	for tier, want := range cases {
		if got := tier.String(); got != want {
			t.Errorf("Tier(%d).String() = %q, want %q", tier, got, want)
		}
	}
}

func TestWithAPIKeyRoundTripsThroughContext(t *testing.T) {
	ctx := WithAPIKey(context.Background(), "abc123")
	if got := APIKeyFromContext(ctx); got != "abc123" {
		t.Fatalf("expected api key to round-trip, got %q", got)
	}
}

func TestAPIKeyFromContextEmptyWhenNeverSet(t *testing.T) {
	if got := APIKeyFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty key on a bare context, got %q", got)
	}
}

func TestWithAPIKeyIgnoresEmptyKey(t *testing.T) {
	ctx := WithAPIKey(context.Background(), "")
	if got := APIKeyFromContext(ctx); got != "" {
		t.Fatalf("expected empty key to be a no-op, got %q", got)
	}
}
