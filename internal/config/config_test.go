package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigHasSaneValues(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Daemon.WatchDebounce != 100*time.Millisecond {
		t.Fatalf("unexpected default debounce: %v", cfg.Daemon.WatchDebounce)
	}
	if !cfg.Tier.Enabled || cfg.Tier.Tier1 == 0 || cfg.Tier.Tier2 == 0 || cfg.Tier.Tier3 == 0 {
		t.Fatalf("expected tier thresholds to be set, got %+v", cfg.Tier)
	}
	if cfg.Observability.Metrics.Addr != ":9464" {
		t.Fatalf("unexpected metrics addr: %q", cfg.Observability.Metrics.Addr)
	}
	if cfg.Auth.Enabled {
		t.Fatal("expected auth disabled by default")
	}
}

func TestLoadFromFileJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dx.json")
	content := `{"daemon": {"project_root": "/srv/app", "jobs": 4}, "tier": {"tier1": 50}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Daemon.ProjectRoot != "/srv/app" || cfg.Daemon.Jobs != 4 {
		t.Fatalf("unexpected daemon config: %+v", cfg.Daemon)
	}
	if cfg.Tier.Tier1 != 50 {
		t.Fatalf("expected tier1 override to apply, got %d", cfg.Tier.Tier1)
	}
	if cfg.Tier.Tier2 == 0 {
		t.Fatal("expected unset fields to retain their defaults after JSON merge")
	}
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dx.yaml")
	content := "daemon:\n  project_root: /srv/app\n  jobs: 8\nauth:\n  enabled: true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Daemon.ProjectRoot != "/srv/app" || cfg.Daemon.Jobs != 8 {
		t.Fatalf("unexpected daemon config: %+v", cfg.Daemon)
	}
	if !cfg.Auth.Enabled {
		t.Fatal("expected auth.enabled override to apply from YAML")
	}
}

func TestLoadFromEnvOverridesDefaults(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("DX_PROJECT_ROOT", "/work")
	t.Setenv("DX_WATCH", "false")
	t.Setenv("DX_TIER1_THRESHOLD", "25")
	t.Setenv("DX_RATELIMIT_ENABLED", "true")
	t.Setenv("DX_RATELIMIT_RPS", "12.5")

	LoadFromEnv(cfg)

	if cfg.Daemon.ProjectRoot != "/work" {
		t.Fatalf("expected project root override, got %q", cfg.Daemon.ProjectRoot)
	}
	if cfg.Daemon.Watch {
		t.Fatal("expected watch to be disabled by env override")
	}
	if cfg.Tier.Tier1 != 25 {
		t.Fatalf("expected tier1 override, got %d", cfg.Tier.Tier1)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 12.5 {
		t.Fatalf("unexpected rate limit config: %+v", cfg.RateLimit)
	}
}

func TestParseBool(t *testing.T) {
	cases := map[string]bool{
		"true": true, "TRUE": true, "1": true, "yes": true,
		"false": false, "0": false, "no": false, "": false,
	}
	for in, want := range cases {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}
