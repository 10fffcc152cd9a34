package registry

import (
	"context"
	"testing"

	"github.com/dxhq/dx/internal/errs"
)

func TestRegisterAndGet(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "test", Description: "A test command", Enabled: true})

	if !r.Contains("test") {
		t.Fatal("expected registry to contain test")
	}
	entry, ok := r.Get("test")
	if !ok || entry.Name != "test" {
		t.Fatalf("expected entry test, got %+v ok=%v", entry, ok)
	}
}

func TestAliasesResolveToCanonical(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "hello", Aliases: []string{"hi", "hey"}, Enabled: true})

	for _, alias := range []string{"hello", "hi", "hey"} {
		if !r.Contains(alias) {
			t.Fatalf("expected %q to resolve", alias)
		}
	}
	entry, ok := r.Get("hi")
	if !ok || entry.Name != "hello" {
		t.Fatalf("expected alias to resolve to canonical hello, got %+v", entry)
	}
}

func TestUnregisterRemovesEntryAndAliases(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "temp", Aliases: []string{"t"}, Enabled: true})

	if !r.Contains("temp") {
		t.Fatal("expected temp registered")
	}
	if _, ok := r.Unregister("temp"); !ok {
		t.Fatal("expected unregister to report removal")
	}
	if r.Contains("temp") || r.Contains("t") {
		t.Fatal("expected both name and alias gone after unregister")
	}
}

func TestRegisterVersionedCommandKeepsHighestVersion(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "build", Version: "1.0.0", Enabled: true})
	r.Register(Entry{Name: "build", Version: "1.2.0", Enabled: true})
	r.Register(Entry{Name: "build", Version: "0.9.0", Enabled: true})

	entry, ok := r.Get("build")
	if !ok || entry.Version != "1.2.0" {
		t.Fatalf("expected version 1.2.0 to win, got %+v", entry)
	}
}

func TestRegisterOverrideAlwaysWins(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "doctor", Description: "Built-in", Version: "2.0.0", Enabled: true})
	r.RegisterOverride(Entry{Name: "doctor", Description: "User override", Version: "1.0.0", Enabled: true})

	entry, ok := r.Get("doctor")
	if !ok || entry.Description != "User override" || entry.Version != "1.0.0" {
		t.Fatalf("expected override to win unconditionally, got %+v", entry)
	}
}

func TestRegisterFollowingOverrideWinsOnlyWithGreaterVersion(t *testing.T) {
	r := New(nil)
	r.RegisterOverride(Entry{Name: "x", Version: "1.0.0", Enabled: true})
	r.Register(Entry{Name: "x", Version: "0.5.0", Enabled: true})
	if entry, _ := r.Get("x"); entry.Version != "1.0.0" {
		t.Fatalf("expected lower version register to be rejected, got %+v", entry)
	}
	r.Register(Entry{Name: "x", Version: "2.0.0", Enabled: true})
	if entry, _ := r.Get("x"); entry.Version != "2.0.0" {
		t.Fatalf("expected strictly-greater version register to win, got %+v", entry)
	}
}

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.0", "1.1.9", 1},
		{"1.2", "1.2.0", 0},
		{"2.0.0", "10.0.0", -1},
		{"1.2.3-alpha", "1.2.3", 0},
	}
	for _, c := range cases {
		got := compareVersions(c.a, c.b)
		sign := func(n int) int {
			switch {
			case n < 0:
				return -1
			case n > 0:
				return 1
			default:
				return 0
			}
		}
		if sign(got) != c.want {
			t.Errorf("compareVersions(%q, %q) sign = %d, want %d", c.a, c.b, sign(got), c.want)
		}
	}
}

func TestLevenshteinDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"hello", "hello", 0},
		{"hello", "helo", 1},
		{"hello", "world", 4},
		{"", "abc", 3},
		{"abc", "", 3},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestExecuteNotFoundIncludesSuggestions(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "build", Enabled: true, Kind: InProcess, Fn: func([]string) (Result, error) { return Result{}, nil }})
	r.Register(Entry{Name: "rebuild", Enabled: true, Kind: InProcess, Fn: func([]string) (Result, error) { return Result{}, nil }})

	_, err := r.Execute(context.Background(), "buidl", nil)
	if !errs.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	suggestions := errs.SuggestionsOf(err)
	found := false
	for _, s := range suggestions {
		if s == "build" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected build among suggestions, got %v", suggestions)
	}
}

func TestExecuteDisabledHandler(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "off", Enabled: false, Kind: InProcess, Fn: func([]string) (Result, error) { return Result{}, nil }})

	_, err := r.Execute(context.Background(), "off", nil)
	if !errs.IsDisabled(err) {
		t.Fatalf("expected Disabled, got %v", err)
	}
}

func TestExecuteInProcessBuiltin(t *testing.T) {
	r := New(nil)
	r.Register(Entry{
		Name:    "echo",
		Enabled: true,
		Kind:    InProcess,
		Fn: func(args []string) (Result, error) {
			out := ""
			for i, a := range args {
				if i > 0 {
					out += " "
				}
				out += a
			}
			return Result{Stdout: out}, nil
		},
	})

	res, err := r.Execute(context.Background(), "echo", []string{"Hello", "World"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "Hello World" {
		t.Fatalf("expected 'Hello World', got %q", res.Stdout)
	}
}

func TestExecuteSubprocessScript(t *testing.T) {
	r := New(nil)
	r.Register(Entry{
		Name:        "shell-echo",
		Enabled:     true,
		Kind:        SubprocessScript,
		Interpreter: "/bin/sh",
		Script:      `echo "$@"`,
	})

	res, err := r.Execute(context.Background(), "shell-echo", []string{"hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", res.ExitCode)
	}
}

func TestExecuteExternalPluginWithoutDispatcherFails(t *testing.T) {
	r := New(nil)
	r.Register(Entry{
		Name:           "plugin",
		Enabled:        true,
		Kind:           ExternalPlugin,
		PluginLocation: "libfoo.so",
		PluginSymbol:   "run",
	})

	_, err := r.Execute(context.Background(), "plugin", nil)
	if !errs.IsExecutionFailed(err) {
		t.Fatalf("expected ExecutionFailed without a configured dispatcher, got %v", err)
	}
}

func TestByCategoryGroupsAndSortsWithinCategory(t *testing.T) {
	r := New(nil)
	r.Register(Entry{Name: "zeta", Category: "build", Enabled: true})
	r.Register(Entry{Name: "alpha", Category: "build", Enabled: true})
	r.Register(Entry{Name: "uncategorised", Enabled: true})

	grouped := r.ByCategory()
	build := grouped["build"]
	if len(build) != 2 || build[0].Name != "alpha" || build[1].Name != "zeta" {
		t.Fatalf("expected sorted build category, got %+v", build)
	}
	if len(grouped["Other"]) != 1 {
		t.Fatalf("expected uncategorised entry under Other, got %+v", grouped["Other"])
	}
}

func TestVersionBumpsOnMutation(t *testing.T) {
	r := New(nil)
	before := r.Version()
	r.Register(Entry{Name: "a", Enabled: true})
	if r.Version() == before {
		t.Fatal("expected version to bump on register")
	}
	afterRegister := r.Version()
	r.Unregister("a")
	if r.Version() == afterRegister {
		t.Fatal("expected version to bump on unregister")
	}
}
