package ipcwire

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dxhq/dx/internal/collab"
)

// fakeHandler records what it was called with, for assertions, and
// returns the result fields a test configures.
type fakeHandler struct {
	executed   []string
	lastArgs   []string
	lastAPIKey string
	registered []string
}

func (h *fakeHandler) Execute(ctx context.Context, name string, args []string) (collab.IPCResult, error) {
	h.executed = append(h.executed, name)
	h.lastArgs = args
	h.lastAPIKey = collab.APIKeyFromContext(ctx)
	return collab.IPCResult{OK: true, Output: "ran " + name}, nil
}

func (h *fakeHandler) Status(ctx context.Context) (collab.IPCResult, error) {
	return collab.IPCResult{OK: true, Output: "status ok"}, nil
}

func (h *fakeHandler) Register(ctx context.Context, name, interpreter, script string) error {
	h.registered = append(h.registered, name+":"+interpreter+":"+script)
	return nil
}

func startTransport(t *testing.T, handler collab.IPCHandler) (addr string, stop func()) {
	t.Helper()
	addr = filepath.Join(t.TempDir(), "test.sock")
	ctx, cancel := context.WithCancel(context.Background())
	tr := New()

	ready := make(chan struct{})
	go func() {
		close(ready)
		tr.Serve(ctx, addr, handler)
	}()
	<-ready
	time.Sleep(50 * time.Millisecond)

	return addr, func() {
		cancel()
		tr.Close()
	}
}

func TestExecuteRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	addr, stop := startTransport(t, h)
	defer stop()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	ok, payload, err := client.Execute("build", []string{"--flag"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !ok || payload != "ran build" {
		t.Fatalf("unexpected response: ok=%v payload=%q", ok, payload)
	}
	if len(h.executed) != 1 || h.executed[0] != "build" {
		t.Fatalf("expected handler to see one Execute(build), got %+v", h.executed)
	}
}

func TestStatusRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	addr, stop := startTransport(t, h)
	defer stop()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	payload, err := client.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if payload != "status ok" {
		t.Fatalf("unexpected status payload: %q", payload)
	}
}

func TestRegisterRoundTrip(t *testing.T) {
	h := &fakeHandler{}
	addr, stop := startTransport(t, h)
	defer stop()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	if err := client.Register("lint", "sh", "golangci-lint run"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if len(h.registered) != 1 || h.registered[0] != "lint:sh:golangci-lint run" {
		t.Fatalf("unexpected registered calls: %+v", h.registered)
	}
}

func TestAPIKeyPropagatesToHandlerContext(t *testing.T) {
	h := &fakeHandler{}
	addr, stop := startTransport(t, h)
	defer stop()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()
	client.SetAPIKey("secret-key")

	if _, _, err := client.Execute("status", nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if h.lastAPIKey != "secret-key" {
		t.Fatalf("expected api key to propagate, got %q", h.lastAPIKey)
	}
}

func TestMultipleSequentialRequestsOnOneConnection(t *testing.T) {
	h := &fakeHandler{}
	addr, stop := startTransport(t, h)
	defer stop()

	client, err := Dial(addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer client.Close()

	for i := 0; i < 3; i++ {
		if _, _, err := client.Execute("ping", nil); err != nil {
			t.Fatalf("Execute #%d failed: %v", i, err)
		}
	}
	if len(h.executed) != 3 {
		t.Fatalf("expected 3 sequential executes, got %d", len(h.executed))
	}
}

func TestRegisterFromArgsRejectsWrongArity(t *testing.T) {
	h := &fakeHandler{}
	if err := registerFromArgs(context.Background(), h, []string{"only-one"}); err == nil {
		t.Fatal("expected an error for wrong argument count")
	}
	if len(h.registered) != 0 {
		t.Fatalf("expected no registration to occur, got %+v", h.registered)
	}
}
