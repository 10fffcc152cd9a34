package daemon

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dxhq/dx/internal/config"
)

func newTestDaemon(t *testing.T, root string) *Daemon {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Daemon.ProjectRoot = root
	cfg.Daemon.Watch = false
	cfg.Daemon.AgentSocket = ""
	cfg.Observability.Metrics.Enabled = false

	d, err := New(cfg, Deps{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d
}

func TestSocketPathForIsDeterministicPerRoot(t *testing.T) {
	a := SocketPathFor("/srv/project-a")
	b := SocketPathFor("/srv/project-a")
	if a != b {
		t.Fatalf("expected the same root to derive the same socket path, got %q and %q", a, b)
	}
}

func TestSocketPathForDiffersAcrossRoots(t *testing.T) {
	a := SocketPathFor("/srv/project-a")
	b := SocketPathFor("/srv/project-b")
	if a == b {
		t.Fatal("expected distinct roots to derive distinct socket paths")
	}
}

func TestWritePidFileFailsWhenAnotherDaemonHoldsIt(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "dxd.pid")

	d1 := newTestDaemon(t, dir)
	d1.pidFile = pidPath
	if err := d1.writePidFile(); err != nil {
		t.Fatalf("first writePidFile should succeed: %v", err)
	}
	defer d1.cleanupPidFile()

	d2 := newTestDaemon(t, dir)
	d2.pidFile = pidPath
	if err := d2.writePidFile(); err == nil {
		t.Fatal("expected a second daemon writing the same PID file to fail")
	}
}

func TestCleanupPidFileRemovesTheFile(t *testing.T) {
	dir := t.TempDir()
	pidPath := filepath.Join(dir, "dxd.pid")

	d := newTestDaemon(t, dir)
	d.pidFile = pidPath
	if err := d.writePidFile(); err != nil {
		t.Fatalf("writePidFile failed: %v", err)
	}
	d.cleanupPidFile()

	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Fatalf("expected PID file to be removed, stat error: %v", err)
	}
}

func TestWritePidFileNoopWithoutAPath(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	d.pidFile = ""
	if err := d.writePidFile(); err != nil {
		t.Fatalf("expected no error with an empty pid file path, got %v", err)
	}
}

func TestGracefulStopSetsShutdownFlag(t *testing.T) {
	shutdown.Store(false)
	d := newTestDaemon(t, t.TempDir())
	d.GracefulStop()
	if !shutdown.Load() {
		t.Fatal("expected GracefulStop to set the shutdown flag")
	}
}

func TestForceStopSetsShutdownFlagWithoutWaiting(t *testing.T) {
	shutdown.Store(false)
	d := newTestDaemon(t, t.TempDir())
	d.ForceStop()
	if !shutdown.Load() {
		t.Fatal("expected ForceStop to set the shutdown flag")
	}
}

func TestBuiltinCommandsAreRegistered(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	for _, name := range []string{"status", "version", "tier", "tiers"} {
		if !d.registry.Contains(name) {
			t.Errorf("expected builtin command %q to be registered", name)
		}
	}
}

func TestIPCHandlerExecuteRunsBuiltinVersion(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	h := &ipcHandler{daemon: d}

	res, err := h.Execute(context.Background(), "version", nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected the version builtin to succeed, got %+v", res)
	}
}

func TestIPCHandlerStatusReportsQueueDepth(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	h := &ipcHandler{daemon: d}

	res, err := h.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !res.OK || res.Output == "" {
		t.Fatalf("expected a non-empty status payload, got %+v", res)
	}
}

func TestIPCHandlerRegisterAddsCommand(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	h := &ipcHandler{daemon: d}

	if err := h.Register(context.Background(), "custom-lint", "sh", "echo ok"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if !d.registry.Contains("custom-lint") {
		t.Fatal("expected the registered command to be reachable")
	}
}

func TestAuthorizeAllowsEverythingWithoutAnAuthenticator(t *testing.T) {
	d := newTestDaemon(t, t.TempDir())
	h := &ipcHandler{daemon: d}
	if err := h.authorize(context.Background()); err != nil {
		t.Fatalf("expected no authenticator to mean no authorization error, got %v", err)
	}
}
