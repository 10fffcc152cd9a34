package daemon

import (
	"fmt"
	"runtime"

	"github.com/dxhq/dx/internal/registry"
)

// Version is set at build time (via -ldflags) for the version command
// and the IPC status payload.
var Version = "dev"

// registerBuiltins installs the handful of commands every daemon offers
// regardless of project type: status, version and a tier inspector.
// Project-specific commands (format, lint, test, build) are registered
// by whatever external collaborator wires them in; the core ships none.
func registerBuiltins(reg *registry.Registry, d *Daemon) {
	reg.Register(registry.Entry{
		Name:        "status",
		Description: "Report daemon and task queue status",
		Category:    "Core",
		Enabled:     true,
		Kind:        registry.InProcess,
		Fn: func(args []string) (registry.Result, error) {
			stats := d.tiers.Stats()
			out := fmt.Sprintf("project=%s queue_depth=%d functions=%d calls=%d",
				d.projectRoot, d.queue.Len(), stats.TotalFunctions, stats.TotalCalls)
			return registry.Result{ExitCode: 0, Stdout: out}, nil
		},
	})

	reg.Register(registry.Entry{
		Name:        "version",
		Description: "Report daemon version and runtime",
		Category:    "Core",
		Enabled:     true,
		Kind:        registry.InProcess,
		Fn: func(args []string) (registry.Result, error) {
			out := fmt.Sprintf("dxd %s (%s)", Version, runtime.Version())
			return registry.Result{ExitCode: 0, Stdout: out}, nil
		},
	})

	reg.Register(registry.Entry{
		Name:        "tier",
		Description: "Report the compilation tier of a function",
		Category:    "Core",
		Aliases:     []string{"tiers"},
		Enabled:     true,
		Kind:        registry.InProcess,
		Fn: func(args []string) (registry.Result, error) {
			if len(args) == 0 {
				stats := d.tiers.Stats()
				out := fmt.Sprintf("tracked=%d total_calls=%d", stats.TotalFunctions, stats.TotalCalls)
				return registry.Result{ExitCode: 0, Stdout: out}, nil
			}
			name := args[0]
			out := fmt.Sprintf("%s: tier=%s calls=%d", name, d.tiers.GetTier(name), d.tiers.CallCount(name))
			return registry.Result{ExitCode: 0, Stdout: out}, nil
		},
	})
}
