package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dxhq/dx/internal/collab/dockercompile"
	"github.com/dxhq/dx/internal/collab/ipcwire"
	"github.com/dxhq/dx/internal/config"
	"github.com/dxhq/dx/internal/daemon"
	"github.com/dxhq/dx/internal/logging"
	"github.com/dxhq/dx/internal/metrics"
	"github.com/dxhq/dx/internal/observability"
)

func daemonCmd() *cobra.Command {
	var (
		socketPath   string
		agentSocket  string
		pidFile      string
		watch        bool
		include      []string
		exclude      []string
		debounceMs   int
		jobs         int
		verbose      bool
		requireAuth  bool
	)

	cmd := &cobra.Command{
		Use:   "daemon [project path]",
		Short: "Run the project daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configFile != "" {
				var err error
				cfg, err = config.LoadFromFile(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			config.LoadFromEnv(cfg)

			root := "."
			if len(args) == 1 {
				root = args[0]
			}
			abs, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolve project path %q: %w", root, err)
			}
			if info, err := os.Stat(abs); err != nil || !info.IsDir() {
				return fmt.Errorf("project path %q is not a directory", abs)
			}
			cfg.Daemon.ProjectRoot = abs

			if cmd.Flags().Changed("socket") {
				cfg.Daemon.SocketPath = socketPath
			}
			if cmd.Flags().Changed("agent-socket") {
				cfg.Daemon.AgentSocket = agentSocket
			}
			if cmd.Flags().Changed("pidfile") {
				cfg.Daemon.PidFile = pidFile
			}
			if cmd.Flags().Changed("watch") {
				cfg.Daemon.Watch = watch
			}
			if cmd.Flags().Changed("include") {
				cfg.Daemon.Include = include
			}
			if cmd.Flags().Changed("exclude") {
				cfg.Daemon.Exclude = exclude
			}
			if cmd.Flags().Changed("debounce") {
				cfg.Daemon.WatchDebounce = time.Duration(debounceMs) * time.Millisecond
			}
			if cmd.Flags().Changed("jobs") {
				cfg.Daemon.Jobs = jobs
			}
			if verbose {
				cfg.Daemon.Verbose = true
				cfg.Daemon.LogLevel = "debug"
			}
			if requireAuth {
				cfg.Auth.Enabled = true
			}

			logging.InitStructured(cfg.Observability.Logging.Format, cfg.Daemon.LogLevel)

			if err := observability.Init(context.Background(), observability.Config{
				Enabled:     cfg.Observability.Tracing.Enabled,
				Exporter:    cfg.Observability.Tracing.Exporter,
				Endpoint:    cfg.Observability.Tracing.Endpoint,
				ServiceName: cfg.Observability.Tracing.ServiceName,
				SampleRate:  cfg.Observability.Tracing.SampleRate,
			}); err != nil {
				return fmt.Errorf("init tracing: %w", err)
			}
			defer observability.Shutdown(context.Background())

			if cfg.Observability.Metrics.Enabled {
				metrics.InitPrometheus(cfg.Observability.Metrics.Namespace, nil)
				go serveMetrics(cfg.Observability.Metrics.Addr)
			}

			d, err := daemon.New(cfg, daemon.Deps{
				Compiler: dockercompile.New(),
				IPC:      ipcwire.New(),
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				logging.Op().Info("shutdown signal received")
				cancel()
			}()

			logging.Op().Info("daemon starting", "project_root", cfg.Daemon.ProjectRoot, "socket", daemon.SocketPathFor(cfg.Daemon.ProjectRoot))
			return d.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "IPC socket path (default: derived from project path)")
	cmd.Flags().StringVar(&agentSocket, "agent-socket", "/tmp/dx-agent.sock", "Agent peer socket path")
	cmd.Flags().StringVar(&pidFile, "pidfile", "", "PID file path")
	cmd.Flags().BoolVarP(&watch, "watch", "w", true, "Watch the project for file changes")
	cmd.Flags().StringArrayVar(&include, "include", nil, "Glob pattern to include (repeatable)")
	cmd.Flags().StringArrayVar(&exclude, "exclude", nil, "Glob pattern to exclude (repeatable)")
	cmd.Flags().IntVar(&debounceMs, "debounce", 100, "Watch debounce window in milliseconds")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", runtime.NumCPU(), "Worker concurrency")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose (debug-level) logging")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", false, "Require an API key on every IPC request (keys come from config)")

	return cmd
}
