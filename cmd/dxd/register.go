package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func registerCmd() *cobra.Command {
	var (
		socketPath  string
		projectPath string
		interpreter string
		apiKey      string
	)

	cmd := &cobra.Command{
		Use:   "register <name> <script>",
		Short: "Register a subprocess-script command with a running daemon",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, script := args[0], args[1]

			resolvedProject := ""
			if projectPath != "" {
				abs, err := filepath.Abs(projectPath)
				if err != nil {
					return err
				}
				resolvedProject = abs
			}
			addr, err := resolveSocket(cmd, socketPath, resolvedProject)
			if err != nil {
				return err
			}
			client, err := dialClient(addr)
			if err != nil {
				return err
			}
			defer client.Close()
			if apiKey != "" {
				client.SetAPIKey(apiKey)
			}

			if err := client.Register(name, interpreter, script); err != nil {
				return fmt.Errorf("register %q: %w", name, err)
			}
			fmt.Printf("registered %q (%s %s)\n", name, interpreter, script)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "IPC socket path (default: derived from --project)")
	cmd.Flags().StringVar(&projectPath, "project", "", "Project path (used to derive the socket if --socket is not given)")
	cmd.Flags().StringVar(&interpreter, "interpreter", "sh", "Interpreter used to run the script")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key, if the daemon was started with --require-auth")
	return cmd
}
