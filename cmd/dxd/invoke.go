package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func invokeCmd() *cobra.Command {
	var (
		socketPath  string
		projectPath string
		apiKey      string
	)

	cmd := &cobra.Command{
		Use:   "invoke <command> [args...]",
		Short: "Execute a registered command against a running daemon",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, cmdArgs := args[0], args[1:]

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

			ok, payload, err := client.Execute(name, cmdArgs)
			if err != nil {
				fmt.Println(payload)
				return err
			}
			fmt.Println(payload)
			if !ok {
				return fmt.Errorf("%q reported failure", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "IPC socket path (default: derived from --project)")
	cmd.Flags().StringVar(&projectPath, "project", "", "Project path (used to derive the socket if --socket is not given)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key, if the daemon was started with --require-auth")
	return cmd
}
