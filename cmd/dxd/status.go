package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
)

func statusCmd() *cobra.Command {
	var (
		socketPath string
		apiKey     string
	)

	cmd := &cobra.Command{
		Use:   "status [project path]",
		Short: "Report status from a running daemon",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectPath := ""
			if len(args) == 1 {
				abs, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				projectPath = abs
			}
			addr, err := resolveSocket(cmd, socketPath, projectPath)
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

			payload, err := client.Status()
			if err != nil {
				return err
			}
			fmt.Println(payload)
			return nil
		},
	}

	cmd.Flags().StringVar(&socketPath, "socket", "", "IPC socket path (default: derived from project path)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key, if the daemon was started with --require-auth")
	return cmd
}
