package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dxhq/dx/internal/collab/ipcwire"
	"github.com/dxhq/dx/internal/daemon"
)

// resolveSocket returns the socket path a client subcommand should dial:
// the explicit --socket flag if given, otherwise the one derived from
// the project path exactly as the daemon derives its own.
func resolveSocket(cmd *cobra.Command, socketFlag, projectPath string) (string, error) {
	if socketFlag != "" {
		return socketFlag, nil
	}
	if projectPath == "" {
		return "", fmt.Errorf("either --socket or a project path is required")
	}
	return daemon.SocketPathFor(projectPath), nil
}

func dialClient(socketPath string) (*ipcwire.Client, error) {
	client, err := ipcwire.Dial(socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %q (is it running?): %w", socketPath, err)
	}
	return client, nil
}
