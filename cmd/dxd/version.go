package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dxhq/dx/internal/daemon"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print dxd's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("dxd %s (%s)\n", daemon.Version, runtime.Version())
			return nil
		},
	}
}
