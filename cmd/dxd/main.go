// Command dxd is the per-project development daemon CLI: it starts the
// long-running daemon and offers a handful of client commands: status,
// register and invoke dial a running daemon's IPC socket, version prints
// build information locally, and history reads the audit log store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "dxd",
		Short: "dx project daemon",
		Long:  "dxd watches a project, runs checks through a tiered dispatch pipeline, and answers IPC requests from editor and CI peers.",
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (JSON or YAML); flags override")

	rootCmd.AddCommand(
		daemonCmd(),
		statusCmd(),
		registerCmd(),
		invokeCmd(),
		versionCmd(),
		historyCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
