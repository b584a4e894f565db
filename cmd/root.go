package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the entry point when toolpod is called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "toolpod",
	Short: "Run MCP server workloads in a Kubernetes cluster",
	Long: `toolpod turns desired-workload records from a catalog into running
MCP server pods, managing their secrets, services and lifecycle.

Use 'toolpod serve' to start the orchestrator against a catalog directory.`,
	SilenceUsage: true,
}

// SetVersion sets the version for the root command. Called from the main
// package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "toolpod version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
