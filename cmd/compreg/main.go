package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "compreg",
		Short: "Static component registry generator for React component libraries",
		Long: `compreg scans React/TypeScript component directories and writes a JSON
registry of every exported component with its props, category and exports.

It runs as a one-shot production scan, as a watcher that keeps the registry
current during development, or as an MCP server that answers registry queries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Config file (default component-registry.yaml if present)")
	flags.String("root", "", "Project root (overrides config)")
	flags.String("log-level", "", "Log level: verbose, info, warn, error (overrides config)")

	rootCmd.AddCommand(
		scanCmd(),
		watchCmd(),
		serveCmd(),
		listCmd(),
		setupCmd(),
		versionCmd(),
	)
	return rootCmd
}
