package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/mcp"
)

func serveCmd() *cobra.Command {
	var registryPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server on stdio",
		Long: `Serve registry queries to MCP clients over stdin/stdout.

The registry file is re-read whenever it changes on disk, so a concurrent
"compreg watch" keeps answers current.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			path, err := a.registryPath(registryPath)
			if err != nil {
				return err
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("starting MCP server", "registry", path)
			srv := mcp.NewServer(mcp.NewFileSource(path), a.logger)
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&registryPath, "registry", "", "Registry file (default from config outputPath)")

	return cmd
}
