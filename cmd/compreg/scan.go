package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/host"
)

func scanCmd() *cobra.Command {
	var (
		emitDir     string
		buildID     string
		failOnError bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a production scan and write the registry",
		Long: `Run a full production scan of the configured component paths.

The registry is written to the configured output path with a .backup.json
copy and stamped with a build id. With --emit-dir the registry assets are
also written below that directory, named relative to the public root.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, emitDir, buildID, failOnError)
		},
	}

	cmd.Flags().StringVar(&emitDir, "emit-dir", "", "Directory to emit registry assets into")
	cmd.Flags().StringVar(&buildID, "build-id", "", "Build id to stamp (default from config, else generated)")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when the scan produced a fallback registry")

	return cmd
}

func runScan(cmd *cobra.Command, emitDir, buildID string, failOnError bool) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	if buildID == "" {
		buildID = a.cfg.BuildID
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	orch, err := a.engine(ctx, nil, string(host.ModeProduction))
	if err != nil {
		return err
	}
	defer orch.Engine().Close()

	plugin := host.New(orch, host.Config{
		Mode:       host.ModeProduction,
		BuildID:    buildID,
		OutputPath: a.cfg.OutputPath,
		Logger:     a.logger,
	})

	if err := plugin.BeforeCompile(ctx); err != nil {
		return err
	}
	if emitDir != "" {
		if err := plugin.EmitAssets(host.DirEmitter{Dir: emitDir}); err != nil {
			return err
		}
	}
	if err := plugin.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.logger.Warn("final persist failed", "error", err)
	}

	doc := orch.Engine().Store.Snapshot()
	if doc == nil {
		return fmt.Errorf("scan produced no registry")
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d components written to %s (build %s)\n",
		len(doc.Components), orch.Engine().Store.OutputPath(), doc.BuildID)
	if len(doc.Warnings) > 0 {
		fmt.Fprintf(out, "%d warnings, most recent: %s\n", len(doc.Warnings), doc.Warnings[0])
	}
	if doc.Error != "" {
		fmt.Fprintf(out, "scan failed: %s\n", doc.Error)
		if failOnError {
			return fmt.Errorf("scan failed: %s", doc.Error)
		}
	}
	return nil
}
