package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/cache"
	"github.com/gnana997/compreg/pkg/config"
	"github.com/gnana997/compreg/pkg/indexer"
	"github.com/gnana997/compreg/pkg/registry"
	"github.com/gnana997/compreg/pkg/util"
)

// app carries the loaded config and logger for one command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
}

// loadApp reads the config and applies the persistent flag overrides.
func loadApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if root, _ := cmd.Flags().GetString("root"); root != "" {
		cfg.Root = root
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = string(util.ParseLogLevel(level))
	}

	lc := cfg.Logger()
	lc.Output = cmd.ErrOrStderr()
	logger := util.NewLogger(lc)
	util.SetDefault(logger)

	return &app{cfg: cfg, logger: logger}, nil
}

// registryPath returns the absolute registry path, preferring override.
func (a *app) registryPath(override string) (string, error) {
	if override != "" {
		return a.cfg.Resolve(override)
	}
	return a.cfg.Resolve(a.cfg.OutputPath)
}

// engine wires store, cache and engine state, restores previous state
// from disk and returns the orchestrator. The caller closes it via
// Engine().Close().
func (a *app) engine(ctx context.Context, reg prometheus.Registerer, environment string) (*indexer.Orchestrator, error) {
	opts, err := a.cfg.IndexerOptions()
	if err != nil {
		return nil, err
	}
	opts.Environment = environment

	outputPath, err := a.registryPath("")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output path: %w", err)
	}
	cachePath, err := a.cfg.Resolve(a.cfg.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cache path: %w", err)
	}

	es := indexer.NewEngineState(indexer.EngineConfig{
		Options: opts,
		Store: registry.New(registry.Config{
			OutputPath: outputPath,
			Minify:     a.cfg.Minify,
			Logger:     a.logger,
		}),
		Cache: cache.New(cache.Config{
			Path:     cachePath,
			Disabled: !a.cfg.Cache,
			Logger:   a.logger,
		}),
		Logger:  a.logger,
		Metrics: indexer.NewMetrics(reg),
	})

	orch := indexer.NewOrchestrator(es)
	orch.Load(ctx)
	return orch, nil
}
