package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/gnana997/compreg/pkg/devserver"
	"github.com/gnana997/compreg/pkg/host"
)

const shutdownTimeout = 10 * time.Second

func watchCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Scan, then keep the registry current as components change",
		Long: `Run a development scan, then watch the component paths and apply
changes incrementally until interrupted.

With --addr the live registry is also served over HTTP:
  /registry.json     current registry
  /diagnostics.json  scan diagnostics
  /healthz           engine state
  /metrics           Prometheus metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Devserver listen address, e.g. 127.0.0.1:4319 (disabled if empty)")

	return cmd
}

func runWatch(cmd *cobra.Command, addr string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	orch, err := a.engine(ctx, reg, string(host.ModeDevelopment))
	if err != nil {
		return err
	}
	defer orch.Engine().Close()

	plugin := host.New(orch, host.Config{
		Mode:       host.ModeDevelopment,
		OutputPath: a.cfg.OutputPath,
		Watch:      a.cfg.Watch,
		Debounce:   a.cfg.Debounce(),
		Logger:     a.logger,
	})

	if err := plugin.BeforeCompile(ctx); err != nil {
		return err
	}

	var serveErr error
	if addr != "" {
		srv := devserver.New(orch.Engine().Store, devserver.Config{
			Addr:     addr,
			Gatherer: reg,
			Status:   func() string { return orch.State().String() },
			Logger:   a.logger,
		})
		serveErr = srv.ListenAndServe(ctx)
	} else {
		<-ctx.Done()
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := plugin.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("shutdown incomplete", "error", err)
	}
	return serveErr
}
