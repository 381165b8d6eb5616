// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/arkforge/eventstore/internal/config"
	"github.com/arkforge/eventstore/internal/logging"
	"github.com/arkforge/eventstore/internal/observability"
	"github.com/arkforge/eventstore/internal/postgres"
)

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the store and serve metrics/health endpoints",
		Long: `serve opens the connection pool against the configured database,
refuses to start if the schema is older than this binary requires, and then
blocks serving Prometheus metrics and health probes until a termination
signal arrives. It does not accept subscriber connections: subscribers are
in-process callers of this module, not remote clients of this process.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}

	logging.SetDefault("eventstore", version, "json")
	slog.Info("eventstore starting", "version", version, "commit", commit)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	store, err := postgres.Open(ctx, postgres.Config{
		DSN:               cfg.DSN,
		EnableHardDeletes: cfg.EnableHardDeletes,
		ReadBatchSize:     cfg.ReadBatchSize,
		SchemaPrefix:      cfg.SchemaPrefix,
	})
	if err != nil {
		return oops.Code("STORE_CONNECT_FAILED").Wrap(err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	ready := func() bool { return true }
	obsServer := observability.NewServer(cfg.MetricsAddr, ready)
	store.SetMetrics(obsServer.Metrics())
	if err := obsServer.Start(); err != nil {
		return oops.Code("OBSERVABILITY_START_FAILED").Wrap(err)
	}
	defer func() {
		stopCtx, stopCancel := context.WithCancel(context.Background())
		defer stopCancel()
		_ = obsServer.Stop(stopCtx)
	}()
	slog.Info("observability endpoints listening", "addr", obsServer.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	return nil
}
