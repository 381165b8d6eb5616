// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkforge/eventstore/internal/config"
	"github.com/arkforge/eventstore/internal/postgres"
)

// Status holds the status information reported by the status command.
type Status struct {
	Reachable        bool   `json:"reachable"`
	SchemaVersion    uint   `json:"schema_version,omitempty"`
	SchemaDirty      bool   `json:"schema_dirty,omitempty"`
	SchemaCompatible bool   `json:"schema_compatible"`
	Error            string `json:"error,omitempty"`
}

// statusConfig holds configuration for the status command.
type statusConfig struct {
	jsonOutput bool
}

// newStatusCmd creates the status subcommand.
func newStatusCmd() *cobra.Command {
	cfg := &statusConfig{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report database connectivity and schema status",
		Long:  `status connects to the configured database and reports whether its schema is migrated and compatible with this binary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.jsonOutput, "json", false, "output status as JSON")

	return cmd
}

func runStatus(cmd *cobra.Command, cfg *statusConfig) error {
	status := queryStatus(cmd, cfg)

	if cfg.jsonOutput {
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	if !status.Reachable {
		cmd.Printf("database: unreachable (%s)\n", status.Error)
		return nil
	}
	cmd.Printf("database: reachable\n")
	cmd.Printf("schema version: %d (dirty=%t)\n", status.SchemaVersion, status.SchemaDirty)
	cmd.Printf("schema compatible with this binary: %t\n", status.SchemaCompatible)
	return nil
}

func queryStatus(cmd *cobra.Command, _ *statusConfig) Status {
	appCfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return Status{Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	store, err := postgres.Open(ctx, postgres.Config{
		DSN:          appCfg.DSN,
		SchemaPrefix: appCfg.SchemaPrefix,
	})
	if err != nil {
		// Open's own CheckSchema may be what failed; either way report the
		// database as reachable-but-incompatible rather than unreachable
		// when we can still talk to it via a bare migrator.
		return queryViaMigrator(appCfg.DSN, err)
	}
	defer func() { _ = store.Close(context.Background()) }()

	version, dirty, migErr := migratorVersion(appCfg.DSN)
	return Status{
		Reachable:        true,
		SchemaVersion:    version,
		SchemaDirty:      dirty,
		SchemaCompatible: migErr == nil,
	}
}

func queryViaMigrator(dsn string, openErr error) Status {
	version, dirty, migErr := migratorVersion(dsn)
	if migErr != nil {
		return Status{Reachable: false, Error: openErr.Error()}
	}
	return Status{
		Reachable:        true,
		SchemaVersion:    version,
		SchemaDirty:      dirty,
		SchemaCompatible: false,
		Error:            openErr.Error(),
	}
}

func migratorVersion(dsn string) (version uint, dirty bool, err error) {
	migrator, err := postgres.NewMigrator(dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = migrator.Close() }()
	return migrator.Version()
}
