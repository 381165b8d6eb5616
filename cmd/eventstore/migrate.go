// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arkforge/eventstore/internal/config"
	"github.com/arkforge/eventstore/internal/postgres"
)

// newMigrateCmd creates the migrate subcommand.
func newMigrateCmd() *cobra.Command {
	var down bool
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending schema migrations against the event store's PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cmd.Flags(), down, steps)
		},
	}

	cmd.Flags().BoolVar(&down, "down", false, "roll back all migrations instead of applying them")
	cmd.Flags().IntVar(&steps, "steps", 0, "apply exactly this many migrations (negative rolls back); 0 means all pending")

	return cmd
}

func runMigrate(cmd *cobra.Command, flags *pflag.FlagSet, down bool, steps int) error {
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return err
	}

	migrator, err := postgres.NewMigrator(cfg.DSN)
	if err != nil {
		return oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	defer func() { _ = migrator.Close() }()

	switch {
	case steps != 0:
		cmd.Printf("Applying %d migration step(s)...\n", steps)
		if err := migrator.Steps(steps); err != nil {
			return err
		}
	case down:
		cmd.Println("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
	default:
		cmd.Println("Applying pending migrations...")
		if err := migrator.Up(); err != nil {
			return err
		}
	}

	version, dirty, err := migrator.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("WARNING: schema is at version %d but marked dirty; a prior migration failed partway\n", version)
	} else {
		cmd.Printf("Migrations completed successfully (schema version %d)\n", version)
	}
	return nil
}
