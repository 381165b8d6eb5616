// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the eventstore CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eventstore",
		Short: "eventstore - an append-only, strongly-ordered PostgreSQL event store",
		Long: `eventstore is an append-only event log organized into named streams,
with durable subscriptions delivering events in order and exactly-once
per subscription, for event-sourcing applications.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}
