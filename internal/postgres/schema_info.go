// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
)

// minSchemaVersion is the oldest schema this binary can run against. It is
// bumped whenever a migration changes a table shape this package reads or
// writes directly (as opposed to additive, backward-compatible migrations).
var minSchemaVersion = semver.MustParse("1.0.0")

// CheckSchema refuses to let the store serve traffic against a database
// whose recorded schema version predates minSchemaVersion. The version is
// written by the last-applied migration into eventstore_schema_info (see
// internal/postgres/migrations). Open calls this automatically; callers
// that want to check schema compatibility without a full Open/Close cycle
// (e.g. a "serve" entrypoint that wants a friendlier startup message) may
// call it directly.
func (s *Store) CheckSchema(ctx context.Context) error {
	var versionStr string
	err := s.pool.QueryRow(ctx,
		`SELECT version FROM `+s.cfg.tableName("eventstore_schema_info")+` ORDER BY applied_at DESC LIMIT 1`,
	).Scan(&versionStr)
	if err == pgx.ErrNoRows {
		return oops.Code("SCHEMA_NOT_MIGRATED").Errorf("no schema version recorded; run migrations before starting the store")
	}
	if err != nil {
		return oops.Code("SCHEMA_NOT_MIGRATED").Wrap(err)
	}

	current, err := semver.NewVersion(versionStr)
	if err != nil {
		return oops.Code("SCHEMA_NOT_MIGRATED").With("recorded_version", versionStr).Wrap(err)
	}
	if current.LessThan(minSchemaVersion) {
		return oops.Code("SCHEMA_NOT_MIGRATED").
			With("recorded_version", versionStr).
			With("required_version", minSchemaVersion.String()).
			Errorf("database schema is older than this binary requires; run migrations")
	}
	return nil
}
