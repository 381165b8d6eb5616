// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements eventstore.Store on top of PostgreSQL: append
// with per-stream advisory-lock serialization, forward/backward reads
// (including the reserved $all stream), links, soft/hard deletes, and a
// LISTEN/NOTIFY commit-notification bus. It is grounded on the teacher's
// internal/store/postgres.go connection wiring, generalized from a single
// INSERT/SELECT pair into the full event-store protocol the spec describes.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/internal/observability"
)

// dbpool is the subset of *pgxpool.Pool this package depends on. Declaring
// it as an interface lets unit tests substitute pgxmock's pool mock
// instead of requiring a live database, following the teacher's own
// pattern of abstracting the driver for testability (internal/store's
// connIface does the same for the LISTEN connection).
type dbpool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// Config holds the knobs the store needs beyond a bare DSN. Zero values
// fall back to the defaults documented per field.
type Config struct {
	// DSN is the PostgreSQL connection string (postgres://...).
	DSN string
	// EnableHardDeletes gates DeleteStream(Hard: true). Disabled by default
	// so that accidental physical deletes require an explicit opt-in.
	EnableHardDeletes bool
	// ReadBatchSize is the default Limit used by Read when the caller
	// passes zero.
	ReadBatchSize int
	// SchemaPrefix qualifies the eventstore_schema_info table that
	// CheckSchema reads. The other queries and the notification channel use
	// unqualified names, so stores sharing one database share those tables.
	SchemaPrefix string
}

func (c Config) readBatchSize() int {
	if c.ReadBatchSize > 0 {
		return c.ReadBatchSize
	}
	return 1000
}

func (c Config) tableName(name string) string {
	if c.SchemaPrefix == "" {
		return name
	}
	return c.SchemaPrefix + "." + name
}

// Store is the PostgreSQL-backed implementation of eventstore.Store.
type Store struct {
	pool     dbpool
	cfg      Config
	mu       sync.Mutex
	listener *Listener
	metrics  *observability.Metrics
}

// SetMetrics attaches the store's Prometheus counters. It is safe to skip:
// a Store with no metrics attached simply records nothing.
func (s *Store) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// Open connects a pgxpool against cfg.DSN and checks the schema version
// before returning. Callers should run migrations (see Migrator) prior to
// calling Open against a fresh database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, oops.Code("STORE_CONNECT_FAILED").With("dsn_host", hostOnly(cfg.DSN)).Wrap(err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, oops.Code("STORE_CONNECT_FAILED").Wrap(err)
	}

	s := &Store{pool: pool, cfg: cfg}
	if err := s.CheckSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool and any dedicated listen connection.
func (s *Store) Close(_ context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}
	s.pool.Close()
	return nil
}

var _ eventstore.Store = (*Store)(nil)

// hostOnly strips credentials from a DSN before it is attached to error
// context, so connection errors never leak a password into logs.
func hostOnly(dsn string) string {
	u, err := parseDSNHost(dsn)
	if err != nil {
		return "unknown"
	}
	return u
}

func parseDSNHost(dsn string) (string, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d/%s", cfg.ConnConfig.Host, cfg.ConnConfig.Port, cfg.ConnConfig.Database), nil
}
