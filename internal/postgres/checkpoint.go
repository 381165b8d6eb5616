// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/internal/subscription"
)

// CheckpointStore implements subscription.CheckpointStore against the
// subscriptions / subscription_parked tables created by the initial
// migration. A single active-consumer lease is modeled as a row with an
// active_consumer_id and a last_heartbeat column: TryAcquireActive does a
// conditional UPDATE that only succeeds if no consumer currently holds the
// lease or the holder's heartbeat is stale, the same compare-and-swap shape
// the teacher's internal/access/policy/cache.go uses for its reload gate,
// generalized from an in-memory atomic to a database row.
type CheckpointStore struct {
	store *Store
}

// NewCheckpointStore wraps store for use as a subscription.CheckpointStore.
func NewCheckpointStore(store *Store) *CheckpointStore {
	return &CheckpointStore{store: store}
}

var _ subscription.CheckpointStore = (*CheckpointStore)(nil)

func (c *CheckpointStore) LoadOrCreate(ctx context.Context, opts subscription.Options) (eventstore.StreamVersion, error) {
	var checkpoint int64
	err := c.store.pool.QueryRow(ctx,
		`SELECT checkpoint_version FROM subscriptions WHERE name = $1`,
		opts.Name,
	).Scan(&checkpoint)
	if err == nil {
		return eventstore.StreamVersion(checkpoint), nil
	}
	if err != pgx.ErrNoRows {
		return 0, oops.Code(eventstore.CodeTransportError).Wrap(err)
	}

	start := eventstore.StreamVersion(0)
	if !opts.StartFrom.Beginning && opts.StartFrom.Version != 0 {
		start = opts.StartFrom.Version
	}
	_, err = c.store.pool.Exec(ctx,
		`INSERT INTO subscriptions
			(name, stream, state, checkpoint_version, max_in_flight, max_retries, consumer_timeout_s)
		 VALUES ($1, $2, 'initial', $3, $4, $5, $6)
		 ON CONFLICT (name) DO NOTHING`,
		opts.Name, string(opts.Stream), int64(start), opts.MaxInFlight, opts.MaxRetries, int(opts.ConsumerTimeout.Seconds()),
	)
	if err != nil {
		return 0, oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return start, nil
}

func (c *CheckpointStore) SaveCheckpoint(ctx context.Context, name string, version eventstore.StreamVersion) error {
	_, err := c.store.pool.Exec(ctx,
		`UPDATE subscriptions SET checkpoint_version = $2 WHERE name = $1`,
		name, int64(version),
	)
	if err != nil {
		return oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return nil
}

func (c *CheckpointStore) Park(ctx context.Context, name string, p subscription.ParkedEvent) error {
	_, err := c.store.pool.Exec(ctx,
		`INSERT INTO subscription_parked
			(subscription_name, stream_version, event_id, attempts, last_error)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (subscription_name, stream_version)
		 DO UPDATE SET attempts = $4, last_error = $5, parked_at = now()`,
		name, int64(p.StreamVersion), p.EventID, p.Attempts, p.LastError,
	)
	if err != nil {
		return oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return nil
}

func (c *CheckpointStore) TryAcquireActive(ctx context.Context, name, consumerID string, timeout time.Duration) (bool, error) {
	tag, err := c.store.pool.Exec(ctx,
		`UPDATE subscriptions
		 SET active_consumer_id = $2, active_since = now(), last_heartbeat = now()
		 WHERE name = $1
		   AND (active_consumer_id IS NULL
		        OR active_consumer_id = $2
		        OR last_heartbeat < now() - ($3 || ' seconds')::interval)`,
		name, consumerID, timeout.Seconds(),
	)
	if err != nil {
		return false, oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (c *CheckpointStore) Heartbeat(ctx context.Context, name, consumerID string) error {
	_, err := c.store.pool.Exec(ctx,
		`UPDATE subscriptions SET last_heartbeat = now() WHERE name = $1 AND active_consumer_id = $2`,
		name, consumerID,
	)
	if err != nil {
		return oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return nil
}

func (c *CheckpointStore) ReleaseActive(ctx context.Context, name, consumerID string) error {
	_, err := c.store.pool.Exec(ctx,
		`UPDATE subscriptions SET active_consumer_id = NULL WHERE name = $1 AND active_consumer_id = $2`,
		name, consumerID,
	)
	if err != nil {
		return oops.Code(eventstore.CodeTransportError).Wrap(err)
	}
	return nil
}
