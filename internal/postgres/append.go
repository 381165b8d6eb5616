// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// Append implements eventstore.Appender.
//
// Steps, per transaction:
//  1. Take a per-stream advisory lock (pg_advisory_xact_lock), serializing
//     concurrent appenders to the same stream without needing a row to
//     lock.
//  2. Look up (or implicitly create) the stream's directory row.
//  3. Check ExpectedVersion against the directory row's current_version and
//     deleted state.
//  4. Assign consecutive StreamVersions starting at current_version+1.
//  5. Insert one events row per event, letting global_sequence's BIGSERIAL
//     assign the store-wide order.
//  6. Insert a matching stream_events row per event (the origin membership).
//  7. Update the stream directory row's current_version.
//  8. Commit. The events table's AFTER INSERT trigger fires pg_notify once
//     per row; that is the append's only side effect observers can see.
//
// A serialization failure or deadlock (two appenders racing despite the
// advisory lock, e.g. under REPEATABLE READ) is retried with backoff; all
// other failures are returned immediately.
func (s *Store) Append(ctx context.Context, req eventstore.AppendRequest) (eventstore.AppendResult, error) {
	if req.Stream.IsAll() {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeStreamNotFound).Errorf("cannot append directly to %s", eventstore.AllStream)
	}
	if len(req.Events) == 0 {
		return eventstore.AppendResult{}, oops.Code("INVALID_APPEND").Errorf("append requires at least one event")
	}

	backoff := retry.WithMaxRetries(5, retry.NewExponential(20*time.Millisecond))

	var result eventstore.AppendResult
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		res, err := s.appendOnce(ctx, req)
		if err != nil {
			if isRetryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		s.metrics.ObserveAppend(string(req.Stream), "error", 0)
	} else {
		s.metrics.ObserveAppend(string(req.Stream), "success", len(req.Events))
	}
	return result, err
}

func (s *Store) appendOnce(ctx context.Context, req eventstore.AppendRequest) (eventstore.AppendResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(req.Stream)); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	stream, err := s.lockStreamRow(ctx, tx, req.Stream)
	if err != nil {
		return eventstore.AppendResult{}, err
	}

	if err := checkExpectedVersion(req.Stream, stream, req.ExpectedVersion); err != nil {
		return eventstore.AppendResult{}, err
	}

	if stream.exists && stream.deleted != eventstore.NotDeleted && req.ExpectedVersion == eventstore.ExpectedNoStream {
		if _, err := tx.Exec(ctx, `DELETE FROM stream_events WHERE stream_uuid = $1`, string(req.Stream)); err != nil {
			return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		stream.currentVersion = 0
		stream.deleted = eventstore.NotDeleted
	}

	if !stream.exists {
		if _, err := tx.Exec(ctx,
			`INSERT INTO streams (stream_uuid, current_version, deleted) VALUES ($1, 0, 0)`,
			string(req.Stream),
		); err != nil {
			if isUniqueViolation(err) {
				return eventstore.AppendResult{}, oops.Code(eventstore.CodeWrongExpectedVersion).With("stream", string(req.Stream)).Wrap(err)
			}
			return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
	}

	result := eventstore.AppendResult{
		FirstVersion: eventstore.StreamVersion(stream.currentVersion + 1),
	}
	nextVersion := stream.currentVersion + 1

	for _, ne := range req.Events {
		id := eventstore.NewEventID()

		var seq int64
		err := tx.QueryRow(ctx,
			`INSERT INTO events (event_id, origin_stream, origin_version, event_type, payload, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING global_sequence`,
			id.String(), string(req.Stream), nextVersion, ne.Type, ne.Payload, ne.Metadata,
		).Scan(&seq)
		if err != nil {
			return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if result.FirstSequence == 0 {
			result.FirstSequence = eventstore.GlobalSequence(seq)
		}
		result.LastSequence = eventstore.GlobalSequence(seq)

		if _, err := tx.Exec(ctx,
			`INSERT INTO stream_events (stream_uuid, version, event_id) VALUES ($1, $2, $3)`,
			string(req.Stream), nextVersion, id.String(),
		); err != nil {
			return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		nextVersion++
	}
	result.LastVersion = eventstore.StreamVersion(nextVersion - 1)

	if _, err := tx.Exec(ctx,
		`UPDATE streams SET current_version = $2 WHERE stream_uuid = $1`,
		string(req.Stream), int64(result.LastVersion),
	); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	return result, nil
}

type streamRow struct {
	exists         bool
	currentVersion int64
	deleted        eventstore.DeletedState
}

// lockStreamRow reads the stream directory row FOR UPDATE, within the
// caller's transaction, so a concurrent appender blocks behind the same
// advisory lock rather than racing the version check.
func (s *Store) lockStreamRow(ctx context.Context, tx pgx.Tx, stream eventstore.StreamID) (streamRow, error) {
	var row streamRow
	var deleted int16
	err := tx.QueryRow(ctx,
		`SELECT current_version, deleted FROM streams WHERE stream_uuid = $1 FOR UPDATE`,
		string(stream),
	).Scan(&row.currentVersion, &deleted)
	if err == pgx.ErrNoRows {
		return streamRow{exists: false, currentVersion: 0}, nil
	}
	if err != nil {
		return streamRow{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	row.exists = true
	row.deleted = eventstore.DeletedState(deleted)
	return row, nil
}

func checkExpectedVersion(stream eventstore.StreamID, row streamRow, expected eventstore.ExpectedVersion) error {
	if row.exists && row.deleted == eventstore.HardDeleted && expected != eventstore.ExpectedNoStream {
		return oops.Code(eventstore.CodeStreamDeleted).With("stream", string(stream)).Errorf("stream has been hard deleted")
	}
	if row.exists && row.deleted == eventstore.SoftDeleted && expected != eventstore.ExpectedNoStream {
		return oops.Code(eventstore.CodeStreamDeleted).With("stream", string(stream)).Errorf("stream has been deleted")
	}
	switch expected {
	case eventstore.ExpectedNoStream:
		if row.exists && row.deleted == eventstore.NotDeleted {
			return oops.Code(eventstore.CodeWrongExpectedVersion).With("stream", string(stream)).Errorf("stream already exists")
		}
	case eventstore.ExpectedStreamExists:
		if !row.exists {
			return oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream does not exist")
		}
	case eventstore.ExpectedAny:
		// no check
	default:
		current := row.currentVersion + 1
		if current != int64(expected) {
			return oops.Code(eventstore.CodeWrongExpectedVersion).
				With("stream", string(stream)).
				With("expected", int64(expected)).
				With("actual", current).
				Errorf("wrong expected version")
		}
	}
	return nil
}
