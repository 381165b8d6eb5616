// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// LinkToStream implements eventstore.Linker. It never allocates a new
// global_sequence — only a stream_events row is inserted, pointing at the
// already-appended events row. A duplicate link (same event, same target
// stream) is rejected by the idx_stream_events_no_duplicate_link unique
// index, surfaced here as DuplicateLink.
func (s *Store) LinkToStream(ctx context.Context, target eventstore.StreamID, expected eventstore.ExpectedVersion, ref eventstore.EventRef) (eventstore.AppendResult, error) {
	if target.IsAll() {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeStreamNotFound).Errorf("cannot link into %s", eventstore.AllStream)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(target)); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	var eventID string
	var globalSeq int64
	err = tx.QueryRow(ctx,
		`SELECT e.event_id, e.global_sequence FROM stream_events se JOIN events e ON e.event_id = se.event_id
		 WHERE se.stream_uuid = $1 AND se.version = $2`,
		string(ref.Stream), int64(ref.Version),
	).Scan(&eventID, &globalSeq)
	if err == pgx.ErrNoRows {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeEventNotFound).
			With("stream", string(ref.Stream)).With("version", int64(ref.Version)).Errorf("event not found")
	}
	if err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	dstRow, err := s.lockStreamRow(ctx, tx, target)
	if err != nil {
		return eventstore.AppendResult{}, err
	}
	if err := checkExpectedVersion(target, dstRow, expected); err != nil {
		return eventstore.AppendResult{}, err
	}
	if !dstRow.exists {
		if _, err := tx.Exec(ctx, `INSERT INTO streams (stream_uuid, current_version, deleted) VALUES ($1, 0, 0)`, string(target)); err != nil {
			return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
	}

	nextVersion := dstRow.currentVersion + 1
	if _, err := tx.Exec(ctx,
		`INSERT INTO stream_events (stream_uuid, version, event_id) VALUES ($1, $2, $3)`,
		string(target), nextVersion, eventID,
	); err != nil {
		if isUniqueViolation(err) {
			return eventstore.AppendResult{}, oops.Code(eventstore.CodeDuplicateLink).
				With("stream", string(target)).With("event_id", eventID).Wrap(err)
		}
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	if _, err := tx.Exec(ctx, `UPDATE streams SET current_version = $2 WHERE stream_uuid = $1`, string(target), nextVersion); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return eventstore.AppendResult{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	return eventstore.AppendResult{
		FirstVersion:  eventstore.StreamVersion(nextVersion),
		LastVersion:   eventstore.StreamVersion(nextVersion),
		FirstSequence: eventstore.GlobalSequence(globalSeq),
		LastSequence:  eventstore.GlobalSequence(globalSeq),
	}, nil
}
