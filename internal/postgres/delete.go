// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// DeleteStream implements eventstore.Deleter.
//
// A soft delete marks the stream directory row deleted=1: further appends
// under ExpectedStreamExists or ExpectedAny are rejected, reads return
// stream_deleted, but the rows remain and $all is untouched. An append
// under ExpectedNoStream recreates the stream from version 1.
//
// A hard delete requires EnableHardDeletes and physically removes the
// stream's events, every stream_events row linking to those events
// (including copies linked into other streams, not just the target's own
// membership rows), and the streams row (cascading out of $all too),
// leaving only a stream_tombstones row behind so a reader holding a stale
// cached position still observes stream_deleted rather than silently
// reading a reused name's new data.
func (s *Store) DeleteStream(ctx context.Context, stream eventstore.StreamID, opts eventstore.DeleteOptions) error {
	if opts.Hard && !s.cfg.EnableHardDeletes {
		return oops.Code(eventstore.CodeHardDeleteNotEnabled).With("stream", string(stream)).Errorf("hard delete not enabled")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey(stream)); err != nil {
		return oops.Code("TRANSPORT_ERROR").Wrap(err)
	}

	row, err := s.lockStreamRow(ctx, tx, stream)
	if err != nil {
		return err
	}
	if !row.exists {
		return oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream not found")
	}
	if opts.ExpectedVersion.IsExact() && row.currentVersion+1 != int64(opts.ExpectedVersion) {
		return oops.Code(eventstore.CodeWrongExpectedVersion).With("stream", string(stream)).Errorf("wrong expected version on delete")
	}

	if opts.Hard {
		if _, err := tx.Exec(ctx,
			`DELETE FROM stream_events WHERE event_id IN (SELECT event_id FROM events WHERE origin_stream = $1)`,
			string(stream),
		); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM events WHERE origin_stream = $1`, string(stream)); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM stream_events WHERE stream_uuid = $1`, string(stream)); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM streams WHERE stream_uuid = $1`, string(stream)); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO stream_tombstones (stream_uuid) VALUES ($1) ON CONFLICT (stream_uuid) DO UPDATE SET deleted_at = now()`,
			string(stream),
		); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		if _, err := tx.Exec(ctx, `SELECT pg_notify('events_changed', 'delete:' || $1)`, string(stream)); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
	} else {
		if _, err := tx.Exec(ctx, `UPDATE streams SET deleted = 1 WHERE stream_uuid = $1`, string(stream)); err != nil {
			return oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	return nil
}
