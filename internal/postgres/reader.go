// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// Read implements eventstore.Reader for both a concrete stream and the
// reserved $all stream. Reading $all joins through stream_events so the
// original stream/version survive even when the underlying event was
// appended elsewhere and only linked here — callers never see a
// "rewritten" origin.
func (s *Store) Read(ctx context.Context, stream eventstore.StreamID, opts eventstore.ReadOptions) ([]eventstore.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.readBatchSize()
	}

	if stream.IsAll() {
		return s.readAll(ctx, opts, limit)
	}
	return s.readStream(ctx, stream, opts, limit)
}

func (s *Store) readStream(ctx context.Context, stream eventstore.StreamID, opts eventstore.ReadOptions, limit int) ([]eventstore.Event, error) {
	if err := s.checkStreamReadable(ctx, stream); err != nil {
		return nil, err
	}

	var rows pgx.Rows
	var err error
	const cols = `e.event_id, se.stream_uuid, se.version, e.global_sequence, e.event_type, e.payload, e.metadata, e.recorded_at`

	if opts.Direction == eventstore.Backward {
		from := opts.FromVersion
		if from == eventstore.VersionEnd {
			rows, err = s.pool.Query(ctx,
				`SELECT `+cols+` FROM stream_events se JOIN events e ON e.event_id = se.event_id
				 WHERE se.stream_uuid = $1 ORDER BY se.version DESC LIMIT $2`,
				string(stream), limit)
		} else {
			rows, err = s.pool.Query(ctx,
				`SELECT `+cols+` FROM stream_events se JOIN events e ON e.event_id = se.event_id
				 WHERE se.stream_uuid = $1 AND se.version <= $2 ORDER BY se.version DESC LIMIT $3`,
				string(stream), int64(from), limit)
		}
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+cols+` FROM stream_events se JOIN events e ON e.event_id = se.event_id
			 WHERE se.stream_uuid = $1 AND se.version >= $2 ORDER BY se.version ASC LIMIT $3`,
			string(stream), int64(opts.FromVersion), limit)
	}
	if err != nil {
		return nil, oops.Code("TRANSPORT_ERROR").With("stream", string(stream)).Wrap(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *Store) readAll(ctx context.Context, opts eventstore.ReadOptions, limit int) ([]eventstore.Event, error) {
	const cols = `e.event_id, se.stream_uuid, se.version, e.global_sequence, e.event_type, e.payload, e.metadata, e.recorded_at`
	var rows pgx.Rows
	var err error

	if opts.Direction == eventstore.Backward {
		from := opts.FromVersion
		if from == eventstore.VersionEnd {
			rows, err = s.pool.Query(ctx,
				`SELECT `+cols+` FROM events e JOIN stream_events se ON se.event_id = e.event_id AND se.stream_uuid = e.origin_stream
				 ORDER BY e.global_sequence DESC LIMIT $1`, limit)
		} else {
			rows, err = s.pool.Query(ctx,
				`SELECT `+cols+` FROM events e JOIN stream_events se ON se.event_id = e.event_id AND se.stream_uuid = e.origin_stream
				 WHERE e.global_sequence <= $1 ORDER BY e.global_sequence DESC LIMIT $2`,
				int64(from), limit)
		}
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+cols+` FROM events e JOIN stream_events se ON se.event_id = e.event_id AND se.stream_uuid = e.origin_stream
			 WHERE e.global_sequence >= $1 ORDER BY e.global_sequence ASC LIMIT $2`,
			int64(opts.FromVersion), limit)
	}
	if err != nil {
		return nil, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]eventstore.Event, error) {
	var events []eventstore.Event
	for rows.Next() {
		var ev eventstore.Event
		var idStr string
		var stream string
		var version int64
		var seq int64
		if err := rows.Scan(&idStr, &stream, &version, &seq, &ev.Type, &ev.Payload, &ev.Metadata, &ev.RecordedAt); err != nil {
			return nil, oops.Code("TRANSPORT_ERROR").Wrap(err)
		}
		id, err := eventstore.ParseEventID(idStr)
		if err != nil {
			return nil, oops.Code("TRANSPORT_ERROR").With("event_id", idStr).Wrap(err)
		}
		ev.ID = id
		ev.Stream = eventstore.StreamID(stream)
		ev.StreamVersion = eventstore.StreamVersion(version)
		ev.GlobalSequence = eventstore.GlobalSequence(seq)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	return events, nil
}

// checkStreamReadable returns stream_not_found or stream_deleted before a
// read proceeds, distinguishing a never-existed stream from a tombstoned
// one so callers holding a stale cached position get the right signal.
func (s *Store) checkStreamReadable(ctx context.Context, stream eventstore.StreamID) error {
	meta, err := s.StreamMetadata(ctx, stream)
	if err != nil {
		return err
	}
	if meta.Deleted != eventstore.NotDeleted {
		return oops.Code(eventstore.CodeStreamDeleted).With("stream", string(stream)).Errorf("stream deleted")
	}
	return nil
}

// StreamMetadata implements eventstore.Reader.
func (s *Store) StreamMetadata(ctx context.Context, stream eventstore.StreamID) (eventstore.StreamMetadata, error) {
	var current int64
	var deleted int16
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT current_version, deleted, created_at FROM streams WHERE stream_uuid = $1`,
		string(stream),
	).Scan(&current, &deleted, &createdAt)
	if err == pgx.ErrNoRows {
		var tombstoned bool
		_ = s.pool.QueryRow(ctx, `SELECT true FROM stream_tombstones WHERE stream_uuid = $1`, string(stream)).Scan(&tombstoned)
		if tombstoned {
			return eventstore.StreamMetadata{Stream: stream, Deleted: eventstore.HardDeleted}, nil
		}
		return eventstore.StreamMetadata{}, oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream not found")
	}
	if err != nil {
		return eventstore.StreamMetadata{}, oops.Code("TRANSPORT_ERROR").Wrap(err)
	}
	return eventstore.StreamMetadata{
		Stream:         stream,
		CurrentVersion: eventstore.StreamVersion(current),
		Deleted:        eventstore.DeletedState(deleted),
		CreatedAt:      createdAt,
	}, nil
}
