// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventstore

import "context"

// AppendRequest describes one batch of events to append atomically to a
// single stream. All events in a batch receive consecutive StreamVersions
// and increasing GlobalSequences. The Postgres store draws each event's
// GlobalSequence from a per-row sequence rather than reserving a block, so
// a batch's GlobalSequences are not necessarily consecutive.
type AppendRequest struct {
	Stream          StreamID
	ExpectedVersion ExpectedVersion
	Events          []NewEvent
}

// NewEvent is the caller-supplied shape of an event prior to the store
// assigning it an ID, StreamVersion, and GlobalSequence.
type NewEvent struct {
	Type     string
	Payload  []byte
	Metadata []byte
}

// AppendResult reports the versions and positions assigned to a successful
// append.
type AppendResult struct {
	FirstVersion  StreamVersion
	LastVersion   StreamVersion
	FirstSequence GlobalSequence
	LastSequence  GlobalSequence
}

// Appender appends new events to a stream under an optimistic-concurrency
// precondition (spec.md §4.B).
type Appender interface {
	Append(ctx context.Context, req AppendRequest) (AppendResult, error)
}

// Reader reads events from a single stream, or from the reserved AllStream
// to observe the store's global order (spec.md §4.C).
type Reader interface {
	Read(ctx context.Context, stream StreamID, opts ReadOptions) ([]Event, error)
	StreamMetadata(ctx context.Context, stream StreamID) (StreamMetadata, error)
}

// Linker attaches an already-appended event to an additional stream without
// duplicating its payload or allocating a new GlobalSequence (spec.md §4.D).
type Linker interface {
	LinkToStream(ctx context.Context, target StreamID, expectedVersion ExpectedVersion, eventID EventRef) (AppendResult, error)
}

// EventRef identifies a previously appended event by its origin stream and
// version, which is how callers address events they have just read without
// needing to carry the raw ULID around.
type EventRef struct {
	Stream  StreamID
	Version StreamVersion
}

// DeleteOptions controls a stream deletion (spec.md §4.E).
type DeleteOptions struct {
	// Hard requests physical removal of event rows. The Postgres store
	// refuses this unless hard deletes are enabled in its configuration; the
	// in-memory store always allows it.
	Hard bool
	// ExpectedVersion, when IsExact, makes the delete itself conditional on
	// the stream's current version.
	ExpectedVersion ExpectedVersion
}

// Deleter removes a stream, soft or hard (spec.md §4.E).
type Deleter interface {
	DeleteStream(ctx context.Context, stream StreamID, opts DeleteOptions) error
}

// Notifier exposes the store's commit-notification channel. Subscribers use
// it only as a wake-up signal; it carries no guarantee of delivery or order
// and every consumer must re-read from its own cursor on receipt.
type Notifier interface {
	Notifications(ctx context.Context) (<-chan Notification, error)
}

// Store is the complete in-process caller surface the spec describes in
// §6: append, read, link, delete, and observe commit notifications. The
// subscription engine (internal/subscription) is built on top of a Store,
// not part of it — a Store has no notion of consumer groups or checkpoints.
type Store interface {
	Appender
	Reader
	Linker
	Deleter
	Notifier

	// Close releases resources held by the store (connection pools, listen
	// connections). Once Close returns, no other method may be called.
	Close(ctx context.Context) error
}
