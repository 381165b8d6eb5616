// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package eventstore defines the domain types, capability interfaces, and
// error vocabulary shared by every storage backend (internal/postgres,
// internal/eventstore/memory) and by the subscription engine
// (internal/subscription).
package eventstore

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// StreamID identifies a stream of events. The reserved name "$all" denotes
// the global, store-wide stream and cannot be appended to directly.
type StreamID string

// AllStream is the reserved stream identity representing the global
// ordering of every appended event across all streams.
const AllStream StreamID = "$all"

// IsAll reports whether id names the reserved global stream.
func (id StreamID) IsAll() bool {
	return id == AllStream
}

// GlobalSequence is the store-wide monotonically increasing position
// assigned to an event at the moment it is first appended. Linking an event
// into additional streams never allocates a new GlobalSequence.
type GlobalSequence int64

// StreamVersion is the 1-based position of an event within one stream: the
// first event appended to a stream is version 1, the second is version 2,
// and so on.
type StreamVersion int64

// ExpectedVersion expresses the optimistic-concurrency precondition a
// caller attaches to an Append call.
type ExpectedVersion int64

const (
	// ExpectedAny disables the optimistic-concurrency check entirely.
	ExpectedAny ExpectedVersion = -2
	// ExpectedNoStream requires the stream to not exist (or be soft-deleted)
	// prior to this append.
	ExpectedNoStream ExpectedVersion = -1
	// ExpectedStreamExists requires the stream to already exist, at any
	// version.
	ExpectedStreamExists ExpectedVersion = -3
)

// IsExact reports whether v names a concrete non-negative stream version
// rather than one of the symbolic sentinels above.
func (v ExpectedVersion) IsExact() bool {
	return v >= 0
}

// DeletedState records whether, and how, a stream has been removed.
type DeletedState uint8

const (
	// NotDeleted is the state of a stream that has never been deleted.
	NotDeleted DeletedState = iota
	// SoftDeleted streams reject further appends under ExpectedStreamExists
	// and ExpectedAny but can be recreated by an append using
	// ExpectedNoStream, which restarts versioning from 1.
	SoftDeleted
	// HardDeleted streams have had their event rows physically removed.
	// The stream name is freed for reuse from version 0; a tombstone
	// remains so that callers holding a stale read position still observe
	// stream_deleted instead of silently seeing a different stream's data.
	HardDeleted
)

// Event is the unit the store appends, reads, and delivers. Payload and
// Metadata are opaque to the store — serialization is entirely the
// caller's responsibility (internal/serializer provides an optional
// validating codec callers may use on top).
type Event struct {
	ID             ulid.ULID
	Stream         StreamID
	StreamVersion  StreamVersion
	GlobalSequence GlobalSequence
	Type           string
	Payload        []byte
	Metadata       []byte
	RecordedAt     time.Time
}

// Link records that an already-appended event also belongs to an additional
// stream, without copying its payload or allocating a new GlobalSequence.
// A read of the target stream returns the linked event with its original ID,
// payload and GlobalSequence, but with the target's Stream and the event's
// StreamVersion within the target; the original stream and version are not
// reported on such a read.
type Link struct {
	TargetStream  StreamID
	TargetVersion StreamVersion
	EventID       ulid.ULID
}

// StreamMetadata is the directory-level record the store keeps per stream:
// its current version, deletion state, and creation time. It is distinct
// from per-event Metadata.
type StreamMetadata struct {
	Stream        StreamID
	CurrentVersion StreamVersion
	Deleted       DeletedState
	CreatedAt     time.Time
}

// ReadDirection controls paging order for Reader.Read.
type ReadDirection uint8

const (
	Forward ReadDirection = iota
	Backward
)

// VersionEnd is a sentinel for ReadOptions.FromVersion meaning "the
// stream's current last version" — used to start a Backward read at the
// end of the stream without the caller needing to know its length.
const VersionEnd StreamVersion = -1

// ReadOptions bounds a single read call. FromVersion is inclusive and
// interpreted in Direction's sense (forward: >=, backward: <=, or
// VersionEnd to start from the stream's current end). A zero Limit uses
// the store's configured default batch size.
type ReadOptions struct {
	Direction   ReadDirection
	FromVersion StreamVersion
	Limit       int
}

// NotificationKind distinguishes the events carried on the store's commit
// notification channel.
type NotificationKind uint8

const (
	NotifyAppend NotificationKind = iota
	NotifyDelete
)

// Notification is a lightweight, best-effort signal that new data exists
// (a store drops it for a subscriber whose buffer is full); it carries no
// payload and must never be treated as authoritative — every consumer
// re-reads from its own cursor after receiving one.
type Notification struct {
	Kind   NotificationKind
	Stream StreamID
}
