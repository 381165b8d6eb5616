// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-memory eventstore.Store used by tests and
// by callers that want the append/read/link/delete/notify semantics of the
// spec without standing up Postgres. It mirrors the teacher's
// MemoryEventStore (a mutex-guarded map of per-stream slices) but
// implements the full Store surface: global sequence, links that do not
// duplicate payloads, optimistic concurrency, and soft/hard deletes.
package memory

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
)

type streamEntry struct {
	meta   eventstore.StreamMetadata
	events []eventstore.Event
}

type subscriber struct {
	ch     chan eventstore.Notification
	closed bool
}

// Store is an in-memory implementation of eventstore.Store.
type Store struct {
	mu       sync.RWMutex
	streams  map[eventstore.StreamID]*streamEntry
	allOrder []eventstore.Event
	nextSeq  eventstore.GlobalSequence
	notify   []*subscriber
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		streams: make(map[eventstore.StreamID]*streamEntry),
		nextSeq: 1,
	}
}

func (s *Store) entry(stream eventstore.StreamID) *streamEntry {
	e, ok := s.streams[stream]
	if !ok {
		e = &streamEntry{meta: eventstore.StreamMetadata{Stream: stream}}
		s.streams[stream] = e
	}
	return e
}

func (s *Store) checkExpectedVersion(e *streamEntry, expected eventstore.ExpectedVersion) error {
	switch {
	case e.meta.Deleted == eventstore.HardDeleted && expected != eventstore.ExpectedNoStream:
		return oops.Code(eventstore.CodeStreamDeleted).With("stream", string(e.meta.Stream)).Errorf("stream has been hard deleted")
	case e.meta.Deleted == eventstore.SoftDeleted && expected != eventstore.ExpectedNoStream:
		return oops.Code(eventstore.CodeStreamDeleted).With("stream", string(e.meta.Stream)).Errorf("stream has been deleted")
	case expected == eventstore.ExpectedNoStream && len(e.events) != 0 && e.meta.Deleted == eventstore.NotDeleted:
		return oops.Code(eventstore.CodeWrongExpectedVersion).With("stream", string(e.meta.Stream)).Errorf("stream already exists")
	case expected == eventstore.ExpectedStreamExists && len(e.events) == 0 && e.meta.Deleted == eventstore.NotDeleted:
		return oops.Code(eventstore.CodeStreamNotFound).With("stream", string(e.meta.Stream)).Errorf("stream does not exist")
	}
	if expected.IsExact() {
		current := eventstore.StreamVersion(1)
		if len(e.events) > 0 {
			current = e.events[len(e.events)-1].StreamVersion + 1
		}
		if current != eventstore.StreamVersion(expected) {
			return oops.Code(eventstore.CodeWrongExpectedVersion).
				With("stream", string(e.meta.Stream)).
				With("expected", int64(expected)).
				With("actual", int64(current)).
				Errorf("wrong expected version")
		}
	}
	return nil
}

// Append implements eventstore.Appender.
func (s *Store) Append(_ context.Context, req eventstore.AppendRequest) (eventstore.AppendResult, error) {
	if req.Stream.IsAll() {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeStreamNotFound).Errorf("cannot append directly to %s", eventstore.AllStream)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(req.Stream)
	if err := s.checkExpectedVersion(e, req.ExpectedVersion); err != nil {
		return eventstore.AppendResult{}, err
	}

	if e.meta.Deleted != eventstore.NotDeleted && req.ExpectedVersion == eventstore.ExpectedNoStream {
		e.events = nil
		e.meta.Deleted = eventstore.NotDeleted
	}

	nextVersion := eventstore.StreamVersion(1)
	if len(e.events) > 0 {
		nextVersion = e.events[len(e.events)-1].StreamVersion + 1
	}

	res := eventstore.AppendResult{FirstVersion: nextVersion, FirstSequence: s.nextSeq}
	for _, ne := range req.Events {
		ev := eventstore.Event{
			ID:             eventstore.NewEventID(),
			Stream:         req.Stream,
			StreamVersion:  nextVersion,
			GlobalSequence: s.nextSeq,
			Type:           ne.Type,
			Payload:        ne.Payload,
			Metadata:       ne.Metadata,
		}
		e.events = append(e.events, ev)
		s.allOrder = append(s.allOrder, ev)
		res.LastVersion = ev.StreamVersion
		res.LastSequence = ev.GlobalSequence
		nextVersion++
		s.nextSeq++
	}
	e.meta.CurrentVersion = res.LastVersion
	s.broadcastLocked(eventstore.Notification{Kind: eventstore.NotifyAppend, Stream: req.Stream})
	return res, nil
}

// Read implements eventstore.Reader.
func (s *Store) Read(_ context.Context, stream eventstore.StreamID, opts eventstore.ReadOptions) ([]eventstore.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	var source []eventstore.Event
	if stream.IsAll() {
		source = s.allOrder
	} else {
		e, ok := s.streams[stream]
		if !ok {
			return nil, oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream not found")
		}
		if e.meta.Deleted != eventstore.NotDeleted {
			return nil, oops.Code(eventstore.CodeStreamDeleted).With("stream", string(stream)).Errorf("stream deleted")
		}
		source = e.events
	}

	if opts.Direction == eventstore.Backward {
		from := opts.FromVersion
		var out []eventstore.Event
		for i := len(source) - 1; i >= 0 && len(out) < limit; i-- {
			if from != eventstore.VersionEnd && source[i].StreamVersion > from {
				continue
			}
			out = append(out, source[i])
		}
		return out, nil
	}

	var out []eventstore.Event
	for _, ev := range source {
		if ev.StreamVersion < opts.FromVersion {
			continue
		}
		out = append(out, ev)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// StreamMetadata implements eventstore.Reader.
func (s *Store) StreamMetadata(_ context.Context, stream eventstore.StreamID) (eventstore.StreamMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.streams[stream]
	if !ok {
		return eventstore.StreamMetadata{}, oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream not found")
	}
	return e.meta, nil
}

// LinkToStream implements eventstore.Linker. The linked event keeps its
// original GlobalSequence; only a new stream/version pair is recorded.
func (s *Store) LinkToStream(_ context.Context, target eventstore.StreamID, expected eventstore.ExpectedVersion, ref eventstore.EventRef) (eventstore.AppendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.streams[ref.Stream]
	if !ok {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeStreamNotFound).With("stream", string(ref.Stream)).Errorf("source stream not found")
	}
	var original *eventstore.Event
	for i := range src.events {
		if src.events[i].StreamVersion == ref.Version {
			original = &src.events[i]
			break
		}
	}
	if original == nil {
		return eventstore.AppendResult{}, oops.Code(eventstore.CodeEventNotFound).With("stream", string(ref.Stream)).With("version", int64(ref.Version)).Errorf("event not found")
	}

	dst := s.entry(target)
	for _, ev := range dst.events {
		if ev.ID == original.ID {
			return eventstore.AppendResult{}, oops.Code(eventstore.CodeDuplicateLink).With("stream", string(target)).Errorf("event already linked to stream")
		}
	}
	if err := s.checkExpectedVersion(dst, expected); err != nil {
		return eventstore.AppendResult{}, err
	}

	nextVersion := eventstore.StreamVersion(1)
	if len(dst.events) > 0 {
		nextVersion = dst.events[len(dst.events)-1].StreamVersion + 1
	}
	linked := *original
	linked.Stream = target
	linked.StreamVersion = nextVersion
	dst.events = append(dst.events, linked)
	dst.meta.CurrentVersion = nextVersion
	s.broadcastLocked(eventstore.Notification{Kind: eventstore.NotifyAppend, Stream: target})

	return eventstore.AppendResult{
		FirstVersion:  nextVersion,
		LastVersion:   nextVersion,
		FirstSequence: original.GlobalSequence,
		LastSequence:  original.GlobalSequence,
	}, nil
}

// DeleteStream implements eventstore.Deleter.
func (s *Store) DeleteStream(_ context.Context, stream eventstore.StreamID, opts eventstore.DeleteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.streams[stream]
	if !ok {
		return oops.Code(eventstore.CodeStreamNotFound).With("stream", string(stream)).Errorf("stream not found")
	}
	if opts.ExpectedVersion.IsExact() {
		current := eventstore.StreamVersion(1)
		if len(e.events) > 0 {
			current = e.events[len(e.events)-1].StreamVersion + 1
		}
		if current != eventstore.StreamVersion(opts.ExpectedVersion) {
			return oops.Code(eventstore.CodeWrongExpectedVersion).With("stream", string(stream)).Errorf("wrong expected version on delete")
		}
	}

	if opts.Hard {
		removed := make(map[ulid.ULID]struct{}, len(e.events))
		for _, ev := range e.events {
			removed[ev.ID] = struct{}{}
		}
		for other, entry := range s.streams {
			if other == stream {
				continue
			}
			var kept []eventstore.Event
			for _, ev := range entry.events {
				if _, ok := removed[ev.ID]; ok {
					continue
				}
				kept = append(kept, ev)
			}
			entry.events = kept
		}

		e.events = nil
		e.meta.Deleted = eventstore.HardDeleted
		var filtered []eventstore.Event
		for _, ev := range s.allOrder {
			if ev.Stream != stream {
				filtered = append(filtered, ev)
			}
		}
		s.allOrder = filtered
	} else {
		e.meta.Deleted = eventstore.SoftDeleted
	}
	s.broadcastLocked(eventstore.Notification{Kind: eventstore.NotifyDelete, Stream: stream})
	return nil
}

// Notifications implements eventstore.Notifier.
func (s *Store) Notifications(ctx context.Context) (<-chan eventstore.Notification, error) {
	sub := &subscriber{ch: make(chan eventstore.Notification, 64)}
	s.mu.Lock()
	s.notify = append(s.notify, sub)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.removeSubscriber(sub)
	}()

	return sub.ch, nil
}

func (s *Store) removeSubscriber(sub *subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.notify {
		if c == sub {
			s.notify = append(s.notify[:i], s.notify[i+1:]...)
			break
		}
	}
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// broadcastLocked sends n to every subscriber, dropping it for any
// subscriber whose buffer is full rather than blocking the append path.
func (s *Store) broadcastLocked(n eventstore.Notification) {
	for _, sub := range s.notify {
		select {
		case sub.ch <- n:
		default:
		}
	}
}

// Close implements eventstore.Store. The in-memory store holds no external
// resources, so Close only closes any still-registered notification
// subscribers.
func (s *Store) Close(_ context.Context) error {
	s.mu.Lock()
	subs := s.notify
	s.notify = nil
	s.mu.Unlock()
	for _, sub := range subs {
		s.mu.Lock()
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
		s.mu.Unlock()
	}
	return nil
}

var _ eventstore.Store = (*Store)(nil)
