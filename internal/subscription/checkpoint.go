// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subscription

import (
	"context"
	"sync"
	"time"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// ParkedEvent records an event a consumer gave up on, kept for operator
// inspection rather than silently dropped.
type ParkedEvent struct {
	StreamVersion eventstore.StreamVersion
	EventID       string
	Attempts      int
	LastError     string
	ParkedAt      time.Time
}

// CheckpointStore persists subscription progress and the single-active-
// consumer lease, independent of the event store itself: a Store knows
// nothing about consumer groups. Implementations: MemoryCheckpointStore
// for tests and standalone use, and postgres.CheckpointStore for the
// durable case. Grounded on the teacher's repository-interface pattern
// (internal/world defines the interface, internal/world/postgres
// implements it).
type CheckpointStore interface {
	// LoadOrCreate returns the persisted checkpoint version for name,
	// creating the subscription row with the Options' starting position if
	// this is the first time name has been seen.
	LoadOrCreate(ctx context.Context, opts Options) (eventstore.StreamVersion, error)
	SaveCheckpoint(ctx context.Context, name string, version eventstore.StreamVersion) error
	Park(ctx context.Context, name string, p ParkedEvent) error

	// TryAcquireActive attempts to become (or renew as) the single active
	// consumer for name. It succeeds if no other consumer holds the lease,
	// or the holder's lease has expired (no heartbeat within timeout).
	TryAcquireActive(ctx context.Context, name, consumerID string, timeout time.Duration) (bool, error)
	Heartbeat(ctx context.Context, name, consumerID string) error
	ReleaseActive(ctx context.Context, name, consumerID string) error
}

// MemoryCheckpointStore is an in-process CheckpointStore, used by the
// in-memory event store and in unit tests.
type MemoryCheckpointStore struct {
	mu      sync.Mutex
	cps     map[string]eventstore.StreamVersion
	parked  map[string][]ParkedEvent
	active  map[string]string
	heard   map[string]time.Time
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		cps:    make(map[string]eventstore.StreamVersion),
		parked: make(map[string][]ParkedEvent),
		active: make(map[string]string),
		heard:  make(map[string]time.Time),
	}
}

func (m *MemoryCheckpointStore) LoadOrCreate(_ context.Context, opts Options) (eventstore.StreamVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.cps[opts.Name]; ok {
		return v, nil
	}
	start := eventstore.StreamVersion(0)
	if !opts.StartFrom.Beginning && opts.StartFrom.Version != 0 {
		start = opts.StartFrom.Version
	}
	m.cps[opts.Name] = start
	return start, nil
}

func (m *MemoryCheckpointStore) SaveCheckpoint(_ context.Context, name string, version eventstore.StreamVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[name] = version
	return nil
}

func (m *MemoryCheckpointStore) Park(_ context.Context, name string, p ParkedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parked[name] = append(m.parked[name], p)
	return nil
}

func (m *MemoryCheckpointStore) TryAcquireActive(_ context.Context, name, consumerID string, timeout time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	holder, held := m.active[name]
	if held && holder != consumerID {
		if time.Since(m.heard[name]) < timeout {
			return false, nil
		}
	}
	m.active[name] = consumerID
	m.heard[name] = time.Now()
	return true, nil
}

func (m *MemoryCheckpointStore) Heartbeat(_ context.Context, name, consumerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[name] != consumerID {
		return nil
	}
	m.heard[name] = time.Now()
	return nil
}

func (m *MemoryCheckpointStore) ReleaseActive(_ context.Context, name, consumerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[name] == consumerID {
		delete(m.active, name)
		delete(m.heard, name)
	}
	return nil
}

// Parked returns a snapshot of parked events for name, for tests and
// operator tooling.
func (m *MemoryCheckpointStore) Parked(name string) []ParkedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ParkedEvent, len(m.parked[name]))
	copy(out, m.parked[name])
	return out
}
