// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subscription

import (
	"context"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/arkforge/eventstore/internal/eventstore"
	"github.com/arkforge/eventstore/internal/observability"
)

// Manager owns the set of live subscription workers for one process. Each
// Subscribe call starts one worker goroutine; concurrent Managers (e.g. one
// per replica) pointed at the same CheckpointStore and subscription name
// compete for single-active-consumer status through TryAcquireActive.
//
// Grounded on internal/core/broadcaster.go's registry-of-subscribers shape:
// a Manager is a registry of running workers the same way a broadcaster is
// a registry of channels, generalized from "fan out one value" to "run one
// durable consumer loop per registration".
type Manager struct {
	store       eventstore.Store
	checkpoints CheckpointStore
	consumerID  string
	metrics     *observability.Metrics

	mu   sync.Mutex
	subs map[string]*worker
}

// SetMetrics attaches the Prometheus counters every worker this Manager
// starts from now on will report delivery, park, and checkpoint-lag
// observations to. It does not retroactively wire already-running workers.
func (m *Manager) SetMetrics(metrics *observability.Metrics) {
	m.metrics = metrics
}

// NewManager constructs a Manager. consumerID identifies this process for
// single-active-consumer leases; callers running multiple replicas of the
// same subscription must give each replica a distinct, stable consumerID.
func NewManager(store eventstore.Store, checkpoints CheckpointStore, consumerID string) *Manager {
	if consumerID == "" {
		consumerID = ulid.Make().String()
	}
	return &Manager{
		store:       store,
		checkpoints: checkpoints,
		consumerID:  consumerID,
		subs:        make(map[string]*worker),
	}
}

// Handle is the caller-facing view of a running subscription.
type Handle struct {
	w *worker
}

// State returns the subscription's current lifecycle state.
func (h *Handle) State() State { return h.w.state() }

// Unsubscribe stops the worker and releases the active-consumer lease if
// held. It blocks until the worker goroutine has exited.
func (h *Handle) Unsubscribe() {
	h.w.stop()
}

// Subscribe registers a durable subscription and starts (or rejoins) its
// worker. Calling Subscribe again with the same Options.Name from the same
// Manager returns an error; calling it from a different Manager (a
// different process/replica) is the supported way to register a failover
// standby.
func (m *Manager) Subscribe(ctx context.Context, opts Options, consumer Consumer) (*Handle, error) {
	if opts.Name == "" {
		return nil, oops.Code("INVALID_SUBSCRIPTION").Errorf("subscription name is required")
	}
	opts = opts.withDefaults()

	m.mu.Lock()
	if _, exists := m.subs[opts.Name]; exists {
		m.mu.Unlock()
		return nil, oops.Code(eventstore.CodeSubscriptionExists).With("name", opts.Name).Errorf("subscription %q already registered on this manager", opts.Name)
	}
	w := newWorker(m.store, m.checkpoints, m.consumerID, opts, consumer, m.metrics)
	m.subs[opts.Name] = w
	m.mu.Unlock()

	w.start(ctx)
	return &Handle{w: w}, nil
}

// Remove drops a stopped subscription's bookkeeping so its name can be
// reused. It does not stop the worker; call Handle.Unsubscribe first.
func (m *Manager) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, name)
}
