// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subscription

import (
	"sync"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// inflightEntry tracks one delivered-but-not-yet-resolved event.
type inflightEntry struct {
	event    eventstore.Event
	acked    bool
	attempts int
}

// inflightWindow is the bounded set of deliveries a subscription has handed
// out but not yet resolved. Ack/nack resolve out of order (a consumer may
// finish event 12 before event 10), but the checkpoint can only advance
// past a contiguous run starting at the window's low-water mark: this
// mirrors an at-least-once broker's "commit the lowest unacked offset"
// rule, adapted to per-event granularity instead of per-partition.
//
// Grounded on internal/core/broadcaster.go's registry-of-channels shape,
// generalized from "fan out to many subscribers" to "track one
// subscriber's outstanding work".
type inflightWindow struct {
	mu      sync.Mutex
	maxSize int
	order   []Token
	entries map[Token]*inflightEntry
}

func newInflightWindow(maxSize int) *inflightWindow {
	return &inflightWindow{
		maxSize: maxSize,
		entries: make(map[Token]*inflightEntry),
	}
}

// Full reports whether the window has no room for another delivery.
func (w *inflightWindow) Full() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order) >= w.maxSize
}

// Add admits a new in-flight delivery and returns its token.
func (w *inflightWindow) Add(ev eventstore.Event) Token {
	w.mu.Lock()
	defer w.mu.Unlock()
	tok := Token(eventstore.NewEventID())
	w.order = append(w.order, tok)
	w.entries[tok] = &inflightEntry{event: ev}
	return tok
}

// Ack marks a token resolved. It reports false if the token is unknown
// (e.g. a duplicate ack, or one arriving after the subscription restarted
// and rebuilt its window).
func (w *inflightWindow) Ack(tok Token) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[tok]
	if !ok {
		return false
	}
	e.acked = true
	return true
}

// Get returns the entry for a token, for retry/park decisions.
func (w *inflightWindow) Get(tok Token) (eventstore.Event, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[tok]
	if !ok {
		return eventstore.Event{}, 0, false
	}
	return e.event, e.attempts, true
}

// BumpAttempts increments a token's retry counter and returns the new count.
func (w *inflightWindow) BumpAttempts(tok Token) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[tok]
	if !ok {
		return 0
	}
	e.attempts++
	return e.attempts
}

// Remove drops a token from the window without regard to ack state, so it
// no longer blocks the checkpoint; the removed entry's own StreamVersion is
// never returned by AdvanceCheckpoint.
func (w *inflightWindow) Remove(tok Token) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entries, tok)
	for i, t := range w.order {
		if t == tok {
			w.order = append(w.order[:i], w.order[i+1:]...)
			return
		}
	}
}

// AdvanceCheckpoint pops every acked entry from the front of the window and
// returns the StreamVersion of the last one popped, or ok=false if the
// front entry is still outstanding. The worker calls it once per delivered
// batch.
func (w *inflightWindow) AdvanceCheckpoint() (eventstore.StreamVersion, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var last eventstore.StreamVersion
	advanced := false
	for len(w.order) > 0 {
		tok := w.order[0]
		e := w.entries[tok]
		if e == nil {
			w.order = w.order[1:]
			continue
		}
		if !e.acked {
			break
		}
		last = e.event.StreamVersion
		advanced = true
		w.order = w.order[1:]
		delete(w.entries, tok)
	}
	if !advanced {
		return 0, false
	}
	return last, true
}

// Len reports the number of outstanding (unresolved-from-the-front) tokens.
func (w *inflightWindow) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
