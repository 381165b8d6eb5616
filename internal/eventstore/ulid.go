// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventstore

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropy     = ulid.Monotonic(rand.Reader, 0)
	entropyLock sync.Mutex
)

// NewEventID generates a new ULID for use as an event_id.
// ULIDs are lexicographically sortable by creation time, which keeps the
// physical row order of the events table close to global_sequence order
// without forcing callers to coordinate clocks.
func NewEventID() ulid.ULID {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// ParseEventID parses a ULID string into an event ID.
func ParseEventID(s string) (ulid.ULID, error) {
	id, err := ulid.Parse(s)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	return id, nil
}
