// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// advisoryLockKey derives a stable int64 key from a stream identity for use
// with pg_advisory_xact_lock, which only accepts integer keys. Appends to
// the same stream always hash to the same key, serializing concurrent
// appenders against each other for the duration of their transaction
// without requiring a row to lock (the stream may not have one yet, e.g.
// under ExpectedNoStream).
func advisoryLockKey(stream eventstore.StreamID) int64 {
	sum := blake2b.Sum256([]byte(stream))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}
