// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// isRetryable reports whether err is a transient Postgres failure worth
// retrying with backoff: a serialization failure or deadlock from two
// appenders racing on the same advisory lock key, or the rarer case of the
// advisory lock wait itself timing out under lock_timeout.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected, pgerrcode.LockNotAvailable:
		return true
	default:
		return false
	}
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// which the append path uses to detect a race on stream creation under
// ExpectedNoStream that the advisory lock did not catch (e.g. two
// connections from different pools, or a lock_timeout bypass).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgerrcode.UniqueViolation
}
