// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arkforge/eventstore/internal/eventstore"
)

func TestAdvisoryLockKey_Deterministic(t *testing.T) {
	a := advisoryLockKey("orders-1")
	b := advisoryLockKey("orders-1")
	assert.Equal(t, a, b)
}

func TestAdvisoryLockKey_DifferentStreamsDiffer(t *testing.T) {
	a := advisoryLockKey("orders-1")
	b := advisoryLockKey("orders-2")
	assert.NotEqual(t, a, b)
}

func TestAdvisoryLockKey_AllStreamHasAKey(t *testing.T) {
	assert.NotPanics(t, func() { advisoryLockKey(eventstore.AllStream) })
}
