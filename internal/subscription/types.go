// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package subscription implements durable, exactly-once-per-subscription
// delivery on top of an eventstore.Store: catch-up from a checkpoint, a
// live hand-off once caught up, ack/nack with retry/skip/park, and
// single-active-consumer failover. The checkpoint advances only in stream
// order, but Handle calls within one batch run concurrently (up to
// MaxInFlight at a time), so delivery order is kept only with MaxInFlight 1. It is built as a layer above a Store
// (internal/eventstore), not part of it — a Store has no notion of
// consumer groups or checkpoints. Grounded on internal/core/broadcaster.go
// (channel-registry fan-out), internal/access/policy/cache.go
// (listen-loop-drives-reload, generalized to listen-loop-drives-catch-up),
// and internal/world/events.go's emitWithRetry backoff shape.
package subscription

import (
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/arkforge/eventstore/internal/eventstore"
)

// State is a subscription's position in its lifecycle.
type State string

const (
	StateInitial      State = "initial"
	StateCatchingUp   State = "catching_up"
	StateSubscribed   State = "subscribed"
	StateDisconnected State = "disconnected"
	StatePaused       State = "paused"
)

// StartFrom controls where a brand-new subscription begins reading.
type StartFrom struct {
	// Beginning, if true, starts from the first event of the stream.
	// Otherwise Version is taken as the last position already seen and
	// reading starts after it, at Version+1. There is no start-from-end
	// option: eventstore.VersionEnd is not treated specially and, being
	// negative, reads from the first event like a zero Version.
	Beginning bool
	Version   eventstore.StreamVersion
}

// Options configures a subscription at creation time.
type Options struct {
	Name              string
	Stream            eventstore.StreamID
	StartFrom         StartFrom
	MaxInFlight       int
	MaxRetries        int
	CatchUpBatchSize  int
	ConsumerTimeout   time.Duration
	HeartbeatInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = 32
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.CatchUpBatchSize <= 0 {
		o.CatchUpBatchSize = 1000
	}
	if o.ConsumerTimeout <= 0 {
		o.ConsumerTimeout = 30 * time.Second
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = o.ConsumerTimeout / 3
	}
	return o
}

// Token identifies one in-flight delivery. A consumer acks or nacks a
// Token, never a raw event, so the manager can tell which delivery attempt
// a response belongs to even across retries.
type Token ulid.ULID

// Delivery pairs a delivered event with the token a consumer must use to
// ack or nack it.
type Delivery struct {
	Token Token
	Event eventstore.Event
}

// NackAction tells the manager what to do with a nacked event.
type NackAction uint8

const (
	// NackRetry redelivers the event, counting against MaxRetries.
	NackRetry NackAction = iota
	// NackSkip advances past the event without redelivering it.
	NackSkip
	// NackPark records the event in the parked set for manual inspection
	// and advances past it as if skipped.
	NackPark
)

// Consumer is the in-process callback surface a caller registers to
// receive deliveries. There is no built-in transport: Handle runs in the
// subscription's own goroutine and must not block indefinitely.
type Consumer interface {
	Handle(d Delivery) (ack bool, action NackAction)
}

// ConsumerFunc adapts a plain function to a Consumer.
type ConsumerFunc func(d Delivery) (ack bool, action NackAction)

func (f ConsumerFunc) Handle(d Delivery) (bool, NackAction) { return f(d) }
