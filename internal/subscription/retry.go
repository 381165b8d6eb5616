// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package subscription

// resolution is what a worker does next after a consumer's Handle call
// returns, folding the consumer's requested NackAction together with the
// subscription's MaxRetries policy.
type resolution uint8

const (
	resolveAck resolution = iota
	resolveRedeliver
	resolveSkip
	resolvePark
)

// resolve decides a delivery's outcome. A NackRetry that has already been
// attempted maxRetries times auto-parks rather than looping forever;
// NackSkip and NackPark are honored immediately regardless of attempt
// count since the consumer has explicitly given up.
func resolve(ack bool, action NackAction, attemptsSoFar, maxRetries int) resolution {
	if ack {
		return resolveAck
	}
	switch action {
	case NackSkip:
		return resolveSkip
	case NackPark:
		return resolvePark
	default: // NackRetry
		if attemptsSoFar >= maxRetries {
			return resolvePark
		}
		return resolveRedeliver
	}
}
