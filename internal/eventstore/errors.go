// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventstore

import (
	"errors"

	"github.com/samber/oops"
)

// ErrorKind classifies a failure independent of its oops code string, so
// callers can branch on Kind(err) without importing error-code constants
// from every package that can return one.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindWrongExpectedVersion
	KindStreamNotFound
	KindStreamDeleted
	KindStreamExists
	KindEventNotFound
	KindDuplicateLink
	KindHardDeleteDisabled
	KindSerializer
	KindSubscriptionExists
	KindSubscriptionNameConflict
	KindTransient
)

// oops codes that Kind(err), the single place doing the mapping, turns back
// into an ErrorKind. Other codes used in this module (for example
// INVALID_APPEND, SCHEMA_NOT_MIGRATED and the serializer's SERIALIZER_*
// codes) map to KindUnknown.
const (
	CodeWrongExpectedVersion    = "WRONG_EXPECTED_VERSION"
	CodeStreamNotFound          = "STREAM_NOT_FOUND"
	CodeStreamDeleted           = "STREAM_DELETED"
	CodeStreamExists            = "STREAM_EXISTS_ERROR"
	CodeEventNotFound           = "EVENT_NOT_FOUND"
	CodeDuplicateLink           = "DUPLICATE_LINK"
	CodeHardDeleteNotEnabled    = "HARD_DELETE_NOT_ENABLED"
	CodeSerializerError         = "SERIALIZER_ERROR"
	CodeTransportError          = "TRANSPORT_ERROR"
	CodeSubscriptionExists      = "SUBSCRIPTION_EXISTS"
	CodeSubscriptionNameConflict = "SUBSCRIPTION_NAME_CONFLICT"
)

var codeToKind = map[string]ErrorKind{
	CodeWrongExpectedVersion:     KindWrongExpectedVersion,
	CodeStreamNotFound:           KindStreamNotFound,
	CodeStreamDeleted:            KindStreamDeleted,
	CodeStreamExists:             KindStreamExists,
	CodeEventNotFound:            KindEventNotFound,
	CodeDuplicateLink:            KindDuplicateLink,
	CodeHardDeleteNotEnabled:     KindHardDeleteDisabled,
	CodeSerializerError:          KindSerializer,
	CodeTransportError:           KindTransient,
	CodeSubscriptionExists:       KindSubscriptionExists,
	CodeSubscriptionNameConflict: KindSubscriptionNameConflict,
}

// Kind extracts the ErrorKind carried by an oops-wrapped error, or
// KindUnknown if err is nil, not an oops error, or carries a code this
// package does not recognize.
func Kind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return KindUnknown
	}
	if kind, ok := codeToKind[oopsErr.Code()]; ok {
		return kind
	}
	return KindUnknown
}

// Is reports whether err carries the given ErrorKind. It is the idiomatic
// entry point for callers; Kind is exported mainly for switch statements
// that need to distinguish among several kinds at once.
func Is(err error, kind ErrorKind) bool {
	return Kind(err) == kind
}

// Sentinel errors naming each failure condition. No error returned by the
// stores in this module wraps them, so errors.Is against a store error
// reports false; Is and Kind classify store errors.
var (
	ErrWrongExpectedVersion = errors.New("wrong expected version")
	ErrStreamNotFound       = errors.New("stream not found")
	ErrStreamDeleted        = errors.New("stream deleted")
	ErrStreamExists         = errors.New("stream exists")
	ErrEventNotFound        = errors.New("event not found")
	ErrDuplicateLink        = errors.New("event already linked to stream")
	ErrHardDeleteDisabled   = errors.New("hard delete not enabled")
	ErrSubscriptionExists   = errors.New("subscription exists")
)
