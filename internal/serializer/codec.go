// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package serializer provides an optional, opt-in codec layer on top of the
// event store's opaque []byte payloads. The store itself never interprets
// Event.Payload (spec.md §1); this package exists only for callers who want
// typed marshal/unmarshal plus validation, grounded on the teacher's
// internal/world/payloads.go convention of a Go struct with JSON tags and a
// Validate() method per event type.
package serializer

import (
	"encoding/json"
	"reflect"

	"github.com/samber/oops"
)

// Validator is implemented by payload types that can check their own
// invariants after decode, mirroring internal/world/payloads.go's
// MovePayload.Validate.
type Validator interface {
	Validate() error
}

// Codec encodes and decodes event payloads keyed by event type name. It has
// no notion of streams or ordering; it only turns typed Go values into the
// opaque bytes the store stores.
type Codec interface {
	Encode(eventType string, payload any) ([]byte, error)
	Decode(eventType string, data []byte) (any, error)
}

// RegistryCodec is a JSON Codec: payload types are registered by event
// type name up front, and Decode returns a freshly allocated, populated
// instance of the registered type. Unregistered event types decode into a
// json.RawMessage so callers can still inspect unknown payloads instead of
// erroring outright.
type RegistryCodec struct {
	types map[string]reflect.Type
}

// NewRegistryCodec constructs an empty codec. Register payload types with
// Register before use.
func NewRegistryCodec() *RegistryCodec {
	return &RegistryCodec{types: make(map[string]reflect.Type)}
}

// Register associates eventType with the Go type of sample (a zero value or
// pointer is fine; only its type is used). Re-registering the same
// eventType overwrites the prior association.
func (c *RegistryCodec) Register(eventType string, sample any) {
	t := reflect.TypeOf(sample)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.types[eventType] = t
}

// TypeFor returns the Go type registered for eventType, if any. Exported so
// SchemaCodec can generate a JSON schema from the same registration without
// duplicating the registry.
func (c *RegistryCodec) TypeFor(eventType string) (reflect.Type, bool) {
	t, ok := c.types[eventType]
	return t, ok
}

// Encode marshals payload to JSON. It does not require eventType to be
// registered; encoding is always available, decoding requires registration
// to produce a typed result.
func (c *RegistryCodec) Encode(eventType string, payload any) ([]byte, error) {
	if v, ok := payload.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, oops.Code(CodeInvalidPayload).With("event_type", eventType).Wrap(err)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, oops.Code(CodeEncodeFailed).With("event_type", eventType).Wrap(err)
	}
	return data, nil
}

// Decode unmarshals data into a new instance of eventType's registered Go
// type, running Validate if the type implements Validator. If eventType was
// never registered, Decode returns the raw json.RawMessage unchanged.
func (c *RegistryCodec) Decode(eventType string, data []byte) (any, error) {
	t, ok := c.types[eventType]
	if !ok {
		return json.RawMessage(data), nil
	}
	ptr := reflect.New(t)
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return nil, oops.Code(CodeDecodeFailed).With("event_type", eventType).Wrap(err)
	}
	value := ptr.Interface()
	if v, ok := value.(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, oops.Code(CodeInvalidPayload).With("event_type", eventType).Wrap(err)
		}
	}
	return ptr.Elem().Interface(), nil
}

const (
	CodeEncodeFailed   = "SERIALIZER_ENCODE_FAILED"
	CodeDecodeFailed   = "SERIALIZER_DECODE_FAILED"
	CodeInvalidPayload = "SERIALIZER_INVALID_PAYLOAD"
	CodeSchemaInvalid  = "SERIALIZER_SCHEMA_INVALID"
)
