// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package serializer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jsonschemav6 "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaCodec decorates a *RegistryCodec with JSON Schema validation:
// schemas are generated once per registered Go type (via
// github.com/invopop/jsonschema's struct reflection) and compiled once
// (via github.com/santhosh-tekuri/jsonschema/v6), then every Decode
// validates the decoded JSON against its type's schema before returning,
// catching malformed payloads a bare json.Unmarshal would silently accept
// (e.g. an extra field typo'd into the wrong JSON type). This is strictly
// opt-in: the store never requires it, and plain *RegistryCodec remains the
// zero-dependency-on-schema default.
type SchemaCodec struct {
	inner *RegistryCodec

	mu      sync.Mutex
	schemas map[string]*jsonschemav6.Schema
}

// NewSchemaCodec wraps inner, validating against a reflected schema on
// every Decode of a registered event type.
func NewSchemaCodec(inner *RegistryCodec) *SchemaCodec {
	return &SchemaCodec{inner: inner, schemas: make(map[string]*jsonschemav6.Schema)}
}

func (c *SchemaCodec) Encode(eventType string, payload any) ([]byte, error) {
	return c.inner.Encode(eventType, payload)
}

func (c *SchemaCodec) Decode(eventType string, data []byte) (any, error) {
	schema, err := c.schemaFor(eventType)
	if err != nil {
		return nil, err
	}
	if schema != nil {
		generic, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code(CodeDecodeFailed).With("event_type", eventType).Wrap(err)
		}
		if err := schema.Validate(generic); err != nil {
			return nil, oops.Code(CodeSchemaInvalid).With("event_type", eventType).Wrap(err)
		}
	}
	return c.inner.Decode(eventType, data)
}

// schemaFor returns the compiled schema for eventType, compiling and
// caching it on first use. Unregistered event types have no schema (nil,
// nil) and skip validation, matching RegistryCodec's own pass-through
// behavior for unregistered types.
func (c *SchemaCodec) schemaFor(eventType string) (*jsonschemav6.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.schemas[eventType]; ok {
		return s, nil
	}
	goType, ok := c.inner.TypeFor(eventType)
	if !ok {
		return nil, nil
	}

	reflector := &jsonschema.Reflector{}
	reflected := reflector.ReflectFromType(goType)
	raw, err := json.Marshal(reflected)
	if err != nil {
		return nil, oops.Code(CodeSchemaInvalid).With("event_type", eventType).Wrap(err)
	}

	resourceURL := fmt.Sprintf("mem://eventstore/%s.json", eventType)
	compiler := jsonschemav6.NewCompiler()
	doc, err := jsonschemav6.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, oops.Code(CodeSchemaInvalid).With("event_type", eventType).Wrap(err)
	}
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, oops.Code(CodeSchemaInvalid).With("event_type", eventType).Wrap(err)
	}
	schema, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, oops.Code(CodeSchemaInvalid).With("event_type", eventType).Wrap(err)
	}

	c.schemas[eventType] = schema
	return schema, nil
}

var _ Codec = (*SchemaCodec)(nil)
var _ Codec = (*RegistryCodec)(nil)
