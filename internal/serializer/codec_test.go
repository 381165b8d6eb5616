// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package serializer_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkforge/eventstore/internal/serializer"
)

type orderCreated struct {
	OrderID  string `json:"order_id"`
	Quantity int    `json:"quantity"`
}

func (p orderCreated) Validate() error {
	if p.OrderID == "" {
		return errors.New("order_id cannot be empty")
	}
	if p.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}

func TestRegistryCodec_RoundTrip(t *testing.T) {
	codec := serializer.NewRegistryCodec()
	codec.Register("order.created", orderCreated{})

	data, err := codec.Encode("order.created", orderCreated{OrderID: "ord-1", Quantity: 3})
	require.NoError(t, err)

	decoded, err := codec.Decode("order.created", data)
	require.NoError(t, err)
	assert.Equal(t, orderCreated{OrderID: "ord-1", Quantity: 3}, decoded)
}

func TestRegistryCodec_EncodeRejectsInvalidPayload(t *testing.T) {
	codec := serializer.NewRegistryCodec()
	codec.Register("order.created", orderCreated{})

	_, err := codec.Encode("order.created", orderCreated{Quantity: 3})
	assert.Error(t, err)
}

func TestRegistryCodec_DecodeRejectsInvalidPayload(t *testing.T) {
	codec := serializer.NewRegistryCodec()
	codec.Register("order.created", orderCreated{})

	_, err := codec.Decode("order.created", []byte(`{"order_id":"","quantity":3}`))
	assert.Error(t, err)
}

func TestRegistryCodec_UnregisteredTypePassesThroughRaw(t *testing.T) {
	codec := serializer.NewRegistryCodec()
	decoded, err := codec.Decode("unknown.type", []byte(`{"a":1}`))
	require.NoError(t, err)
	raw, ok := decoded.(json.RawMessage)
	require.True(t, ok)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}
