// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package eventstore

import "testing"

func TestStreamID_IsAll(t *testing.T) {
	if !AllStream.IsAll() {
		t.Error("AllStream should report IsAll")
	}
	if StreamID("orders-123").IsAll() {
		t.Error("an ordinary stream id should not report IsAll")
	}
}

func TestExpectedVersion_IsExact(t *testing.T) {
	tests := []struct {
		name string
		v    ExpectedVersion
		want bool
	}{
		{"any", ExpectedAny, false},
		{"no_stream", ExpectedNoStream, false},
		{"stream_exists", ExpectedStreamExists, false},
		{"zero", ExpectedVersion(0), true},
		{"positive", ExpectedVersion(42), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsExact(); got != tt.want {
				t.Errorf("IsExact() = %v, want %v", got, tt.want)
			}
		})
	}
}
