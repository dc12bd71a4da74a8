// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain RFC3339",
			input: "2026-03-01T12:00:00Z",
			want:  "2026-03-01T12:00:00Z",
		},
		{
			name:  "millisecond fraction",
			input: "2026-03-01T12:00:00.250Z",
			want:  "2026-03-01T12:00:00.25Z",
		},
		{
			name:  "nanosecond fraction kept as-is",
			input: "2026-03-01T12:00:00.123456789Z",
			want:  "2026-03-01T12:00:00.123456789Z",
		},
		{
			name:  "numeric offset",
			input: "2026-03-01T12:00:00+02:00",
			want:  "2026-03-01T12:00:00+02:00",
		},
		{
			name:  "long fraction with offset",
			input: "2026-03-01T12:00:00.9999999+02:00",
			want:  "2026-03-01T12:00:00.9999999+02:00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) failed: %v", tt.input, err)
			}
			want, err := time.Parse(time.RFC3339Nano, tt.want)
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(want) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, want)
			}
		})
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "yesterday", "2026-03-01", "12:00:00", "2026-03-01T12:00:00.5"} {
		if _, err := ParseTimestamp(input); err == nil {
			t.Errorf("ParseTimestamp(%q) succeeded, want error", input)
		}
	}
}
