// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"fmt"
	"regexp"
	"time"
)

// fraction matches a fractional-seconds component of a timestamp.
var fraction = regexp.MustCompile(`\.\d+`)

// overlongFraction matches fractional seconds beyond millisecond
// precision.
var overlongFraction = regexp.MustCompile(`\.(\d{3})\d+`)

// ParseTimestamp parses a server timestamp string. The server emits
// RFC 3339, but the fractional-seconds precision varies with its
// storage path, sometimes beyond what strict parsers accept. Parsing
// degrades in three steps: as-is, truncated to milliseconds, then with
// the fraction removed entirely.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("protocol: empty timestamp")
	}

	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if trimmed := overlongFraction.ReplaceAllString(value, ".$1"); trimmed != value {
		if t, err := time.Parse(time.RFC3339, trimmed); err == nil {
			return t, nil
		}
	}
	if stripped := fraction.ReplaceAllString(value, ""); stripped != value {
		if t, err := time.Parse(time.RFC3339, stripped); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("protocol: unparseable timestamp %q", value)
}
