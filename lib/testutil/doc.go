// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides small test helpers shared across the
// module's package tests: channel receives with timeout safety valves
// and closed-channel assertions. It depends only on the standard
// library and is imported exclusively from _test.go files.
package testutil
