// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction so that every
// timer in the sync core can be driven deterministically in tests.
//
// Production code accepts a Clock parameter (or holds one in a config
// struct) instead of calling time.Now, time.After, time.AfterFunc, or
// time.Sleep directly. Real() provides standard library behavior;
// Fake() provides a clock that advances only when Advance is called.
//
// When a goroutine registers a timer on a FakeClock, tests use
// WaitForTimers to block until the registration has happened before
// advancing:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	engine := chatsync.NewSession(..., c)
//	// ... trigger something that schedules a reveal timer ...
//	c.WaitForTimers(1)
//	c.Advance(5 * time.Second) // the reveal fires deterministically
package clock
