// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts the time operations the sync core performs. Production
// code injects Real(); tests inject Fake() and drive time with Advance.
//
// The sync core schedules four kinds of timers — message reveals,
// reconnect delays, typing-indicator expiry, and the post-move
// interaction freeze — and all of them go through this interface. No
// package in this module calls the time package directly for scheduling.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once
	// duration d has elapsed. If d <= 0 the channel receives
	// immediately.
	After(d time.Duration) <-chan time.Time

	// AfterFunc schedules f to run after duration d and returns a
	// Timer whose Stop cancels the pending call. If d <= 0, f runs
	// immediately (synchronously on the fake clock, in a fresh
	// goroutine on the real one, matching time.AfterFunc).
	AfterFunc(d time.Duration, f func()) *Timer

	// Sleep pauses the calling goroutine for at least duration d.
	Sleep(d time.Duration)
}

// Timer is a scheduled callback created by AfterFunc.
type Timer struct {
	stopFunc  func() bool
	resetFunc func(time.Duration) bool
}

// Stop cancels the timer. It reports whether the call prevented the
// callback from running; false means the callback already ran or the
// timer was already stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Reset reschedules the timer to fire after duration d. It reports
// whether the timer was still pending before the reset.
func (t *Timer) Reset(d time.Duration) bool { return t.resetFunc(d) }
