// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at the given instant. Time moves only
// when Advance is called; every timer and sleep registered through the
// Clock interface becomes a pending entry that fires deterministically
// when the clock passes its deadline.
//
// FakeClock is safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.registered = sync.NewCond(&c.mu)
	return c
}

// FakeClock is a deterministic Clock for tests.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. Calling Advance or Sleep from inside a callback deadlocks.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	pending    []*pendingTimer
	registered *sync.Cond
}

// pendingTimer is one registered After, AfterFunc, or Sleep operation.
type pendingTimer struct {
	deadline time.Time
	ch       chan time.Time // After and Sleep
	fn       func()         // AfterFunc
	stopped  bool
	fired    bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot channel timer. A non-positive duration
// delivers immediately without registering anything.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.pending = append(c.pending, &pendingTimer{deadline: c.now.Add(d), ch: ch})
	c.registered.Broadcast()
	return ch
}

// AfterFunc registers a one-shot callback timer. A non-positive
// duration runs f synchronously before returning.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	if d <= 0 {
		c.mu.Unlock()
		f()
		return &Timer{
			stopFunc:  func() bool { return false },
			resetFunc: func(time.Duration) bool { return false },
		}
	}

	entry := &pendingTimer{deadline: c.now.Add(d), fn: f}
	c.pending = append(c.pending, entry)
	c.registered.Broadcast()
	c.mu.Unlock()

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if entry.stopped || entry.fired {
				return false
			}
			entry.stopped = true
			return true
		},
		resetFunc: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			active := !entry.stopped && !entry.fired
			// Drop any existing registration before re-adding so the
			// entry never appears in the pending list twice.
			for i, p := range c.pending {
				if p == entry {
					c.pending = append(c.pending[:i], c.pending[i+1:]...)
					break
				}
			}
			entry.stopped = false
			entry.fired = false
			entry.deadline = c.now.Add(d)
			c.pending = append(c.pending, entry)
			c.registered.Broadcast()
			return active
		},
	}
}

// Sleep blocks until the clock is advanced past the deadline.
func (c *FakeClock) Sleep(d time.Duration) {
	<-c.After(d)
}

// Advance moves the clock forward by d and fires, in deadline order,
// every pending timer whose deadline is now reached. Channel timers
// that nobody is draining are fired with a non-blocking send.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	// Loop because a callback may register new timers that are
	// already expired at the target instant.
	for {
		due := c.takeExpired(target)
		if len(due) == 0 {
			return
		}
		sort.Slice(due, func(i, j int) bool {
			return due[i].deadline.Before(due[j].deadline)
		})
		for _, entry := range due {
			if entry.fn != nil {
				entry.fn()
				continue
			}
			select {
			case entry.ch <- target:
			default:
			}
		}
	}
}

// takeExpired removes and returns every live pending entry with a
// deadline at or before target.
func (c *FakeClock) takeExpired(target time.Time) []*pendingTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*pendingTimer
	for _, entry := range c.pending {
		switch {
		case entry.stopped:
			// Dropped.
		case !entry.deadline.After(target):
			entry.fired = true
			due = append(due, entry)
		default:
			keep = append(keep, entry)
		}
	}
	c.pending = keep
	return due
}

// WaitForTimers blocks until at least n timers or sleeps are pending.
// Use it to close the race between a goroutine registering a timer and
// the test advancing the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.livePendingLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of live pending timers.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.livePendingLocked()
}

func (c *FakeClock) livePendingLocked() int {
	n := 0
	for _, entry := range c.pending {
		if !entry.stopped {
			n++
		}
	}
	return n
}
