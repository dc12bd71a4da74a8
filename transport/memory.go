// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
)

// Compile-time interface check.
var _ Channel = (*MemoryChannel)(nil)

// memoryBuffer is how many frames either direction holds before Send
// blocks. Tests script short exchanges; a small buffer keeps them from
// needing a pump goroutine.
const memoryBuffer = 64

// MemoryChannel is one end of an in-process frame pipe. Frames sent on
// one end arrive at the other in order. Closing either end unblocks
// both.
type MemoryChannel struct {
	send chan []byte
	recv chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	peer      *MemoryChannel
}

// NewMemoryPair returns the two ends of a connected pipe. By
// convention the first end goes to the engine and the second to the
// scripted fake server.
func NewMemoryPair() (*MemoryChannel, *MemoryChannel) {
	ab := make(chan []byte, memoryBuffer)
	ba := make(chan []byte, memoryBuffer)
	a := &MemoryChannel{send: ab, recv: ba, closed: make(chan struct{})}
	b := &MemoryChannel{send: ba, recv: ab, closed: make(chan struct{})}
	a.peer, b.peer = b, a
	return a, b
}

func (c *MemoryChannel) Send(ctx context.Context, frame []byte) error {
	// Copy so the caller can reuse its buffer.
	buffered := make([]byte, len(frame))
	copy(buffered, frame)

	select {
	case <-c.closed:
		return ErrClosed
	case <-c.peer.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case c.send <- buffered:
		return nil
	}
}

func (c *MemoryChannel) Receive(ctx context.Context) ([]byte, error) {
	// Drain frames that arrived before a close.
	select {
	case frame := <-c.recv:
		return frame, nil
	default:
	}
	select {
	case frame := <-c.recv:
		return frame, nil
	case <-c.closed:
		return nil, ErrClosed
	case <-c.peer.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *MemoryChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}
