// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive after the Channel has been
// closed, locally or by the peer.
var ErrClosed = errors.New("transport: channel closed")

// Channel is a bidirectional stream of text frames to the chat server.
//
// Send may be called from any goroutine. Receive must be called from a
// single goroutine; the connection manager owns it. Close unblocks a
// pending Receive and is safe to call more than once.
type Channel interface {
	// Send writes one text frame. A cancelled context abandons the
	// write and poisons the channel; callers should Close and redial.
	Send(ctx context.Context, frame []byte) error

	// Receive blocks until the next text frame arrives, the context is
	// cancelled, or the channel closes.
	Receive(ctx context.Context) ([]byte, error)

	// Close tears the channel down.
	Close() error
}

// Dialer establishes Channels. The connection manager takes a Dialer so
// tests can substitute scripted in-memory channels for real WebSocket
// connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Channel, error)

func (f DialerFunc) DialContext(ctx context.Context, url string) (Channel, error) {
	return f(ctx, url)
}
