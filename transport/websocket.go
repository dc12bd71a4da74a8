// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
)

// Compile-time interface checks.
var (
	_ Channel = (*WebSocketChannel)(nil)
	_ Dialer  = (*WebSocketDialer)(nil)
)

// handshakeTimeout bounds the WebSocket upgrade, independent of the
// caller's context.
const handshakeTimeout = 15 * time.Second

// WebSocketDialer dials the server's WebSocket endpoint. The zero value
// is ready to use.
type WebSocketDialer struct {
	// Header is sent with the upgrade request. The session token
	// travels in the URL query, so this is usually nil.
	Header http.Header
}

// DialContext connects to url and wraps the connection in a Channel.
func (d *WebSocketDialer) DialContext(ctx context.Context, url string) (Channel, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, resp, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &WebSocketChannel{conn: conn, closed: make(chan struct{})}, nil
}

// WebSocketChannel is a Channel over a WebSocket client connection.
type WebSocketChannel struct {
	conn *websocket.Conn

	// writeMu serializes writes; the underlying connection allows only
	// one concurrent writer.
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func (c *WebSocketChannel) Send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return nil
}

// Receive reads the next text frame. Cancelling the context forces the
// pending read to fail by expiring the read deadline; the connection is
// not reusable afterwards, which suits the engine's
// tear-down-and-redial recovery.
func (c *WebSocketChannel) Receive(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		select {
		case <-c.closed:
			return nil, ErrClosed
		default:
		}
		return nil, fmt.Errorf("transport: receive: %w", err)
	}
	return data, nil
}

func (c *WebSocketChannel) Close() error {
	c.closeOnce.Do(func() {
		// Best effort: tell the server we are going away before
		// dropping the TCP connection.
		c.writeMu.Lock()
		c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		close(c.closed)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
