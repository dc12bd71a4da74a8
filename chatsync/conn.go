// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/lib/config"
	"github.com/parleychat/parley/protocol"
	"github.com/parleychat/parley/transport"
)

var (
	// ErrNotConnected is returned by Send while no channel is open.
	// The reconnect loop will restore the channel; the caller decides
	// whether to retry or drop the action.
	ErrNotConnected = errors.New("chatsync: not connected")

	// ErrCredentialExpired stops the reconnect loop: the session token
	// is past its expiry and the server would refuse every handshake.
	ErrCredentialExpired = errors.New("chatsync: session credential expired")
)

// Conn owns the single bidirectional channel to the server. It dials,
// receives frames, decodes them, and hands typed events to onEvent.
// On abnormal closure it redials with exponential backoff and jitter,
// indefinitely while the session credential remains valid, and invokes
// onReconnect after each successful redial so the engine can re-fetch
// state the server did not buffer during the outage.
type Conn struct {
	url     string
	dialer  transport.Dialer
	clock   clock.Clock
	logger  *slog.Logger
	backoff config.ReconnectConfig
	// expiry is the credential deadline; zero means no expiry.
	expiry time.Time

	onEvent     func(event protocol.Event)
	onReconnect func()

	mu      sync.Mutex
	channel transport.Channel
	closed  bool
}

func newConn(url string, dialer transport.Dialer, clk clock.Clock, logger *slog.Logger, backoff config.ReconnectConfig, expiry time.Time) *Conn {
	return &Conn{
		url:     url,
		dialer:  dialer,
		clock:   clk,
		logger:  logger,
		backoff: backoff,
		expiry:  expiry,
	}
}

// Run dials and processes inbound frames until the context is
// cancelled, Close is called, or the credential expires. Malformed
// frames are logged and dropped; they never stop the loop.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	connectedBefore := false

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.isClosed() {
			return nil
		}
		if !c.expiry.IsZero() && !c.clock.Now().Before(c.expiry) {
			return ErrCredentialExpired
		}

		channel, err := c.dialer.DialContext(ctx, c.url)
		if err != nil {
			attempt++
			delay := c.delay(attempt)
			c.logger.Warn("dial failed, will retry",
				"attempt", attempt, "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.clock.After(delay):
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			channel.Close()
			return nil
		}
		c.channel = channel
		c.mu.Unlock()
		attempt = 0

		if connectedBefore {
			c.logger.Info("reconnected, resyncing")
			if c.onReconnect != nil {
				c.onReconnect()
			}
		}
		connectedBefore = true

		err = c.receive(ctx, channel)

		c.mu.Lock()
		c.channel = nil
		c.mu.Unlock()
		channel.Close()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case c.isClosed():
			return nil
		default:
			c.logger.Warn("connection lost", "error", err)
		}
	}
}

// Send marshals a typed outbound frame and writes it to the channel.
func (c *Conn) Send(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("chatsync: encoding outbound frame: %w", err)
	}
	return c.SendRaw(data)
}

// SendRaw writes bytes as a single frame, for binary file payloads
// that follow a file_ready acknowledgment.
func (c *Conn) SendRaw(data []byte) error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if channel == nil {
		return ErrNotConnected
	}
	if err := channel.Send(context.Background(), data); err != nil {
		return fmt.Errorf("chatsync: send: %w", err)
	}
	return nil
}

// Close tears down the current channel and stops the reconnect loop.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	channel := c.channel
	c.channel = nil
	c.mu.Unlock()

	if channel != nil {
		channel.Close()
	}
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Conn) receive(ctx context.Context, channel transport.Channel) error {
	for {
		data, err := channel.Receive(ctx)
		if err != nil {
			return err
		}
		event, err := protocol.Decode(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", err)
			continue
		}
		c.onEvent(event)
	}
}

// delay computes the backoff before redial attempt n (1-based):
// initial delay doubled (or whatever the multiplier says) per attempt,
// capped at the ceiling, with symmetric random jitter so a fleet of
// clients does not reconnect in lockstep.
func (c *Conn) delay(attempt int) time.Duration {
	delay := float64(c.backoff.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.backoff.Multiplier
		if delay >= float64(c.backoff.MaxDelay) {
			delay = float64(c.backoff.MaxDelay)
			break
		}
	}
	jitter := 1 + c.backoff.JitterFraction*(2*rand.Float64()-1)
	jittered := time.Duration(delay * jitter)
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}
