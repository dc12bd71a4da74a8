// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/lib/testutil"
	"github.com/parleychat/parley/transport"
)

// sessionHarness runs a full session against the far end of an
// in-memory channel, playing the server.
type sessionHarness struct {
	session  *Session
	server   transport.Channel
	clk      *clock.FakeClock
	verifier *fakeLockVerifier
	updates  chan ConversationView
	notes    chan Notification
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	client, server := transport.NewMemoryPair()
	connected := make(chan struct{}, 1)

	h := &sessionHarness{
		server:   server,
		clk:      clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		verifier: &fakeLockVerifier{},
		updates:  make(chan ConversationView, 16),
		notes:    make(chan Notification, 16),
	}

	queue := make(chan transport.Channel, 1)
	queue <- client
	dialer := transport.DialerFunc(func(ctx context.Context, url string) (transport.Channel, error) {
		select {
		case ch := <-queue:
			connected <- struct{}{}
			return ch, nil
		default:
			return nil, errors.New("server unreachable")
		}
	})

	session, err := NewSession(SessionConfig{
		User:   "alice",
		URL:    "ws://test/ws",
		Dialer: dialer,
		Locks:  h.verifier,
		Clock:  h.clk,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Callbacks: Callbacks{
			ConversationUpdated: func(view ConversationView) { h.updates <- view },
			Notification:        func(n Notification) { h.notes <- n },
		},
	})
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	h.session = session

	go session.Run(context.Background())
	t.Cleanup(session.Close)
	testutil.RequireReceive(t, connected, time.Second, "session must dial")
	return h
}

// recvFrame reads the next frame the session sent and decodes it.
func (h *sessionHarness) recvFrame(t *testing.T) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := h.server.Receive(ctx)
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	var frame map[string]any
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decoding frame %q: %v", data, err)
	}
	return frame
}

func (h *sessionHarness) push(t *testing.T, frame string) {
	t.Helper()
	if err := h.server.Send(context.Background(), []byte(frame)); err != nil {
		t.Fatalf("server send: %v", err)
	}
}

func TestNewSessionValidation(t *testing.T) {
	dialer := transport.DialerFunc(func(ctx context.Context, url string) (transport.Channel, error) {
		return nil, errors.New("unused")
	})
	base := SessionConfig{User: "alice", URL: "ws://test/ws", Dialer: dialer, Locks: &fakeLockVerifier{}}

	for _, tt := range []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"missing user", func(c *SessionConfig) { c.User = "" }},
		{"missing url", func(c *SessionConfig) { c.URL = "" }},
		{"missing dialer", func(c *SessionConfig) { c.Dialer = nil }},
		{"missing lock verifier", func(c *SessionConfig) { c.Locks = nil }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if _, err := NewSession(cfg); err == nil {
				t.Fatal("expected a config error")
			}
		})
	}

	t.Run("valid config", func(t *testing.T) {
		if _, err := NewSession(base); err != nil {
			t.Fatalf("NewSession: %v", err)
		}
	})
}

func TestSessionSendMessage(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	if err := h.session.SelectConversation(ctx, DM("bob")); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	if frame := h.recvFrame(t); frame["type"] != "get_conversation" || frame["receiver_username"] != "bob" {
		t.Fatalf("history request = %v", frame)
	}

	if err := h.session.SendMessage("hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// The message renders optimistically before any server frame.
	view := testutil.RequireReceive(t, h.updates, time.Second, "optimistic render")
	if len(view.Messages) != 1 || view.Messages[0].ID != 0 || view.Messages[0].LocalID == "" {
		t.Fatalf("optimistic view = %+v", view.Messages)
	}
	localID := view.Messages[0].LocalID

	frame := h.recvFrame(t)
	if frame["type"] != "chat_message" || frame["message"] != "hello" {
		t.Fatalf("outbound frame = %v", frame)
	}
	if frame["local_id"] != localID {
		t.Fatalf("frame local_id = %v, want %q", frame["local_id"], localID)
	}
	if _, err := time.Parse(time.RFC3339, frame["timestamp"].(string)); err != nil {
		t.Fatalf("frame timestamp: %v", err)
	}

	// The echo adopts the local entry instead of duplicating it.
	h.push(t, `{"id":9,"sender_username":"alice","receiver_username":"bob","message":"hello","local_id":"`+localID+`","timestamp":"2026-03-01T12:00:00Z"}`)
	view = testutil.RequireReceive(t, h.updates, time.Second, "echo render")
	if len(view.Messages) != 1 || view.Messages[0].ID != 9 {
		t.Fatalf("view after echo = %+v", view.Messages)
	}
}

func TestSessionSendWithoutConversation(t *testing.T) {
	h := newSessionHarness(t)

	if err := h.session.SendMessage("into the void"); !errors.Is(err, ErrNoConversation) {
		t.Fatalf("SendMessage = %v, want ErrNoConversation", err)
	}
}

func TestSessionLockedConversation(t *testing.T) {
	h := newSessionHarness(t)
	h.verifier.dmLocked = map[string]bool{"bob": true}
	h.verifier.dmPIN = map[string]string{"bob": "1234"}
	ctx := context.Background()

	if err := h.session.SelectConversation(ctx, DM("bob")); !errors.Is(err, ErrLocked) {
		t.Fatalf("SelectConversation = %v, want ErrLocked", err)
	}

	if err := h.session.Unlock(ctx, "bob", "1234"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if err := h.session.SelectConversation(ctx, DM("bob")); err != nil {
		t.Fatalf("SelectConversation after unlock: %v", err)
	}
	if frame := h.recvFrame(t); frame["type"] != "get_conversation" {
		t.Fatalf("history request = %v", frame)
	}
}

func TestSessionPendingReveal(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	if err := h.session.SelectConversation(ctx, DM("bob")); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	h.recvFrame(t) // history request

	h.session.SetPendingReveal(h.clk.Now().Add(time.Hour))
	h.session.SetPendingReveal(h.clk.Now().Add(2 * time.Hour))
	note := testutil.RequireReceive(t, h.notes, time.Second, "replacement notice")
	if note.Kind != NotifyRevealReplaced {
		t.Fatalf("notification = %+v", note)
	}

	// The slot holds one value and the next send consumes it.
	if err := h.session.SendMessage("surprise"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	frame := h.recvFrame(t)
	if frame["reveal_at"] != "2026-03-01T14:00:00Z" {
		t.Fatalf("reveal_at = %v, want the replacement value", frame["reveal_at"])
	}

	if err := h.session.SendMessage("plain"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	frame = h.recvFrame(t)
	if _, ok := frame["reveal_at"]; ok {
		t.Fatalf("second send must not carry a reveal time: %v", frame)
	}
}

func TestSessionSendFile(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	if err := h.session.SelectConversation(ctx, DM("bob")); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	h.recvFrame(t) // history request

	if err := h.session.SendFile("a.png", []byte("payload-a")); err != nil {
		t.Fatalf("SendFile: %v", err)
	}
	frame := h.recvFrame(t)
	if frame["type"] != "file_meta" || frame["message"] != "a.png" || frame["receiver_username"] != "bob" {
		t.Fatalf("file_meta frame = %v", frame)
	}

	// The payload goes out only on the server's acknowledgment.
	h.push(t, `{"type":"file_ready"}`)

	rctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	data, err := h.server.Receive(rctx)
	if err != nil {
		t.Fatalf("server receive: %v", err)
	}
	if string(data) != "payload-a" {
		t.Fatalf("payload = %q", data)
	}
}

func TestSessionScheduleMessage(t *testing.T) {
	h := newSessionHarness(t)
	ctx := context.Background()

	if err := h.session.SelectConversation(ctx, GroupChat(7)); err != nil {
		t.Fatalf("SelectConversation: %v", err)
	}
	if frame := h.recvFrame(t); frame["type"] != "get_group_conversation" {
		t.Fatalf("history request = %v", frame)
	}

	at := h.clk.Now().Add(time.Hour)
	if err := h.session.ScheduleMessage("later", at); err != nil {
		t.Fatalf("ScheduleMessage: %v", err)
	}
	frame := h.recvFrame(t)
	if frame["type"] != "schedule_message" || frame["message"] != "later" {
		t.Fatalf("schedule frame = %v", frame)
	}
	if frame["group_id"] != float64(7) {
		t.Fatalf("group_id = %v", frame["group_id"])
	}
	if frame["scheduled_at"] != "2026-03-01T13:00:00Z" {
		t.Fatalf("scheduled_at = %v", frame["scheduled_at"])
	}
	if frame["scheduled_at_epoch"] != float64(at.Unix()) {
		t.Fatalf("scheduled_at_epoch = %v", frame["scheduled_at_epoch"])
	}

	// The outcome arrives asynchronously.
	h.push(t, `{"type":"schedule_ack","ok":true}`)
	note := testutil.RequireReceive(t, h.notes, time.Second, "schedule outcome")
	if note.Kind != NotifySchedule {
		t.Fatalf("notification = %+v", note)
	}
}
