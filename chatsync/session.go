// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/lib/config"
	"github.com/parleychat/parley/protocol"
	"github.com/parleychat/parley/transport"
)

// ErrNoConversation is returned by operations that need an active
// conversation when none is selected.
var ErrNoConversation = errors.New("chatsync: no active conversation")

// SessionConfig carries everything a Session needs. User, URL, Dialer,
// and Locks are required; the rest default sensibly.
type SessionConfig struct {
	// User is the authenticated username. Session context is explicit:
	// every classification and echo decision uses this value, never a
	// global.
	User string

	// URL is the bidirectional channel endpoint, credential included.
	URL string

	// Dialer opens the bidirectional channel.
	Dialer transport.Dialer

	// Locks verifies conversation locks against the server.
	Locks LockVerifier

	// CredentialExpiry stops the reconnect loop once the credential
	// can no longer authenticate. Zero means no known expiry.
	CredentialExpiry time.Time

	// Reconnect, Lock, and Transfer tune the retry schedule, PIN
	// throttling, and file queue. Zero fields take defaults.
	Reconnect config.ReconnectConfig
	Lock      config.LockConfig
	Transfer  config.TransferConfig

	// Callbacks receives state-change notifications. All fields
	// optional.
	Callbacks Callbacks

	// Clock defaults to the real clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Session is a synchronized client session: one connection, one set of
// conversation state, reconciled from the server's event stream.
//
// Methods are safe for concurrent use, but callbacks fire on the
// session's event goroutine; a slow callback delays event processing.
type Session struct {
	user       string
	clock      clock.Clock
	logger     *slog.Logger
	conn       *Conn
	pending    *PendingCache
	gate       *LockGate
	games      *GameManager
	polls      *PollManager
	reconciler *Reconciler
	callbacks  *Callbacks
}

// NewSession validates the config and assembles a session. The
// connection is not opened until Run.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("chatsync: user is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("chatsync: url is required")
	}
	if cfg.Dialer == nil {
		return nil, fmt.Errorf("chatsync: dialer is required")
	}
	if cfg.Locks == nil {
		return nil, fmt.Errorf("chatsync: lock verifier is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := config.Default()
	if cfg.Reconnect == (config.ReconnectConfig{}) {
		cfg.Reconnect = defaults.Reconnect
	}
	if cfg.Lock == (config.LockConfig{}) {
		cfg.Lock = defaults.Lock
	}
	if cfg.Transfer == (config.TransferConfig{}) {
		cfg.Transfer = defaults.Transfer
	}

	s := &Session{
		user:   cfg.User,
		clock:  clk,
		logger: logger,
	}
	callbacks := cfg.Callbacks
	s.callbacks = &callbacks

	s.conn = newConn(cfg.URL, cfg.Dialer, clk, logger, cfg.Reconnect, cfg.CredentialExpiry)
	s.pending = NewPendingCache(cfg.Transfer.QueueCapacity)
	s.gate = NewLockGate(cfg.Locks, clk, cfg.Lock.MaxAttempts, cfg.Lock.Cooldown)
	s.games = newGameManager(cfg.User, clk, s.conn.Send, s.gameUpdated, s.callbacks.notify)
	s.polls = newPollManager(s.conn.Send, s.pollUpdated)
	s.reconciler = newReconciler(cfg.User, clk, logger, s.callbacks, s.pending, s.gate,
		s.games, s.polls, s.conn.Send, s.conn.SendRaw)

	s.conn.onEvent = s.reconciler.Handle
	s.conn.onReconnect = s.reconciler.Resync
	return s, nil
}

func (s *Session) gameUpdated(view GameView) {
	if s.callbacks.GameUpdated != nil {
		s.callbacks.GameUpdated(view)
	}
}

func (s *Session) pollUpdated(view PollView) {
	if s.callbacks.PollUpdated != nil {
		s.callbacks.PollUpdated(view)
	}
}

// Run connects and processes events until ctx is cancelled, Close is
// called, or the credential expires. The global lock status is cached
// before the first dial so the render veto is in place from the first
// event.
func (s *Session) Run(ctx context.Context) error {
	if err := s.gate.RefreshGlobal(ctx); err != nil {
		s.logger.Warn("global lock status unavailable", "error", err)
	}
	return s.conn.Run(ctx)
}

// Close tears the session down. Run returns after Close.
func (s *Session) Close() {
	s.conn.Close()
}

// User returns the session's authenticated username.
func (s *Session) User() string { return s.user }

// SelectConversation makes a conversation active, clearing its unread
// counter and requesting its history. Returns ErrLocked when the
// conversation is lock-gated and not yet unlocked this session.
func (s *Session) SelectConversation(ctx context.Context, id ConversationID) error {
	if err := s.refreshAndRequire(ctx, id); err != nil {
		return err
	}
	return s.reconciler.SetActive(id)
}

// SelectSecondary opens a conversation in the split pane. The same
// lock gating applies.
func (s *Session) SelectSecondary(ctx context.Context, id ConversationID) error {
	if err := s.refreshAndRequire(ctx, id); err != nil {
		return err
	}
	return s.reconciler.SetSecondary(id)
}

// CloseSecondary closes the split pane.
func (s *Session) CloseSecondary() {
	s.reconciler.ClearSecondary()
}

func (s *Session) refreshAndRequire(ctx context.Context, id ConversationID) error {
	if !id.IsGroup() && id.Peer != "" {
		if err := s.gate.Refresh(ctx, id.Peer); err != nil {
			return fmt.Errorf("refreshing lock status: %w", err)
		}
	}
	return s.gate.RequireUnlocked(id)
}

// ActiveConversation returns the active conversation id, or the zero
// id when none is selected.
func (s *Session) ActiveConversation() ConversationID {
	return s.reconciler.Active()
}

// Conversation returns a snapshot of the active conversation.
func (s *Session) Conversation() (ConversationView, bool) {
	return s.reconciler.ActiveView()
}

// Unread returns the unread counter for a conversation.
func (s *Session) Unread(id ConversationID) int {
	return s.reconciler.Unread(id)
}

// SendMessage sends a message to the active conversation. The message
// renders immediately as an optimistic local entry; the server echo
// reconciles with it by local id rather than appearing twice. A reveal
// time armed via SetPendingReveal is consumed by this send.
func (s *Session) SendMessage(body string) error {
	id := s.reconciler.Active()
	if id.IsZero() {
		return ErrNoConversation
	}
	if err := s.gate.RequireUnlocked(id); err != nil {
		return err
	}

	localID := uuid.NewString()
	now := s.clock.Now().UTC()
	timestamp := now.Format(time.RFC3339)

	revealAt, hasReveal := s.pending.TakePendingReveal()
	reveal := ""
	if hasReveal {
		reveal = revealAt.UTC().Format(time.RFC3339)
	}

	var frame any
	if id.IsGroup() {
		f := protocol.NewGroupChatMessage(id.GroupID, body, timestamp)
		f.LocalID = localID
		f.RevealAt = reveal
		frame = f
	} else {
		f := protocol.NewChatMessage(id.Peer, body, timestamp)
		f.LocalID = localID
		f.RevealAt = reveal
		frame = f
	}

	view := MessageView{
		LocalID:   localID,
		Sender:    s.user,
		Body:      body,
		Timestamp: now,
	}
	if hasReveal {
		view.RevealAt = revealAt
		view.Obscured = revealAt.After(now)
	}
	s.reconciler.AppendLocal(view)

	return s.conn.Send(frame)
}

// SetPendingReveal arms the reveal slot for the next outbound message.
// The slot holds one value; arming it again replaces the previous one
// and raises a NotifyRevealReplaced notification.
func (s *Session) SetPendingReveal(revealAt time.Time) {
	if _, replaced := s.pending.SetPendingReveal(revealAt); replaced {
		s.callbacks.notify(Notification{
			Kind: NotifyRevealReplaced,
			Text: "pending reveal time replaced",
		})
	}
}

// ScheduleMessage asks the server to deliver a message to the active
// conversation at a future time. The outcome arrives asynchronously as
// a NotifySchedule notification.
func (s *Session) ScheduleMessage(body string, at time.Time) error {
	id := s.reconciler.Active()
	if id.IsZero() {
		return ErrNoConversation
	}
	if err := s.gate.RequireUnlocked(id); err != nil {
		return err
	}

	frame := protocol.NewScheduleMessage(body, at.UTC().Format(time.RFC3339), at.Unix())
	if id.IsGroup() {
		frame.GroupID = id.GroupID
	} else {
		frame.Receiver = id.Peer
	}
	return s.conn.Send(frame)
}

// SendFile queues an outbound file for the active conversation and
// announces it. The payload itself goes out only when the server
// acknowledges readiness, one payload per acknowledgment. Returns
// ErrTransferQueueFull when too many transfers are already waiting.
func (s *Session) SendFile(name string, data []byte) error {
	id := s.reconciler.Active()
	if id.IsZero() {
		return ErrNoConversation
	}
	if err := s.gate.RequireUnlocked(id); err != nil {
		return err
	}

	if err := s.pending.QueueFile(FileTransfer{Name: name, Data: data, To: id}); err != nil {
		return err
	}
	frame := protocol.NewFileMeta(name)
	if id.IsGroup() {
		frame.GroupID = id.GroupID
	} else {
		frame.Receiver = id.Peer
	}
	if err := s.conn.Send(frame); err != nil {
		s.pending.unqueueLast()
		return err
	}
	return nil
}

// React adds a reaction to a message. Repeating an identical reaction
// is a no-op on the server.
func (s *Session) React(messageID int64, emoji string) error {
	return s.conn.Send(protocol.NewAddReaction(messageID, emoji))
}

// Unreact withdraws this user's reaction from a message.
func (s *Session) Unreact(messageID int64, emoji string) error {
	return s.conn.Send(protocol.NewRemoveReaction(messageID, emoji))
}

// Pin pins a message.
func (s *Session) Pin(messageID int64) error {
	return s.conn.Send(protocol.NewPinMessage(messageID))
}

// Unpin unpins a message.
func (s *Session) Unpin(messageID int64) error {
	return s.conn.Send(protocol.NewUnpinMessage(messageID))
}

// Edit replaces a message body. The rendered state changes when the
// server confirms with an edit event.
func (s *Session) Edit(messageID int64, body string) error {
	return s.conn.Send(protocol.NewEditMessage(messageID, body))
}

// Delete tombstones a message. Terminal once the server confirms.
func (s *Session) Delete(messageID int64) error {
	return s.conn.Send(protocol.NewDeleteMessage(messageID))
}

// Unlock verifies a DM lock PIN and, on success, unlocks the
// conversation for the remainder of this session.
func (s *Session) Unlock(ctx context.Context, peer, pin string) error {
	return s.gate.Unlock(ctx, peer, pin)
}

// UnlockGlobal verifies the global lock PIN for this session.
func (s *Session) UnlockGlobal(ctx context.Context, pin string) error {
	return s.gate.UnlockGlobal(ctx, pin)
}

// AddLocalLock installs a device-local conversation lock that is
// verified without the server.
func (s *Session) AddLocalLock(peer, pin string) error {
	return s.gate.AddLocalLock(peer, pin)
}

// CreateGame starts a game in a conversation.
func (s *Session) CreateGame(gameType string, in ConversationID) error {
	return s.games.Create(gameType, in)
}

// JoinGame joins a waiting game.
func (s *Session) JoinGame(gameID int64) error {
	return s.games.Join(gameID)
}

// RequestGameState asks the server for a full game snapshot.
func (s *Session) RequestGameState(gameID int64) error {
	return s.games.RequestState(gameID)
}

// Move submits a game move. Rejected locally while the game's move
// freeze is up, and for trivia when this user already answered the
// current question.
func (s *Session) Move(gameID int64, move string) error {
	return s.games.Move(gameID, move)
}

// Game returns the current view of a game.
func (s *Session) Game(gameID int64) (GameView, bool) {
	return s.games.View(gameID)
}

// CreatePoll creates a poll in a group.
func (s *Session) CreatePoll(groupID int64, question string, options []string, allowMultiple bool, expiresAt string) error {
	return s.polls.Create(groupID, question, options, allowMultiple, expiresAt)
}

// RequestPoll asks the server for a full poll snapshot.
func (s *Session) RequestPoll(pollID int64) error {
	return s.polls.Request(pollID)
}

// Vote submits a poll vote. Structurally invalid votes (no options,
// several options on a single-choice poll) are rejected locally.
func (s *Session) Vote(pollID int64, optionIDs []int64) error {
	return s.polls.Vote(pollID, optionIDs)
}

// Poll returns the current view of a poll.
func (s *Session) Poll(pollID int64) (PollView, bool) {
	return s.polls.View(pollID)
}

// SendSignal relays an outbound signaling frame unmodified. The frame
// is the collaborator's to shape; the session only carries it.
func (s *Session) SendSignal(frame []byte) error {
	return s.conn.SendRaw(frame)
}
