// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

// NotificationKind classifies transient user-visible notices.
type NotificationKind string

const (
	// NotifyGameError reports a server-rejected game action (not your
	// turn, game not active). Local state has been rolled back.
	NotifyGameError NotificationKind = "game_error"
	// NotifySchedule reports the outcome of a schedule_message request.
	NotifySchedule NotificationKind = "schedule"
	// NotifyRevealReplaced reports that arming the reveal slot
	// discarded a previously armed timestamp.
	NotifyRevealReplaced NotificationKind = "reveal_replaced"
)

// Notification is a transient, non-fatal notice for the UI. It never
// carries state the renderer must merge; affected views arrive through
// their own callbacks.
type Notification struct {
	Kind NotificationKind
	Text string
	// GameID is set for NotifyGameError.
	GameID int64
}

// Callbacks is how the engine reports reconciled state to the UI
// layer. Snapshot callbacks (ConversationUpdated, GameUpdated,
// PollUpdated) are replace-on-update: the receiver swaps its copy, it
// never merges. ReactionAdded/Removed and MessagePinned/Unpinned are
// additionally delivered as discrete deltas for cheap UI patching.
//
// All fields are optional; nil callbacks are skipped. Callbacks fire
// on the engine's event goroutine: do not block, and do not call back
// into the Session from inside one.
type Callbacks struct {
	ConversationUpdated func(view ConversationView)

	ReactionAdded   func(messageID int64, emoji, username string)
	ReactionRemoved func(messageID int64, emoji, username string)
	MessagePinned   func(messageID int64)
	MessageUnpinned func(messageID int64)

	// MessageRevealed fires when a reveal-delayed message unblurs.
	MessageRevealed func(messageID int64)

	// Unread reports the new counter for a conversation whenever a
	// delivery event passes through, whether or not it rendered.
	Unread func(id ConversationID, count int)

	// Typing reports a peer's typing indicator. active=false follows
	// automatically when the indicator goes stale or the peer's
	// message arrives.
	Typing func(id ConversationID, username string, active bool)

	GameUpdated func(view GameView)
	PollUpdated func(view PollView)

	Notification func(n Notification)

	// Signal receives raw WebRTC signaling frames addressed to this
	// user, unmodified, for the external call collaborator.
	Signal func(frame []byte)
}

func (c *Callbacks) conversationUpdated(view ConversationView) {
	if c.ConversationUpdated != nil {
		c.ConversationUpdated(view)
	}
}

func (c *Callbacks) notify(n Notification) {
	if c.Notification != nil {
		c.Notification(n)
	}
}
