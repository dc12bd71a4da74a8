// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Event is the closed set of inbound server events. Every frame the
// decoder accepts becomes exactly one of the variants below; routing
// code switches over the concrete type and treats the default case as
// unreachable (the decoder maps unrecognized frames to [Unknown]).
type Event interface {
	event()
}

// DirectMessage is a live DM delivery (no "type" field on the wire;
// identified by sender_username + receiver_username).
type DirectMessage struct {
	Message Message
}

// GroupMessage is a live group message delivery (identified by
// group_id plus a sender).
type GroupMessage struct {
	Message Message
}

// ConversationHistory is the full history snapshot for a DM
// conversation, oldest first.
type ConversationHistory struct {
	With     string
	Messages []Message
}

// GroupHistory is the full history snapshot for a group, oldest first.
type GroupHistory struct {
	GroupID  int64
	Messages []Message
}

// ReactionAdded is an incremental reaction delta.
type ReactionAdded struct {
	MessageID int64
	Emoji     string
	Username  string
}

// ReactionRemoved is an incremental reaction delta.
type ReactionRemoved struct {
	MessageID int64
	Emoji     string
	Username  string
}

// ReactionsList is the full reaction state for one message, sent in
// response to get_reactions.
type ReactionsList struct {
	MessageID int64
	Reactions map[string][]string
}

// MessagePinned is an incremental pin delta.
type MessagePinned struct {
	MessageID int64
}

// MessageUnpinned is an incremental pin delta.
type MessageUnpinned struct {
	MessageID int64
}

// PinnedList is the full pinned-message list in server order, sent in
// response to get_pinned_messages.
type PinnedList struct {
	Messages []Message
}

// MessageEdited replaces a message body in place.
type MessageEdited struct {
	MessageID int64
	Body      string
}

// MessageDeleted tombstones a message. The transition is terminal.
type MessageDeleted struct {
	MessageID int64
}

// GameState is a full game snapshot sent in response to get_game_state.
type GameState struct {
	Game Game
}

// GameUpdate is a server push after a state-changing game event.
type GameUpdate struct {
	Game Game
}

// GameCreated confirms create_game.
type GameCreated struct {
	Game Game
}

// GameJoined confirms join_game.
type GameJoined struct {
	Game Game
}

// GameError reports a rejected game request (wrong turn, game not
// joinable, ...). Domain error: surfaced, never fatal.
type GameError struct {
	Err string
}

// PollDetails is a full poll snapshot sent in response to
// get_poll_details.
type PollDetails struct {
	Poll Poll
}

// FileReady acknowledges file_meta; the client answers with exactly one
// binary frame.
type FileReady struct{}

// ScheduleAck reports the outcome of schedule_message.
type ScheduleAck struct {
	OK  bool
	Err string
}

// Typing is a presence event: the named user is typing.
type Typing struct {
	Username string
}

// CallSignal is a WebRTC signaling frame. The sync core routes it by
// Kind and To but never interprets it; Raw is the complete frame as
// received, handed to the signaling collaborator unmodified.
type CallSignal struct {
	Kind string // call_offer, call_answer, call_ice, call_end, call_need_offer
	From string
	To   string
	Raw  []byte
}

// Unknown is a frame with an unrecognized type. Routed to a
// log-and-drop path; never an error, so one unexpected server frame
// cannot wedge the receive loop.
type Unknown struct {
	Type string
	Raw  []byte
}

func (DirectMessage) event()       {}
func (GroupMessage) event()        {}
func (ConversationHistory) event() {}
func (GroupHistory) event()        {}
func (ReactionAdded) event()       {}
func (ReactionRemoved) event()     {}
func (ReactionsList) event()       {}
func (MessagePinned) event()       {}
func (MessageUnpinned) event()     {}
func (PinnedList) event()          {}
func (MessageEdited) event()       {}
func (MessageDeleted) event()      {}
func (GameState) event()           {}
func (GameUpdate) event()          {}
func (GameCreated) event()         {}
func (GameJoined) event()          {}
func (GameError) event()           {}
func (PollDetails) event()         {}
func (FileReady) event()           {}
func (ScheduleAck) event()         {}
func (Typing) event()              {}
func (CallSignal) event()          {}
func (Unknown) event()             {}
