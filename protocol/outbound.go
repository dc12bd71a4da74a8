// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Outbound frames. Each struct carries its discriminating "type" value
// in a Kind field populated by the New* constructor; building frames
// through the constructors keeps the type strings in this file only.

// GetConversation requests the full DM history with a peer.
type GetConversation struct {
	Kind     string `json:"type"`
	Receiver string `json:"receiver_username"`
}

func NewGetConversation(receiver string) GetConversation {
	return GetConversation{Kind: "get_conversation", Receiver: receiver}
}

// GetGroupConversation requests the full history of a group.
type GetGroupConversation struct {
	Kind    string `json:"type"`
	GroupID int64  `json:"group_id"`
}

func NewGetGroupConversation(groupID int64) GetGroupConversation {
	return GetGroupConversation{Kind: "get_group_conversation", GroupID: groupID}
}

// ChatMessage sends a DM. LocalID correlates the server's echo with the
// optimistic local entry. RevealAt, when set, time-locks the content.
type ChatMessage struct {
	Kind      string `json:"type"`
	Receiver  string `json:"receiver_username"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
	RevealAt  string `json:"reveal_at,omitempty"`
	LocalID   string `json:"local_id,omitempty"`
}

func NewChatMessage(receiver, body, timestamp string) ChatMessage {
	return ChatMessage{Kind: "chat_message", Receiver: receiver, Body: body, Timestamp: timestamp}
}

// GroupChatMessage sends a message to a group.
type GroupChatMessage struct {
	Kind      string `json:"type"`
	GroupID   int64  `json:"group_id"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
	RevealAt  string `json:"reveal_at,omitempty"`
	LocalID   string `json:"local_id,omitempty"`
}

func NewGroupChatMessage(groupID int64, body, timestamp string) GroupChatMessage {
	return GroupChatMessage{Kind: "group_message", GroupID: groupID, Body: body, Timestamp: timestamp}
}

// AddReaction reacts to a message. Repeating an identical reaction is
// an idempotent no-op on the server; removal is its own frame.
type AddReaction struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func NewAddReaction(messageID int64, emoji string) AddReaction {
	return AddReaction{Kind: "add_reaction", MessageID: messageID, Emoji: emoji}
}

// RemoveReaction withdraws this user's reaction from a message.
type RemoveReaction struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func NewRemoveReaction(messageID int64, emoji string) RemoveReaction {
	return RemoveReaction{Kind: "remove_reaction", MessageID: messageID, Emoji: emoji}
}

// PinMessage pins a message in its conversation.
type PinMessage struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

func NewPinMessage(messageID int64) PinMessage {
	return PinMessage{Kind: "pin_message", MessageID: messageID}
}

// UnpinMessage removes a pin.
type UnpinMessage struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

func NewUnpinMessage(messageID int64) UnpinMessage {
	return UnpinMessage{Kind: "unpin_message", MessageID: messageID}
}

// EditMessage replaces a message body.
type EditMessage struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Body      string `json:"message"`
}

func NewEditMessage(messageID int64, body string) EditMessage {
	return EditMessage{Kind: "edit_message", MessageID: messageID, Body: body}
}

// DeleteMessage recalls a message.
type DeleteMessage struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

func NewDeleteMessage(messageID int64) DeleteMessage {
	return DeleteMessage{Kind: "delete_message", MessageID: messageID}
}

// GetReactions requests the full reaction state of one message.
type GetReactions struct {
	Kind      string `json:"type"`
	MessageID int64  `json:"message_id"`
}

func NewGetReactions(messageID int64) GetReactions {
	return GetReactions{Kind: "get_reactions", MessageID: messageID}
}

// GetPinnedMessages requests the pinned-message list.
type GetPinnedMessages struct {
	Kind string `json:"type"`
}

func NewGetPinnedMessages() GetPinnedMessages {
	return GetPinnedMessages{Kind: "get_pinned_messages"}
}

// CreateGame starts a game in the current DM or group context.
type CreateGame struct {
	Kind     string `json:"type"`
	GameType string `json:"game_type"`
	Receiver string `json:"receiver_username,omitempty"`
	GroupID  int64  `json:"group_id,omitempty"`
}

func NewCreateGame(gameType string) CreateGame {
	return CreateGame{Kind: "create_game", GameType: gameType}
}

// JoinGame joins a waiting game as the second player.
type JoinGame struct {
	Kind   string `json:"type"`
	GameID int64  `json:"game_id"`
}

func NewJoinGame(gameID int64) JoinGame {
	return JoinGame{Kind: "join_game", GameID: gameID}
}

// GetGameState requests a full game snapshot.
type GetGameState struct {
	Kind   string `json:"type"`
	GameID int64  `json:"game_id"`
}

func NewGetGameState(gameID int64) GetGameState {
	return GetGameState{Kind: "get_game_state", GameID: gameID}
}

// GameMove submits a move. Move is an opaque JSON-serialized payload
// whose schema depends on the game type; the server validates it.
type GameMove struct {
	Kind   string `json:"type"`
	GameID int64  `json:"game_id"`
	Move   string `json:"game_move"`
}

func NewGameMove(gameID int64, move string) GameMove {
	return GameMove{Kind: "game_move", GameID: gameID, Move: move}
}

// CreatePoll starts a poll in a group.
type CreatePoll struct {
	Kind          string   `json:"type"`
	GroupID       int64    `json:"group_id"`
	Question      string   `json:"poll_question"`
	Options       []string `json:"poll_options"`
	AllowMultiple bool     `json:"poll_allow_multiple"`
	ExpiresAt     string   `json:"poll_expires_at,omitempty"`
}

func NewCreatePoll(groupID int64, question string, options []string, allowMultiple bool) CreatePoll {
	return CreatePoll{
		Kind:          "create_poll",
		GroupID:       groupID,
		Question:      question,
		Options:       options,
		AllowMultiple: allowMultiple,
	}
}

// GetPollDetails requests a full poll snapshot.
type GetPollDetails struct {
	Kind   string `json:"type"`
	PollID int64  `json:"poll_id"`
}

func NewGetPollDetails(pollID int64) GetPollDetails {
	return GetPollDetails{Kind: "get_poll_details", PollID: pollID}
}

// VotePoll submits one atomic vote for the selected options.
type VotePoll struct {
	Kind      string  `json:"type"`
	PollID    int64   `json:"poll_id"`
	OptionIDs []int64 `json:"poll_option_ids"`
}

func NewVotePoll(pollID int64, optionIDs []int64) VotePoll {
	return VotePoll{Kind: "vote_poll", PollID: pollID, OptionIDs: optionIDs}
}

// ScheduleMessage asks the server to deliver a message later. Both the
// ISO form and the epoch form are sent: the server trusts the epoch and
// logs the ISO.
type ScheduleMessage struct {
	Kind        string `json:"type"`
	Body        string `json:"message"`
	ScheduledAt string `json:"scheduled_at"`
	Epoch       int64  `json:"scheduled_at_epoch"`
	Receiver    string `json:"receiver_username,omitempty"`
	GroupID     int64  `json:"group_id,omitempty"`
}

func NewScheduleMessage(body, scheduledAt string, epoch int64) ScheduleMessage {
	return ScheduleMessage{Kind: "schedule_message", Body: body, ScheduledAt: scheduledAt, Epoch: epoch}
}

// FileMeta announces an outbound file. The server answers with
// file_ready, after which the client sends exactly one binary frame.
type FileMeta struct {
	Kind     string `json:"type"`
	Name     string `json:"message"`
	Receiver string `json:"receiver_username,omitempty"`
	GroupID  int64  `json:"group_id,omitempty"`
}

func NewFileMeta(name string) FileMeta {
	return FileMeta{Kind: "file_meta", Name: name}
}
