// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

// Message is a chat message as the server delivers it, either as a live
// push or as an entry in a history snapshot. The zero ID means the
// server has not assigned one (only possible for optimistic local
// entries; the server always sends an ID).
type Message struct {
	ID        int64  `json:"id,omitempty"`
	Sender    string `json:"sender_username,omitempty"`
	Receiver  string `json:"receiver_username,omitempty"`
	GroupID   int64  `json:"group_id,omitempty"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp,omitempty"`
	FileURL   string `json:"file_url,omitempty"`
	RevealAt  string `json:"reveal_at,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`

	// LocalID is the client-generated correlation id echoed back by
	// the server on the sender's own messages. It lets the reconciler
	// match the echo to the optimistic local entry.
	LocalID string `json:"local_id,omitempty"`

	// Reactions is only populated in pinned-list payloads and some
	// history variants; live reaction state arrives via reaction
	// events instead.
	Reactions map[string][]string `json:"reactions,omitempty"`
}

// Game status values as the server reports them.
const (
	GameStatusWaiting  = "waiting"
	GameStatusActive   = "active"
	GameStatusFinished = "finished"
)

// Game type values as the server reports them.
const (
	GameTypeChess     = "chess"
	GameTypeTicTacToe = "tictactoe"
	GameTypeTrivia    = "trivia"
)

// WinnerDraw is the reserved winner value for a drawn game.
const WinnerDraw = "draw"

// Game is a game session snapshot. GameState is an opaque
// JSON-serialized blob whose schema depends on Type; the client renders
// it but never derives rule outcomes from it.
type Game struct {
	ID          int64  `json:"id"`
	Type        string `json:"game_type"`
	Player1     string `json:"player1_username"`
	Player2     string `json:"player2_username,omitempty"`
	GameState   string `json:"game_state"`
	CurrentTurn string `json:"current_turn,omitempty"`
	Status      string `json:"status"`
	Winner      string `json:"winner,omitempty"`
}

// PollOption is one votable option of a poll.
type PollOption struct {
	ID        int64  `json:"id"`
	Text      string `json:"option_text"`
	VoteCount int    `json:"vote_count"`
	VotedByMe bool   `json:"voted_by_current_user"`
}

// Poll is a poll snapshot as returned by get_poll_details.
type Poll struct {
	ID            int64        `json:"id"`
	Question      string       `json:"question"`
	Creator       string       `json:"creator_username"`
	CreatedAt     string       `json:"created_at"`
	AllowMultiple bool         `json:"allow_multiple_choices"`
	TotalVotes    int          `json:"total_votes"`
	ExpiresAt     string       `json:"expires_at,omitempty"`
	Options       []PollOption `json:"options"`
}
