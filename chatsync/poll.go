// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"errors"
	"fmt"
	"sync"

	"github.com/parleychat/parley/protocol"
)

var (
	// ErrNoOptionsSelected is returned when a vote names zero options.
	// Rejected locally; no frame is sent.
	ErrNoOptionsSelected = errors.New("chatsync: no poll options selected")

	// ErrSingleChoicePoll is returned when multiple options are
	// submitted to a poll that does not allow multiple choices.
	ErrSingleChoicePoll = errors.New("chatsync: poll allows a single choice")

	// ErrUnknownPoll is returned when a vote targets a poll whose
	// details have not been loaded, so constraints cannot be checked.
	ErrUnknownPoll = errors.New("chatsync: unknown poll")
)

// PollOptionView is one option with its live tally.
type PollOptionView struct {
	ID        int64
	Text      string
	VoteCount int
	VotedByMe bool
}

// PollView is the render snapshot for one poll.
type PollView struct {
	ID            int64
	Question      string
	Creator       string
	AllowMultiple bool
	TotalVotes    int
	ExpiresAt     string
	Options       []PollOptionView
}

// PollManager tracks poll state and enforces the local vote
// constraints. Tallies come exclusively from poll_details frames;
// votes are never counted locally.
type PollManager struct {
	send   func(frame any) error
	update func(view PollView)

	mu    sync.Mutex
	polls map[int64]protocol.Poll
}

func newPollManager(send func(any) error, update func(PollView)) *PollManager {
	return &PollManager{
		send:   send,
		update: update,
		polls:  make(map[int64]protocol.Poll),
	}
}

// Create asks the server for a new poll in a group. At least two
// options and a non-empty question are required.
func (m *PollManager) Create(groupID int64, question string, options []string, allowMultiple bool, expiresAt string) error {
	if question == "" {
		return fmt.Errorf("chatsync: poll question is empty")
	}
	if len(options) < 2 {
		return fmt.Errorf("chatsync: poll needs at least two options, got %d", len(options))
	}
	frame := protocol.NewCreatePoll(groupID, question, options, allowMultiple)
	frame.ExpiresAt = expiresAt
	return m.send(frame)
}

// Request asks the server for a poll's details, which arrive as a
// poll_details frame.
func (m *PollManager) Request(pollID int64) error {
	return m.send(protocol.NewGetPollDetails(pollID))
}

// Vote submits one atomic vote. Zero options and multi-select on a
// single-choice poll are rejected locally without a network call. The
// poll's details must have been loaded first so the constraint is
// checkable.
func (m *PollManager) Vote(pollID int64, optionIDs []int64) error {
	if len(optionIDs) == 0 {
		return ErrNoOptionsSelected
	}

	m.mu.Lock()
	poll, ok := m.polls[pollID]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownPoll
	}
	if !poll.AllowMultiple && len(optionIDs) > 1 {
		return ErrSingleChoicePoll
	}

	return m.send(protocol.NewVotePoll(pollID, optionIDs))
}

// Handle merges a poll_details frame and emits the new snapshot.
func (m *PollManager) Handle(poll protocol.Poll) {
	m.mu.Lock()
	m.polls[poll.ID] = poll
	m.mu.Unlock()

	m.update(pollView(poll))
}

// View returns the current snapshot for a poll.
func (m *PollManager) View(pollID int64) (PollView, bool) {
	m.mu.Lock()
	poll, ok := m.polls[pollID]
	m.mu.Unlock()
	if !ok {
		return PollView{}, false
	}
	return pollView(poll), true
}

func pollView(poll protocol.Poll) PollView {
	view := PollView{
		ID:            poll.ID,
		Question:      poll.Question,
		Creator:       poll.Creator,
		AllowMultiple: poll.AllowMultiple,
		TotalVotes:    poll.TotalVotes,
		ExpiresAt:     poll.ExpiresAt,
	}
	for _, option := range poll.Options {
		view.Options = append(view.Options, PollOptionView{
			ID:        option.ID,
			Text:      option.Text,
			VoteCount: option.VoteCount,
			VotedByMe: option.VotedByMe,
		})
	}
	return view
}
