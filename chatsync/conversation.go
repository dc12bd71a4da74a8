// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"fmt"
	"time"
)

// ConversationID identifies the unit of message history and lock
// scope: a DM peer or a group. The zero value means "no conversation".
type ConversationID struct {
	// Peer is the other participant's username for a DM.
	Peer string
	// GroupID is the group identifier; nonzero means a group
	// conversation and Peer is empty.
	GroupID int64
}

// DM returns the conversation id for a direct-message pair, identified
// from this client's perspective by the other participant.
func DM(peer string) ConversationID { return ConversationID{Peer: peer} }

// GroupChat returns the conversation id for a group.
func GroupChat(groupID int64) ConversationID { return ConversationID{GroupID: groupID} }

// IsGroup reports whether the conversation is a group chat.
func (c ConversationID) IsGroup() bool { return c.GroupID != 0 }

// IsZero reports whether no conversation is identified.
func (c ConversationID) IsZero() bool { return c.Peer == "" && c.GroupID == 0 }

func (c ConversationID) String() string {
	if c.IsGroup() {
		return fmt.Sprintf("group:%d", c.GroupID)
	}
	return "dm:" + c.Peer
}

// MessageView is one reconciled message as the renderer should show
// it. Views are value snapshots; mutating one has no effect on the
// engine's state.
type MessageView struct {
	// ID is the server-assigned id, 0 while an optimistic send awaits
	// its echo.
	ID int64
	// LocalID correlates an optimistic send with its server echo.
	LocalID   string
	Sender    string
	Body      string
	Timestamp time.Time
	FileURL   string

	// Historical marks messages that arrived via history replay rather
	// than live push. Affects available actions, not content.
	Historical bool
	Edited     bool
	// Deleted marks a tombstone. Terminal: no event un-deletes.
	Deleted bool

	// Obscured is true while a reveal-delayed message waits for its
	// RevealAt instant.
	Obscured bool
	RevealAt time.Time

	Pinned    bool
	Reactions map[string][]string
}

// ConversationView is the replace-on-update snapshot handed to the
// renderer after any change to a conversation's state.
type ConversationView struct {
	ID       ConversationID
	Messages []MessageView
	// Pinned is the server-ordered pinned message ids.
	Pinned []int64
}

// conversationState is the reconciler's mutable state for one rendered
// conversation (the active selection or the secondary split pane).
type conversationState struct {
	id       ConversationID
	messages []*messageState
	byID     map[int64]*messageState
	byLocal  map[string]*messageState
	pinned   []int64
}

type messageState struct {
	MessageView
}

func newConversationState(id ConversationID) *conversationState {
	return &conversationState{
		id:      id,
		byID:    make(map[int64]*messageState),
		byLocal: make(map[string]*messageState),
	}
}

// lookup finds a message by server id. Returns nil when the id is 0 or
// unknown.
func (c *conversationState) lookup(id int64) *messageState {
	if id == 0 {
		return nil
	}
	return c.byID[id]
}

// add appends a message and indexes it. The caller has already
// established that no entry with the same server id exists.
func (c *conversationState) add(m *messageState) {
	c.messages = append(c.messages, m)
	if m.ID != 0 {
		c.byID[m.ID] = m
	}
	if m.LocalID != "" {
		c.byLocal[m.LocalID] = m
	}
}

// view builds a value snapshot of the conversation.
func (c *conversationState) view() ConversationView {
	view := ConversationView{ID: c.id}
	view.Messages = make([]MessageView, len(c.messages))
	for i, m := range c.messages {
		snapshot := m.MessageView
		if len(m.Reactions) > 0 {
			snapshot.Reactions = make(map[string][]string, len(m.Reactions))
			for emoji, users := range m.Reactions {
				snapshot.Reactions[emoji] = append([]string(nil), users...)
			}
		}
		view.Messages[i] = snapshot
	}
	view.Pinned = append([]int64(nil), c.pinned...)
	return view
}
