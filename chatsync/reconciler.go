// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"log/slog"
	"sync"
	"time"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/protocol"
)

// typingExpiry is how long a typing indicator stays up without a
// refreshing event before it is cleared automatically.
const typingExpiry = 5 * time.Second

// Reconciler merges the inbound event stream into per-conversation
// state. It exclusively owns the rendered message set and the
// active-conversation identity; the lock gate can veto what it renders
// but never mutates message state.
//
// Events are processed one at a time. Only the active conversation and
// an optional secondary (split-pane) conversation hold message state;
// events for anything else are counted (unread) and dropped, because
// the server does not redeliver and history is re-fetched on
// selection anyway.
type Reconciler struct {
	user      string
	clock     clock.Clock
	logger    *slog.Logger
	callbacks *Callbacks
	pending   *PendingCache
	gate      *LockGate
	games     *GameManager
	polls     *PollManager
	send      func(frame any) error
	sendRaw   func(data []byte) error

	mu        sync.Mutex
	active    *conversationState
	secondary *conversationState
	unread    map[ConversationID]int
	// typingTimers auto-clear stale typing indicators, keyed by the
	// typist's username.
	typingTimers map[string]*clock.Timer
}

func newReconciler(user string, clk clock.Clock, logger *slog.Logger, callbacks *Callbacks, pending *PendingCache, gate *LockGate, games *GameManager, polls *PollManager, send func(any) error, sendRaw func([]byte) error) *Reconciler {
	return &Reconciler{
		user:         user,
		clock:        clk,
		logger:       logger,
		callbacks:    callbacks,
		pending:      pending,
		gate:         gate,
		games:        games,
		polls:        polls,
		send:         send,
		sendRaw:      sendRaw,
		unread:       make(map[ConversationID]int),
		typingTimers: make(map[string]*clock.Timer),
	}
}

// Handle routes one decoded inbound event.
func (r *Reconciler) Handle(event protocol.Event) {
	switch e := event.(type) {
	case protocol.DirectMessage:
		r.handleDelivery(e.Message, DM(r.peerOf(e.Message)))
	case protocol.GroupMessage:
		r.handleDelivery(e.Message, GroupChat(e.Message.GroupID))

	case protocol.ConversationHistory:
		r.handleHistory(DM(e.With), e.Messages)
	case protocol.GroupHistory:
		r.handleHistory(GroupChat(e.GroupID), e.Messages)

	case protocol.ReactionAdded:
		r.handleReactionAdded(e)
	case protocol.ReactionRemoved:
		r.handleReactionRemoved(e)
	case protocol.ReactionsList:
		r.handleReactionsList(e)

	case protocol.MessagePinned:
		r.handlePinFlag(e.MessageID, true)
	case protocol.MessageUnpinned:
		r.handlePinFlag(e.MessageID, false)
	case protocol.PinnedList:
		r.handlePinnedList(e.Messages)

	case protocol.MessageEdited:
		r.handleEdit(e)
	case protocol.MessageDeleted:
		r.handleDelete(e)

	case protocol.GameState:
		r.games.Handle(e.Game)
	case protocol.GameUpdate:
		r.games.Handle(e.Game)
	case protocol.GameCreated:
		r.games.Handle(e.Game)
	case protocol.GameJoined:
		r.games.Handle(e.Game)
	case protocol.GameError:
		r.games.HandleError(e.Err)

	case protocol.PollDetails:
		r.polls.Handle(e.Poll)

	case protocol.FileReady:
		r.handleFileReady()

	case protocol.ScheduleAck:
		r.handleScheduleAck(e)

	case protocol.Typing:
		r.handleTyping(e.Username)

	case protocol.CallSignal:
		// Signaling passthrough: only frames addressed to this user
		// reach the external call collaborator, unmodified.
		if e.To == r.user && r.callbacks.Signal != nil {
			r.callbacks.Signal(e.Raw)
		}

	case protocol.Unknown:
		r.logger.Debug("dropping unrecognized frame", "type", e.Type)
	}
}

// Resync re-fetches server state lost during a connection outage: one
// reaction-hydration request per rendered message and the pinned list,
// which is requested even when no messages are rendered.
func (r *Reconciler) Resync() {
	r.mu.Lock()
	var ids []int64
	for _, state := range r.renderedStates() {
		for _, m := range state.messages {
			if m.ID != 0 {
				ids = append(ids, m.ID)
			}
		}
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.send(protocol.NewGetReactions(id)); err != nil {
			r.logger.Warn("resync reaction request failed", "message_id", id, "error", err)
		}
	}
	if err := r.send(protocol.NewGetPinnedMessages()); err != nil {
		r.logger.Warn("resync pinned-list request failed", "error", err)
	}
}

// SetActive replaces the active conversation, zeroes its unread
// counter, and requests its history. The caller has already passed
// the lock gate.
func (r *Reconciler) SetActive(id ConversationID) error {
	r.mu.Lock()
	r.active = newConversationState(id)
	r.unread[id] = 0
	r.mu.Unlock()

	if r.callbacks.Unread != nil {
		r.callbacks.Unread(id, 0)
	}
	if id.IsGroup() {
		return r.send(protocol.NewGetGroupConversation(id.GroupID))
	}
	return r.send(protocol.NewGetConversation(id.Peer))
}

// SetSecondary opens a conversation in the split pane.
func (r *Reconciler) SetSecondary(id ConversationID) error {
	r.mu.Lock()
	r.secondary = newConversationState(id)
	r.unread[id] = 0
	r.mu.Unlock()

	if r.callbacks.Unread != nil {
		r.callbacks.Unread(id, 0)
	}
	if id.IsGroup() {
		return r.send(protocol.NewGetGroupConversation(id.GroupID))
	}
	return r.send(protocol.NewGetConversation(id.Peer))
}

// ClearSecondary closes the split pane.
func (r *Reconciler) ClearSecondary() {
	r.mu.Lock()
	r.secondary = nil
	r.mu.Unlock()
}

// Active returns the active conversation id.
func (r *Reconciler) Active() ConversationID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ConversationID{}
	}
	return r.active.id
}

// ActiveView returns the current snapshot of the active conversation.
func (r *Reconciler) ActiveView() (ConversationView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ConversationView{}, false
	}
	return r.active.view(), true
}

// Unread returns the unread counter for a conversation.
func (r *Reconciler) Unread(id ConversationID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unread[id]
}

// AppendLocal inserts an optimistic outbound message into the active
// conversation ahead of its server echo.
func (r *Reconciler) AppendLocal(view MessageView) {
	r.mu.Lock()
	if r.active == nil {
		r.mu.Unlock()
		return
	}
	state := r.active
	m := &messageState{MessageView: view}
	state.add(m)
	snapshot := state.view()
	r.mu.Unlock()

	r.callbacks.conversationUpdated(snapshot)
}

// peerOf names the other participant of a DM from this client's
// perspective.
func (r *Reconciler) peerOf(m protocol.Message) string {
	if m.Sender == r.user {
		return m.Receiver
	}
	return m.Sender
}

// target returns the rendered state for a conversation, or nil when
// it is neither the active nor the secondary selection.
func (r *Reconciler) target(id ConversationID) *conversationState {
	if r.active != nil && r.active.id == id {
		return r.active
	}
	if r.secondary != nil && r.secondary.id == id {
		return r.secondary
	}
	return nil
}

func (r *Reconciler) handleDelivery(m protocol.Message, id ConversationID) {
	r.clearTyping(m.Sender)

	r.mu.Lock()
	viewed := r.target(id) != nil
	if m.Sender != r.user && !viewed {
		r.unread[id]++
	}
	count := r.unread[id]
	r.mu.Unlock()

	if m.Sender != r.user && !viewed && r.callbacks.Unread != nil {
		r.callbacks.Unread(id, count)
	}

	if r.gate.Blocked(id) {
		r.logger.Debug("dropping delivery for locked conversation", "conversation", id.String())
		return
	}

	r.mu.Lock()
	state := r.target(id)
	if state == nil {
		r.mu.Unlock()
		r.logger.Debug("dropping delivery for unselected conversation",
			"conversation", id.String(), "message_id", m.ID)
		return
	}
	changed := r.materialize(state, m, false)
	var snapshot ConversationView
	if changed {
		snapshot = state.view()
	}
	r.mu.Unlock()

	if changed {
		r.callbacks.conversationUpdated(snapshot)
	}
}

func (r *Reconciler) handleHistory(id ConversationID, messages []protocol.Message) {
	if r.gate.Blocked(id) {
		r.logger.Debug("dropping history for locked conversation", "conversation", id.String())
		return
	}

	r.mu.Lock()
	current := r.target(id)
	if current == nil {
		r.mu.Unlock()
		r.logger.Debug("dropping history for unselected conversation", "conversation", id.String())
		return
	}

	// Replace, then replay in server order (oldest first). Messages
	// arriving via replay are marked historical.
	fresh := newConversationState(id)
	fresh.pinned = current.pinned
	for _, m := range messages {
		r.materialize(fresh, m, true)
	}
	// The same conversation can be open in both panes; replace every
	// slot that renders it so no pane keeps the pre-replay state.
	if r.active != nil && r.active.id == id {
		r.active = fresh
	}
	if r.secondary != nil && r.secondary.id == id {
		r.secondary = fresh
	}

	var ids []int64
	for _, m := range fresh.messages {
		if m.ID != 0 {
			ids = append(ids, m.ID)
		}
	}
	snapshot := fresh.view()
	r.mu.Unlock()

	r.callbacks.conversationUpdated(snapshot)

	// Reactions and pins are not embedded in history payloads; hydrate
	// them with one request per message plus the pinned list.
	for _, messageID := range ids {
		if err := r.send(protocol.NewGetReactions(messageID)); err != nil {
			r.logger.Warn("reaction hydration request failed", "message_id", messageID, "error", err)
		}
	}
	if err := r.send(protocol.NewGetPinnedMessages()); err != nil {
		r.logger.Warn("pinned-list request failed", "error", err)
	}
}

// materialize merges one message into a conversation state. Returns
// false when the message was a duplicate of an existing entry. Caller
// holds r.mu.
func (r *Reconciler) materialize(state *conversationState, m protocol.Message, historical bool) bool {
	// Deduplicate on the server-assigned id: a message pushed live and
	// then included in a history page renders once.
	if existing := state.lookup(m.ID); existing != nil {
		return false
	}

	// Reconcile the echo of an optimistic send with its local entry
	// instead of appending a duplicate.
	if m.LocalID != "" {
		if local := state.byLocal[m.LocalID]; local != nil && local.ID == 0 {
			local.ID = m.ID
			state.byID[m.ID] = local
			local.Body = m.Body
			if timestamp, err := protocol.ParseTimestamp(m.Timestamp); err == nil {
				local.Timestamp = timestamp
			}
			local.FileURL = m.FileURL
			// The optimistic entry could not arm a reveal timer
			// before it had a server id; arm it now.
			if m.RevealAt != "" {
				r.scheduleReveal(local, m.RevealAt)
			}
			r.applyPendingReactions(state, local)
			return true
		}
	}

	entry := &messageState{MessageView: MessageView{
		ID:         m.ID,
		LocalID:    m.LocalID,
		Sender:     m.Sender,
		Body:       m.Body,
		FileURL:    m.FileURL,
		Historical: historical,
		Deleted:    m.Deleted,
	}}
	if entry.Deleted {
		entry.Body = ""
	}

	timestamp, err := protocol.ParseTimestamp(m.Timestamp)
	if err != nil {
		// A bad timestamp degrades to arrival time; the message still
		// renders.
		r.logger.Warn("unparseable message timestamp",
			"message_id", m.ID, "timestamp", m.Timestamp, "error", err)
		timestamp = r.clock.Now()
	}
	entry.Timestamp = timestamp

	if m.RevealAt != "" && !entry.Deleted {
		r.scheduleReveal(entry, m.RevealAt)
	}

	if len(m.Reactions) > 0 {
		entry.Reactions = make(map[string][]string, len(m.Reactions))
		for emoji, users := range m.Reactions {
			entry.Reactions[emoji] = append([]string(nil), users...)
		}
	}

	state.add(entry)
	r.applyPendingReactions(state, entry)
	return true
}

// applyPendingReactions drains buffered reaction state for a freshly
// materialized message. The drain clears the buffer, so a duplicate
// materialization attempt finds nothing to reapply. Caller holds r.mu.
func (r *Reconciler) applyPendingReactions(state *conversationState, m *messageState) {
	buffered, ok := r.pending.DrainReactions(m.ID)
	if !ok {
		return
	}
	m.Reactions = buffered
}

// scheduleReveal obscures a reveal-delayed message and arms its
// unblur timer. A timestamp already in the past renders clear
// immediately. Caller holds r.mu.
func (r *Reconciler) scheduleReveal(entry *messageState, revealAt string) {
	parsed, err := protocol.ParseTimestamp(revealAt)
	if err != nil {
		r.logger.Warn("unparseable reveal timestamp", "message_id", entry.ID, "reveal_at", revealAt, "error", err)
		return
	}
	entry.RevealAt = parsed

	remaining := parsed.Sub(r.clock.Now())
	if remaining <= 0 {
		entry.Obscured = false
		return
	}
	entry.Obscured = true

	messageID := entry.ID
	r.clock.AfterFunc(remaining, func() {
		r.mu.Lock()
		var snapshot ConversationView
		revealed := false
		for _, state := range r.renderedStates() {
			if m := state.lookup(messageID); m != nil && m.Obscured {
				m.Obscured = false
				snapshot = state.view()
				revealed = true
				break
			}
		}
		r.mu.Unlock()

		// The message may have been cleared by a history replace or
		// already revealed by a duplicate timer; firing then is a
		// no-op.
		if !revealed {
			return
		}
		if r.callbacks.MessageRevealed != nil {
			r.callbacks.MessageRevealed(messageID)
		}
		r.callbacks.conversationUpdated(snapshot)
	})
}

func (r *Reconciler) handleReactionAdded(e protocol.ReactionAdded) {
	r.mu.Lock()
	m, state := r.findMessage(e.MessageID)
	if m == nil {
		r.mu.Unlock()
		r.pending.BufferReactionAdd(e.MessageID, e.Emoji, e.Username)
		return
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string][]string)
	}
	applied := false
	if !contains(m.Reactions[e.Emoji], e.Username) {
		m.Reactions[e.Emoji] = append(m.Reactions[e.Emoji], e.Username)
		applied = true
	}
	var snapshot ConversationView
	if applied {
		snapshot = state.view()
	}
	r.mu.Unlock()

	if !applied {
		return
	}
	if r.callbacks.ReactionAdded != nil {
		r.callbacks.ReactionAdded(e.MessageID, e.Emoji, e.Username)
	}
	r.callbacks.conversationUpdated(snapshot)
}

func (r *Reconciler) handleReactionRemoved(e protocol.ReactionRemoved) {
	r.mu.Lock()
	m, state := r.findMessage(e.MessageID)
	if m == nil {
		r.mu.Unlock()
		r.pending.BufferReactionRemove(e.MessageID, e.Emoji, e.Username)
		return
	}
	applied := false
	users := m.Reactions[e.Emoji]
	for i, user := range users {
		if user == e.Username {
			m.Reactions[e.Emoji] = append(users[:i], users[i+1:]...)
			applied = true
			break
		}
	}
	if applied && len(m.Reactions[e.Emoji]) == 0 {
		delete(m.Reactions, e.Emoji)
	}
	var snapshot ConversationView
	if applied {
		snapshot = state.view()
	}
	r.mu.Unlock()

	if !applied {
		return
	}
	if r.callbacks.ReactionRemoved != nil {
		r.callbacks.ReactionRemoved(e.MessageID, e.Emoji, e.Username)
	}
	r.callbacks.conversationUpdated(snapshot)
}

func (r *Reconciler) handleReactionsList(e protocol.ReactionsList) {
	r.mu.Lock()
	m, state := r.findMessage(e.MessageID)
	if m == nil {
		r.mu.Unlock()
		r.pending.BufferReactionSnapshot(e.MessageID, e.Reactions)
		return
	}
	m.Reactions = make(map[string][]string, len(e.Reactions))
	for emoji, users := range e.Reactions {
		m.Reactions[emoji] = append([]string(nil), users...)
	}
	snapshot := state.view()
	r.mu.Unlock()

	r.callbacks.conversationUpdated(snapshot)
}

func (r *Reconciler) handlePinFlag(messageID int64, pinned bool) {
	r.mu.Lock()
	m, state := r.findMessage(messageID)
	if m == nil {
		r.mu.Unlock()
		r.logger.Debug("dropping pin delta for unrendered message", "message_id", messageID)
		return
	}
	m.Pinned = pinned
	snapshot := state.view()
	r.mu.Unlock()

	if pinned && r.callbacks.MessagePinned != nil {
		r.callbacks.MessagePinned(messageID)
	}
	if !pinned && r.callbacks.MessageUnpinned != nil {
		r.callbacks.MessageUnpinned(messageID)
	}
	r.callbacks.conversationUpdated(snapshot)
}

// handlePinnedList replaces the server-ordered pinned list for the
// rendered conversations. The order is the server's; the client never
// infers it.
func (r *Reconciler) handlePinnedList(messages []protocol.Message) {
	r.mu.Lock()
	var snapshots []ConversationView
	for _, state := range r.renderedStates() {
		var order []int64
		pinnedSet := make(map[int64]bool)
		for _, m := range messages {
			if r.conversationOf(m) != state.id {
				continue
			}
			order = append(order, m.ID)
			pinnedSet[m.ID] = true
		}
		state.pinned = order
		for _, m := range state.messages {
			m.Pinned = pinnedSet[m.ID]
		}
		snapshots = append(snapshots, state.view())
	}
	r.mu.Unlock()

	for _, snapshot := range snapshots {
		r.callbacks.conversationUpdated(snapshot)
	}
}

// conversationOf classifies a message's conversation by field
// presence.
func (r *Reconciler) conversationOf(m protocol.Message) ConversationID {
	if m.GroupID != 0 {
		return GroupChat(m.GroupID)
	}
	return DM(r.peerOf(m))
}

func (r *Reconciler) handleEdit(e protocol.MessageEdited) {
	r.mu.Lock()
	m, state := r.findMessage(e.MessageID)
	if m == nil || m.Deleted {
		// Tombstones are terminal; a late edit cannot resurrect one.
		r.mu.Unlock()
		return
	}
	m.Body = e.Body
	m.Edited = true
	snapshot := state.view()
	r.mu.Unlock()

	r.callbacks.conversationUpdated(snapshot)
}

func (r *Reconciler) handleDelete(e protocol.MessageDeleted) {
	r.mu.Lock()
	m, state := r.findMessage(e.MessageID)
	if m == nil {
		r.mu.Unlock()
		return
	}
	m.Deleted = true
	m.Body = ""
	m.Edited = false
	m.Obscured = false
	snapshot := state.view()
	r.mu.Unlock()

	r.callbacks.conversationUpdated(snapshot)
}

func (r *Reconciler) handleFileReady() {
	transfer, ok := r.pending.NextFile()
	if !ok {
		r.logger.Warn("file_ready with no queued transfer")
		return
	}
	if err := r.sendRaw(transfer.Data); err != nil {
		r.logger.Warn("file payload send failed", "name", transfer.Name, "error", err)
	}
}

func (r *Reconciler) handleScheduleAck(e protocol.ScheduleAck) {
	text := "message scheduled"
	if !e.OK {
		text = "schedule failed: " + e.Err
	}
	r.callbacks.notify(Notification{Kind: NotifySchedule, Text: text})
}

// handleTyping raises the typing indicator for a DM peer and arms its
// expiry. A repeat event extends the expiry; the peer's message
// arrival clears it immediately.
func (r *Reconciler) handleTyping(username string) {
	if username == "" || username == r.user {
		return
	}
	id := DM(username)

	r.mu.Lock()
	if timer, ok := r.typingTimers[username]; ok {
		timer.Reset(typingExpiry)
		r.mu.Unlock()
		return
	}
	r.typingTimers[username] = r.clock.AfterFunc(typingExpiry, func() {
		r.mu.Lock()
		delete(r.typingTimers, username)
		r.mu.Unlock()
		if r.callbacks.Typing != nil {
			r.callbacks.Typing(id, username, false)
		}
	})
	r.mu.Unlock()

	if r.callbacks.Typing != nil {
		r.callbacks.Typing(id, username, true)
	}
}

// clearTyping drops the typing indicator for a user whose message just
// arrived.
func (r *Reconciler) clearTyping(username string) {
	r.mu.Lock()
	timer, ok := r.typingTimers[username]
	if ok {
		timer.Stop()
		delete(r.typingTimers, username)
	}
	r.mu.Unlock()

	if ok && r.callbacks.Typing != nil {
		r.callbacks.Typing(DM(username), username, false)
	}
}

// findMessage locates a rendered message by server id across the
// active and secondary conversations. Caller holds r.mu.
func (r *Reconciler) findMessage(id int64) (*messageState, *conversationState) {
	for _, state := range r.renderedStates() {
		if m := state.lookup(id); m != nil {
			return m, state
		}
	}
	return nil, nil
}

// renderedStates returns the distinct rendered states. Both panes
// share one state when they show the same conversation. Caller holds
// r.mu.
func (r *Reconciler) renderedStates() []*conversationState {
	var states []*conversationState
	if r.active != nil {
		states = append(states, r.active)
	}
	if r.secondary != nil && r.secondary != r.active {
		states = append(states, r.secondary)
	}
	return states
}

func contains(users []string, username string) bool {
	for _, user := range users {
		if user == username {
			return true
		}
	}
	return false
}
