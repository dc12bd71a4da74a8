// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"errors"
	"sync"
	"time"
)

// ErrTransferQueueFull is returned by QueueFile when the bounded
// outbound transfer queue is at capacity.
var ErrTransferQueueFull = errors.New("chatsync: file transfer queue full")

// FileTransfer is one outbound file waiting for the server's
// file_ready acknowledgment.
type FileTransfer struct {
	Name string
	Data []byte
	// To is the destination conversation, captured at queue time so a
	// later conversation switch does not redirect the upload.
	To ConversationID
}

// PendingCache holds optimistic client state the server has not yet
// confirmed. Three independent compartments:
//
//   - Reaction buffers: reaction events that arrived before their
//     target message was materialized, keyed by message id, drained
//     exactly once at materialization.
//   - The pending reveal timestamp: a single slot applying to the next
//     message this user sends, consumed on send.
//   - The outbound file queue: bounded FIFO of transfers; each
//     file_ready acknowledgment releases exactly one.
//
// Safe for concurrent use.
type PendingCache struct {
	mu sync.Mutex

	reactions map[int64]map[string][]string

	revealAt  time.Time
	revealSet bool

	files    []FileTransfer
	capacity int
}

// NewPendingCache creates a cache whose file queue holds at most
// capacity transfers.
func NewPendingCache(capacity int) *PendingCache {
	return &PendingCache{
		reactions: make(map[int64]map[string][]string),
		capacity:  capacity,
	}
}

// BufferReactionAdd records a single reaction increment for a message
// that is not yet materialized. A reactor appears at most once per
// emoji.
func (p *PendingCache) BufferReactionAdd(messageID int64, emoji, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffer := p.reactions[messageID]
	if buffer == nil {
		buffer = make(map[string][]string)
		p.reactions[messageID] = buffer
	}
	for _, existing := range buffer[emoji] {
		if existing == username {
			return
		}
	}
	buffer[emoji] = append(buffer[emoji], username)
}

// BufferReactionRemove records a reaction removal for a message that is
// not yet materialized.
func (p *PendingCache) BufferReactionRemove(messageID int64, emoji, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffer := p.reactions[messageID]
	if buffer == nil {
		return
	}
	users := buffer[emoji]
	for i, existing := range users {
		if existing == username {
			buffer[emoji] = append(users[:i], users[i+1:]...)
			break
		}
	}
	if len(buffer[emoji]) == 0 {
		delete(buffer, emoji)
	}
	if len(buffer) == 0 {
		delete(p.reactions, messageID)
	}
}

// BufferReactionSnapshot replaces any buffered state for a message with
// a full server snapshot.
func (p *PendingCache) BufferReactionSnapshot(messageID int64, reactions map[string][]string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffer := make(map[string][]string, len(reactions))
	for emoji, users := range reactions {
		buffer[emoji] = append([]string(nil), users...)
	}
	p.reactions[messageID] = buffer
}

// DrainReactions returns and clears the buffered reaction state for a
// message. The second return is false when nothing was buffered. Call
// exactly once, at materialization; a second call finds nothing.
func (p *PendingCache) DrainReactions(messageID int64) (map[string][]string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	buffer, ok := p.reactions[messageID]
	if !ok {
		return nil, false
	}
	delete(p.reactions, messageID)
	return buffer, true
}

// SetPendingReveal arms the reveal slot for the next outbound message.
// When a value was already pending it is replaced, and the previous
// value is returned so the caller can tell the user what was
// discarded.
func (p *PendingCache) SetPendingReveal(revealAt time.Time) (previous time.Time, replaced bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous, replaced = p.revealAt, p.revealSet
	p.revealAt, p.revealSet = revealAt, true
	return previous, replaced
}

// TakePendingReveal consumes the reveal slot. The slot is cleared
// whether or not the server later echoes the value back.
func (p *PendingCache) TakePendingReveal() (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.revealSet {
		return time.Time{}, false
	}
	revealAt := p.revealAt
	p.revealAt, p.revealSet = time.Time{}, false
	return revealAt, true
}

// QueueFile appends an outbound transfer. Returns ErrTransferQueueFull
// at capacity; a full queue is the caller's problem to surface, never
// a silent drop.
func (p *PendingCache) QueueFile(transfer FileTransfer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.files) >= p.capacity {
		return ErrTransferQueueFull
	}
	p.files = append(p.files, transfer)
	return nil
}

// NextFile releases the oldest queued transfer. Called once per
// file_ready acknowledgment; returns false when the queue is empty.
func (p *PendingCache) NextFile() (FileTransfer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.files) == 0 {
		return FileTransfer{}, false
	}
	transfer := p.files[0]
	p.files = p.files[1:]
	return transfer, true
}

// unqueueLast discards the most recently queued transfer. Used to roll
// back a reservation when the announcing frame fails to send, so the
// queue only ever holds transfers the server knows about.
func (p *PendingCache) unqueueLast() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.files); n > 0 {
		p.files = p.files[:n-1]
	}
}

// QueuedFiles reports how many transfers are waiting.
func (p *PendingCache) QueuedFiles() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.files)
}
