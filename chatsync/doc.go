// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatsync keeps a client's view of conversations, reactions,
// pins, games, and polls consistent with the chat server across
// out-of-order delivery, reconnects, and optimistic local mutations.
//
// [Session] is the entry point: it owns the connection to the server,
// the per-conversation state, and the sub-state machines, and exposes
// the operations a UI layer calls (select a conversation, send, react,
// pin, play, vote). Inbound frames are decoded by package protocol and
// processed one at a time in arrival order; the UI observes results
// through [Callbacks], which deliver replace-on-update snapshots plus
// discrete add/remove callbacks for reactions and pins.
//
// The moving parts, each in its own file:
//
//   - Conn dials and redials the server with exponential backoff and
//     drives the resync burst after a reconnect.
//   - PendingCache holds optimistic state the server has not confirmed:
//     reactions that arrived before their message, the single pending
//     reveal timestamp, and queued outbound file transfers.
//   - Reconciler routes each decoded event to the right conversation,
//     deduplicates by server id, and merges it into local state.
//   - LockGate vetoes history fetch, send, and render for locked
//     conversations until a PIN verification succeeds; unlocks last for
//     the current session only.
//   - GameManager and PollManager layer turn-based games and poll
//     voting on top of the message stream.
//
// Nothing here touches the wall clock directly; every timer and
// timestamp goes through clock.Clock so tests drive time
// deterministically.
package chatsync
