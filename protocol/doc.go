// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the wire shapes exchanged with the chat
// server and the decode step that turns raw inbound frames into a
// closed set of typed events.
//
// The server's frames are JSON with a discriminating "type" field for
// most events; message delivery events carry no type and are identified
// by field presence (sender_username + receiver_username for DMs,
// group_id for group messages). Decode hides both conventions behind
// one total function: every frame becomes exactly one [Event] variant
// or a decode error, so routing code downstream can switch over a
// sealed set instead of re-inspecting JSON.
//
// Two server quirks are handled at this boundary and nowhere else:
//
//   - System-wrapped frames: a delivery event from the reserved sender
//     "system" whose body is itself a JSON object is unwrapped once and
//     re-decoded. The server uses this envelope for events it fans out
//     through the ordinary message path.
//   - Variable-precision timestamps: reveal_at and timestamp strings
//     may carry more fractional-second digits than RFC 3339 parsers
//     accept. ParseTimestamp degrades gracefully: full precision,
//     then truncated to milliseconds, then with the fraction removed.
//
// Call signaling frames (call_offer, call_answer, call_ice, call_end,
// call_need_offer) are decoded only far enough to route them; their
// payload travels as the raw frame bytes so the WebRTC collaborator
// receives them unmodified.
package protocol
