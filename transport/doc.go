// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries JSON frames between the sync engine and the
// chat server.
//
// The package defines one interface, [Channel]: a bidirectional stream
// of text frames with context-aware Send and Receive. The engine never
// sees WebSocket details; it hands a Channel outbound frames and reads
// inbound ones until the Channel errors, at which point the connection
// manager tears it down and dials a fresh one.
//
// The production implementation, [WebSocketChannel], wraps a
// fasthttp/websocket client connection. Writes are serialized with a
// mutex because the engine sends from multiple goroutines (the resync
// burst and user operations overlap); reads come from the single
// receive loop. [MemoryChannel] is the in-process twin for tests: a
// [NewMemoryPair] returns two ends of a pipe so a fake server goroutine
// can script exact frame sequences.
package transport
