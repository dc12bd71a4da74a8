// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parley-sync is a headless Parley client. It logs in, opens the
// bidirectional channel, and keeps a session reconciled with the
// server, logging every state change it observes. It is the harness
// used to exercise a Parley deployment without a UI and the reference
// for embedding the chatsync package.
//
// Usage:
//
//	PARLEY_PASSWORD=... parley-sync --config parley.yaml --username alice [--register] [--watch bob]
//
// The password is read from PARLEY_PASSWORD so it never appears in
// process listings. With --register the account is created first; a
// conflict with an existing account is an error. With --watch the
// named peer's conversation is selected after connecting, so its
// history and live messages stream into the log.
//
// The process runs until SIGINT or SIGTERM, reconnecting with backoff
// across server restarts for as long as the login token is valid.
package main
