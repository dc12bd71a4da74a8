// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package api is the HTTP client for the chat server's REST surface:
// account registration and login, the user directory, group membership,
// and the DM and global lock endpoints.
//
// [Client] is unauthenticated and handles registration and login. A
// successful login yields a [Session], which carries the bearer token
// for every other call. The token is a JWT; [Session] reads its expiry
// claim without verifying the signature (the secret lives on the
// server) so the connection manager can stop redialing once the
// credential is dead instead of hammering a server that will refuse it.
//
// Server-side failures surface as *[Error] carrying the server's
// message and HTTP status; use errors.As or [IsStatus] to branch on
// them.
package api
