// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/parleychat/parley/api"
	"github.com/parleychat/parley/lib/clock"
)

var (
	// ErrLocked is returned when an operation requires an unlocked
	// conversation and the PIN has not been verified this session.
	ErrLocked = errors.New("chatsync: conversation is locked")

	// ErrTooManyAttempts is returned when PIN verification is throttled
	// after repeated failures. No network call is made while throttled.
	ErrTooManyAttempts = errors.New("chatsync: too many failed unlock attempts")

	// ErrWrongPIN is returned when the server (or a local lock entry)
	// rejects the PIN. The lock stays engaged; the caller re-prompts.
	ErrWrongPIN = errors.New("chatsync: incorrect PIN")
)

// LockVerifier is the HTTP collaborator surface the gate needs. An
// *api.Session satisfies it.
type LockVerifier interface {
	DMLockStatus(ctx context.Context, peer string) (*api.DMLockStatus, error)
	VerifyDMLock(ctx context.Context, peer, pin string) (bool, error)
	GlobalLockStatus(ctx context.Context) (*api.GlobalLockStatus, error)
	VerifyGlobalLock(ctx context.Context, pin string) (bool, error)
}

// globalScope is the gate's internal key for the account-wide lock.
// Usernames cannot collide with it.
const globalScope = "\x00global"

// localLock is a legacy client-managed lock entry: the PIN hash never
// left this device. Still honored for verification; new locks are
// always server-backed.
type localLock struct {
	salt [16]byte
	hash [32]byte
}

// LockGate gates history fetch, send, and render on PIN verification.
// Lock scopes are per DM peer plus one global scope. An unlock lasts
// for the lifetime of this gate only; a new session starts locked
// again.
type LockGate struct {
	verifier    LockVerifier
	clock       clock.Clock
	maxAttempts int
	cooldown    time.Duration

	mu sync.Mutex
	// locked is the last known lock state per scope. Scopes absent
	// from the map have never been checked and do not veto.
	locked   map[string]bool
	unlocked map[string]bool
	local    map[string]localLock

	failures      map[string]int
	cooldownUntil map[string]time.Time
}

// NewLockGate creates a gate. maxAttempts consecutive failures on one
// scope start a cooldown during which verification is refused locally.
func NewLockGate(verifier LockVerifier, clk clock.Clock, maxAttempts int, cooldown time.Duration) *LockGate {
	return &LockGate{
		verifier:      verifier,
		clock:         clk,
		maxAttempts:   maxAttempts,
		cooldown:      cooldown,
		locked:        make(map[string]bool),
		unlocked:      make(map[string]bool),
		local:         make(map[string]localLock),
		failures:      make(map[string]int),
		cooldownUntil: make(map[string]time.Time),
	}
}

// Refresh queries the server for the lock state of a DM conversation
// and caches it. Called before selecting a conversation.
func (g *LockGate) Refresh(ctx context.Context, peer string) error {
	status, err := g.verifier.DMLockStatus(ctx, peer)
	if err != nil {
		return fmt.Errorf("chatsync: lock status for %q: %w", peer, err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked[peer] = status.Locked
	return nil
}

// RefreshGlobal queries and caches the account-wide lock state.
// Called once at session start.
func (g *LockGate) RefreshGlobal(ctx context.Context) error {
	status, err := g.verifier.GlobalLockStatus(ctx)
	if err != nil {
		return fmt.Errorf("chatsync: global lock status: %w", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.locked[globalScope] = status.Enabled
	return nil
}

// AddLocalLock installs a client-managed lock for a DM peer, hashing
// the PIN with a fresh random salt. Verification for this peer then
// happens locally instead of through the server.
func (g *LockGate) AddLocalLock(peer, pin string) error {
	var entry localLock
	if _, err := rand.Read(entry.salt[:]); err != nil {
		return fmt.Errorf("chatsync: generating lock salt: %w", err)
	}
	entry.hash = saltedHash(entry.salt, pin)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.local[peer] = entry
	g.locked[peer] = true
	delete(g.unlocked, peer)
	return nil
}

// Blocked reports whether a conversation's events must be withheld
// from render. Group conversations are never lock-scoped; a DM blocks
// when its last known state is locked and no session unlock happened.
// The global lock blocks everything.
func (g *LockGate) Blocked(id ConversationID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.locked[globalScope] && !g.unlocked[globalScope] {
		return true
	}
	if id.IsGroup() || id.IsZero() {
		return false
	}
	return g.locked[id.Peer] && !g.unlocked[id.Peer]
}

// RequireUnlocked returns ErrLocked when the conversation is blocked.
func (g *LockGate) RequireUnlocked(id ConversationID) error {
	if g.Blocked(id) {
		return ErrLocked
	}
	return nil
}

// Unlock verifies a PIN for a DM conversation. On success the scope
// stays unlocked for the rest of the session. A wrong PIN returns
// ErrWrongPIN and leaves the state unchanged; after maxAttempts
// consecutive failures the scope is throttled for the cooldown.
func (g *LockGate) Unlock(ctx context.Context, peer, pin string) error {
	return g.unlock(ctx, peer, pin)
}

// UnlockGlobal verifies a PIN against the account-wide lock.
func (g *LockGate) UnlockGlobal(ctx context.Context, pin string) error {
	return g.unlock(ctx, globalScope, pin)
}

func (g *LockGate) unlock(ctx context.Context, scope, pin string) error {
	if err := g.checkThrottle(scope); err != nil {
		return err
	}

	ok, err := g.verify(ctx, scope, pin)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !ok {
		g.failures[scope]++
		if g.failures[scope] >= g.maxAttempts {
			g.cooldownUntil[scope] = g.clock.Now().Add(g.cooldown)
			g.failures[scope] = 0
		}
		return ErrWrongPIN
	}
	g.failures[scope] = 0
	g.unlocked[scope] = true
	return nil
}

// verify routes to the local entry when one exists, otherwise to the
// server. Local comparison uses the salted hash in the entry; plaintext
// PINs for server-backed locks are never compared or stored here.
func (g *LockGate) verify(ctx context.Context, scope, pin string) (bool, error) {
	g.mu.Lock()
	entry, isLocal := g.local[scope]
	g.mu.Unlock()

	if isLocal {
		computed := saltedHash(entry.salt, pin)
		return subtle.ConstantTimeCompare(computed[:], entry.hash[:]) == 1, nil
	}
	if scope == globalScope {
		return g.verifier.VerifyGlobalLock(ctx, pin)
	}
	return g.verifier.VerifyDMLock(ctx, scope, pin)
}

func (g *LockGate) checkThrottle(scope string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, throttled := g.cooldownUntil[scope]
	if !throttled {
		return nil
	}
	if g.clock.Now().Before(until) {
		return ErrTooManyAttempts
	}
	delete(g.cooldownUntil, scope)
	return nil
}

func saltedHash(salt [16]byte, pin string) [32]byte {
	return blake3.Sum256(append(salt[:], pin...))
}
