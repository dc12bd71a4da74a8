// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parleychat/parley/api"
	"github.com/parleychat/parley/lib/clock"
)

// fakeLockVerifier stands in for the HTTP collaborator.
type fakeLockVerifier struct {
	dmLocked      map[string]bool
	dmPIN         map[string]string
	globalEnabled bool
	globalPIN     string

	verifyCalls int
}

func (f *fakeLockVerifier) DMLockStatus(ctx context.Context, peer string) (*api.DMLockStatus, error) {
	return &api.DMLockStatus{Locked: f.dmLocked[peer], EverSet: f.dmPIN[peer] != ""}, nil
}

func (f *fakeLockVerifier) VerifyDMLock(ctx context.Context, peer, pin string) (bool, error) {
	f.verifyCalls++
	return f.dmLocked[peer] && pin == f.dmPIN[peer], nil
}

func (f *fakeLockVerifier) GlobalLockStatus(ctx context.Context) (*api.GlobalLockStatus, error) {
	return &api.GlobalLockStatus{Enabled: f.globalEnabled, HasPin: f.globalPIN != ""}, nil
}

func (f *fakeLockVerifier) VerifyGlobalLock(ctx context.Context, pin string) (bool, error) {
	f.verifyCalls++
	return f.globalEnabled && pin == f.globalPIN, nil
}

func testGate(t *testing.T, verifier *fakeLockVerifier, clk clock.Clock) *LockGate {
	t.Helper()
	return NewLockGate(verifier, clk, 3, 30*time.Second)
}

func TestLockGateDM(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	t.Run("locked peer blocked until unlocked", func(t *testing.T) {
		verifier := &fakeLockVerifier{
			dmLocked: map[string]bool{"bob": true},
			dmPIN:    map[string]string{"bob": "1234"},
		}
		gate := testGate(t, verifier, clk)
		if err := gate.Refresh(ctx, "bob"); err != nil {
			t.Fatalf("Refresh: %v", err)
		}

		if !gate.Blocked(DM("bob")) {
			t.Fatal("locked peer must be blocked before unlock")
		}
		if err := gate.RequireUnlocked(DM("bob")); !errors.Is(err, ErrLocked) {
			t.Fatalf("RequireUnlocked = %v, want ErrLocked", err)
		}

		if err := gate.Unlock(ctx, "bob", "1234"); err != nil {
			t.Fatalf("Unlock: %v", err)
		}
		if gate.Blocked(DM("bob")) {
			t.Fatal("unlocked peer must not be blocked")
		}
	})

	t.Run("wrong pin keeps the conversation blocked", func(t *testing.T) {
		verifier := &fakeLockVerifier{
			dmLocked: map[string]bool{"bob": true},
			dmPIN:    map[string]string{"bob": "1234"},
		}
		gate := testGate(t, verifier, clk)
		gate.Refresh(ctx, "bob")

		if err := gate.Unlock(ctx, "bob", "9999"); !errors.Is(err, ErrWrongPIN) {
			t.Fatalf("Unlock = %v, want ErrWrongPIN", err)
		}
		if !gate.Blocked(DM("bob")) {
			t.Fatal("failed unlock must leave the conversation blocked")
		}
	})

	t.Run("unlock is per peer", func(t *testing.T) {
		verifier := &fakeLockVerifier{
			dmLocked: map[string]bool{"bob": true, "carol": true},
			dmPIN:    map[string]string{"bob": "1234", "carol": "5678"},
		}
		gate := testGate(t, verifier, clk)
		gate.Refresh(ctx, "bob")
		gate.Refresh(ctx, "carol")

		if err := gate.Unlock(ctx, "bob", "1234"); err != nil {
			t.Fatalf("Unlock: %v", err)
		}
		if gate.Blocked(DM("bob")) {
			t.Fatal("bob must be unlocked")
		}
		if !gate.Blocked(DM("carol")) {
			t.Fatal("carol must stay blocked")
		}
	})

	t.Run("unlock does not survive a new session", func(t *testing.T) {
		verifier := &fakeLockVerifier{
			dmLocked: map[string]bool{"bob": true},
			dmPIN:    map[string]string{"bob": "1234"},
		}
		gate := testGate(t, verifier, clk)
		gate.Refresh(ctx, "bob")
		if err := gate.Unlock(ctx, "bob", "1234"); err != nil {
			t.Fatalf("Unlock: %v", err)
		}

		// A fresh gate, as built on the next login, starts gated.
		reloaded := testGate(t, verifier, clk)
		reloaded.Refresh(ctx, "bob")
		if !reloaded.Blocked(DM("bob")) {
			t.Fatal("a new session must start locked again")
		}
	})

	t.Run("unlocked peers and groups are never blocked", func(t *testing.T) {
		verifier := &fakeLockVerifier{}
		gate := testGate(t, verifier, clk)
		gate.Refresh(ctx, "dave")

		if gate.Blocked(DM("dave")) {
			t.Fatal("peer without a lock must not be blocked")
		}
		if gate.Blocked(GroupChat(9)) {
			t.Fatal("groups carry no per-peer lock")
		}
	})
}

func TestLockGateGlobal(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	verifier := &fakeLockVerifier{globalEnabled: true, globalPIN: "0000"}
	gate := testGate(t, verifier, clk)
	if err := gate.RefreshGlobal(ctx); err != nil {
		t.Fatalf("RefreshGlobal: %v", err)
	}

	// The global lock vetoes every conversation, groups included.
	if !gate.Blocked(DM("bob")) || !gate.Blocked(GroupChat(3)) {
		t.Fatal("enabled global lock must block everything")
	}

	if err := gate.UnlockGlobal(ctx, "0000"); err != nil {
		t.Fatalf("UnlockGlobal: %v", err)
	}
	if gate.Blocked(DM("bob")) || gate.Blocked(GroupChat(3)) {
		t.Fatal("global unlock must clear the veto")
	}
}

func TestLockGateThrottle(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	verifier := &fakeLockVerifier{
		dmLocked: map[string]bool{"bob": true},
		dmPIN:    map[string]string{"bob": "1234"},
	}
	gate := testGate(t, verifier, clk)
	gate.Refresh(ctx, "bob")

	for i := 0; i < 3; i++ {
		if err := gate.Unlock(ctx, "bob", "wrong"); !errors.Is(err, ErrWrongPIN) {
			t.Fatalf("attempt %d = %v, want ErrWrongPIN", i+1, err)
		}
	}
	callsBefore := verifier.verifyCalls

	// Cooldown engaged: further attempts are refused locally, without
	// a server round trip, even with the correct PIN.
	if err := gate.Unlock(ctx, "bob", "1234"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("throttled attempt = %v, want ErrTooManyAttempts", err)
	}
	if verifier.verifyCalls != callsBefore {
		t.Fatal("throttled attempt must not reach the verifier")
	}

	clk.Advance(29 * time.Second)
	if err := gate.Unlock(ctx, "bob", "1234"); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("attempt inside cooldown = %v, want ErrTooManyAttempts", err)
	}

	clk.Advance(2 * time.Second)
	if err := gate.Unlock(ctx, "bob", "1234"); err != nil {
		t.Fatalf("attempt after cooldown = %v", err)
	}
	if gate.Blocked(DM("bob")) {
		t.Fatal("correct PIN after cooldown must unlock")
	}
}

func TestLockGateLocalLock(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	verifier := &fakeLockVerifier{}
	gate := testGate(t, verifier, clk)

	if err := gate.AddLocalLock("bob", "4321"); err != nil {
		t.Fatalf("AddLocalLock: %v", err)
	}
	if !gate.Blocked(DM("bob")) {
		t.Fatal("local lock must block the conversation")
	}

	if err := gate.Unlock(ctx, "bob", "0000"); !errors.Is(err, ErrWrongPIN) {
		t.Fatalf("wrong local PIN = %v, want ErrWrongPIN", err)
	}
	if err := gate.Unlock(ctx, "bob", "4321"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if gate.Blocked(DM("bob")) {
		t.Fatal("correct local PIN must unlock")
	}
	if verifier.verifyCalls != 0 {
		t.Fatal("local lock verification must not reach the server")
	}
}
