// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// DMLockStatus describes a per-conversation lock. EverSet
// distinguishes "no lock configured" from "lock configured but
// currently disabled": re-enabling an existing lock keeps its old PIN,
// while configuring a fresh one requires a new PIN.
type DMLockStatus struct {
	Locked  bool `json:"locked"`
	EverSet bool `json:"ever_set"`
}

// GlobalLockStatus describes the account-wide lock.
type GlobalLockStatus struct {
	Enabled bool `json:"enabled"`
	HasPin  bool `json:"has_pin"`
}

type dmLockSetRequest struct {
	PeerUsername string `json:"peer_username"`
	PIN          string `json:"pin"`
}

type dmLockChangeRequest struct {
	PeerUsername string `json:"peer_username"`
	OldPIN       string `json:"old_pin"`
	NewPIN       string `json:"new_pin"`
}

type lockVerifyResponse struct {
	OK bool `json:"ok"`
}

type pinRequest struct {
	PIN string `json:"pin"`
}

type pinChangeRequest struct {
	OldPIN string `json:"old_pin"`
	NewPIN string `json:"new_pin"`
}

// DMLockStatus fetches the lock state for the conversation with peer.
func (s *Session) DMLockStatus(ctx context.Context, peer string) (*DMLockStatus, error) {
	query := url.Values{"peer": {peer}}
	body, err := s.client.doRequest(ctx, http.MethodGet, "/dm_lock", s.token, nil, query)
	if err != nil {
		return nil, fmt.Errorf("api: dm lock status for %q failed: %w", peer, err)
	}
	var status DMLockStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("api: failed to parse dm lock status: %w", err)
	}
	return &status, nil
}

// SetDMLock enables the lock on the conversation with peer. For a
// conversation that has never been locked the PIN is required; for one
// whose lock was disabled the server re-enables it with the old PIN
// and ignores this one.
func (s *Session) SetDMLock(ctx context.Context, peer, pin string) error {
	request := dmLockSetRequest{PeerUsername: peer, PIN: pin}
	if _, err := s.client.doRequest(ctx, http.MethodPost, "/dm_lock", s.token, request, nil); err != nil {
		return fmt.Errorf("api: set dm lock for %q failed: %w", peer, err)
	}
	return nil
}

// ChangeDMLock replaces the conversation lock's PIN. The old PIN must
// verify; a mismatch comes back as an *Error with status 401.
func (s *Session) ChangeDMLock(ctx context.Context, peer, oldPIN, newPIN string) error {
	request := dmLockChangeRequest{PeerUsername: peer, OldPIN: oldPIN, NewPIN: newPIN}
	if _, err := s.client.doRequest(ctx, http.MethodPut, "/dm_lock", s.token, request, nil); err != nil {
		return fmt.Errorf("api: change dm lock for %q failed: %w", peer, err)
	}
	return nil
}

// VerifyDMLock checks a PIN against the conversation lock. A wrong PIN
// is (false, nil), not an error; errors mean the check itself could
// not be performed.
func (s *Session) VerifyDMLock(ctx context.Context, peer, pin string) (bool, error) {
	request := dmLockSetRequest{PeerUsername: peer, PIN: pin}
	body, err := s.client.doRequest(ctx, http.MethodPost, "/dm_lock/verify", s.token, request, nil)
	if err != nil {
		// The server answers a wrong PIN with 401 and {"ok": false}.
		if IsStatus(err, http.StatusUnauthorized) && body != nil {
			return false, nil
		}
		return false, fmt.Errorf("api: verify dm lock for %q failed: %w", peer, err)
	}
	var response lockVerifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, fmt.Errorf("api: failed to parse dm lock verify response: %w", err)
	}
	return response.OK, nil
}

// RemoveDMLock disables the conversation lock. The stored PIN hash is
// kept so a later SetDMLock can re-enable without a new PIN.
func (s *Session) RemoveDMLock(ctx context.Context, peer string) error {
	query := url.Values{"peer": {peer}}
	if _, err := s.client.doRequest(ctx, http.MethodDelete, "/dm_lock", s.token, nil, query); err != nil {
		return fmt.Errorf("api: remove dm lock for %q failed: %w", peer, err)
	}
	return nil
}

// GlobalLockStatus fetches the account-wide lock state.
func (s *Session) GlobalLockStatus(ctx context.Context) (*GlobalLockStatus, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/global_lock", s.token, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: global lock status failed: %w", err)
	}
	var status GlobalLockStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("api: failed to parse global lock status: %w", err)
	}
	return &status, nil
}

// EnableGlobalLock turns on the account-wide lock. Like SetDMLock,
// the PIN is required only the first time; re-enabling keeps the old
// one.
func (s *Session) EnableGlobalLock(ctx context.Context, pin string) error {
	if _, err := s.client.doRequest(ctx, http.MethodPost, "/global_lock", s.token, pinRequest{PIN: pin}, nil); err != nil {
		return fmt.Errorf("api: enable global lock failed: %w", err)
	}
	return nil
}

// ChangeGlobalLock replaces the account-wide PIN.
func (s *Session) ChangeGlobalLock(ctx context.Context, oldPIN, newPIN string) error {
	request := pinChangeRequest{OldPIN: oldPIN, NewPIN: newPIN}
	if _, err := s.client.doRequest(ctx, http.MethodPut, "/global_lock", s.token, request, nil); err != nil {
		return fmt.Errorf("api: change global lock failed: %w", err)
	}
	return nil
}

// DisableGlobalLock turns off the account-wide lock, keeping the PIN
// hash for later re-enablement.
func (s *Session) DisableGlobalLock(ctx context.Context) error {
	if _, err := s.client.doRequest(ctx, http.MethodDelete, "/global_lock", s.token, nil, nil); err != nil {
		return fmt.Errorf("api: disable global lock failed: %w", err)
	}
	return nil
}

// VerifyGlobalLock checks a PIN against the account-wide lock. A wrong
// PIN is (false, nil).
func (s *Session) VerifyGlobalLock(ctx context.Context, pin string) (bool, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/global_lock/verify", s.token, pinRequest{PIN: pin}, nil)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return false, nil
		}
		return false, fmt.Errorf("api: verify global lock failed: %w", err)
	}
	var response lockVerifyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return false, fmt.Errorf("api: failed to parse global lock verify response: %w", err)
	}
	return response.OK, nil
}
