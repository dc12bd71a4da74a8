// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is an authenticated client for one user. Sessions are safe
// for concurrent use; the token is immutable once issued.
type Session struct {
	client    *Client
	username  string
	token     string
	expiresAt time.Time
}

// Username returns the account name the token was issued for.
func (s *Session) Username() string { return s.username }

// Token returns the raw bearer token, for persisting across restarts.
func (s *Session) Token() string { return s.token }

// ExpiresAt returns the token's expiry time.
func (s *Session) ExpiresAt() time.Time { return s.expiresAt }

// Expired reports whether the token is past its expiry at the given
// instant. The connection manager checks this before each redial so a
// dead credential stops the reconnect loop instead of producing an
// endless series of refused handshakes.
func (s *Session) Expired(now time.Time) bool {
	return !s.expiresAt.IsZero() && !now.Before(s.expiresAt)
}

// WebSocketURL returns the URL for the event stream, with the bearer
// token as a query parameter. The scheme is derived from the client's
// base URL: https becomes wss, anything else ws.
func (s *Session) WebSocketURL() string {
	base := s.client.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws?token=" + url.QueryEscape(s.token)
}

// inspectToken reads the subject and expiry claims from a JWT without
// verifying its signature. The signing secret never leaves the server;
// the claims are advisory here (the server re-verifies every request)
// and are only used to label the session and schedule credential
// expiry.
func inspectToken(token string) (username string, expiresAt time.Time, err error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", time.Time{}, fmt.Errorf("api: malformed token: %w", err)
	}
	if claims.Subject == "" {
		return "", time.Time{}, fmt.Errorf("api: token has no subject claim")
	}
	if claims.ExpiresAt == nil {
		return claims.Subject, time.Time{}, nil
	}
	return claims.Subject, claims.ExpiresAt.Time, nil
}

type userListResponse struct {
	Users []string `json:"users"`
}

// Users returns every other account name on the server, sorted. This
// is the DM contact directory.
func (s *Session) Users(ctx context.Context) ([]string, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/users", s.token, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: user list failed: %w", err)
	}
	var response userListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse user list: %w", err)
	}
	return response.Users, nil
}

// Group describes one group chat and the caller's relationship to it.
type Group struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Members     []string `json:"members"`
	IsMember    bool     `json:"is_member"`
	GhostMode   bool     `json:"ghost_mode"`
}

// GroupList splits the server's groups by the caller's membership.
type GroupList struct {
	MemberGroups    []Group `json:"member_groups"`
	AvailableGroups []Group `json:"available_groups"`
}

// Groups returns all groups, split into those the caller belongs to
// and those open to join.
func (s *Session) Groups(ctx context.Context) (*GroupList, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/groups", s.token, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: group list failed: %w", err)
	}
	var response GroupList
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse group list: %w", err)
	}
	return &response, nil
}

// CreateGroupRequest holds the parameters for CreateGroup.
type CreateGroupRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	GhostMode   bool     `json:"ghost_mode,omitempty"`
}

// CreateGroup creates a group with the caller as a member.
func (s *Session) CreateGroup(ctx context.Context, request CreateGroupRequest) (*Group, error) {
	body, err := s.client.doRequest(ctx, http.MethodPost, "/groups", s.token, request, nil)
	if err != nil {
		return nil, fmt.Errorf("api: create group failed: %w", err)
	}
	var group Group
	if err := json.Unmarshal(body, &group); err != nil {
		return nil, fmt.Errorf("api: failed to parse create group response: %w", err)
	}
	return &group, nil
}

type groupMembershipRequest struct {
	GroupID  int64  `json:"group_id"`
	Username string `json:"username"`
}

// JoinGroup adds the caller to a group.
func (s *Session) JoinGroup(ctx context.Context, groupID int64) error {
	request := groupMembershipRequest{GroupID: groupID, Username: s.username}
	if _, err := s.client.doRequest(ctx, http.MethodPost, "/groups/join", s.token, request, nil); err != nil {
		return fmt.Errorf("api: join group %d failed: %w", groupID, err)
	}
	return nil
}

// LeaveGroup removes the caller from a group.
func (s *Session) LeaveGroup(ctx context.Context, groupID int64) error {
	request := groupMembershipRequest{GroupID: groupID, Username: s.username}
	if _, err := s.client.doRequest(ctx, http.MethodPost, "/groups/leave", s.token, request, nil); err != nil {
		return fmt.Errorf("api: leave group %d failed: %w", groupID, err)
	}
	return nil
}

// UpdateGroupRequest holds the mutable group fields. Nil pointers
// leave the server-side value unchanged.
type UpdateGroupRequest struct {
	GroupID     int64   `json:"group_id"`
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	GhostMode   *bool   `json:"ghost_mode,omitempty"`
}

// UpdateGroup changes a group's name, description, or ghost mode.
func (s *Session) UpdateGroup(ctx context.Context, request UpdateGroupRequest) error {
	if _, err := s.client.doRequest(ctx, http.MethodPut, "/groups/update", s.token, request, nil); err != nil {
		return fmt.Errorf("api: update group %d failed: %w", request.GroupID, err)
	}
	return nil
}

// DeleteGroup removes a group entirely.
func (s *Session) DeleteGroup(ctx context.Context, groupID int64) error {
	path := fmt.Sprintf("/groups/delete/%d", groupID)
	if _, err := s.client.doRequest(ctx, http.MethodDelete, path, s.token, nil, nil); err != nil {
		return fmt.Errorf("api: delete group %d failed: %w", groupID, err)
	}
	return nil
}
