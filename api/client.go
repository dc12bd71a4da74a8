// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// maxResponseBytes bounds how much of a response body is read. The
// server's largest responses (group listings) are well under this.
const maxResponseBytes = 8 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// BaseURL is the base URL of the chat server (e.g., "http://localhost:8080").
	BaseURL string
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is an unauthenticated chat server client. It holds the base
// URL and HTTP transport, shared across Sessions.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new unauthenticated client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CloseIdleConnections closes idle HTTP connections in the underlying
// transport's pool. Call this after a network disruption so subsequent
// requests establish fresh TCP connections instead of reusing a
// poisoned pooled one.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

// Register creates a new account. The server enforces a non-empty
// username and a minimum password length; violations come back as an
// *Error with status 400, a taken username as status 409.
func (c *Client) Register(ctx context.Context, username, password string) error {
	request := registerRequest{Username: username, Password: password}
	if _, err := c.doRequest(ctx, http.MethodPost, "/register", "", request, nil); err != nil {
		return fmt.Errorf("api: register failed: %w", err)
	}
	return nil
}

// Login authenticates and returns a Session holding the bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (*Session, error) {
	request := registerRequest{Username: username, Password: password}
	body, err := c.doRequest(ctx, http.MethodPost, "/login", "", request, nil)
	if err != nil {
		return nil, fmt.Errorf("api: login failed: %w", err)
	}

	var response authResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("api: failed to parse login response: %w", err)
	}
	if response.Token == "" {
		return nil, fmt.Errorf("api: login response carried no token")
	}
	return c.SessionFromToken(response.Token)
}

// SessionFromToken builds a Session from a previously issued token,
// for credential restore across process restarts. The token's expiry
// and subject claims are read without signature verification. An
// already-expired token still yields a Session; callers decide whether
// to surface that via [Session.Expired] before dialing anything.
func (c *Client) SessionFromToken(token string) (*Session, error) {
	username, expiresAt, err := inspectToken(token)
	if err != nil {
		return nil, err
	}
	return &Session{
		client:    c,
		username:  username,
		token:     token,
		expiresAt: expiresAt,
	}, nil
}

// doRequest performs an HTTP request and returns the response body.
// Non-2xx responses are decoded into *Error; the body, when present,
// is returned alongside the error.
func (c *Client) doRequest(ctx context.Context, method, path, token string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: failed to create request: %w", err)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("api: failed to read response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// All server error responses use the same {"error": "..."} shape.
	var apiErr Error
	if jsonErr := json.Unmarshal(responseBody, &apiErr); jsonErr != nil {
		return nil, fmt.Errorf("api: unexpected %d response from %s %s: %s",
			response.StatusCode, method, path, string(responseBody))
	}
	apiErr.StatusCode = response.StatusCode

	return responseBody, &apiErr
}
