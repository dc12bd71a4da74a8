// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for Parley clients.
//
// Configuration is loaded from a single YAML file specified by:
//   - PARLEY_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file may
// contain environment-specific sections (development, staging,
// production) that override base values when the environment matches.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment type.
type Environment string

const (
	// Development is for local development machines.
	Development Environment = "development"
	// Staging is for pre-production testing.
	Staging Environment = "staging"
	// Production is for production deployments.
	Production Environment = "production"
)

// Config is the master configuration for a Parley sync client.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Server locates the chat server.
	Server ServerConfig `yaml:"server"`

	// Reconnect tunes the connection manager's retry policy.
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Lock tunes client-side PIN verification throttling.
	Lock LockConfig `yaml:"lock"`

	// Transfer tunes outbound file transfer queueing.
	Transfer TransferConfig `yaml:"transfer"`

	// Per-environment overrides, applied after the base config.
	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains the fields that can be overridden per
// environment.
type ConfigOverrides struct {
	Server    *ServerConfig    `yaml:"server,omitempty"`
	Reconnect *ReconnectConfig `yaml:"reconnect,omitempty"`
	Lock      *LockConfig      `yaml:"lock,omitempty"`
	Transfer  *TransferConfig  `yaml:"transfer,omitempty"`
}

// ServerConfig locates the chat server.
type ServerConfig struct {
	// WebSocketURL is the bidirectional channel endpoint
	// (e.g. "wss://chat.example.net/ws").
	WebSocketURL string `yaml:"websocket_url"`

	// APIBaseURL is the base URL of the HTTP collaborator used for
	// login, lock verification, and contact/group listing
	// (e.g. "https://chat.example.net").
	APIBaseURL string `yaml:"api_base_url"`
}

// ReconnectConfig tunes the connection manager's retry policy: an
// exponential schedule with a ceiling and proportional jitter.
type ReconnectConfig struct {
	// InitialDelay is the delay before the first reconnect attempt.
	// Default: 1s.
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the exponential schedule. Default: 30s.
	MaxDelay time.Duration `yaml:"max_delay"`

	// Multiplier grows the delay after each failed attempt.
	// Default: 2.0.
	Multiplier float64 `yaml:"multiplier"`

	// JitterFraction bounds the random perturbation applied to each
	// delay, as a fraction of the delay. Default: 0.2.
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// LockConfig tunes client-side PIN verification throttling. The server
// remains the authority on PIN correctness; this only rate-limits the
// client's own attempts.
type LockConfig struct {
	// MaxAttempts is the number of consecutive failed verifications
	// allowed before the cooldown engages. Default: 5.
	MaxAttempts int `yaml:"max_attempts"`

	// Cooldown is how long further attempts are refused after
	// MaxAttempts consecutive failures. Default: 30s.
	Cooldown time.Duration `yaml:"cooldown"`
}

// TransferConfig tunes outbound file transfer queueing.
type TransferConfig struct {
	// QueueCapacity is the number of outbound files that may wait for
	// a file_ready acknowledgment. Enqueueing past capacity is an
	// explicit error, never a silent overwrite. Default: 4.
	QueueCapacity int `yaml:"queue_capacity"`
}

// Default returns the default configuration. Defaults give every field
// a sensible value; the config file is still required for server
// endpoints.
func Default() *Config {
	return &Config{
		Environment: Development,
		Reconnect: ReconnectConfig{
			InitialDelay:   time.Second,
			MaxDelay:       30 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
		Lock: LockConfig{
			MaxAttempts: 5,
			Cooldown:    30 * time.Second,
		},
		Transfer: TransferConfig{
			QueueCapacity: 4,
		},
	}
}

// Load loads configuration from the PARLEY_CONFIG environment variable.
// There are no fallbacks: if PARLEY_CONFIG is not set, this fails.
func Load() (*Config, error) {
	path := os.Getenv("PARLEY_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("PARLEY_CONFIG environment variable not set; " +
			"set it to the path of your parley.yaml config file, or use --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path. The config
// file is the single source of truth; environment variables do not
// override individual values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnvironmentOverrides merges the section matching the configured
// environment over the base values.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		c.Server = *overrides.Server
	}
	if overrides.Reconnect != nil {
		c.Reconnect = *overrides.Reconnect
	}
	if overrides.Lock != nil {
		c.Lock = *overrides.Lock
	}
	if overrides.Transfer != nil {
		c.Transfer = *overrides.Transfer
	}
}

// Validate checks the configuration for values the sync core cannot
// operate with.
func (c *Config) Validate() error {
	switch c.Environment {
	case Development, Staging, Production:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}
	if c.Server.WebSocketURL == "" {
		return fmt.Errorf("server.websocket_url is required")
	}
	if c.Server.APIBaseURL == "" {
		return fmt.Errorf("server.api_base_url is required")
	}
	if c.Reconnect.InitialDelay <= 0 {
		return fmt.Errorf("reconnect.initial_delay must be positive, got %v", c.Reconnect.InitialDelay)
	}
	if c.Reconnect.MaxDelay < c.Reconnect.InitialDelay {
		return fmt.Errorf("reconnect.max_delay %v is below reconnect.initial_delay %v",
			c.Reconnect.MaxDelay, c.Reconnect.InitialDelay)
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be at least 1, got %v", c.Reconnect.Multiplier)
	}
	if c.Reconnect.JitterFraction < 0 || c.Reconnect.JitterFraction >= 1 {
		return fmt.Errorf("reconnect.jitter_fraction must be in [0, 1), got %v", c.Reconnect.JitterFraction)
	}
	if c.Lock.MaxAttempts < 1 {
		return fmt.Errorf("lock.max_attempts must be at least 1, got %d", c.Lock.MaxAttempts)
	}
	if c.Transfer.QueueCapacity < 1 {
		return fmt.Errorf("transfer.queue_capacity must be at least 1, got %d", c.Transfer.QueueCapacity)
	}
	return nil
}
