// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "parley.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const minimalConfig = `
server:
  websocket_url: wss://chat.example.net/ws
  api_base_url: https://chat.example.net
`

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Environment != Development {
		t.Errorf("environment = %q, want development", cfg.Environment)
	}
	if cfg.Reconnect.InitialDelay != time.Second {
		t.Errorf("reconnect.initial_delay = %v, want 1s", cfg.Reconnect.InitialDelay)
	}
	if cfg.Reconnect.MaxDelay != 30*time.Second {
		t.Errorf("reconnect.max_delay = %v, want 30s", cfg.Reconnect.MaxDelay)
	}
	if cfg.Lock.MaxAttempts != 5 {
		t.Errorf("lock.max_attempts = %d, want 5", cfg.Lock.MaxAttempts)
	}
	if cfg.Transfer.QueueCapacity != 4 {
		t.Errorf("transfer.queue_capacity = %d, want 4", cfg.Transfer.QueueCapacity)
	}
}

func TestLoadFileEnvironmentOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: production
server:
  websocket_url: wss://chat.example.net/ws
  api_base_url: https://chat.example.net
reconnect:
  initial_delay: 1s
  max_delay: 10s
  multiplier: 2.0
  jitter_fraction: 0.2
production:
  reconnect:
    initial_delay: 2s
    max_delay: 60s
    multiplier: 3.0
    jitter_fraction: 0.1
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Reconnect.InitialDelay != 2*time.Second {
		t.Errorf("override not applied: initial_delay = %v, want 2s", cfg.Reconnect.InitialDelay)
	}
	if cfg.Reconnect.MaxDelay != 60*time.Second {
		t.Errorf("override not applied: max_delay = %v, want 60s", cfg.Reconnect.MaxDelay)
	}
}

func TestLoadFileOverridesForOtherEnvironmentIgnored(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, minimalConfig+`
production:
  lock:
    max_attempts: 1
    cooldown: 5m
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Lock.MaxAttempts != 5 {
		t.Errorf("production override applied in development: max_attempts = %d", cfg.Lock.MaxAttempts)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing websocket url", func(c *Config) { c.Server.WebSocketURL = "" }, "websocket_url"},
		{"missing api url", func(c *Config) { c.Server.APIBaseURL = "" }, "api_base_url"},
		{"zero initial delay", func(c *Config) { c.Reconnect.InitialDelay = 0 }, "initial_delay"},
		{"max below initial", func(c *Config) { c.Reconnect.MaxDelay = time.Millisecond }, "max_delay"},
		{"multiplier below one", func(c *Config) { c.Reconnect.Multiplier = 0.5 }, "multiplier"},
		{"jitter out of range", func(c *Config) { c.Reconnect.JitterFraction = 1.5 }, "jitter_fraction"},
		{"zero lock attempts", func(c *Config) { c.Lock.MaxAttempts = 0 }, "max_attempts"},
		{"zero queue capacity", func(c *Config) { c.Transfer.QueueCapacity = 0 }, "queue_capacity"},
		{"unknown environment", func(c *Config) { c.Environment = "lab" }, "environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Server.WebSocketURL = "wss://chat.example.net/ws"
			cfg.Server.APIBaseURL = "https://chat.example.net"
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadRequiresEnvVar(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load() with unset PARLEY_CONFIG succeeded")
	}
}

func TestLoadFromEnvVar(t *testing.T) {
	t.Setenv("PARLEY_CONFIG", writeConfig(t, minimalConfig))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.WebSocketURL != "wss://chat.example.net/ws" {
		t.Errorf("websocket_url = %q", cfg.Server.WebSocketURL)
	}
}
