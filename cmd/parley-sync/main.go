// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/parleychat/parley/api"
	"github.com/parleychat/parley/chatsync"
	"github.com/parleychat/parley/lib/config"
	"github.com/parleychat/parley/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parley-sync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("parley-sync", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to the config file (default: $PARLEY_CONFIG)")
	username := flags.String("username", "", "account to log in as")
	register := flags.Bool("register", false, "create the account before logging in")
	watch := flags.String("watch", "", "peer whose conversation to select after connecting")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("--username is required")
	}
	password := os.Getenv("PARLEY_PASSWORD")
	if password == "" {
		return fmt.Errorf("PARLEY_PASSWORD is not set")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := api.NewClient(api.ClientConfig{
		BaseURL: cfg.Server.APIBaseURL,
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer client.CloseIdleConnections()

	if *register {
		if err := client.Register(ctx, *username, password); err != nil {
			return fmt.Errorf("registering %s: %w", *username, err)
		}
		logger.Info("account registered", "username", *username)
	}

	apiSession, err := client.Login(ctx, *username, password)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}
	logger.Info("logged in",
		"username", apiSession.Username(), "token_expires", apiSession.ExpiresAt())

	session, err := chatsync.NewSession(chatsync.SessionConfig{
		User:             apiSession.Username(),
		URL:              apiSession.WebSocketURL(),
		Dialer:           &transport.WebSocketDialer{},
		Locks:            apiSession,
		CredentialExpiry: apiSession.ExpiresAt(),
		Reconnect:        cfg.Reconnect,
		Lock:             cfg.Lock,
		Transfer:         cfg.Transfer,
		Callbacks:        logCallbacks(logger),
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	if *watch != "" {
		// Select once the connection is up; retried because the first
		// dial races with startup.
		go watchConversation(ctx, session, logger, *watch)
	}

	err = session.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("shutting down")
		return nil
	case errors.Is(err, chatsync.ErrCredentialExpired):
		return fmt.Errorf("login token expired; restart to log in again")
	default:
		return err
	}
}

// watchConversation selects a peer's conversation, retrying while the
// connection comes up.
func watchConversation(ctx context.Context, session *chatsync.Session, logger *slog.Logger, peer string) {
	for {
		err := session.SelectConversation(ctx, chatsync.DM(peer))
		switch {
		case err == nil:
			logger.Info("watching conversation", "peer", peer)
			return
		case errors.Is(err, chatsync.ErrLocked):
			logger.Warn("conversation is locked; not watching", "peer", peer)
			return
		case ctx.Err() != nil:
			return
		default:
			logger.Debug("select failed, retrying", "peer", peer, "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// logCallbacks logs every state change the session reports.
func logCallbacks(logger *slog.Logger) chatsync.Callbacks {
	return chatsync.Callbacks{
		ConversationUpdated: func(view chatsync.ConversationView) {
			logger.Info("conversation updated",
				"conversation", view.ID.String(),
				"messages", len(view.Messages),
				"pinned", len(view.Pinned))
		},
		MessageRevealed: func(id int64) {
			logger.Info("message revealed", "message_id", id)
		},
		Unread: func(id chatsync.ConversationID, count int) {
			logger.Info("unread", "conversation", id.String(), "count", count)
		},
		Typing: func(id chatsync.ConversationID, username string, active bool) {
			logger.Debug("typing", "conversation", id.String(), "username", username, "active", active)
		},
		GameUpdated: func(view chatsync.GameView) {
			logger.Info("game updated", "game_id", view.ID, "status", view.Status, "turn", view.Turn)
		},
		PollUpdated: func(view chatsync.PollView) {
			logger.Info("poll updated", "poll_id", view.ID, "total_votes", view.TotalVotes)
		},
		Notification: func(n chatsync.Notification) {
			logger.Info("notification", "kind", string(n.Kind), "text", n.Text)
		},
	}
}
