// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SystemSender is the reserved username the server uses when it wraps
// an event inside an ordinary delivery frame.
const SystemSender = "system"

// envelope mirrors every field any inbound frame can carry. One
// unmarshal populates it; Decode then picks the variant. Mirroring the
// superset in a single struct keeps field-name knowledge in one place.
type envelope struct {
	Type string `json:"type"`

	// Delivery fields.
	ID        int64  `json:"id"`
	Sender    string `json:"sender_username"`
	Receiver  string `json:"receiver_username"`
	GroupID   int64  `json:"group_id"`
	Body      string `json:"message"`
	Timestamp string `json:"timestamp"`
	FileURL   string `json:"file_url"`
	RevealAt  string `json:"reveal_at"`
	Deleted   bool   `json:"deleted"`
	LocalID   string `json:"local_id"`

	// History fields.
	ConversationWith string    `json:"conversation_with"`
	Messages         []Message `json:"messages"`

	// Reaction and pin fields.
	MessageID int64               `json:"message_id"`
	Emoji     string              `json:"emoji"`
	Username  string              `json:"username"`
	Reactions map[string][]string `json:"reactions"`

	// Game and poll payloads.
	Game  *Game  `json:"game"`
	Poll  *Poll  `json:"poll"`
	Error string `json:"error"`

	// Schedule acknowledgment.
	OK *bool `json:"ok"`

	// Signaling routing fields.
	From string `json:"from"`
	To   string `json:"to"`
}

// Decode turns one inbound text frame into a typed Event. It is total
// over well-formed JSON objects: recognized types map to their variant,
// type-less frames are classified by field presence, and anything else
// becomes [Unknown]. Only malformed JSON or a recognized frame missing
// its defining payload is an error.
func Decode(data []byte) (Event, error) {
	return decode(data, true)
}

func decode(data []byte, unwrap bool) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: malformed frame: %w", err)
	}

	// The server fans some events out through the ordinary delivery
	// path, as a message from "system" whose body is JSON. Unwrap one
	// level and re-decode; a body that fails to parse falls through
	// and is treated as a plain message, matching server behavior for
	// system notices that merely look like JSON.
	if unwrap && env.Type == "" && env.Sender == SystemSender && strings.HasPrefix(strings.TrimSpace(env.Body), "{") {
		if inner, err := decode([]byte(env.Body), false); err == nil {
			return inner, nil
		}
	}

	switch env.Type {
	case "":
		return classifyDelivery(&env, data)

	case "conversation_history":
		return ConversationHistory{With: env.ConversationWith, Messages: env.Messages}, nil
	case "group_conversation_history":
		if env.GroupID == 0 {
			return nil, fmt.Errorf("protocol: group_conversation_history without group_id")
		}
		return GroupHistory{GroupID: env.GroupID, Messages: env.Messages}, nil

	case "reaction_added":
		return ReactionAdded{MessageID: env.MessageID, Emoji: env.Emoji, Username: env.Username}, nil
	case "reaction_removed":
		return ReactionRemoved{MessageID: env.MessageID, Emoji: env.Emoji, Username: env.Username}, nil
	case "reactions_list":
		reactions := env.Reactions
		if reactions == nil {
			reactions = map[string][]string{}
		}
		return ReactionsList{MessageID: env.MessageID, Reactions: reactions}, nil

	case "message_pinned":
		return MessagePinned{MessageID: env.MessageID}, nil
	case "message_unpinned":
		return MessageUnpinned{MessageID: env.MessageID}, nil
	case "pinned_messages_list":
		return PinnedList{Messages: env.Messages}, nil

	case "message_edited":
		return MessageEdited{MessageID: env.MessageID, Body: env.Body}, nil
	case "message_deleted":
		return MessageDeleted{MessageID: env.MessageID}, nil

	case "game_state", "game_update", "game_created", "game_joined":
		if env.Game == nil {
			return nil, fmt.Errorf("protocol: %s frame without game payload", env.Type)
		}
		switch env.Type {
		case "game_state":
			return GameState{Game: *env.Game}, nil
		case "game_update":
			return GameUpdate{Game: *env.Game}, nil
		case "game_created":
			return GameCreated{Game: *env.Game}, nil
		default:
			return GameJoined{Game: *env.Game}, nil
		}
	case "game_error":
		return GameError{Err: env.Error}, nil

	case "poll_details":
		if env.Poll == nil {
			return nil, fmt.Errorf("protocol: poll_details frame without poll payload")
		}
		return PollDetails{Poll: *env.Poll}, nil

	case "file_ready":
		return FileReady{}, nil

	case "schedule_ack":
		ok := env.OK != nil && *env.OK
		return ScheduleAck{OK: ok, Err: env.Error}, nil

	case "typing":
		return Typing{Username: env.Username}, nil

	case "call_offer", "call_answer", "call_ice", "call_end", "call_need_offer":
		return CallSignal{Kind: env.Type, From: env.From, To: env.To, Raw: data}, nil

	default:
		return Unknown{Type: env.Type, Raw: data}, nil
	}
}

// classifyDelivery identifies a type-less frame by field presence: a
// sender plus a receiver is a DM, a sender plus a group id is a group
// message, anything else is Unknown.
func classifyDelivery(env *envelope, raw []byte) (Event, error) {
	message := Message{
		ID:        env.ID,
		Sender:    env.Sender,
		Receiver:  env.Receiver,
		GroupID:   env.GroupID,
		Body:      env.Body,
		Timestamp: env.Timestamp,
		FileURL:   env.FileURL,
		RevealAt:  env.RevealAt,
		Deleted:   env.Deleted,
		LocalID:   env.LocalID,
	}
	switch {
	case env.Sender != "" && env.Receiver != "":
		return DirectMessage{Message: message}, nil
	case env.Sender != "" && env.GroupID != 0:
		return GroupMessage{Message: message}, nil
	default:
		return Unknown{Type: "", Raw: raw}, nil
	}
}
