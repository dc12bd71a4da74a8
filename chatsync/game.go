// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/protocol"
)

var (
	// ErrMoveFrozen is returned when a move is submitted during the
	// post-move interaction freeze.
	ErrMoveFrozen = errors.New("chatsync: move already in flight")

	// ErrAlreadyAnswered is returned when a trivia answer is submitted
	// for a question this player already answered.
	ErrAlreadyAnswered = errors.New("chatsync: already answered")

	// ErrUnknownGame is returned when an operation names a game the
	// engine has no state for.
	ErrUnknownGame = errors.New("chatsync: unknown game")
)

// moveFreeze is how long further moves are refused locally after a
// submission. The next game_update for the game lifts it early.
const moveFreeze = 2 * time.Second

// GameView is the render snapshot for one game.
type GameView struct {
	ID      int64
	Type    string
	Player1 string
	Player2 string
	Status  string
	// Turn is the player whose move it is, empty for trivia and for
	// finished games.
	Turn      string
	Winner    string
	StateBlob string
	// Frozen is true during the local post-move interaction freeze.
	Frozen bool
	// Answered lists players who answered the current trivia question,
	// sorted. Always empty for turn-based games.
	Answered []string
}

type gameState struct {
	game   protocol.Game
	frozen bool
	// freezeTimer lifts the 2s freeze; nil when not frozen.
	freezeTimer *clock.Timer
	// answered tracks trivia answer state; optimistic entries roll
	// back on game_error.
	answered map[string]bool
	// optimistic is true while this player's own answered mark awaits
	// server confirmation.
	optimistic bool
}

// GameManager tracks every game this session participates in. The
// client never advances game logic itself: state comes exclusively
// from server frames, the manager only validates what it refuses to
// send and runs the interaction freeze.
type GameManager struct {
	user   string
	clock  clock.Clock
	send   func(frame any) error
	update func(view GameView)
	notify func(n Notification)

	mu    sync.Mutex
	games map[int64]*gameState
}

func newGameManager(user string, clk clock.Clock, send func(any) error, update func(GameView), notify func(Notification)) *GameManager {
	return &GameManager{
		user:   user,
		clock:  clk,
		send:   send,
		update: update,
		notify: notify,
		games:  make(map[int64]*gameState),
	}
}

// Create asks the server for a new game against a DM peer or in a
// group.
func (m *GameManager) Create(gameType string, target ConversationID) error {
	switch gameType {
	case protocol.GameTypeChess, protocol.GameTypeTicTacToe, protocol.GameTypeTrivia:
	default:
		return fmt.Errorf("chatsync: unsupported game type %q", gameType)
	}
	frame := protocol.NewCreateGame(gameType)
	if target.IsGroup() {
		frame.GroupID = target.GroupID
	} else {
		frame.Receiver = target.Peer
	}
	return m.send(frame)
}

// Join asks the server to join a waiting game as the second player.
func (m *GameManager) Join(gameID int64) error {
	return m.send(protocol.NewJoinGame(gameID))
}

// RequestState asks the server for a game's current state.
func (m *GameManager) RequestState(gameID int64) error {
	return m.send(protocol.NewGetGameState(gameID))
}

// Move submits a move. For turn-based games the server is the
// authority on turn order; a bad move comes back as game_error and no
// local state is touched beyond the freeze. For trivia the player's
// own answered mark is applied optimistically and rolled back on
// rejection. A second submission during the freeze is refused locally.
func (m *GameManager) Move(gameID int64, move string) error {
	m.mu.Lock()
	state, ok := m.games[gameID]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownGame
	}
	if state.frozen {
		m.mu.Unlock()
		return ErrMoveFrozen
	}
	if state.game.Type == protocol.GameTypeTrivia {
		if state.answered[m.user] {
			m.mu.Unlock()
			return ErrAlreadyAnswered
		}
		if state.answered == nil {
			state.answered = make(map[string]bool)
		}
		state.answered[m.user] = true
		state.optimistic = true
	}
	m.startFreeze(gameID, state)
	view := m.viewLocked(state)
	m.mu.Unlock()

	if err := m.send(protocol.NewGameMove(gameID, move)); err != nil {
		// The frame never left; undo the freeze and any optimistic
		// answer so the user can retry.
		m.mu.Lock()
		m.liftFreeze(state)
		if state.optimistic {
			delete(state.answered, m.user)
			state.optimistic = false
		}
		m.mu.Unlock()
		return err
	}
	m.update(view)
	return nil
}

// Handle merges a server game frame. Any update for a frozen game
// lifts the freeze: the server has spoken, interaction is safe again.
func (m *GameManager) Handle(game protocol.Game) {
	m.mu.Lock()
	state, ok := m.games[game.ID]
	if !ok {
		state = &gameState{}
		m.games[game.ID] = state
	}
	previousBlob := state.game.GameState
	state.game = game
	m.liftFreeze(state)
	if game.Type == protocol.GameTypeTrivia {
		// A new question (state blob changed) resets the answered set.
		if game.GameState != previousBlob {
			state.answered = make(map[string]bool)
		}
		state.optimistic = false
	}
	view := m.viewLocked(state)
	m.mu.Unlock()

	m.update(view)
}

// HandleError rolls back the optimistic trivia answer, if any, and
// surfaces the server's message as a notification. Turn-based games
// have nothing to roll back.
func (m *GameManager) HandleError(message string) {
	m.mu.Lock()
	var views []GameView
	for _, state := range m.games {
		if state.optimistic {
			delete(state.answered, m.user)
			state.optimistic = false
			views = append(views, m.viewLocked(state))
		}
		if state.frozen {
			m.liftFreeze(state)
		}
	}
	m.mu.Unlock()

	for _, view := range views {
		m.update(view)
	}
	m.notify(Notification{Kind: NotifyGameError, Text: message})
}

// View returns the current snapshot for a game.
func (m *GameManager) View(gameID int64) (GameView, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.games[gameID]
	if !ok {
		return GameView{}, false
	}
	return m.viewLocked(state), true
}

// startFreeze arms the 2-second interaction freeze. The timer firing
// after a game_update already lifted the freeze is a no-op.
func (m *GameManager) startFreeze(gameID int64, state *gameState) {
	state.frozen = true
	state.freezeTimer = m.clock.AfterFunc(moveFreeze, func() {
		m.mu.Lock()
		current, ok := m.games[gameID]
		var view GameView
		lifted := false
		if ok && current.frozen {
			current.frozen = false
			current.freezeTimer = nil
			view = m.viewLocked(current)
			lifted = true
		}
		m.mu.Unlock()
		if lifted {
			m.update(view)
		}
	})
}

func (m *GameManager) liftFreeze(state *gameState) {
	if state.freezeTimer != nil {
		state.freezeTimer.Stop()
		state.freezeTimer = nil
	}
	state.frozen = false
}

func (m *GameManager) viewLocked(state *gameState) GameView {
	view := GameView{
		ID:        state.game.ID,
		Type:      state.game.Type,
		Player1:   state.game.Player1,
		Player2:   state.game.Player2,
		Status:    state.game.Status,
		Winner:    state.game.Winner,
		StateBlob: state.game.GameState,
		Frozen:    state.frozen,
	}
	if state.game.Status == protocol.GameStatusActive && state.game.Type != protocol.GameTypeTrivia {
		view.Turn = state.game.CurrentTurn
	}
	for player, answered := range state.answered {
		if answered {
			view.Answered = append(view.Answered, player)
		}
	}
	sort.Strings(view.Answered)
	return view
}
