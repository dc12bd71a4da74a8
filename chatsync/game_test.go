// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package chatsync

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/parleychat/parley/lib/clock"
	"github.com/parleychat/parley/protocol"
)

// frameRecorder captures frames a manager would send.
type frameRecorder struct {
	frames []any
	err    error
}

func (r *frameRecorder) send(frame any) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frame)
	return nil
}

// frameKind marshals a frame and extracts its wire type string.
func frameKind(t *testing.T, frame any) string {
	t.Helper()
	raw, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshaling frame: %v", err)
	}
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		t.Fatalf("unmarshaling frame: %v", err)
	}
	return envelope.Type
}

func testGameManager(t *testing.T) (*GameManager, *frameRecorder, *clock.FakeClock, *[]GameView, *[]Notification) {
	t.Helper()
	recorder := &frameRecorder{}
	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	var updates []GameView
	var notes []Notification
	m := newGameManager("alice", clk, recorder.send,
		func(view GameView) { updates = append(updates, view) },
		func(n Notification) { notes = append(notes, n) })
	return m, recorder, clk, &updates, &notes
}

func activeGame(id int64, gameType, blob, turn string) protocol.Game {
	return protocol.Game{
		ID:          id,
		Type:        gameType,
		Player1:     "alice",
		Player2:     "bob",
		GameState:   blob,
		CurrentTurn: turn,
		Status:      protocol.GameStatusActive,
	}
}

func TestGameManagerCreate(t *testing.T) {
	m, recorder, _, _, _ := testGameManager(t)

	t.Run("rejects unknown game type", func(t *testing.T) {
		if err := m.Create("checkers", DM("bob")); err == nil {
			t.Fatal("expected error for unsupported game type")
		}
		if len(recorder.frames) != 0 {
			t.Fatal("rejected create must not send")
		}
	})

	t.Run("sends create_game", func(t *testing.T) {
		if err := m.Create(protocol.GameTypeChess, DM("bob")); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if got := frameKind(t, recorder.frames[len(recorder.frames)-1]); got != "create_game" {
			t.Fatalf("frame type = %q", got)
		}
	})
}

func TestGameManagerLifecycle(t *testing.T) {
	m, _, _, updates, _ := testGameManager(t)

	m.Handle(protocol.Game{ID: 5, Type: protocol.GameTypeChess, Player1: "alice", Status: protocol.GameStatusWaiting})
	view, ok := m.View(5)
	if !ok || view.Status != protocol.GameStatusWaiting {
		t.Fatalf("View = %+v, %v", view, ok)
	}
	if view.Turn != "" {
		t.Fatal("waiting game has no turn")
	}

	m.Handle(activeGame(5, protocol.GameTypeChess, `{"board":"start"}`, "alice"))
	view, _ = m.View(5)
	if view.Status != protocol.GameStatusActive || view.Turn != "alice" {
		t.Fatalf("active view = %+v", view)
	}

	finished := activeGame(5, protocol.GameTypeChess, `{"board":"end"}`, "")
	finished.Status = protocol.GameStatusFinished
	finished.Winner = "bob"
	m.Handle(finished)
	view, _ = m.View(5)
	if view.Status != protocol.GameStatusFinished || view.Winner != "bob" || view.Turn != "" {
		t.Fatalf("finished view = %+v", view)
	}

	if len(*updates) != 3 {
		t.Fatalf("expected 3 update callbacks, got %d", len(*updates))
	}
}

func TestGameManagerMoveFreeze(t *testing.T) {
	t.Run("second move during freeze refused", func(t *testing.T) {
		m, recorder, _, _, _ := testGameManager(t)
		m.Handle(activeGame(5, protocol.GameTypeChess, "{}", "alice"))

		if err := m.Move(5, "e2e4"); err != nil {
			t.Fatalf("Move: %v", err)
		}
		if err := m.Move(5, "d2d4"); !errors.Is(err, ErrMoveFrozen) {
			t.Fatalf("frozen move = %v, want ErrMoveFrozen", err)
		}
		moves := 0
		for _, frame := range recorder.frames {
			if frameKind(t, frame) == "game_move" {
				moves++
			}
		}
		if moves != 1 {
			t.Fatalf("expected 1 game_move frame, got %d", moves)
		}
	})

	t.Run("timer lifts the freeze", func(t *testing.T) {
		m, _, clk, _, _ := testGameManager(t)
		m.Handle(activeGame(5, protocol.GameTypeChess, "{}", "alice"))
		m.Move(5, "e2e4")

		clk.Advance(2 * time.Second)
		if err := m.Move(5, "d2d4"); err != nil {
			t.Fatalf("move after freeze expiry = %v", err)
		}
	})

	t.Run("game_update lifts the freeze early", func(t *testing.T) {
		m, _, clk, _, _ := testGameManager(t)
		m.Handle(activeGame(5, protocol.GameTypeChess, "{}", "alice"))
		m.Move(5, "e2e4")

		m.Handle(activeGame(5, protocol.GameTypeChess, `{"board":"after"}`, "bob"))
		view, _ := m.View(5)
		if view.Frozen {
			t.Fatal("server update must lift the freeze")
		}

		// The stale timer firing later must not disturb anything.
		clk.Advance(2 * time.Second)
		view, _ = m.View(5)
		if view.Frozen {
			t.Fatal("expired stale timer must be a no-op")
		}
	})

	t.Run("unknown game refused", func(t *testing.T) {
		m, _, _, _, _ := testGameManager(t)
		if err := m.Move(404, "e2e4"); !errors.Is(err, ErrUnknownGame) {
			t.Fatalf("Move = %v, want ErrUnknownGame", err)
		}
	})
}

func TestTriviaAnswers(t *testing.T) {
	question1 := `{"question":"q1"}`
	question2 := `{"question":"q2"}`

	t.Run("own answer applied optimistically, once", func(t *testing.T) {
		m, _, _, _, _ := testGameManager(t)
		m.Handle(activeGame(7, protocol.GameTypeTrivia, question1, ""))

		if err := m.Move(7, "B"); err != nil {
			t.Fatalf("Move: %v", err)
		}
		view, _ := m.View(7)
		if len(view.Answered) != 1 || view.Answered[0] != "alice" {
			t.Fatalf("Answered = %v", view.Answered)
		}

		// A repeat even after the freeze expires is refused: the block
		// is per question, not per freeze window.
		m.clock.(*clock.FakeClock).Advance(2 * time.Second)
		if err := m.Move(7, "C"); !errors.Is(err, ErrAlreadyAnswered) {
			t.Fatalf("repeat answer = %v, want ErrAlreadyAnswered", err)
		}
	})

	t.Run("rejection rolls the optimistic answer back", func(t *testing.T) {
		m, _, _, _, notes := testGameManager(t)
		m.Handle(activeGame(7, protocol.GameTypeTrivia, question1, ""))
		m.Move(7, "B")

		m.HandleError("answer rejected")
		view, _ := m.View(7)
		if len(view.Answered) != 0 {
			t.Fatalf("Answered after rollback = %v", view.Answered)
		}
		if view.Frozen {
			t.Fatal("rejection must lift the freeze")
		}
		if err := m.Move(7, "C"); err != nil {
			t.Fatalf("retry after rollback = %v", err)
		}

		if len(*notes) != 1 || (*notes)[0].Kind != NotifyGameError {
			t.Fatalf("notifications = %+v", *notes)
		}
	})

	t.Run("new question resets the answered set", func(t *testing.T) {
		m, _, _, _, _ := testGameManager(t)
		m.Handle(activeGame(7, protocol.GameTypeTrivia, question1, ""))
		m.Move(7, "B")

		m.Handle(activeGame(7, protocol.GameTypeTrivia, question2, ""))
		view, _ := m.View(7)
		if len(view.Answered) != 0 {
			t.Fatalf("Answered after new question = %v", view.Answered)
		}
		if err := m.Move(7, "A"); err != nil {
			t.Fatalf("answer to new question = %v", err)
		}
	})

	t.Run("trivia never exposes a turn", func(t *testing.T) {
		m, _, _, _, _ := testGameManager(t)
		game := activeGame(7, protocol.GameTypeTrivia, question1, "")
		game.CurrentTurn = "alice"
		m.Handle(game)

		view, _ := m.View(7)
		if view.Turn != "" {
			t.Fatalf("trivia Turn = %q, want empty", view.Turn)
		}
	})
}

func TestGameManagerSendFailure(t *testing.T) {
	m, recorder, _, _, _ := testGameManager(t)
	m.Handle(activeGame(7, protocol.GameTypeTrivia, `{"question":"q1"}`, ""))

	recorder.err = errors.New("connection lost")
	if err := m.Move(7, "B"); err == nil {
		t.Fatal("expected send failure to surface")
	}

	// Freeze and optimistic answer were undone; the retry goes out.
	recorder.err = nil
	if err := m.Move(7, "B"); err != nil {
		t.Fatalf("retry = %v", err)
	}
}
