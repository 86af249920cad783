package main

import (
	"encoding/json"
	"testing"
)

func stage3State(t *testing.T, r *Room) stage3Payload {
	t.Helper()

	var payload stage3Payload
	if err := json.Unmarshal([]byte(r.state.StagePayloadJSON), &payload); err != nil {
		t.Fatalf("bad stage payload %q: %v", r.state.StagePayloadJSON, err)
	}
	return payload
}

func TestStage3MatchingWordsAdvance(t *testing.T) {
	r, p1, p2 := stageFixture(t)
	s := &stage3{}
	s.OnEnter(r)
	r.state.GameState = statusInProgress
	r.state.CurrentStageIndex = 3

	if !s.OnMessage(r, p1, "submit", json.RawMessage(`{"text":"Sunset"}`)) {
		t.Fatalf("player1 submit not handled")
	}
	if !s.OnMessage(r, p2, "submit", json.RawMessage(`{"text":"sunset"}`)) {
		t.Fatalf("player2 submit not handled")
	}

	if len(r.history) != 1 || r.history[0].StageIndex != 3 {
		t.Fatalf("history not recorded: %+v", r.history)
	}
	if r.state.CurrentStageIndex != 4 || r.state.GameState != statusInterimScreen {
		t.Fatalf("expected interim before stage 4, got %s at %d", r.state.GameState, r.state.CurrentStageIndex)
	}
}

func TestStage3DifferentWordsKeepWaiting(t *testing.T) {
	r, p1, p2 := stageFixture(t)
	s := &stage3{}
	s.OnEnter(r)
	r.state.GameState = statusInProgress
	r.state.CurrentStageIndex = 3

	s.OnMessage(r, p1, "submit", json.RawMessage(`{"text":"beach"}`))
	s.OnMessage(r, p2, "submit", json.RawMessage(`{"text":"mountain"}`))

	if len(r.history) != 0 {
		t.Fatalf("mismatch recorded history: %+v", r.history)
	}
	if r.state.CurrentStageIndex != 3 {
		t.Fatalf("mismatch advanced the stage to %d", r.state.CurrentStageIndex)
	}

	payload := stage3State(t, r)
	if payload.Player1Word != "beach" || payload.Player2Word != "mountain" {
		t.Fatalf("submissions not stored: %+v", payload)
	}
}

func TestStage3ResubmitCanResolveMismatch(t *testing.T) {
	r, p1, p2 := stageFixture(t)
	s := &stage3{}
	s.OnEnter(r)
	r.state.GameState = statusInProgress
	r.state.CurrentStageIndex = 3

	s.OnMessage(r, p1, "word", json.RawMessage(`{"word":"beach"}`))
	s.OnMessage(r, p2, "word", json.RawMessage(`{"word":"mountain"}`))
	s.OnMessage(r, p2, "word", json.RawMessage(`{"word":"  beach  "}`))

	if r.state.CurrentStageIndex != 4 || r.state.GameState != statusInterimScreen {
		t.Fatalf("resubmitted match did not advance, at %d", r.state.CurrentStageIndex)
	}
}

func TestStage3IgnoresViewerAndUnknownTypes(t *testing.T) {
	r, p1, _ := stageFixture(t)
	s := &stage3{}
	s.OnEnter(r)

	tv := &Client{send: make(chan any, 8), role: RoleTV}
	if s.OnMessage(r, tv, "submit", json.RawMessage(`{"text":"beach"}`)) {
		t.Fatalf("viewer submission handled")
	}
	if s.OnMessage(r, p1, "press", json.RawMessage(`{"index":0}`)) {
		t.Fatalf("foreign message type handled")
	}
}
