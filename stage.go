package main

import (
	"encoding/json"
	"fmt"
)

// Stage is one mini-game in the fixed sequence. The room knows nothing about
// a stage's rules: it enters it, forwards messages to it, and lets it call
// advanceToInterim/advanceToEnd when done. A stage owns its sub-state via the
// opaque StagePayloadJSON blob, which OnEnter must reset to a fresh value.
type Stage interface {
	// Index is the 1-based position of this stage in the game.
	Index() int

	// OnEnter is called exactly once per stage activation, after the ready
	// vote completes. It must write a fresh payload and set display texts.
	OnEnter(room *Room)

	// OnMessage receives every inbound message while this stage is active.
	// It must validate the sender's role before mutating the payload, and
	// return false for message types it does not recognize.
	OnMessage(room *Room, client *Client, msgType string, data json.RawMessage) bool

	// InterimTitle is the text shown on the ready screen leading into this
	// stage. Return "" to use the generic default.
	InterimTitle() string
}

const defaultInterimTitle = "Get ready for the next stage!"

// stages is the static registry, ordered by stage index.
var stages = []Stage{
	&stage1{},
	&stage2{},
	&stage3{},
	&stage4{},
}

func init() {
	for i, s := range stages {
		if s.Index() != i+1 {
			panic(fmt.Sprintf("stage registry out of order: position %d has index %d", i, s.Index()))
		}
	}
}

func getStage(index int) Stage {
	if index < 1 || index > len(stages) {
		return nil
	}
	return stages[index-1]
}

func stageCount() int {
	return len(stages)
}

func interimTitle(index int) string {
	s := getStage(index)
	if s == nil {
		return defaultInterimTitle
	}
	if title := s.InterimTitle(); title != "" {
		return title
	}
	return defaultInterimTitle
}

func setStageTexts(state *SyncedGameState, tvText, player1Text, player2Text string) {
	state.TVText = tvText
	state.Player1Text = player1Text
	state.Player2Text = player2Text
}

// readPayload decodes the current stage payload into v. Malformed or empty
// payloads leave v at its zero value rather than erroring; stages treat
// garbage as a fresh start.
func readPayload(state *SyncedGameState, v any) {
	if state.StagePayloadJSON == "" {
		return
	}
	_ = json.Unmarshal([]byte(state.StagePayloadJSON), v)
}

func writePayload(state *SyncedGameState, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	state.StagePayloadJSON = string(b)
}
