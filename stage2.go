package main

// Stage 2: "Sound Date Puzzle"
//
// Eight shuffled buttons each play a digit sound. Players must press them in
// the order that spells out the target date. A full attempt of eight presses
// either solves the puzzle or silently fails; "reset" clears the attempt for
// a retry. There is no per-press feedback.

import (
	"crypto/rand"
	"encoding/json"
)

var stage2TargetDigits = []int{2, 0, 0, 6, 2, 0, 1, 8}

type stage2Payload struct {
	Buttons       []int  `json:"buttons"`
	TargetDigits  []int  `json:"targetDigits"`
	PressSequence []int  `json:"pressSequence"`
	StageComplete bool   `json:"stageComplete"`
	Status        string `json:"status"` // "playing" | "solved"
}

type stage2 struct{}

func (s *stage2) Index() int { return 2 }

func (s *stage2) InterimTitle() string { return "Get ready for Stage 2!" }

// shuffledDigits is a Fisher-Yates shuffle using crypto/rand.
func shuffledDigits(digits []int) []int {
	out := make([]int, len(digits))
	copy(out, digits)

	for i := len(out) - 1; i > 0; i-- {
		var b [1]byte
		if _, err := rand.Read(b[:]); err != nil {
			continue
		}
		j := int(b[0]) % (i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func sequenceCorrect(buttons, pressSequence, targetDigits []int) bool {
	if len(pressSequence) != len(targetDigits) {
		return false
	}
	for i, btnIdx := range pressSequence {
		if btnIdx < 0 || btnIdx >= len(buttons) {
			return false
		}
		if buttons[btnIdx] != targetDigits[i] {
			return false
		}
	}
	return true
}

func (s *stage2) applyTexts(room *Room, payload *stage2Payload) {
	q := room.getQuestionnaire()
	title := "Sound Date Puzzle - " + q.Partner1Name + " & " + q.Partner2Name

	if payload.Status == "solved" || payload.StageComplete {
		done := "Well done! You solved the puzzle."
		setStageTexts(&room.state, title, done, done)
		return
	}

	instruction := "Listen to the buttons and press them in the right order."
	setStageTexts(&room.state, title, instruction, instruction)
}

func (s *stage2) OnEnter(room *Room) {
	payload := stage2Payload{
		Buttons:       shuffledDigits(stage2TargetDigits),
		TargetDigits:  stage2TargetDigits,
		PressSequence: []int{},
		Status:        "playing",
	}
	writePayload(&room.state, &payload)
	s.applyTexts(room, &payload)
}

func (s *stage2) OnMessage(room *Room, client *Client, msgType string, data json.RawMessage) bool {
	if !isPlayerRole(client.role) {
		return false
	}

	var payload stage2Payload
	readPayload(&room.state, &payload)

	if payload.StageComplete && msgType != "continue" {
		return false
	}

	switch msgType {
	case "press":
		var body struct {
			Index *int `json:"index"`
		}
		_ = json.Unmarshal(data, &body)
		if body.Index == nil {
			return false
		}
		index := *body.Index
		if index < 0 || index >= len(payload.Buttons) {
			return false
		}
		for _, pressed := range payload.PressSequence {
			if pressed == index {
				return false
			}
		}

		payload.PressSequence = append(payload.PressSequence, index)

		if len(payload.PressSequence) >= len(payload.TargetDigits) {
			if sequenceCorrect(payload.Buttons, payload.PressSequence, payload.TargetDigits) {
				payload.Status = "solved"
				payload.StageComplete = true
			}
			// Wrong sequence: nothing happens until the players reset.
		}

		writePayload(&room.state, &payload)
		if payload.StageComplete {
			s.applyTexts(room, &payload)
		}
		return true

	case "reset", "shuffle":
		if payload.StageComplete {
			return false
		}
		payload.PressSequence = []int{}
		writePayload(&room.state, &payload)
		return true

	case "continue":
		if !payload.StageComplete {
			return false
		}
		room.addToHistory(s.Index(), map[string]string{"status": "solved"})
		room.advanceToInterim(s.Index() + 1)
		return true
	}

	return false
}
