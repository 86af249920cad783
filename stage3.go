package main

// Stage 3: both players must type the same word. When both have submitted
// and the words match (case-insensitive), the stage is complete.

import (
	"encoding/json"
	"strings"
)

type stage3Payload struct {
	Player1Word string `json:"player1Word"`
	Player2Word string `json:"player2Word"`
}

type stage3 struct{}

func (s *stage3) Index() int { return 3 }

func (s *stage3) InterimTitle() string { return "Get ready for Stage 3!" }

func (s *stage3) OnEnter(room *Room) {
	setStageTexts(&room.state,
		"Stage 3: Type the same word!",
		"Type a word and submit. You must both choose the same word.",
		"Type a word and submit. You must both choose the same word.",
	)
	writePayload(&room.state, &stage3Payload{})
}

func (s *stage3) OnMessage(room *Room, client *Client, msgType string, data json.RawMessage) bool {
	if msgType != "submit" && msgType != "word" {
		return false
	}
	if !isPlayerRole(client.role) {
		return false
	}

	var body struct {
		Text string `json:"text"`
		Word string `json:"word"`
	}
	_ = json.Unmarshal(data, &body)
	word := strings.TrimSpace(body.Text)
	if word == "" {
		word = strings.TrimSpace(body.Word)
	}

	var payload stage3Payload
	readPayload(&room.state, &payload)

	if client.role == RolePlayer1 {
		payload.Player1Word = word
	} else {
		payload.Player2Word = word
	}
	writePayload(&room.state, &payload)

	if payload.Player1Word != "" && payload.Player2Word != "" &&
		strings.EqualFold(payload.Player1Word, payload.Player2Word) {
		room.addToHistory(s.Index(), payload)
		room.advanceToInterim(s.Index() + 1)
	}

	return true
}
