package main

// Stage 1: "He Said She Said"
//
// The TV shows a blurred image. For each question, both players privately
// answer "me" or "partner"; matching answers sharpen the image, mismatches
// blur it further. A correct free-text guess of the image ends the stage at
// any time. If the image becomes perfectly clear first, both players get one
// final written answer. A results screen follows; "continue" records the
// outcome and advances to the next stage's ready screen.

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	stage1BlurMin = 0 // perfectly clear
	stage1BlurMax = 6 // maximum blur
)

// Questions are phrased so answers "me" / "partner" make sense. The list
// lives only on the server.
var stage1Questions = []string{
	"Who drinks more coffee?",
	"Who is more likely to be late?",
	"Who sends more memes during the day?",
	"Who falls asleep faster on the couch?",
	"Who is more of a morning person?",
	"Who takes longer to get ready to go out?",
	"Who usually starts the arguments?",
	"Who apologizes first after a fight?",
	"Who plans the date nights more often?",
	"Who remembers important dates better?",
	"Who is more stubborn?",
	"Who is more likely to suggest ordering takeout?",
	"Who gets hangry more quickly?",
	"Who is more romantic on a daily basis?",
	"Who scrolls on their phone more in bed?",
	"Who is more adventurous with new foods?",
	"Who talks more during a movie?",
	"Who is more likely to forget where they parked?",
	"Who sings louder in the car?",
	"Who is more likely to plan a surprise?",
}

// Hidden phrase; server-side only.
const stage1ImageAnswer = "eiffel tower"

type stage1Payload struct {
	Phase                string `json:"phase"` // "questions" | "finalPrompt" | "results"
	BlurLevel            int    `json:"blurLevel"`
	CurrentQuestionIndex int    `json:"currentQuestionIndex"`
	CurrentQuestion      string `json:"currentQuestion"`
	QuestionsAsked       int    `json:"questionsAsked"`
	TotalMatches         int    `json:"totalMatches"`
	TotalMismatches      int    `json:"totalMismatches"`
	LastPairMatched      *bool  `json:"lastPairMatched"`
	StageComplete        bool   `json:"stageComplete"`
	Win                  bool   `json:"win"`
	WinBy                string `json:"winBy,omitempty"` // "liveGuess" | "finalPrompt"
	WinnerRole           Role   `json:"winnerRole,omitempty"`
	WinnerName           string `json:"winnerName,omitempty"`
	LastGuessText        string `json:"lastGuessText"`
	LastGuessWrong       bool   `json:"lastGuessWrong"`
	AwaitingFinalAnswers bool   `json:"awaitingFinalAnswers"`
	FinalAnswerPlayer1   string `json:"finalAnswerPlayer1"`
	FinalAnswerPlayer2   string `json:"finalAnswerPlayer2"`
	P1Choice             string `json:"p1Choice,omitempty"`
	P2Choice             string `json:"p2Choice,omitempty"`
	P1Answered           bool   `json:"p1Answered"`
	P2Answered           bool   `json:"p2Answered"`
}

type stage1 struct{}

func (s *stage1) Index() int { return 1 }

func (s *stage1) InterimTitle() string { return "Get ready for Stage 1!" }

func normalizeGuess(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(text))), " ")
}

func stage1GuessCorrect(text string) bool {
	n := normalizeGuess(text)
	if n == "" {
		return false
	}
	return n == stage1ImageAnswer || strings.Contains(n, "eiffel") || strings.Contains(n, "tower")
}

func clampBlur(value int) int {
	if value < stage1BlurMin {
		return stage1BlurMin
	}
	if value > stage1BlurMax {
		return stage1BlurMax
	}
	return value
}

// mapChoiceToPerson resolves "me"/"partner" to the role the answer points at.
func mapChoiceToPerson(role Role, choice string) Role {
	if choice != "me" && choice != "partner" {
		return ""
	}
	other := RolePlayer2
	if role == RolePlayer2 {
		other = RolePlayer1
	}
	if choice == "me" {
		return role
	}
	return other
}

func (s *stage1) initialPayload() stage1Payload {
	return stage1Payload{
		Phase:                "questions",
		BlurLevel:            stage1BlurMax,
		CurrentQuestionIndex: 0,
		CurrentQuestion:      stage1Questions[0],
	}
}

func (s *stage1) applyTexts(room *Room, payload *stage1Payload) {
	q := room.getQuestionnaire()
	title := "He Said She Said - " + q.Partner1Name + " & " + q.Partner2Name

	switch payload.Phase {
	case "finalPrompt":
		prompt := "The image is almost clear. Write down what you think is in it."
		setStageTexts(&room.state, title, prompt, prompt)
	case "results":
		stats := "Matches: " + strconv.Itoa(payload.TotalMatches) + "/" + strconv.Itoa(max(payload.QuestionsAsked, 1)) +
			" - Blur: " + strconv.Itoa(payload.BlurLevel) + "/" + strconv.Itoa(stage1BlurMax)
		setStageTexts(&room.state, title, stats, stats)
	default:
		instruction := "Answer on your phone: \"me\" or your partner."
		setStageTexts(&room.state, title, instruction, instruction)
	}
}

func (s *stage1) OnEnter(room *Room) {
	payload := s.initialPayload()
	writePayload(&room.state, &payload)
	s.applyTexts(room, &payload)
}

func (s *stage1) OnMessage(room *Room, client *Client, msgType string, data json.RawMessage) bool {
	if !isPlayerRole(client.role) {
		return false
	}

	var payload stage1Payload
	readPayload(&room.state, &payload)

	if payload.StageComplete && msgType != "continue" {
		return false
	}

	switch msgType {
	case "answer":
		return s.handleAnswer(room, client, &payload, data)
	case "imageGuess":
		return s.handleGuess(room, client, &payload, data)
	case "continue":
		summary := map[string]any{
			"blurLevel":          clampBlur(payload.BlurLevel),
			"totalMatches":       payload.TotalMatches,
			"totalMismatches":    payload.TotalMismatches,
			"questionsAsked":     payload.QuestionsAsked,
			"win":                payload.Win,
			"winBy":              payload.WinBy,
			"winnerRole":         payload.WinnerRole,
			"winnerName":         payload.WinnerName,
			"lastGuessText":      payload.LastGuessText,
			"finalAnswerPlayer1": payload.FinalAnswerPlayer1,
			"finalAnswerPlayer2": payload.FinalAnswerPlayer2,
		}
		room.addToHistory(s.Index(), summary)
		room.advanceToInterim(s.Index() + 1)
		return true
	}

	return false
}

func (s *stage1) handleAnswer(room *Room, client *Client, payload *stage1Payload, data json.RawMessage) bool {
	if payload.Phase != "questions" || payload.StageComplete {
		return false
	}

	// Prevent double-answering the same question.
	if client.role == RolePlayer1 && payload.P1Answered {
		return true
	}
	if client.role == RolePlayer2 && payload.P2Answered {
		return true
	}

	var body struct {
		Choice string `json:"choice"`
	}
	_ = json.Unmarshal(data, &body)
	choice := "me"
	if strings.ToLower(body.Choice) == "partner" {
		choice = "partner"
	}

	if client.role == RolePlayer1 {
		payload.P1Choice = choice
		payload.P1Answered = true
	} else {
		payload.P2Choice = choice
		payload.P2Answered = true
	}

	// Wait until both have answered this question.
	if !payload.P1Answered || !payload.P2Answered {
		writePayload(&room.state, payload)
		return true
	}

	p1Person := mapChoiceToPerson(RolePlayer1, payload.P1Choice)
	p2Person := mapChoiceToPerson(RolePlayer2, payload.P2Choice)
	match := p1Person != "" && p1Person == p2Person

	blur := clampBlur(payload.BlurLevel)
	if match {
		payload.TotalMatches++
		blur = clampBlur(blur - 1)
	} else {
		payload.TotalMismatches++
		blur = clampBlur(blur + 1)
	}

	payload.BlurLevel = blur
	payload.QuestionsAsked++
	payload.LastPairMatched = &match

	payload.P1Choice = ""
	payload.P2Choice = ""
	payload.P1Answered = false
	payload.P2Answered = false

	if blur == stage1BlurMin {
		payload.Phase = "finalPrompt"
		payload.AwaitingFinalAnswers = true
	} else {
		payload.CurrentQuestionIndex = (payload.CurrentQuestionIndex + 1) % len(stage1Questions)
		payload.CurrentQuestion = stage1Questions[payload.CurrentQuestionIndex]
	}

	writePayload(&room.state, payload)
	s.applyTexts(room, payload)
	return true
}

func (s *stage1) handleGuess(room *Room, client *Client, payload *stage1Payload, data json.RawMessage) bool {
	if payload.StageComplete {
		return false
	}

	var body struct {
		Text  string `json:"text"`
		Guess string `json:"guess"`
	}
	_ = json.Unmarshal(data, &body)
	text := body.Text
	if text == "" {
		text = body.Guess
	}

	payload.LastGuessWrong = false

	if strings.TrimSpace(text) == "" {
		writePayload(&room.state, payload)
		return true
	}

	q := room.getQuestionnaire()
	correct := stage1GuessCorrect(text)
	winnerName := q.Partner1Name
	if client.role == RolePlayer2 {
		winnerName = q.Partner2Name
	}

	if payload.Phase == "finalPrompt" {
		if client.role == RolePlayer1 && payload.FinalAnswerPlayer1 == "" {
			payload.FinalAnswerPlayer1 = text
		}
		if client.role == RolePlayer2 && payload.FinalAnswerPlayer2 == "" {
			payload.FinalAnswerPlayer2 = text
		}

		switch {
		case correct:
			payload.StageComplete = true
			payload.Win = true
			payload.WinBy = "finalPrompt"
			payload.WinnerRole = client.role
			payload.WinnerName = winnerName
			payload.LastGuessText = text
			payload.Phase = "results"
			payload.AwaitingFinalAnswers = false
		case payload.FinalAnswerPlayer1 != "" && payload.FinalAnswerPlayer2 != "":
			// Both answered, no correct guess: end without a winner.
			payload.StageComplete = true
			payload.WinBy = "finalPrompt"
			payload.Phase = "results"
			payload.AwaitingFinalAnswers = false
		default:
			payload.LastGuessWrong = true
		}

		writePayload(&room.state, payload)
		s.applyTexts(room, payload)
		return true
	}

	// Live guess during the question phase.
	if correct {
		payload.StageComplete = true
		payload.Win = true
		payload.WinBy = "liveGuess"
		payload.WinnerRole = client.role
		payload.WinnerName = winnerName
		payload.LastGuessText = text
		payload.Phase = "results"
		payload.AwaitingFinalAnswers = false
	} else {
		payload.LastGuessWrong = true
	}

	writePayload(&room.state, payload)
	s.applyTexts(room, payload)
	return true
}
