package main

// Stage 4: "Zoom Map"
//
// Six turn-based sub-rounds. The describer answers four multiple-choice
// questions about a secret word; the guesser sees the answers plus four word
// options. A correct guess zooms the TV map in, a wrong one zooms out.
// Either player may type a location guess at any time; a correct one ends
// the stage immediately. Running out of sub-rounds ends it too.

import (
	"crypto/rand"
	_ "embed"
	"encoding/json"
	"math/big"
	"strconv"
	"strings"
)

const (
	stage4MaxSubRounds = 6
	stage4ZoomMin      = 0
	stage4ZoomMax      = 6

	stage4TargetLocation = "eiffel tower"
)

//go:embed assets/words.json
var stage4WordData []byte

type stage4Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type stage4Word struct {
	Word         string           `json:"word"`
	Alternatives []string         `json:"alternatives"`
	Questions    []stage4Question `json:"questions"`
}

var stage4Words = func() []stage4Word {
	var words []stage4Word
	if err := json.Unmarshal(stage4WordData, &words); err != nil {
		panic("bad embedded word list: " + err.Error())
	}
	return words
}()

type stage4Payload struct {
	SubRoundIndex          int              `json:"subRoundIndex"`
	ZoomLevel              int              `json:"zoomLevel"`
	Phase                  string           `json:"phase"` // "describe" | "guess" | "result"
	DescriberRole          Role             `json:"describerRole"`
	StageComplete          bool             `json:"stageComplete"`
	LocationCorrect        bool             `json:"locationCorrect"`
	Word                   string           `json:"word,omitempty"`
	Questions              []stage4Question `json:"questions,omitempty"`
	WordOptions            []string         `json:"wordOptions,omitempty"`
	DescriberAnswers       []int            `json:"describerAnswers"`
	DescriberAnswerTexts   []string         `json:"describerAnswerTexts"`
	Result                 string           `json:"result,omitempty"` // "correct" | "incorrect"
	LastLocationGuessWrong bool             `json:"lastLocationGuessWrong"`
}

type stage4 struct{}

func (s *stage4) Index() int { return 4 }

func (s *stage4) InterimTitle() string { return "" }

func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	i, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(i.Int64())
}

func pickWord() stage4Word {
	return stage4Words[randomIndex(len(stage4Words))]
}

func buildWordOptions(entry stage4Word) []string {
	options := append([]string{entry.Word}, entry.Alternatives...)
	if len(options) > 4 {
		options = options[:4]
	}

	for i := len(options) - 1; i > 0; i-- {
		j := randomIndex(i + 1)
		options[i], options[j] = options[j], options[i]
	}
	return options
}

func locationCorrect(text string) bool {
	n := normalizeGuess(text)
	return strings.Contains(n, "eiffel") || n == "tower" || strings.Contains(n, stage4TargetLocation)
}

func describerRoleFor(subRound int) Role {
	if subRound%2 == 0 {
		return RolePlayer1
	}
	return RolePlayer2
}

func (s *stage4) applyTexts(room *Room, payload *stage4Payload) {
	round := "Zoom Map - Round " + strconv.Itoa(payload.SubRoundIndex+1) + "/" + strconv.Itoa(stage4MaxSubRounds) +
		" - Zoom " + strconv.Itoa(payload.ZoomLevel) + "/" + strconv.Itoa(stage4ZoomMax)

	describe := "Answer the 4 questions below (only you see the secret word)."
	guess := "Your partner answered 4 questions. Pick the word they're describing."
	wait := "Waiting for your partner to guess..."

	switch payload.Phase {
	case "describe":
		if payload.DescriberRole == RolePlayer1 {
			setStageTexts(&room.state, round, describe, guess)
		} else {
			setStageTexts(&room.state, round, guess, describe)
		}
	case "guess":
		if payload.DescriberRole == RolePlayer1 {
			setStageTexts(&room.state, round, wait, guess)
		} else {
			setStageTexts(&room.state, round, guess, wait)
		}
	case "result":
		outcome := "Wrong word. Zooming out."
		if payload.Result == "correct" {
			outcome = "Correct! Zooming in."
		}
		next := "Tap Next to continue to the next round."
		setStageTexts(&room.state, "Zoom Map - "+outcome+" (Zoom "+strconv.Itoa(payload.ZoomLevel)+"/"+strconv.Itoa(stage4ZoomMax)+")", next, next)
	}
}

func (s *stage4) startSubRound(room *Room, payload *stage4Payload) {
	entry := pickWord()
	payload.Word = entry.Word
	payload.Questions = entry.Questions
	payload.WordOptions = buildWordOptions(entry)
	payload.DescriberAnswers = nil
	payload.DescriberAnswerTexts = nil
	payload.Result = ""
	payload.Phase = "describe"
	payload.DescriberRole = describerRoleFor(payload.SubRoundIndex)
	writePayload(&room.state, payload)
	s.applyTexts(room, payload)
}

func (s *stage4) OnEnter(room *Room) {
	payload := stage4Payload{
		SubRoundIndex: 0,
		ZoomLevel:     stage4ZoomMin,
		DescriberRole: RolePlayer1,
	}
	s.startSubRound(room, &payload)
}

func (s *stage4) OnMessage(room *Room, client *Client, msgType string, data json.RawMessage) bool {
	if !isPlayerRole(client.role) {
		return false
	}

	var payload stage4Payload
	readPayload(&room.state, &payload)

	if payload.StageComplete || payload.LocationCorrect {
		return false
	}

	switch {
	// Location guess: allowed anytime.
	case msgType == "locationGuess" || msgType == "location":
		var body struct {
			Text  string `json:"text"`
			Guess string `json:"guess"`
		}
		_ = json.Unmarshal(data, &body)
		text := body.Text
		if text == "" {
			text = body.Guess
		}

		payload.LastLocationGuessWrong = false
		if locationCorrect(text) {
			payload.StageComplete = true
			payload.LocationCorrect = true
			writePayload(&room.state, &payload)
			setStageTexts(&room.state, "You found it! Eiffel Tower!", "You found the location!", "You found the location!")
			room.addToHistory(s.Index(), map[string]any{"locationCorrect": true, "zoomLevel": payload.ZoomLevel})
			room.advanceToInterim(s.Index() + 1)
			return true
		}
		payload.LastLocationGuessWrong = true
		writePayload(&room.state, &payload)
		return true

	case payload.Phase == "describe" && msgType == "describerSubmit":
		if client.role != payload.DescriberRole {
			return false
		}
		var body struct {
			Answers []int `json:"answers"`
		}
		_ = json.Unmarshal(data, &body)
		if len(body.Answers) < 4 {
			return false
		}

		answers := body.Answers[:4]
		answerTexts := make([]string, len(answers))
		for i, idx := range answers {
			if i >= len(payload.Questions) {
				break
			}
			options := payload.Questions[i].Options
			if idx >= 0 && idx < len(options) {
				answerTexts[i] = options[idx]
			}
		}

		payload.DescriberAnswers = answers
		payload.DescriberAnswerTexts = answerTexts
		payload.Phase = "guess"
		writePayload(&room.state, &payload)
		s.applyTexts(room, &payload)
		return true

	case payload.Phase == "guess" && msgType == "guesserSubmit":
		if client.role == payload.DescriberRole {
			return false
		}
		var body struct {
			WordIndex *int `json:"wordIndex"`
		}
		_ = json.Unmarshal(data, &body)
		wordIndex := -1
		if body.WordIndex != nil {
			wordIndex = *body.WordIndex
		}

		correct := wordIndex >= 0 && wordIndex < len(payload.WordOptions) &&
			payload.WordOptions[wordIndex] == payload.Word
		payload.Phase = "result"
		if correct {
			payload.Result = "correct"
			payload.ZoomLevel = min(stage4ZoomMax, payload.ZoomLevel+1)
		} else {
			payload.Result = "incorrect"
			payload.ZoomLevel = max(stage4ZoomMin, payload.ZoomLevel-1)
		}
		writePayload(&room.state, &payload)
		s.applyTexts(room, &payload)
		return true

	case payload.Phase == "result" && (msgType == "next" || msgType == "continue"):
		nextSub := payload.SubRoundIndex + 1
		if nextSub >= stage4MaxSubRounds {
			room.addToHistory(s.Index(), map[string]any{"zoomLevel": payload.ZoomLevel, "subRounds": stage4MaxSubRounds})
			room.advanceToInterim(s.Index() + 1)
			return true
		}
		payload.SubRoundIndex = nextSub
		s.startSubRound(room, &payload)
		return true
	}

	return false
}
