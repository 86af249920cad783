package main

import (
	"encoding/json"
)

const (
	// stageLobby is the pre-game state; stageEnded is the terminal sentinel.
	stageLobby = 0
	stageEnded = 1000

	// Two players plus one optional TV display.
	maxClientsPerRoom = 3
)

type GameStatus string

const (
	statusWaitingForStart GameStatus = "WAITING_FOR_START"
	statusInterimScreen   GameStatus = "INTERIM_SCREEN"
	statusInProgress      GameStatus = "IN_PROGRESS"
	statusEnded           GameStatus = "ENDED"
)

type Role string

const (
	RolePlayer1 Role = "player1"
	RolePlayer2 Role = "player2"
	RoleTV      Role = "tv"
)

func validRole(role Role) bool {
	switch role {
	case RolePlayer1, RolePlayer2, RoleTV:
		return true
	}
	return false
}

func isPlayerRole(role Role) bool {
	return role == RolePlayer1 || role == RolePlayer2
}

// Questionnaire is the free-text personalization data collected before the
// session starts. It is copied into the room at creation and immutable after.
type Questionnaire struct {
	Partner1Name string `json:"partner1Name"`
	Partner2Name string `json:"partner2Name"`
	HowLong      string `json:"howLong"`
	HowMet       string `json:"howMet"`
	WhereMet     string `json:"whereMet"`
}

// HistoryEntry records one completed stage's outcome. Entries are append-only
// and ordered by completion time.
type HistoryEntry struct {
	StageIndex int             `json:"stageIndex"`
	Payload    json.RawMessage `json:"payload"`
}

// SyncedGameState is the single source of truth pushed to every connected
// client on every mutation. The orchestrator owns every field except
// StagePayloadJSON, which only the active stage may read or write.
type SyncedGameState struct {
	CurrentStageIndex int        `json:"currentStageIndex"`
	GameState         GameStatus `json:"gameState"`
	Message           string     `json:"message"`
	TVText            string     `json:"tvText"`
	Player1Text       string     `json:"player1Text"`
	Player2Text       string     `json:"player2Text"`
	GameStarted       bool       `json:"gameStarted"`
	PlayerCount       int        `json:"playerCount"`
	QuestionnaireJSON string     `json:"questionnaireJson"`
	StagePayloadJSON  string     `json:"stagePayloadJson"`
	GameHistoryJSON   string     `json:"gameHistoryJson"`
	ReadyForNextCount int        `json:"readyForNextCount"`
}

// Messages coming from clients
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Messages sent to clients
type ServerMessage struct {
	Type  string           `json:"type"` // "state" | "error"
	State *SyncedGameState `json:"state,omitempty"`
	Error string           `json:"error,omitempty"`
}
