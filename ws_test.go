package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// gameTestServer wires the full in-process stack: session store, local
// validator, room manager, and the websocket endpoint.
func gameTestServer(t *testing.T) (*httptest.Server, *SessionStore, *RoomManager) {
	t.Helper()

	cfg := testConfig()
	cfg.dev = true

	store := newSessionStore()
	validator := &localValidator{store: store}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	manager := newRoomManager(ctx, cfg, validator)

	mux := httprouter.New()
	registerGameServer(cfg, manager, mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server, store, manager
}

func (rm *RoomManager) numRooms() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.rooms)
}

func wsURL(server *httptest.Server, sessionID, token string, role Role) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") +
		"/game/" + sessionID + "/ws?token=" + token + "&role=" + string(role)
}

func dialGame(t *testing.T, server *httptest.Server, sessionID, token string, role Role) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, sessionID, token, role), nil)
	if err != nil {
		t.Fatalf("dial as %s failed: %v (resp %v)", role, err, resp)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readState reads server messages until a state broadcast matches want.
func readState(t *testing.T, conn *websocket.Conn, want func(SyncedGameState) bool) SyncedGameState {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if msg.Type != "state" || msg.State == nil {
			continue
		}
		if want(*msg.State) {
			return *msg.State
		}
	}
}

func TestGameWSRejectsBadCredentials(t *testing.T) {
	server, store, _ := gameTestServer(t)
	session := store.Create(testQuestionnaire())

	tests := []struct {
		name string
		url  string
		want int
	}{
		{
			name: "missing token",
			url:  "ws" + strings.TrimPrefix(server.URL, "http") + "/game/" + session.SessionID + "/ws?role=player1",
			want: http.StatusBadRequest,
		},
		{
			name: "unknown role",
			url:  wsURL(server, session.SessionID, session.Tokens[RolePlayer1], Role("narrator")),
			want: http.StatusUnauthorized,
		},
		{
			name: "wrong token",
			url:  wsURL(server, session.SessionID, "forged-token", RolePlayer1),
			want: http.StatusUnauthorized,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			if err == nil {
				conn.Close()
				t.Fatalf("handshake unexpectedly succeeded")
			}
			if resp == nil || resp.StatusCode != tc.want {
				t.Fatalf("expected status %d, got %v", tc.want, resp)
			}
		})
	}
}

func TestFailedHandshakeCreatesNoRoom(t *testing.T) {
	server, store, manager := gameTestServer(t)
	session := store.Create(testQuestionnaire())

	// Valid credentials over plain HTTP: the upgrade fails, and no room may
	// be left behind for the reaper to collect.
	resp, err := http.Get(server.URL + "/game/" + session.SessionID + "/ws?token=" +
		session.Tokens[RolePlayer1] + "&role=" + string(RolePlayer1))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected %d for a non-websocket request, got %d", http.StatusBadRequest, resp.StatusCode)
	}

	if got := manager.numRooms(); got != 0 {
		t.Fatalf("failed handshake left %d room(s) behind", got)
	}
}

func TestGameWSTwoPlayersReachInterim(t *testing.T) {
	server, store, _ := gameTestServer(t)
	session := store.Create(testQuestionnaire())

	p1 := dialGame(t, server, session.SessionID, session.Tokens[RolePlayer1], RolePlayer1)
	readState(t, p1, func(s SyncedGameState) bool {
		return s.PlayerCount == 1 && !s.GameStarted
	})

	p2 := dialGame(t, server, session.SessionID, session.Tokens[RolePlayer2], RolePlayer2)

	state := readState(t, p1, func(s SyncedGameState) bool { return s.GameStarted })
	if state.GameState != statusInterimScreen || state.CurrentStageIndex != 1 {
		t.Fatalf("expected interim before stage 1, got %s at %d", state.GameState, state.CurrentStageIndex)
	}
	readState(t, p2, func(s SyncedGameState) bool { return s.GameStarted })

	// Both ready up; the first stage begins with its payload.
	ready, _ := json.Marshal(ClientMessage{Type: "ready"})
	if err := p1.WriteMessage(websocket.TextMessage, ready); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p2.WriteMessage(websocket.TextMessage, ready); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	state = readState(t, p1, func(s SyncedGameState) bool { return s.GameState == statusInProgress })
	if state.CurrentStageIndex != 1 || state.StagePayloadJSON == "" {
		t.Fatalf("stage 1 did not start: %+v", state)
	}
	if state.QuestionnaireJSON == "" || !strings.Contains(state.QuestionnaireJSON, "Maya") {
		t.Fatalf("questionnaire not synced: %q", state.QuestionnaireJSON)
	}
}

func TestGameWSViewerReceivesStateButCannotReady(t *testing.T) {
	server, store, _ := gameTestServer(t)
	session := store.Create(testQuestionnaire())

	tv := dialGame(t, server, session.SessionID, session.Tokens[RoleTV], RoleTV)
	state := readState(t, tv, func(s SyncedGameState) bool { return s.PlayerCount == 1 })
	if state.GameStarted {
		t.Fatalf("viewer alone started the game")
	}

	p1 := dialGame(t, server, session.SessionID, session.Tokens[RolePlayer1], RolePlayer1)
	p2 := dialGame(t, server, session.SessionID, session.Tokens[RolePlayer2], RolePlayer2)
	readState(t, tv, func(s SyncedGameState) bool { return s.GameStarted })

	// A viewer ready must not count toward the vote.
	ready, _ := json.Marshal(ClientMessage{Type: "ready"})
	if err := tv.WriteMessage(websocket.TextMessage, ready); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p1.WriteMessage(websocket.TextMessage, ready); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	state = readState(t, tv, func(s SyncedGameState) bool { return s.ReadyForNextCount > 0 })
	if state.ReadyForNextCount != 1 || state.GameState != statusInterimScreen {
		t.Fatalf("viewer ready counted: %+v", state)
	}

	_ = p2 // keeps the second player connected for the vote
}

func TestGameWSDuplicateRoleGetsError(t *testing.T) {
	server, store, _ := gameTestServer(t)
	session := store.Create(testQuestionnaire())

	dialGame(t, server, session.SessionID, session.Tokens[RolePlayer1], RolePlayer1)

	dup, _, err := websocket.DefaultDialer.Dial(wsURL(server, session.SessionID, session.Tokens[RolePlayer1], RolePlayer1), nil)
	if err != nil {
		t.Fatalf("duplicate dial failed at handshake: %v", err)
	}
	defer dup.Close()

	_ = dup.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ServerMessage
	if err := dup.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if msg.Type != "error" || msg.Error == "" {
		t.Fatalf("expected error message, got %+v", msg)
	}
}
