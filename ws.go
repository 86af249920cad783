package main

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one role-bound websocket connection to a room.
type Client struct {
	conn *websocket.Conn
	send chan any
	role Role

	// left marks a consented leave; set only by the room goroutine.
	left bool
}

func (c *Client) readPump(room *Room) {
	defer func() {
		room.post(unregisterClient{client: c})
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		if msg.Type == "" {
			continue
		}
		if !room.post(fromClient{client: c, msg: msg}) {
			return
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// serveGameWS authenticates the (session, token, role) triple against the
// validator and, on success, upgrades and registers the client with its
// room. Validation happens here, off the room's message loop.
func serveGameWS(cfg *Config, manager *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		sessionID := ps.ByName("sessionid")
		token := r.URL.Query().Get("token")
		role := Role(r.URL.Query().Get("role"))

		if sessionID == "" || token == "" || role == "" {
			http.Error(w, "missing sessionId, token, or role", http.StatusBadRequest)
			return
		}
		if !validRole(role) {
			http.Error(w, "invalid role", http.StatusUnauthorized)
			return
		}

		valid, questionnaire := manager.validator.Validate(r.Context(), sessionID, token, role)
		if !valid {
			http.Error(w, "invalid or expired link", http.StatusUnauthorized)
			return
		}

		startStage := 1
		if cfg.dev {
			if n, err := strconv.Atoi(r.URL.Query().Get("devStage")); err == nil && n > 0 {
				startStage = n
			}
		}

		var q Questionnaire
		if questionnaire != nil {
			q = *questionnaire
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade writes its own error response; don't touch the room
			// registry for a handshake that never became a client.
			log.Println("upgrade error:", err)
			return
		}

		room := manager.getRoom(sessionID, q, startStage)

		client := &Client{
			conn: conn,
			send: make(chan any, 8),
			role: role,
		}

		reply := make(chan error, 1)
		if !room.post(registerClient{client: client, reply: reply}) {
			_ = conn.WriteJSON(ServerMessage{Type: "error", Error: "this session has already ended"})
			_ = conn.Close()
			return
		}
		if err := <-reply; err != nil {
			_ = conn.WriteJSON(ServerMessage{Type: "error", Error: err.Error()})
			_ = conn.Close()
			return
		}

		logf(cfg, "GAMES: Role %s joined %s from %s", role, sessionID, realIP(r))

		go client.writePump()
		client.readPump(room)
	}
}

func registerGameServer(cfg *Config, manager *RoomManager, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/game/:sessionid/ws", serveGameWS(cfg, manager))
}
