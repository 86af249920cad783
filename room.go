package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Room messages. All room state is owned by a single goroutine draining the
// inbox, so handlers never lock: each message is processed to completion
// before the next one.
type roomMsg interface{ isRoomMsg() }

type registerClient struct {
	client *Client
	reply  chan error
}

type unregisterClient struct{ client *Client }

type fromClient struct {
	client *Client
	msg    ClientMessage
}

type reconnectExpired struct{ role Role }

type getView struct{ reply chan roomView }

type stopRoom struct{}

func (registerClient) isRoomMsg()   {}
func (unregisterClient) isRoomMsg() {}
func (fromClient) isRoomMsg()       {}
func (reconnectExpired) isRoomMsg() {}
func (getView) isRoomMsg()          {}
func (stopRoom) isRoomMsg()         {}

// roomView reflects internal room state without data races (tests only).
type roomView struct {
	State      SyncedGameState
	History    []HistoryEntry
	NumClients int
	Ready      map[Role]bool
	Pending    []Role
}

// Room is one isolated live game session: the actor that owns the synced
// state, admits role-tagged clients, sequences stages, and runs the ready
// vote between them.
type Room struct {
	id            string
	cfg           *Config
	manager       *RoomManager
	validator     SessionValidator
	questionnaire Questionnaire
	startStage    int

	inbox   chan roomMsg
	done    chan struct{}
	stopped bool

	clients      map[*Client]bool
	state        SyncedGameState
	history      []HistoryEntry
	ready        map[Role]bool
	pendingRoles map[Role]*time.Timer
	teardown     *time.Timer
	usedNotified bool

	createdAt  time.Time
	lastActive atomic.Int64
}

func newRoom(cfg *Config, manager *RoomManager, validator SessionValidator, sessionID string, questionnaire Questionnaire) *Room {
	return newRoomAtStage(cfg, manager, validator, sessionID, questionnaire, 1)
}

// newRoomAtStage pre-seeds the stage the game will enter once both players
// are connected. Anything other than stage 1 is a dev/test seam, reachable
// only through the dev play-links flow.
func newRoomAtStage(cfg *Config, manager *RoomManager, validator SessionValidator, sessionID string, questionnaire Questionnaire, startStage int) *Room {
	if startStage < 1 {
		startStage = 1
	}
	if startStage > stageCount() {
		startStage = stageCount()
	}

	r := &Room{
		id:            sessionID,
		cfg:           cfg,
		manager:       manager,
		validator:     validator,
		questionnaire: questionnaire,
		startStage:    startStage,
		inbox:         make(chan roomMsg, 64),
		done:          make(chan struct{}),
		clients:       make(map[*Client]bool),
		ready:         make(map[Role]bool),
		pendingRoles:  make(map[Role]*time.Timer),
		createdAt:     time.Now(),
	}
	r.touch()

	qJSON, _ := json.Marshal(questionnaire)
	r.state = SyncedGameState{
		CurrentStageIndex: stageLobby,
		GameState:         statusWaitingForStart,
		Message:           "Waiting for players...",
		QuestionnaireJSON: string(qJSON),
		GameHistoryJSON:   "[]",
	}

	return r
}

func (r *Room) touch() {
	r.lastActive.Store(time.Now().UnixNano())
}

func (r *Room) idleSince() time.Time {
	return time.Unix(0, r.lastActive.Load())
}

// post delivers a message to the room unless it has already shut down.
func (r *Room) post(m roomMsg) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.inbox <- m:
		return true
	case <-r.done:
		return false
	}
}

func (r *Room) run() {
	for m := range r.inbox {
		switch msg := m.(type) {
		case registerClient:
			r.handleRegister(msg)

		case unregisterClient:
			r.handleUnregister(msg.client)

		case fromClient:
			r.handleFromClient(msg)

		case reconnectExpired:
			r.handleReconnectExpired(msg.role)

		case getView:
			msg.reply <- r.view()

		case stopRoom:
			r.doStop()
		}

		if r.stopped {
			return
		}
	}
}

func (r *Room) view() roomView {
	ready := make(map[Role]bool, len(r.ready))
	for role := range r.ready {
		ready[role] = true
	}
	pending := make([]Role, 0, len(r.pendingRoles))
	for role := range r.pendingRoles {
		pending = append(pending, role)
	}
	history := make([]HistoryEntry, len(r.history))
	copy(history, r.history)

	return roomView{
		State:      r.state,
		History:    history,
		NumClients: len(r.clients),
		Ready:      ready,
		Pending:    pending,
	}
}

func (r *Room) roleConnected(role Role) bool {
	for c := range r.clients {
		if c.role == role {
			return true
		}
	}
	return false
}

func (r *Room) connectedPlayerRoles() int {
	count := 0
	if r.roleConnected(RolePlayer1) {
		count++
	}
	if r.roleConnected(RolePlayer2) {
		count++
	}
	return count
}

func (r *Room) handleRegister(msg registerClient) {
	c := msg.client
	r.touch()

	switch {
	case r.state.GameState == statusEnded:
		msg.reply <- errors.New("this session has already ended")
		return
	case r.roleConnected(c.role):
		msg.reply <- fmt.Errorf("role %q is already connected", c.role)
		return
	case len(r.clients) >= maxClientsPerRoom:
		msg.reply <- errors.New("room is full")
		return
	}

	if t := r.pendingRoles[c.role]; t != nil {
		t.Stop()
		delete(r.pendingRoles, c.role)
		logf(r.cfg, "ROOMS: Role %s reconnected to %s", c.role, r.id)
	}

	r.clients[c] = true
	r.state.PlayerCount = len(r.clients)
	msg.reply <- nil

	if r.state.GameState == statusWaitingForStart && r.connectedPlayerRoles() == 2 {
		r.state.GameStarted = true
		r.enterInterim(r.startStage)
	}

	r.broadcast()
}

func (r *Room) handleUnregister(c *Client) {
	if !r.clients[c] {
		return
	}
	r.touch()
	r.dropClient(c)
	r.afterDisconnect(c, c.left)
	if !r.stopped {
		r.broadcast()
	}
}

func (r *Room) handleFromClient(msg fromClient) {
	c := msg.client
	if !r.clients[c] {
		return
	}
	r.touch()

	switch msg.msg.Type {
	case "leave":
		// Consented leave: no reconnection window.
		c.left = true
		r.dropClient(c)
		r.afterDisconnect(c, true)
		if !r.stopped {
			r.broadcast()
		}

	case "ready":
		r.handleReady(c)

	default:
		if r.state.GameState != statusInProgress {
			return
		}
		s := getStage(r.state.CurrentStageIndex)
		if s == nil {
			return
		}
		if s.OnMessage(r, c, msg.msg.Type, msg.msg.Data) {
			r.broadcast()
		}
	}
}

// handleReady runs the ready-voting protocol. Each player role counts at
// most once; the vote completes when every currently connected player role
// (capped at two) has readied up. A repeated ready adds no mark but still
// re-evaluates completion.
func (r *Room) handleReady(c *Client) {
	if r.state.GameState != statusInterimScreen {
		return
	}
	if !isPlayerRole(c.role) {
		return
	}

	if !r.ready[c.role] {
		r.ready[c.role] = true
		r.state.ReadyForNextCount = len(r.ready)
	}

	r.evaluateReadyVote()
	r.broadcast()
}

// evaluateReadyVote completes the vote once enough of the currently
// connected player roles have readied up. It must be re-run whenever the
// connected set shrinks: a disconnect can lower the quorum below marks
// already collected.
func (r *Room) evaluateReadyVote() {
	if r.state.GameState != statusInterimScreen {
		return
	}

	needed := r.connectedPlayerRoles()
	if needed > 2 {
		needed = 2
	}
	if needed < 1 {
		needed = 1
	}
	if len(r.ready) >= needed {
		r.enterStage()
	}
}

func (r *Room) handleReconnectExpired(role Role) {
	if r.roleConnected(role) {
		return
	}
	delete(r.pendingRoles, role)
	logf(r.cfg, "ROOMS: Role %s did not return to %s", role, r.id)
	if len(r.clients) == 0 && len(r.pendingRoles) == 0 {
		r.doStop()
		return
	}
	r.evaluateReadyVote()
	r.broadcast()
}

func (r *Room) dropClient(c *Client) {
	delete(r.clients, c)
	close(c.send)
	r.state.PlayerCount = len(r.clients)
}

func (r *Room) afterDisconnect(c *Client, consented bool) {
	if !consented && isPlayerRole(c.role) && r.state.GameState != statusEnded && !r.roleConnected(c.role) {
		role := c.role
		r.pendingRoles[role] = time.AfterFunc(r.cfg.reconnectWindow, func() {
			r.post(reconnectExpired{role: role})
		})
		r.evaluateReadyVote()
		return
	}

	if len(r.clients) == 0 && len(r.pendingRoles) == 0 {
		r.doStop()
		return
	}

	r.evaluateReadyVote()
}

// enterInterim moves to the ready screen gating the given stage. An index
// past the last stage ends the game instead.
func (r *Room) enterInterim(next int) {
	if next > stageCount() {
		r.advanceToEnd()
		return
	}

	r.state.CurrentStageIndex = next
	r.state.GameState = statusInterimScreen
	r.state.Message = interimTitle(next)
	r.state.ReadyForNextCount = 0
	clear(r.ready)
	setStageTexts(&r.state, "", "", "")
}

// enterStage activates the pending stage: fresh payload, then OnEnter.
func (r *Room) enterStage() {
	s := getStage(r.state.CurrentStageIndex)
	if s == nil {
		r.advanceToEnd()
		return
	}

	r.state.GameState = statusInProgress
	r.state.Message = ""
	r.state.ReadyForNextCount = 0
	clear(r.ready)
	r.state.StagePayloadJSON = ""
	s.OnEnter(r)
	logf(r.cfg, "ROOMS: Entered stage %d in %s", s.Index(), r.id)
}

// advanceToInterim is called by the active stage once it has finished and
// appended its summary to the history.
func (r *Room) advanceToInterim(next int) {
	if r.state.GameState == statusEnded {
		return
	}
	r.enterInterim(next)
}

// advanceToEnd terminates the session: the validator is notified exactly
// once and teardown is scheduled so clients can read the final screen.
func (r *Room) advanceToEnd() {
	if r.state.GameState == statusEnded {
		return
	}

	r.state.GameState = statusEnded
	r.state.CurrentStageIndex = stageEnded
	r.state.Message = "You won the game!"
	r.state.ReadyForNextCount = 0
	clear(r.ready)
	setStageTexts(&r.state, "", "", "")

	if !r.usedNotified {
		r.usedNotified = true
		go r.validator.MarkUsed(r.id)
	}

	if r.teardown == nil {
		r.teardown = time.AfterFunc(r.cfg.teardownDelay, func() {
			r.post(stopRoom{})
		})
	}

	logf(r.cfg, "ROOMS: Session %s ended", r.id)
}

// addToHistory appends one completed stage's summary. The room only
// serializes; it never interprets entries.
func (r *Room) addToHistory(stageIndex int, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		logf(r.cfg, "ROOMS: Dropping unserializable history entry for stage %d in %s: %v", stageIndex, r.id, err)
		return
	}

	r.history = append(r.history, HistoryEntry{StageIndex: stageIndex, Payload: b})

	hb, err := json.Marshal(r.history)
	if err != nil {
		return
	}
	r.state.GameHistoryJSON = string(hb)
}

// getQuestionnaire returns the session questionnaire with placeholder
// partner names filled in, mirroring what stages expect to render.
func (r *Room) getQuestionnaire() Questionnaire {
	q := r.questionnaire
	if q.Partner1Name == "" {
		q.Partner1Name = "Partner 1"
	}
	if q.Partner2Name == "" {
		q.Partner2Name = "Partner 2"
	}
	return q
}

func (r *Room) broadcast() {
	snapshot := r.state
	msg := ServerMessage{Type: "state", State: &snapshot}

	var slow []*Client
	for client := range r.clients {
		select {
		case client.send <- msg:
		default:
			slow = append(slow, client)
		}
	}

	// Slow/full clients are dropped through the normal disconnect path so
	// they keep their reconnection window and the player count stays honest.
	dropped := false
	for _, client := range slow {
		if r.stopped {
			return
		}
		if !r.clients[client] {
			continue
		}
		logf(r.cfg, "ROOMS: Dropping slow %s client from %s", client.role, r.id)
		r.dropClient(client)
		r.afterDisconnect(client, false)
		dropped = true
	}

	// The eviction changed the state the others just received; send a fresh
	// snapshot. The client set shrank, so this terminates.
	if dropped && !r.stopped {
		r.broadcast()
	}
}

func (r *Room) doStop() {
	if r.stopped {
		return
	}
	r.stopped = true

	if r.teardown != nil {
		r.teardown.Stop()
	}
	for role, t := range r.pendingRoles {
		t.Stop()
		delete(r.pendingRoles, role)
	}
	for c := range r.clients {
		close(c.send)
		delete(r.clients, c)
	}

	if r.manager != nil {
		r.manager.remove(r.id)
	}

	close(r.done)
	logf(r.cfg, "ROOMS: Closed room %s", r.id)
}
