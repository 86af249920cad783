package main

import (
	"crypto/rand"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Session is one purchased game: three role-scoped tokens, the questionnaire
// collected up front, and a used flag flipped exactly once at game end.
type Session struct {
	SessionID     string
	Tokens        map[Role]string
	Questionnaire Questionnaire
	CreatedAt     time.Time
	Used          bool
}

// SessionStore is the process-scoped in-memory session registry. It is
// injected into whatever consumes it rather than accessed as a global.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
	}
}

func randomToken(length int) string {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = charset[int(buf[i])%len(charset)]
	}
	return string(out)
}

func (s *SessionStore) Create(questionnaire Questionnaire) *Session {
	session := &Session{
		SessionID: uuid.NewString(),
		Tokens: map[Role]string{
			RolePlayer1: randomToken(32),
			RolePlayer2: randomToken(32),
			RoleTV:      randomToken(32),
		},
		Questionnaire: questionnaire,
		CreatedAt:     time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.SessionID] = session

	return session
}

func (s *SessionStore) Get(sessionID string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	return session, ok
}

// GetByToken validates a (session, token, role) triple. Used sessions never
// validate again.
func (s *SessionStore) GetByToken(sessionID, token string, role Role) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Used {
		return nil, false
	}
	expected, ok := session.Tokens[role]
	if !ok || expected != token {
		return nil, false
	}
	return session, true
}

func (s *SessionStore) SetUsed(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[sessionID]; ok {
		session.Used = true
	}
}

func requestBaseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func playLink(base, sessionID, token string, role Role, devStage int) string {
	link := base + "/play?session=" + sessionID + "&token=" + token + "&role=" + string(role)
	if devStage > 0 {
		link += "&devStage=" + strconv.Itoa(devStage)
	}
	return link
}

type playLinks struct {
	SessionID   string `json:"sessionId"`
	Player1Link string `json:"player1Link"`
	Player2Link string `json:"player2Link"`
	TVLink      string `json:"tvLink"`
	Stage       int    `json:"stage,omitempty"`
}

func sessionLinks(base string, session *Session, devStage int) playLinks {
	return playLinks{
		SessionID:   session.SessionID,
		Player1Link: playLink(base, session.SessionID, session.Tokens[RolePlayer1], RolePlayer1, devStage),
		Player2Link: playLink(base, session.SessionID, session.Tokens[RolePlayer2], RolePlayer2, devStage),
		TVLink:      playLink(base, session.SessionID, session.Tokens[RoleTV], RoleTV, devStage),
		Stage:       devStage,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// serveQuestionnaire creates a session from a completed questionnaire and
// returns the three role-bound play links.
func serveQuestionnaire(cfg *Config, store *SessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var q Questionnaire
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if q.Partner1Name == "" || q.Partner2Name == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing partner names"})
			return
		}

		session := store.Create(q)
		logf(cfg, "SESSIONS: Created session %s", session.SessionID)

		writeJSON(w, http.StatusCreated, sessionLinks(requestBaseURL(r), session, 0))
	}
}

// serveValidate is the boundary the game server's validator client calls.
func serveValidate(store *SessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		query := r.URL.Query()
		sessionID := query.Get("sessionId")
		token := query.Get("token")
		role := Role(query.Get("role"))

		if sessionID == "" || token == "" || role == "" {
			writeJSON(w, http.StatusUnauthorized, validateResponse{Valid: false})
			return
		}

		session, ok := store.GetByToken(sessionID, token, role)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, validateResponse{Valid: false})
			return
		}

		q := session.Questionnaire
		writeJSON(w, http.StatusOK, validateResponse{Valid: true, Questionnaire: &q})
	}
}

func serveSessionUsed(cfg *Config, store *SessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		var body struct {
			SessionID string `json:"sessionId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
		if body.SessionID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing sessionId"})
			return
		}

		store.SetUsed(body.SessionID)
		logf(cfg, "SESSIONS: Session %s marked used", body.SessionID)

		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	}
}

func registerSessionAPI(cfg *Config, store *SessionStore, mux *httprouter.Router) {
	mux.POST(cfg.prefix+"/api/questionnaire", serveQuestionnaire(cfg, store))
	mux.GET(cfg.prefix+"/api/session/validate", serveValidate(store))
	mux.POST(cfg.prefix+"/api/session/used", serveSessionUsed(cfg, store))
}

var devQuestionnaire = Questionnaire{
	Partner1Name: "Dev Partner 1",
	Partner2Name: "Dev Partner 2",
	HowLong:      "1 year",
	HowMet:       "Online",
	WhereMet:     "At home",
}

// serveDevPlayLinks creates a throwaway session with a mock questionnaire
// and returns links that skip straight to the requested stage.
func serveDevPlayLinks(cfg *Config, store *SessionStore) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		stage, err := strconv.Atoi(r.URL.Query().Get("stage"))
		if err != nil || stage < 1 {
			stage = 1
		}
		if stage > stageCount() {
			stage = stageCount()
		}

		session := store.Create(devQuestionnaire)
		logf(cfg, "SESSIONS: Created dev session %s at stage %d", session.SessionID, stage)

		writeJSON(w, http.StatusOK, sessionLinks(requestBaseURL(r), session, stage))
	}
}

// serveDevQR renders a play link as a phone-scannable PNG QR code.
func serveDevQR(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	link := r.URL.Query().Get("url")
	if link == "" {
		http.Error(w, "missing url", http.StatusBadRequest)
		return
	}

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func registerDevRoutes(cfg *Config, store *SessionStore, mux *httprouter.Router) {
	mux.GET(cfg.prefix+"/dev/play-links", serveDevPlayLinks(cfg, store))
	mux.GET(cfg.prefix+"/dev/play-links/qr", serveDevQR)
}
