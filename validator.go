package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// SessionValidator is the authority on (session, token, role) triples. The
// room consults it exactly once per client at join time, and notifies it
// once when the session is consumed.
type SessionValidator interface {
	// Validate never errors: any network or parse failure reads as invalid.
	Validate(ctx context.Context, sessionID, token string, role Role) (bool, *Questionnaire)

	// MarkUsed is best-effort and fire-and-forget; failures are logged and
	// never retried.
	MarkUsed(sessionID string)
}

type validateResponse struct {
	Valid         bool           `json:"valid"`
	Questionnaire *Questionnaire `json:"questionnaire,omitempty"`
}

// httpValidator talks to an external web service holding the sessions.
type httpValidator struct {
	cfg     *Config
	baseURL string
	client  *http.Client
}

func newHTTPValidator(cfg *Config, baseURL string) *httpValidator {
	return &httpValidator{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (v *httpValidator) Validate(ctx context.Context, sessionID, token string, role Role) (bool, *Questionnaire) {
	query := url.Values{}
	query.Set("sessionId", sessionID)
	query.Set("token", token)
	query.Set("role", string(role))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/api/session/validate?"+query.Encode(), nil)
	if err != nil {
		return false, nil
	}

	resp, err := v.client.Do(req)
	if err != nil {
		logf(v.cfg, "AUTH: Validator unreachable for %s: %v", sessionID, err)
		return false, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, nil
	}

	var body validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logf(v.cfg, "AUTH: Malformed validator response for %s: %v", sessionID, err)
		return false, nil
	}
	if !body.Valid {
		return false, nil
	}

	return true, body.Questionnaire
}

func (v *httpValidator) MarkUsed(sessionID string) {
	if sessionID == "" {
		return
	}

	payload, _ := json.Marshal(map[string]string{"sessionId": sessionID})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/api/session/used", bytes.NewReader(payload))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		logf(v.cfg, "AUTH: Session-used notification failed for %s: %v", sessionID, err)
		return
	}
	_ = resp.Body.Close()
}

// localValidator serves the same contract from the built-in session store,
// for deployments that run the whole thing as one process.
type localValidator struct {
	store *SessionStore
}

func (v *localValidator) Validate(_ context.Context, sessionID, token string, role Role) (bool, *Questionnaire) {
	session, ok := v.store.GetByToken(sessionID, token, role)
	if !ok {
		return false, nil
	}
	q := session.Questionnaire
	return true, &q
}

func (v *localValidator) MarkUsed(sessionID string) {
	v.store.SetUsed(sessionID)
}

var _ SessionValidator = (*httpValidator)(nil)
var _ SessionValidator = (*localValidator)(nil)
