package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/pkg/types"
)

// SessionControl is the orchestrator surface the control API needs.
// Implemented by [session.Orchestrator].
type SessionControl interface {
	Stop(ctx context.Context, sessionID string) (*session.StopResult, error)
	MarkAnswered(ctx context.Context, sessionID, questionID string) ([]types.SuggestedQuestion, error)
	DeleteQuestion(ctx context.Context, sessionID, questionID string) ([]types.SuggestedQuestion, error)
}

// KeyStorer encrypts and persists per-tenant provider API keys.
// Implemented by [vault.Keychain].
type KeyStorer interface {
	Store(ctx context.Context, tenantID, provider, apiKey string) error
}

// Control serves the REST session API under /v1.
type Control struct {
	sessions    store.SessionStore
	transcripts store.TranscriptStore
	decks       store.DeckStore
	live        SessionControl
	keys        KeyStorer
	now         func() time.Time
}

// NewControl creates the control API handler set.
func NewControl(sessions store.SessionStore, transcripts store.TranscriptStore, decks store.DeckStore, live SessionControl) *Control {
	return &Control{
		sessions:    sessions,
		transcripts: transcripts,
		decks:       decks,
		live:        live,
		now:         time.Now,
	}
}

// SetKeychain enables the tenant key management route. Must be called
// before [Control.Register].
func (c *Control) SetKeychain(k KeyStorer) { c.keys = k }

// Register adds the control routes to mux.
func (c *Control) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/sessions", c.createSession)
	mux.HandleFunc("GET /v1/sessions/{id}", c.getSession)
	mux.HandleFunc("POST /v1/sessions/{id}/stop", c.stopSession)
	mux.HandleFunc("GET /v1/sessions/{id}/transcript", c.getTranscript)
	mux.HandleFunc("POST /v1/sessions/{id}/questions/{qid}/answered", c.markAnswered)
	mux.HandleFunc("DELETE /v1/sessions/{id}/questions/{qid}", c.deleteQuestion)
	if c.keys != nil {
		mux.HandleFunc("PUT /v1/tenants/{tenant}/keys/{provider}", c.putTenantKey)
	}
}

type createSessionRequest struct {
	DeckID string `json:"deckId"`
	Title  string `json:"title,omitempty"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	// AttachToken is handed to the meeting client and presented on the
	// websocket join. Enforcement happens at the authenticating edge
	// proxy, not here.
	AttachToken string `json:"attachToken"`
}

func (c *Control) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeckID == "" {
		writeError(w, http.StatusBadRequest, "deckId is required")
		return
	}

	deck, err := c.decks.GetDeck(r.Context(), req.DeckID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deck not found: "+req.DeckID)
			return
		}
		c.internalError(w, "deck lookup failed", err)
		return
	}

	title := req.Title
	if title == "" {
		title = "Meeting: " + deck.Title
	}
	sess := &types.Session{
		ID:           uuid.NewString(),
		DeckID:       deck.ID,
		TenantID:     deck.TenantID,
		Title:        title,
		Status:       types.SessionActive,
		StartedAt:    c.now(),
		SummaryState: types.SummaryPending,
	}
	if err := c.sessions.CreateSession(r.Context(), sess); err != nil {
		c.internalError(w, "session create failed", err)
		return
	}

	slog.Info("session created",
		"session_id", sess.ID,
		"deck_id", deck.ID)
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   sess.ID,
		AttachToken: uuid.NewString(),
	})
}

func (c *Control) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := c.sessions.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		c.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (c *Control) stopSession(w http.ResponseWriter, r *http.Request) {
	res, err := c.live.Stop(r.Context(), r.PathValue("id"))
	if err != nil {
		c.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type transcriptResponse struct {
	SessionID   string             `json:"sessionId"`
	Transcripts []types.Transcript `json:"transcripts"`
}

func (c *Control) getTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := c.sessions.GetSession(r.Context(), id); err != nil {
		c.storeError(w, err)
		return
	}
	trs, err := c.transcripts.TranscriptsBySession(r.Context(), id)
	if err != nil {
		c.internalError(w, "transcript fetch failed", err)
		return
	}
	if trs == nil {
		trs = []types.Transcript{}
	}
	writeJSON(w, http.StatusOK, transcriptResponse{SessionID: id, Transcripts: trs})
}

type questionsResponse struct {
	Questions []types.SuggestedQuestion `json:"questions"`
}

func (c *Control) markAnswered(w http.ResponseWriter, r *http.Request) {
	visible, err := c.live.MarkAnswered(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		c.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{Questions: visible})
}

func (c *Control) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	visible, err := c.live.DeleteQuestion(r.Context(), r.PathValue("id"), r.PathValue("qid"))
	if err != nil {
		c.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, questionsResponse{Questions: visible})
}

type putTenantKeyRequest struct {
	APIKey string `json:"apiKey"`
}

func (c *Control) putTenantKey(w http.ResponseWriter, r *http.Request) {
	var req putTenantKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "apiKey is required")
		return
	}
	tenant, provider := r.PathValue("tenant"), r.PathValue("provider")
	if err := c.keys.Store(r.Context(), tenant, provider, req.APIKey); err != nil {
		c.internalError(w, "tenant key store failed", err)
		return
	}
	slog.Info("tenant provider key stored", "tenant_id", tenant, "provider", provider)
	w.WriteHeader(http.StatusNoContent)
}

// storeError maps store and session errors to HTTP statuses.
func (c *Control) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		var serr *session.Error
		if errors.As(err, &serr) {
			switch serr.Code {
			case session.CodeSessionNotFound:
				writeError(w, http.StatusNotFound, serr.Message)
			case session.CodeSessionInactive:
				writeError(w, http.StatusConflict, serr.Message)
			default:
				writeError(w, http.StatusBadRequest, serr.Message)
			}
			return
		}
		c.internalError(w, "request failed", err)
	}
}

func (c *Control) internalError(w http.ResponseWriter, msg string, err error) {
	slog.Error(msg, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
