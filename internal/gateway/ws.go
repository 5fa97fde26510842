// Package gateway is the client-facing edge: the WebSocket endpoint that
// carries live session traffic and the REST control API for session
// lifecycle, transcripts, and suggested questions.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/parley-ai/parley/internal/session"
	"github.com/parley-ai/parley/pkg/audio"
)

// writeTimeout bounds a single outbound websocket write.
const writeTimeout = 5 * time.Second

// LiveSessions is the orchestrator surface the socket handler needs.
// Implemented by [session.Orchestrator].
type LiveSessions interface {
	Attach(ctx context.Context, sessionID string, e session.Emitter) error
	Detach(sessionID string)
	HandleAudio(sessionID string, raw any) error
}

// clientMessage is the union of all inbound JSON messages.
type clientMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	AudioData string `json:"audioData,omitempty"`
}

// SocketHandler accepts websocket connections and bridges them to the
// session orchestrator. One connection serves one session at a time: the
// client joins with a join-session message, then streams audio as binary
// frames or base64 audio-chunk messages.
type SocketHandler struct {
	live LiveSessions
}

// NewSocketHandler creates a [SocketHandler].
func NewSocketHandler(live LiveSessions) *SocketHandler {
	return &SocketHandler{live: live}
}

// ServeHTTP upgrades the request and runs the read loop until the client
// disconnects. Socket teardown detaches the session but does not stop it;
// recording and the inactivity watchdog continue server-side.
func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	// Binary audio frames may approach the 1 MiB frame cap.
	conn.SetReadLimit(2 * audio.MaxFrameBytes)

	em := newWSEmitter(conn)
	joined := ""
	defer func() {
		if joined != "" {
			h.live.Detach(joined)
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	}()

	ctx := r.Context()
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		switch msgType {
		case websocket.MessageBinary:
			if joined == "" {
				continue
			}
			if err := h.live.HandleAudio(joined, data); err != nil {
				em.emitSessionError(err)
			}

		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				em.EmitError(session.ErrorEvent{
					Code:    session.CodeInvalidSession,
					Message: "malformed message",
				})
				continue
			}
			h.handleMessage(ctx, &msg, &joined, em)
		}
	}
}

func (h *SocketHandler) handleMessage(ctx context.Context, msg *clientMessage, joined *string, em *wsEmitter) {
	switch msg.Type {
	case "join-session":
		if msg.SessionID == "" {
			em.EmitError(session.ErrorEvent{
				Code:    session.CodeInvalidSession,
				Message: "join-session requires a sessionId",
			})
			return
		}
		if err := h.live.Attach(ctx, msg.SessionID, em); err != nil {
			em.emitSessionError(err)
			return
		}
		*joined = msg.SessionID

	case "audio-chunk":
		id := msg.SessionID
		if id == "" {
			id = *joined
		}
		if id == "" {
			em.EmitError(session.ErrorEvent{
				Code:    session.CodeInvalidSession,
				Message: "audio-chunk before join-session",
			})
			return
		}
		if err := h.live.HandleAudio(id, msg.AudioData); err != nil {
			em.emitSessionError(err)
		}

	case "ping":
		em.emitPong()

	default:
		em.EmitError(session.ErrorEvent{
			Code:    session.CodeInvalidSession,
			Message: "unknown message type: " + msg.Type,
		})
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Outbound messages

type statusMsg struct {
	Type string `json:"type"`
	session.StatusEvent
}

type recordingStatusMsg struct {
	Type string `json:"type"`
	session.RecordingStatusEvent
}

type transcriptionMsg struct {
	Type string `json:"type"`
	session.TranscriptionEvent
}

type suggestionMsg struct {
	Type string `json:"type"`
	session.SuggestionEvent
}

type questionsUpdatedMsg struct {
	Type string `json:"type"`
	session.QuestionsUpdatedEvent
}

type autoStoppedMsg struct {
	Type string `json:"type"`
	session.AutoStoppedEvent
}

type errorMsg struct {
	Type string `json:"type"`
	session.ErrorEvent
}

type pongMsg struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// wsEmitter implements [session.Emitter] over one websocket connection.
// Writes are serialized by a mutex; a failed write is logged and dropped,
// the read loop notices the broken connection and tears down.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ session.Emitter = (*wsEmitter)(nil)

func newWSEmitter(conn *websocket.Conn) *wsEmitter {
	return &wsEmitter{conn: conn}
}

func (e *wsEmitter) EmitStatus(ev session.StatusEvent) {
	e.send(statusMsg{Type: "session-status", StatusEvent: ev})
}

func (e *wsEmitter) EmitRecordingStatus(ev session.RecordingStatusEvent) {
	e.send(recordingStatusMsg{Type: "recording-status", RecordingStatusEvent: ev})
}

func (e *wsEmitter) EmitTranscription(ev session.TranscriptionEvent) {
	e.send(transcriptionMsg{Type: "transcription", TranscriptionEvent: ev})
}

func (e *wsEmitter) EmitSuggestion(ev session.SuggestionEvent) {
	e.send(suggestionMsg{Type: "suggestion", SuggestionEvent: ev})
}

func (e *wsEmitter) EmitQuestionsUpdated(ev session.QuestionsUpdatedEvent) {
	e.send(questionsUpdatedMsg{Type: "suggested-questions-updated", QuestionsUpdatedEvent: ev})
}

func (e *wsEmitter) EmitAutoStopped(ev session.AutoStoppedEvent) {
	e.send(autoStoppedMsg{Type: "session-auto-stopped", AutoStoppedEvent: ev})
}

func (e *wsEmitter) EmitError(ev session.ErrorEvent) {
	e.send(errorMsg{Type: "error", ErrorEvent: ev})
}

func (e *wsEmitter) emitPong() {
	e.send(pongMsg{Type: "pong", Timestamp: time.Now()})
}

// emitSessionError maps an orchestrator error onto the wire. Unknown error
// types are reported generically so internals never leak to clients.
func (e *wsEmitter) emitSessionError(err error) {
	var serr *session.Error
	if errors.As(err, &serr) {
		e.EmitError(session.ErrorEvent{Code: serr.Code, Message: serr.Message})
		return
	}
	e.EmitError(session.ErrorEvent{
		Code:    session.CodeJoinError,
		Message: "internal error",
	})
}

func (e *wsEmitter) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("could not marshal outbound message", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := e.conn.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}
