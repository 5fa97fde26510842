// Package session manages the lifecycle of live meeting sessions: the
// in-memory registry, the per-session inactivity watchdog, the end-of-
// meeting summarizer glue, and the [Orchestrator] state machine tying
// audio ingest, streaming transcription, suggestions, and finalization
// together.
//
// All exported types are safe for concurrent use.
package session

import (
	"time"

	"github.com/parley-ai/parley/pkg/types"
)

// ErrorCode identifies a session-level failure reported to the client.
type ErrorCode string

// Error codes carried on the error event.
const (
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeSessionInactive    ErrorCode = "SESSION_INACTIVE"
	CodeInvalidSession     ErrorCode = "INVALID_SESSION"
	CodeProviderKeyMissing ErrorCode = "PROVIDER_KEY_MISSING"
	CodeTranscriptionError ErrorCode = "TRANSCRIPTION_ERROR"
	CodeJoinError          ErrorCode = "JOIN_ERROR"
)

// Error is a session failure with a wire-visible code. It satisfies the
// error interface so orchestrator operations can return it directly.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewError creates a session [Error].
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// StatusEvent confirms a join.
type StatusEvent struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RecordingStatusEvent reports capture progress, at most once per status
// interval while recording.
type RecordingStatusEvent struct {
	AudioSizeMB              float64 `json:"audioSizeMB"`
	AudioChunks              int     `json:"audioChunks"`
	EstimatedDurationSeconds float64 `json:"estimatedDurationSeconds"`
	Message                  string  `json:"message"`
}

// TranscriptionEvent carries one streaming window transcript.
type TranscriptionEvent struct {
	Text         string    `json:"text"`
	IsFinal      bool      `json:"isFinal"`
	Timestamp    time.Time `json:"timestamp"`
	Speaker      string    `json:"speaker,omitempty"`
	SpeakerID    *int      `json:"speakerId,omitempty"`
	LanguageCode string    `json:"languageCode,omitempty"`
}

// SuggestionEvent carries the initial suggestion batch together with the
// generator's rationale.
type SuggestionEvent struct {
	Questions []types.SuggestedQuestion `json:"questions"`
	Context   string                    `json:"context"`
	Topics    []string                  `json:"topics"`
	Timestamp time.Time                 `json:"timestamp"`
}

// QuestionsUpdatedEvent carries the full visible question list after any
// update.
type QuestionsUpdatedEvent struct {
	Questions []types.SuggestedQuestion `json:"questions"`
}

// AutoStoppedEvent announces a watchdog-triggered stop.
type AutoStoppedEvent struct {
	Reason        string    `json:"reason"`
	EndedAt       time.Time `json:"endedAt"`
	TotalDuration float64   `json:"totalDuration"`
}

// ErrorEvent reports a failure to the client.
type ErrorEvent struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// Emitter delivers server events to whatever is attached to the session.
// The gateway implements it over a websocket; tests implement it with a
// recorder. Implementations must be safe for concurrent use and must not
// block for long.
type Emitter interface {
	EmitStatus(StatusEvent)
	EmitRecordingStatus(RecordingStatusEvent)
	EmitTranscription(TranscriptionEvent)
	EmitSuggestion(SuggestionEvent)
	EmitQuestionsUpdated(QuestionsUpdatedEvent)
	EmitAutoStopped(AutoStoppedEvent)
	EmitError(ErrorEvent)
}
