// Package types defines the shared types used across all Parley packages.
//
// These types form the lingua franca between the gateway, the session
// orchestrator, the transcription pipeline, and the stores. Each package
// defines its own domain types; cross-cutting data structures live here to
// avoid circular imports.
package types

import (
	"encoding/json"
	"time"
)

// SessionStatus is the lifecycle status of a meeting session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
	SessionFailed SessionStatus = "failed"
)

// IsValid reports whether s is a known session status.
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionEnded, SessionFailed:
		return true
	}
	return false
}

// SummaryState tracks the end-of-session summary pipeline.
type SummaryState string

const (
	SummaryPending    SummaryState = "pending"
	SummaryGenerating SummaryState = "generating"
	SummaryCompleted  SummaryState = "completed"
	SummaryFailed     SummaryState = "failed"
)

// IsValid reports whether s is a known summary state.
func (s SummaryState) IsValid() bool {
	switch s {
	case SummaryPending, SummaryGenerating, SummaryCompleted, SummaryFailed:
		return true
	}
	return false
}

// SuggestedQuestion is one generated "next question", embedded in its
// Session. Answered and Deleted are write-once flags; the visible list is
// the subset with Deleted == false.
type SuggestedQuestion struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Answered   bool       `json:"answered"`
	Deleted    bool       `json:"deleted"`
	CreatedAt  time.Time  `json:"createdAt"`
	AnsweredAt *time.Time `json:"answeredAt,omitempty"`
}

// Session represents one meeting over a pitch deck.
type Session struct {
	ID                 string              `json:"id"`
	DeckID             string              `json:"deckId"`
	TenantID           string              `json:"tenantId"`
	OwnerID            string              `json:"ownerId"`
	Title              string              `json:"title"`
	Status             SessionStatus       `json:"status"`
	StartedAt          time.Time           `json:"startedAt"`
	EndedAt            *time.Time          `json:"endedAt,omitempty"`
	DurationSeconds    float64             `json:"durationSeconds,omitempty"`
	TranscriptCount    int                 `json:"transcriptCount"`
	SuggestionCount    int                 `json:"suggestionCount"`
	DetectedLanguages  []string            `json:"detectedLanguages,omitempty"`
	Summary            *MeetingSummary     `json:"summary,omitempty"`
	SummaryState       SummaryState        `json:"summaryState"`
	SuggestedQuestions []SuggestedQuestion `json:"suggestedQuestions"`
}

// VisibleQuestions returns the non-deleted questions in stored order
// (newest first; new questions are inserted at the head).
func (s *Session) VisibleQuestions() []SuggestedQuestion {
	out := make([]SuggestedQuestion, 0, len(s.SuggestedQuestions))
	for _, q := range s.SuggestedQuestions {
		if !q.Deleted {
			out = append(out, q)
		}
	}
	return out
}

// Question returns a pointer to the embedded question with the given id,
// or nil when no such question exists.
func (s *Session) Question(id string) *SuggestedQuestion {
	for i := range s.SuggestedQuestions {
		if s.SuggestedQuestions[i].ID == id {
			return &s.SuggestedQuestions[i]
		}
	}
	return nil
}

// Transcript is one utterance fragment. Streaming window results are
// persisted with IsFinal == false; segments persisted by the full-audio
// pass carry IsFinal == true and are immutable.
type Transcript struct {
	SessionID    string    `json:"sessionId"`
	DeckID       string    `json:"deckId"`
	Timestamp    time.Time `json:"timestamp"`
	Text         string    `json:"text"`
	Speaker      string    `json:"speaker,omitempty"`
	SpeakerID    *int      `json:"speakerId,omitempty"`
	IsFinal      bool      `json:"isFinal"`
	Confidence   float64   `json:"confidence,omitempty"`
	LanguageCode string    `json:"languageCode,omitempty"`
}

// TranscriptSegment is one diarized span of the full-audio transcript.
// Start and End are seconds from the beginning of the session audio.
// SpeakerID is the provider's opaque diarization id; -1 when unknown.
type TranscriptSegment struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Text      string  `json:"text"`
	SpeakerID int     `json:"speakerId"`
	Speaker   string  `json:"speaker,omitempty"`
}

// FullTranscript is the authoritative end-of-session transcript stitched
// from one or more provider chunks. Duration is computed from the PCM byte
// count, never from provider-reported values.
type FullTranscript struct {
	Text     string              `json:"text"`
	Language string              `json:"language,omitempty"`
	Duration float64             `json:"duration"`
	Segments []TranscriptSegment `json:"segments"`
}

// Deck is the pitch deck a meeting is about. Analysis holds the structured
// dump produced by the external deck analyzer; consumers treat it as opaque
// JSON.
type Deck struct {
	ID              string          `json:"id"`
	TenantID        string          `json:"tenantId"`
	Title           string          `json:"title"`
	Status          string          `json:"status"`
	Sector          string          `json:"sector,omitempty"`
	AnalysisVersion int             `json:"analysisVersion"`
	Analysis        json.RawMessage `json:"analysis,omitempty"`
}

// ThesisProfile is the structured form of a firm's investment thesis.
type ThesisProfile struct {
	Sectors     []string `json:"sectors,omitempty"`
	Stages      []string `json:"stages,omitempty"`
	CheckSize   string   `json:"checkSize,omitempty"`
	Geographies []string `json:"geographies,omitempty"`
	Notes       string   `json:"notes,omitempty"`
}

// Thesis is a firm's investment preferences profile. Profile is the
// structured variant and wins when both it and RawText are present.
type Thesis struct {
	ID       string         `json:"id"`
	TenantID string         `json:"tenantId"`
	Profile  *ThesisProfile `json:"profile,omitempty"`
	RawText  string         `json:"rawText,omitempty"`
}

// Message is one prior Q&A turn about a deck.
type Message struct {
	ID        string    `json:"id"`
	DeckID    string    `json:"deckId"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"createdAt"`
}

// SupportingDocument is an uploaded document attached to a deck.
type SupportingDocument struct {
	ID          string `json:"id"`
	DeckID      string `json:"deckId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// DataRoomDocument is a data-room entry whose AI-generated summary feeds
// the semantic index.
type DataRoomDocument struct {
	ID        string    `json:"id"`
	DeckID    string    `json:"deckId"`
	TenantID  string    `json:"tenantId"`
	Title     string    `json:"title"`
	Category  string    `json:"category,omitempty"`
	AISummary string    `json:"aiSummary,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Organization is a tenant.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// User belongs to an organization.
type User struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
}
