// Package store defines the repository interfaces behind Parley's
// persistence layer and an in-memory implementation for tests and
// single-process development.
//
// The production implementation lives in the postgres subpackage. Callers
// depend on the narrow per-aggregate interfaces ([SessionStore],
// [TranscriptStore], …) rather than the combined [Store] so that tests can
// stub exactly what they touch.
package store

import (
	"context"
	"errors"

	"github.com/parley-ai/parley/pkg/types"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SessionStore persists meeting sessions and their embedded suggested
// questions, summary, and counters.
type SessionStore interface {
	// CreateSession inserts a new session record.
	CreateSession(ctx context.Context, s *types.Session) error

	// GetSession returns the session with the given ID, or [ErrNotFound].
	GetSession(ctx context.Context, id string) (*types.Session, error)

	// UpdateSession overwrites the stored session with the given value.
	// The session must already exist.
	UpdateSession(ctx context.Context, s *types.Session) error

	// SessionsByDeck lists sessions for a deck, newest first. An empty
	// status matches all statuses.
	SessionsByDeck(ctx context.Context, deckID string, status types.SessionStatus) ([]types.Session, error)
}

// TranscriptStore persists transcript entries, both live partials and the
// final diarized segments written during finalization.
type TranscriptStore interface {
	// AppendTranscript stores one transcript entry.
	AppendTranscript(ctx context.Context, tr types.Transcript) error

	// TranscriptsBySession returns a session's entries ordered by timestamp
	// ascending. An unknown session yields an empty slice, not an error.
	TranscriptsBySession(ctx context.Context, sessionID string) ([]types.Transcript, error)

	// CountTranscripts returns the number of entries for a session,
	// optionally restricted to final entries.
	CountTranscripts(ctx context.Context, sessionID string, finalOnly bool) (int, error)
}

// DeckStore reads pitch decks and their analysis payloads.
type DeckStore interface {
	// GetDeck returns the deck with the given ID, or [ErrNotFound].
	GetDeck(ctx context.Context, id string) (*types.Deck, error)
}

// ThesisStore reads the investment thesis of a tenant.
type ThesisStore interface {
	// ThesisByTenant returns the tenant's thesis, or [ErrNotFound] when the
	// tenant has not recorded one.
	ThesisByTenant(ctx context.Context, tenantID string) (*types.Thesis, error)
}

// MessageStore reads prior deck Q&A turns.
type MessageStore interface {
	// MessagesByDeck returns up to limit of the deck's most recent Q&A
	// turns, oldest first. limit <= 0 means no limit.
	MessagesByDeck(ctx context.Context, deckID string, limit int) ([]types.Message, error)
}

// DocumentStore reads supporting documents and maintains the data-room
// semantic index.
type DocumentStore interface {
	// SupportingDocumentsByDeck lists a deck's supporting documents.
	SupportingDocumentsByDeck(ctx context.Context, deckID string) ([]types.SupportingDocument, error)

	// IndexDataRoomDocument upserts a data-room document together with the
	// embedding of its AI summary. A nil embedding stores the document
	// without indexing it for semantic search.
	IndexDataRoomDocument(ctx context.Context, doc types.DataRoomDocument, embedding []float32) error

	// SearchDataRoomDocuments returns the tenant's topK data-room documents
	// closest to the query embedding by cosine distance.
	SearchDataRoomDocuments(ctx context.Context, tenantID string, embedding []float32, topK int) ([]types.DataRoomDocument, error)

	// RecentDataRoomDocuments returns the tenant's most recently added
	// data-room documents, newest first.
	RecentDataRoomDocuments(ctx context.Context, tenantID string, limit int) ([]types.DataRoomDocument, error)
}

// TenantKeyStore persists encrypted per-tenant provider API keys. Values
// are opaque ciphertext; encryption happens in the vault package.
type TenantKeyStore interface {
	// PutTenantKey stores (or replaces) the encrypted key for a
	// tenant/provider pair.
	PutTenantKey(ctx context.Context, tenantID, provider string, ciphertext []byte) error

	// GetTenantKey returns the encrypted key for a tenant/provider pair,
	// or [ErrNotFound].
	GetTenantKey(ctx context.Context, tenantID, provider string) ([]byte, error)
}

// Store bundles all repositories plus lifecycle operations. Both the
// postgres implementation and [Memory] satisfy it.
type Store interface {
	SessionStore
	TranscriptStore
	DeckStore
	ThesisStore
	MessageStore
	DocumentStore
	TenantKeyStore

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}
