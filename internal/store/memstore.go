package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/parley-ai/parley/pkg/types"
)

// Memory is an in-memory [Store]. It is used by tests and by single-process
// development setups that run without PostgreSQL. All methods are safe for
// concurrent use, and values are copied on the way in and out so callers
// cannot mutate stored state through retained pointers.
type Memory struct {
	mu sync.RWMutex

	sessions    map[string]*types.Session
	transcripts map[string][]types.Transcript
	decks       map[string]*types.Deck
	theses      map[string]*types.Thesis // keyed by tenant ID
	messages    map[string][]types.Message
	supporting  map[string][]types.SupportingDocument
	dataRoom    map[string]types.DataRoomDocument
	embeddings  map[string][]float32 // data-room doc ID → embedding
	tenantKeys  map[string][]byte    // tenantID + "/" + provider
}

// Compile-time interface assertion.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions:    make(map[string]*types.Session),
		transcripts: make(map[string][]types.Transcript),
		decks:       make(map[string]*types.Deck),
		theses:      make(map[string]*types.Thesis),
		messages:    make(map[string][]types.Message),
		supporting:  make(map[string][]types.SupportingDocument),
		dataRoom:    make(map[string]types.DataRoomDocument),
		embeddings:  make(map[string][]float32),
		tenantKeys:  make(map[string][]byte),
	}
}

// CreateSession inserts a new session.
func (m *Memory) CreateSession(_ context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; ok {
		return fmt.Errorf("memstore: session %s already exists", s.ID)
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// GetSession returns a copy of the session or [ErrNotFound].
func (m *Memory) GetSession(_ context.Context, id string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// UpdateSession overwrites an existing session.
func (m *Memory) UpdateSession(_ context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[s.ID] = copySession(s)
	return nil
}

// SessionsByDeck lists a deck's sessions, newest first.
func (m *Memory) SessionsByDeck(_ context.Context, deckID string, status types.SessionStatus) ([]types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []types.Session{}
	for _, s := range m.sessions {
		if s.DeckID != deckID {
			continue
		}
		if status != "" && s.Status != status {
			continue
		}
		out = append(out, *copySession(s))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// AppendTranscript stores one transcript entry.
func (m *Memory) AppendTranscript(_ context.Context, tr types.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transcripts[tr.SessionID] = append(m.transcripts[tr.SessionID], tr)
	return nil
}

// TranscriptsBySession returns a session's entries ordered by timestamp.
func (m *Memory) TranscriptsBySession(_ context.Context, sessionID string) ([]types.Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.transcripts[sessionID]
	out := make([]types.Transcript, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// CountTranscripts counts a session's entries.
func (m *Memory) CountTranscripts(_ context.Context, sessionID string, finalOnly bool) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, tr := range m.transcripts[sessionID] {
		if finalOnly && !tr.IsFinal {
			continue
		}
		n++
	}
	return n, nil
}

// PutDeck stores a deck. Not part of [Store]; test fixtures use it.
func (m *Memory) PutDeck(d *types.Deck) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *d
	m.decks[d.ID] = &cp
}

// GetDeck returns a copy of the deck or [ErrNotFound].
func (m *Memory) GetDeck(_ context.Context, id string) (*types.Deck, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.decks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

// PutThesis stores a tenant's thesis. Not part of [Store]; test fixtures
// use it.
func (m *Memory) PutThesis(t *types.Thesis) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	if t.Profile != nil {
		p := *t.Profile
		cp.Profile = &p
	}
	m.theses[t.TenantID] = &cp
}

// ThesisByTenant returns the tenant's thesis or [ErrNotFound].
func (m *Memory) ThesisByTenant(_ context.Context, tenantID string) (*types.Thesis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.theses[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	if t.Profile != nil {
		p := *t.Profile
		cp.Profile = &p
	}
	return &cp, nil
}

// PutMessage appends a deck Q&A turn. Not part of [Store]; test fixtures
// use it.
func (m *Memory) PutMessage(msg types.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages[msg.DeckID] = append(m.messages[msg.DeckID], msg)
}

// MessagesByDeck returns up to limit of the deck's most recent turns,
// oldest first.
func (m *Memory) MessagesByDeck(_ context.Context, deckID string, limit int) ([]types.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msgs := m.messages[deckID]
	out := make([]types.Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// PutSupportingDocument stores a supporting document. Not part of [Store];
// test fixtures use it.
func (m *Memory) PutSupportingDocument(doc types.SupportingDocument) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.supporting[doc.DeckID] = append(m.supporting[doc.DeckID], doc)
}

// SupportingDocumentsByDeck lists a deck's supporting documents.
func (m *Memory) SupportingDocumentsByDeck(_ context.Context, deckID string) ([]types.SupportingDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	docs := m.supporting[deckID]
	out := make([]types.SupportingDocument, len(docs))
	copy(out, docs)
	return out, nil
}

// IndexDataRoomDocument upserts a data-room document and its embedding.
func (m *Memory) IndexDataRoomDocument(_ context.Context, doc types.DataRoomDocument, embedding []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dataRoom[doc.ID] = doc
	if embedding != nil {
		vec := make([]float32, len(embedding))
		copy(vec, embedding)
		m.embeddings[doc.ID] = vec
	} else {
		delete(m.embeddings, doc.ID)
	}
	return nil
}

// SearchDataRoomDocuments ranks the tenant's indexed documents by cosine
// similarity to the query embedding.
func (m *Memory) SearchDataRoomDocuments(_ context.Context, tenantID string, embedding []float32, topK int) ([]types.DataRoomDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		doc   types.DataRoomDocument
		score float64
	}
	var ranked []scored
	for id, doc := range m.dataRoom {
		if doc.TenantID != tenantID {
			continue
		}
		vec, ok := m.embeddings[id]
		if !ok {
			continue
		}
		ranked = append(ranked, scored{doc: doc, score: cosineSimilarity(embedding, vec)})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]types.DataRoomDocument, len(ranked))
	for i, r := range ranked {
		out[i] = r.doc
	}
	return out, nil
}

// RecentDataRoomDocuments returns the tenant's newest documents first.
func (m *Memory) RecentDataRoomDocuments(_ context.Context, tenantID string, limit int) ([]types.DataRoomDocument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []types.DataRoomDocument{}
	for _, doc := range m.dataRoom {
		if doc.TenantID == tenantID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// PutTenantKey stores an encrypted tenant key.
func (m *Memory) PutTenantKey(_ context.Context, tenantID, provider string, ciphertext []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := make([]byte, len(ciphertext))
	copy(cp, ciphertext)
	m.tenantKeys[tenantID+"/"+provider] = cp
	return nil
}

// GetTenantKey returns an encrypted tenant key or [ErrNotFound].
func (m *Memory) GetTenantKey(_ context.Context, tenantID, provider string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ct, ok := m.tenantKeys[tenantID+"/"+provider]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(ct))
	copy(cp, ct)
	return cp, nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() {}

// copySession deep-copies a session including its questions, summary, and
// language list.
func copySession(s *types.Session) *types.Session {
	cp := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		cp.EndedAt = &t
	}
	if s.DetectedLanguages != nil {
		cp.DetectedLanguages = append([]string(nil), s.DetectedLanguages...)
	}
	if s.Summary != nil {
		sum := *s.Summary
		cp.Summary = &sum
	}
	if s.SuggestedQuestions != nil {
		cp.SuggestedQuestions = make([]types.SuggestedQuestion, len(s.SuggestedQuestions))
		copy(cp.SuggestedQuestions, s.SuggestedQuestions)
		for i, q := range s.SuggestedQuestions {
			if q.AnsweredAt != nil {
				t := *q.AnsweredAt
				cp.SuggestedQuestions[i].AnsweredAt = &t
			}
		}
	}
	return &cp
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
