package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parley-ai/parley/internal/store"
	"github.com/parley-ai/parley/pkg/types"
)

// GetDeck implements [store.DeckStore].
func (s *Store) GetDeck(ctx context.Context, id string) (*types.Deck, error) {
	const q = `
		SELECT id, tenant_id, title, status, sector, analysis_version, analysis
		FROM   decks
		WHERE  id = $1`

	var (
		deck        types.Deck
		analysisRaw []byte
	)
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&deck.ID,
		&deck.TenantID,
		&deck.Title,
		&deck.Status,
		&deck.Sector,
		&deck.AnalysisVersion,
		&analysisRaw,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deck store: get: %w", err)
	}
	deck.Analysis = json.RawMessage(analysisRaw)
	return &deck, nil
}

// ThesisByTenant implements [store.ThesisStore].
func (s *Store) ThesisByTenant(ctx context.Context, tenantID string) (*types.Thesis, error) {
	const q = `
		SELECT id, tenant_id, profile, raw_text
		FROM   theses
		WHERE  tenant_id = $1`

	var (
		thesis     types.Thesis
		profileRaw []byte
	)
	err := s.pool.QueryRow(ctx, q, tenantID).Scan(
		&thesis.ID,
		&thesis.TenantID,
		&profileRaw,
		&thesis.RawText,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("thesis store: get: %w", err)
	}
	if len(profileRaw) > 0 {
		var profile types.ThesisProfile
		if err := json.Unmarshal(profileRaw, &profile); err != nil {
			return nil, fmt.Errorf("thesis store: decode profile: %w", err)
		}
		thesis.Profile = &profile
	}
	return &thesis, nil
}

// MessagesByDeck implements [store.MessageStore]. The newest limit turns
// come back oldest first so they can be rendered as a conversation.
func (s *Store) MessagesByDeck(ctx context.Context, deckID string, limit int) ([]types.Message, error) {
	args := []any{deckID}
	q := `
		SELECT id, deck_id, query, response, created_at
		FROM   messages
		WHERE  deck_id = $1
		ORDER  BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("message store: list: %w", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Message, error) {
		var m types.Message
		err := row.Scan(&m.ID, &m.DeckID, &m.Query, &m.Response, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("message store: scan rows: %w", err)
	}
	// Reverse into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if msgs == nil {
		msgs = []types.Message{}
	}
	return msgs, nil
}

// SupportingDocumentsByDeck implements part of [store.DocumentStore].
func (s *Store) SupportingDocumentsByDeck(ctx context.Context, deckID string) ([]types.SupportingDocument, error) {
	const q = `
		SELECT id, deck_id, title, description
		FROM   supporting_documents
		WHERE  deck_id = $1
		ORDER  BY title`

	rows, err := s.pool.Query(ctx, q, deckID)
	if err != nil {
		return nil, fmt.Errorf("document store: list supporting: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.SupportingDocument, error) {
		var d types.SupportingDocument
		err := row.Scan(&d.ID, &d.DeckID, &d.Title, &d.Description)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("document store: scan rows: %w", err)
	}
	if docs == nil {
		docs = []types.SupportingDocument{}
	}
	return docs, nil
}
