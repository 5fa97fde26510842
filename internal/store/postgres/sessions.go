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

const sessionColumns = `id, deck_id, tenant_id, owner_id, title, status, started_at, ended_at,
       duration_seconds, transcript_count, suggestion_count, detected_languages,
       summary, summary_state, suggested_questions`

// CreateSession implements [store.SessionStore].
func (s *Store) CreateSession(ctx context.Context, sess *types.Session) error {
	questions, summary, err := marshalSessionJSON(sess)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO sessions
		    (id, deck_id, tenant_id, owner_id, title, status, started_at, ended_at,
		     duration_seconds, transcript_count, suggestion_count, detected_languages,
		     summary, summary_state, suggested_questions)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = s.pool.Exec(ctx, q,
		sess.ID,
		sess.DeckID,
		sess.TenantID,
		sess.OwnerID,
		sess.Title,
		string(sess.Status),
		sess.StartedAt,
		sess.EndedAt,
		sess.DurationSeconds,
		sess.TranscriptCount,
		sess.SuggestionCount,
		languagesOrEmpty(sess.DetectedLanguages),
		summary,
		string(sess.SummaryState),
		questions,
	)
	if err != nil {
		return fmt.Errorf("session store: create: %w", err)
	}
	return nil
}

// GetSession implements [store.SessionStore].
func (s *Store) GetSession(ctx context.Context, id string) (*types.Session, error) {
	q := "SELECT " + sessionColumns + " FROM sessions WHERE id = $1"

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	sess, err := pgx.CollectOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: get: %w", err)
	}
	return &sess, nil
}

// UpdateSession implements [store.SessionStore].
func (s *Store) UpdateSession(ctx context.Context, sess *types.Session) error {
	questions, summary, err := marshalSessionJSON(sess)
	if err != nil {
		return err
	}

	const q = `
		UPDATE sessions
		SET    status = $2, ended_at = $3, duration_seconds = $4,
		       transcript_count = $5, suggestion_count = $6,
		       detected_languages = $7, summary = $8, summary_state = $9,
		       suggested_questions = $10, title = $11
		WHERE  id = $1`

	tag, err := s.pool.Exec(ctx, q,
		sess.ID,
		string(sess.Status),
		sess.EndedAt,
		sess.DurationSeconds,
		sess.TranscriptCount,
		sess.SuggestionCount,
		languagesOrEmpty(sess.DetectedLanguages),
		summary,
		string(sess.SummaryState),
		questions,
		sess.Title,
	)
	if err != nil {
		return fmt.Errorf("session store: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SessionsByDeck implements [store.SessionStore].
func (s *Store) SessionsByDeck(ctx context.Context, deckID string, status types.SessionStatus) ([]types.Session, error) {
	args := []any{deckID}
	q := "SELECT " + sessionColumns + " FROM sessions WHERE deck_id = $1"
	if status != "" {
		args = append(args, string(status))
		q += fmt.Sprintf(" AND status = $%d", len(args))
	}
	q += " ORDER BY started_at DESC"

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("session store: list by deck: %w", err)
	}
	sessions, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("session store: scan rows: %w", err)
	}
	if sessions == nil {
		sessions = []types.Session{}
	}
	return sessions, nil
}

// scanSession scans one sessions row, decoding the JSONB payloads.
func scanSession(row pgx.CollectableRow) (types.Session, error) {
	var (
		sess         types.Session
		status       string
		summaryState string
		summaryRaw   []byte
		questionsRaw []byte
	)
	if err := row.Scan(
		&sess.ID,
		&sess.DeckID,
		&sess.TenantID,
		&sess.OwnerID,
		&sess.Title,
		&status,
		&sess.StartedAt,
		&sess.EndedAt,
		&sess.DurationSeconds,
		&sess.TranscriptCount,
		&sess.SuggestionCount,
		&sess.DetectedLanguages,
		&summaryRaw,
		&summaryState,
		&questionsRaw,
	); err != nil {
		return types.Session{}, err
	}
	sess.Status = types.SessionStatus(status)
	sess.SummaryState = types.SummaryState(summaryState)
	if len(summaryRaw) > 0 {
		var sum types.MeetingSummary
		if err := json.Unmarshal(summaryRaw, &sum); err != nil {
			return types.Session{}, fmt.Errorf("decode summary: %w", err)
		}
		sess.Summary = &sum
	}
	if len(questionsRaw) > 0 {
		if err := json.Unmarshal(questionsRaw, &sess.SuggestedQuestions); err != nil {
			return types.Session{}, fmt.Errorf("decode suggested questions: %w", err)
		}
	}
	return sess, nil
}

// marshalSessionJSON encodes the JSONB columns. The summary is NULL when
// absent; the question list is always at least [].
func marshalSessionJSON(sess *types.Session) (questions, summary []byte, err error) {
	qs := sess.SuggestedQuestions
	if qs == nil {
		qs = []types.SuggestedQuestion{}
	}
	questions, err = json.Marshal(qs)
	if err != nil {
		return nil, nil, fmt.Errorf("session store: encode questions: %w", err)
	}
	if sess.Summary != nil {
		summary, err = json.Marshal(sess.Summary)
		if err != nil {
			return nil, nil, fmt.Errorf("session store: encode summary: %w", err)
		}
	}
	return questions, summary, nil
}

// languagesOrEmpty keeps the detected_languages column NOT NULL.
func languagesOrEmpty(langs []string) []string {
	if langs == nil {
		return []string{}
	}
	return langs
}
