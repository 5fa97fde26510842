package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/parley-ai/parley/pkg/types"
)

// AppendTranscript implements [store.TranscriptStore].
func (s *Store) AppendTranscript(ctx context.Context, tr types.Transcript) error {
	const q = `
		INSERT INTO transcripts
		    (session_id, deck_id, timestamp, text, speaker, speaker_id, is_final, confidence, language_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, q,
		tr.SessionID,
		tr.DeckID,
		tr.Timestamp,
		tr.Text,
		tr.Speaker,
		tr.SpeakerID,
		tr.IsFinal,
		tr.Confidence,
		tr.LanguageCode,
	)
	if err != nil {
		return fmt.Errorf("transcript store: append: %w", err)
	}
	return nil
}

// TranscriptsBySession implements [store.TranscriptStore]. Entries come
// back ordered by timestamp ascending, served by the
// (session_id, timestamp) index.
func (s *Store) TranscriptsBySession(ctx context.Context, sessionID string) ([]types.Transcript, error) {
	const q = `
		SELECT session_id, deck_id, timestamp, text, speaker, speaker_id, is_final, confidence, language_code
		FROM   transcripts
		WHERE  session_id = $1
		ORDER  BY timestamp ASC, id ASC`

	rows, err := s.pool.Query(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("transcript store: list: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.Transcript, error) {
		var tr types.Transcript
		err := row.Scan(
			&tr.SessionID,
			&tr.DeckID,
			&tr.Timestamp,
			&tr.Text,
			&tr.Speaker,
			&tr.SpeakerID,
			&tr.IsFinal,
			&tr.Confidence,
			&tr.LanguageCode,
		)
		return tr, err
	})
	if err != nil {
		return nil, fmt.Errorf("transcript store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []types.Transcript{}
	}
	return entries, nil
}

// CountTranscripts implements [store.TranscriptStore].
func (s *Store) CountTranscripts(ctx context.Context, sessionID string, finalOnly bool) (int, error) {
	q := "SELECT count(*) FROM transcripts WHERE session_id = $1"
	if finalOnly {
		q += " AND is_final"
	}

	var n int
	if err := s.pool.QueryRow(ctx, q, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("transcript store: count: %w", err)
	}
	return n, nil
}
