package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/parley-ai/parley/pkg/types"
)

// IndexDataRoomDocument implements part of [store.DocumentStore]. The
// document row is upserted; a nil embedding leaves the vector column NULL
// so the document is excluded from semantic search.
func (s *Store) IndexDataRoomDocument(ctx context.Context, doc types.DataRoomDocument, embedding []float32) error {
	const q = `
		INSERT INTO data_room_documents
		    (id, deck_id, tenant_id, title, category, ai_summary, created_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET deck_id = EXCLUDED.deck_id,
		    title = EXCLUDED.title,
		    category = EXCLUDED.category,
		    ai_summary = EXCLUDED.ai_summary,
		    embedding = EXCLUDED.embedding`

	var vec any
	if embedding != nil {
		vec = pgvector.NewVector(embedding)
	}

	_, err := s.pool.Exec(ctx, q,
		doc.ID,
		doc.DeckID,
		doc.TenantID,
		doc.Title,
		doc.Category,
		doc.AISummary,
		doc.CreatedAt,
		vec,
	)
	if err != nil {
		return fmt.Errorf("document store: index data-room doc: %w", err)
	}
	return nil
}

// SearchDataRoomDocuments implements part of [store.DocumentStore]. It
// performs a cosine-distance nearest-neighbour search over the HNSW index,
// scoped to one tenant.
func (s *Store) SearchDataRoomDocuments(ctx context.Context, tenantID string, embedding []float32, topK int) ([]types.DataRoomDocument, error) {
	const q = `
		SELECT id, deck_id, tenant_id, title, category, ai_summary, created_at
		FROM   data_room_documents
		WHERE  tenant_id = $1
		  AND  embedding IS NOT NULL
		ORDER  BY embedding <=> $2
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, tenantID, pgvector.NewVector(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("document store: search data room: %w", err)
	}
	return collectDataRoomDocs(rows)
}

// RecentDataRoomDocuments implements part of [store.DocumentStore].
func (s *Store) RecentDataRoomDocuments(ctx context.Context, tenantID string, limit int) ([]types.DataRoomDocument, error) {
	const q = `
		SELECT id, deck_id, tenant_id, title, category, ai_summary, created_at
		FROM   data_room_documents
		WHERE  tenant_id = $1
		ORDER  BY created_at DESC
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("document store: recent data room: %w", err)
	}
	return collectDataRoomDocs(rows)
}

func collectDataRoomDocs(rows pgx.Rows) ([]types.DataRoomDocument, error) {
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.DataRoomDocument, error) {
		var d types.DataRoomDocument
		err := row.Scan(&d.ID, &d.DeckID, &d.TenantID, &d.Title, &d.Category, &d.AISummary, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("document store: scan rows: %w", err)
	}
	if docs == nil {
		docs = []types.DataRoomDocument{}
	}
	return docs, nil
}
