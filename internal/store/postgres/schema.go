// Package postgres provides the PostgreSQL-backed implementation of the
// Parley repositories (sessions, transcripts, knowledge-base reads, the
// pgvector data-room index, and encrypted tenant keys).
//
// All repositories share a single [pgxpool.Pool]. The pgvector extension
// must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.CreateSession(ctx, session)
//	_ = store.AppendTranscript(ctx, entry)
//	docs, _ := store.SearchDataRoomDocuments(ctx, tenantID, embedding, 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id                   TEXT              PRIMARY KEY,
    deck_id              TEXT              NOT NULL,
    tenant_id            TEXT              NOT NULL,
    owner_id             TEXT              NOT NULL DEFAULT '',
    title                TEXT              NOT NULL DEFAULT '',
    status               TEXT              NOT NULL,
    started_at           TIMESTAMPTZ       NOT NULL,
    ended_at             TIMESTAMPTZ,
    duration_seconds     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    transcript_count     INTEGER           NOT NULL DEFAULT 0,
    suggestion_count     INTEGER           NOT NULL DEFAULT 0,
    detected_languages   TEXT[]            NOT NULL DEFAULT '{}',
    summary              JSONB,
    summary_state        TEXT              NOT NULL DEFAULT 'pending',
    suggested_questions  JSONB             NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_sessions_deck_status
    ON sessions (deck_id, status);

CREATE INDEX IF NOT EXISTS idx_sessions_tenant
    ON sessions (tenant_id);
`

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    id             BIGSERIAL         PRIMARY KEY,
    session_id     TEXT              NOT NULL,
    deck_id        TEXT              NOT NULL DEFAULT '',
    timestamp      TIMESTAMPTZ       NOT NULL,
    text           TEXT              NOT NULL,
    speaker        TEXT              NOT NULL DEFAULT '',
    speaker_id     INTEGER,
    is_final       BOOLEAN           NOT NULL DEFAULT false,
    confidence     DOUBLE PRECISION  NOT NULL DEFAULT 0,
    language_code  TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_transcripts_session_timestamp
    ON transcripts (session_id, timestamp ASC);
`

const ddlKnowledgeBase = `
CREATE TABLE IF NOT EXISTS organizations (
    id          TEXT         PRIMARY KEY,
    name        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS users (
    id         TEXT  PRIMARY KEY,
    tenant_id  TEXT  NOT NULL,
    email      TEXT  NOT NULL DEFAULT '',
    name       TEXT  NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS decks (
    id                TEXT     PRIMARY KEY,
    tenant_id         TEXT     NOT NULL,
    title             TEXT     NOT NULL DEFAULT '',
    status            TEXT     NOT NULL DEFAULT '',
    sector            TEXT     NOT NULL DEFAULT '',
    analysis_version  INTEGER  NOT NULL DEFAULT 0,
    analysis          JSONB
);

CREATE INDEX IF NOT EXISTS idx_decks_tenant ON decks (tenant_id);

CREATE TABLE IF NOT EXISTS theses (
    id         TEXT   PRIMARY KEY,
    tenant_id  TEXT   NOT NULL UNIQUE,
    profile    JSONB,
    raw_text   TEXT   NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS messages (
    id          TEXT         PRIMARY KEY,
    deck_id     TEXT         NOT NULL,
    query       TEXT         NOT NULL DEFAULT '',
    response    TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_deck_created
    ON messages (deck_id, created_at);

CREATE TABLE IF NOT EXISTS supporting_documents (
    id           TEXT  PRIMARY KEY,
    deck_id      TEXT  NOT NULL,
    title        TEXT  NOT NULL DEFAULT '',
    description  TEXT  NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_supporting_documents_deck
    ON supporting_documents (deck_id);
`

const ddlTenantKeys = `
CREATE TABLE IF NOT EXISTS tenant_keys (
    tenant_id   TEXT         NOT NULL,
    provider    TEXT         NOT NULL,
    ciphertext  BYTEA        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (tenant_id, provider)
);
`

// ddlDataRoom returns the data-room DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlDataRoom(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS data_room_documents (
    id          TEXT         PRIMARY KEY,
    deck_id     TEXT         NOT NULL DEFAULT '',
    tenant_id   TEXT         NOT NULL,
    title       TEXT         NOT NULL DEFAULT '',
    category    TEXT         NOT NULL DEFAULT '',
    ai_summary  TEXT         NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    embedding   vector(%d)
);

CREATE INDEX IF NOT EXISTS idx_data_room_documents_tenant
    ON data_room_documents (tenant_id);

CREATE INDEX IF NOT EXISTS idx_data_room_documents_embedding
    ON data_room_documents USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required tables, indexes, and extensions
// exist. It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT
// EXISTS) and safe to call on every application start.
//
// embeddingDimensions must match the configured embeddings model (e.g. 1536
// for OpenAI text-embedding-3-small). Changing this value after the first
// migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlTranscripts,
		ddlKnowledgeBase,
		ddlDataRoom(embeddingDimensions),
		ddlTenantKeys,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
