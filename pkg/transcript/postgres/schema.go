// Package postgres provides the PostgreSQL-backed session archive: finished
// session records with full-text search over entries, plus a pgvector-powered
// semantic index over per-session notes.
//
// All tables share a single [pgxpool.Pool] connection pool. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, embedder)
//	if err != nil { … }
//
//	_ = store.SaveSession(ctx, rec)
//	_ = store.IndexNote(ctx, note)
//
//	hits, _ := store.SearchEntries(ctx, "quarterly roadmap", transcript.SearchOpts{})
//	notes, _ := store.SearchSemantic(ctx, "what did we decide about hiring?", 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL: sessions, entries, chunks
// ─────────────────────────────────────────────────────────────────────────────

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id            TEXT         PRIMARY KEY,
    title         TEXT         NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ  NOT NULL,
    duration_ns   BIGINT       NOT NULL DEFAULT 0,
    text          TEXT         NOT NULL DEFAULT '',
    final_summary TEXT         NOT NULL DEFAULT '',
    archived_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at);

CREATE TABLE IF NOT EXISTS entries (
    id         BIGSERIAL    PRIMARY KEY,
    session_id TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    position   INT          NOT NULL,
    speaker    TEXT         NOT NULL DEFAULT '',
    text       TEXT         NOT NULL,
    timestamp  TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_session_id
    ON entries (session_id);

CREATE INDEX IF NOT EXISTS idx_entries_timestamp
    ON entries (timestamp);

CREATE INDEX IF NOT EXISTS idx_entries_fts
    ON entries USING GIN (to_tsvector('english', text));

CREATE TABLE IF NOT EXISTS chunks (
    session_id   TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    number       INT          NOT NULL,
    summary      TEXT         NOT NULL,
    source_chars INT          NOT NULL DEFAULT 0,
    start_time   TIMESTAMPTZ  NOT NULL,
    end_time     TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (session_id, number)
);
`

// ddlNotes returns the session-note DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlNotes(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS session_notes (
    session_id TEXT         PRIMARY KEY REFERENCES sessions (id) ON DELETE CASCADE,
    title      TEXT         NOT NULL DEFAULT '',
    body       TEXT         NOT NULL,
    embedding  vector(%d),
    created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_session_notes_embedding
    ON session_notes USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures all required database tables and extensions exist.
// It is idempotent (CREATE TABLE IF NOT EXISTS / CREATE INDEX IF NOT EXISTS)
// and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires a
// manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	statements := []string{
		ddlSessions,
		ddlNotes(embeddingDimensions),
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
