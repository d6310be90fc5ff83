package postgres

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/captrail/captrail/pkg/transcript"
)

// defaultSemanticLimit caps SearchSemantic when the caller passes 0.
const defaultSemanticLimit = 10

// IndexNote implements [transcript.NoteIndex]. It embeds the note body and
// upserts it into the session_notes table; a previous note for the same
// session is completely replaced.
//
// Bodies shorter than [transcript.MinMeaningfulRunes] runes are skipped
// without error, before any embedding call is made.
func (s *Store) IndexNote(ctx context.Context, note transcript.Note) error {
	if utf8.RuneCountInString(note.Body) < transcript.MinMeaningfulRunes {
		return nil
	}

	vec, err := s.embedder.Embed(ctx, note.Body)
	if err != nil {
		return fmt.Errorf("archive: embed note: %w", err)
	}

	createdAt := note.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	const q = `
		INSERT INTO session_notes (session_id, title, body, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
		    title      = EXCLUDED.title,
		    body       = EXCLUDED.body,
		    embedding  = EXCLUDED.embedding,
		    created_at = EXCLUDED.created_at`

	if _, err := s.pool.Exec(ctx, q,
		note.SessionID,
		note.Title,
		note.Body,
		pgvector.NewVector(vec),
		createdAt,
	); err != nil {
		return fmt.Errorf("archive: index note: %w", err)
	}
	return nil
}

// SearchSemantic implements [transcript.NoteIndex]. It embeds the query text
// and finds the closest notes by cosine distance.
//
// Results are ordered by ascending distance (most similar first).
func (s *Store) SearchSemantic(ctx context.Context, query string, limit int) ([]transcript.NoteResult, error) {
	if limit <= 0 {
		limit = defaultSemanticLimit
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("archive: embed query: %w", err)
	}

	const q = `
		SELECT session_id, title, body, created_at,
		       embedding <=> $1 AS distance
		FROM   session_notes
		ORDER  BY distance
		LIMIT  $2`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(vec), limit)
	if err != nil {
		return nil, fmt.Errorf("archive: search semantic: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.NoteResult, error) {
		var nr transcript.NoteResult
		err := row.Scan(&nr.Note.SessionID, &nr.Note.Title, &nr.Note.Body, &nr.Note.CreatedAt, &nr.Distance)
		return nr, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan notes: %w", err)
	}
	if results == nil {
		results = []transcript.NoteResult{}
	}
	return results, nil
}
