package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/captrail/captrail/pkg/transcript"
)

// defaultListLimit caps ListSessions when the caller passes 0.
const defaultListLimit = 50

// SaveSession implements [transcript.SessionArchive]. It writes the session
// row, all entries, and all chunks in a single transaction. An existing
// record under the same ID is completely replaced; its indexed note survives
// because the session row is updated in place rather than deleted.
func (s *Store) SaveSession(ctx context.Context, rec transcript.SessionRecord) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		const upsert = `
			INSERT INTO sessions
			    (id, title, started_at, duration_ns, text, final_summary)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
			    title         = EXCLUDED.title,
			    started_at    = EXCLUDED.started_at,
			    duration_ns   = EXCLUDED.duration_ns,
			    text          = EXCLUDED.text,
			    final_summary = EXCLUDED.final_summary`

		if _, err := tx.Exec(ctx, upsert,
			rec.ID,
			rec.Title,
			rec.StartedAt,
			rec.Duration.Nanoseconds(),
			rec.Text,
			rec.FinalSummary,
		); err != nil {
			return err
		}

		// Replace semantics: old entries and chunks go away with the re-save.
		if _, err := tx.Exec(ctx, `DELETE FROM entries WHERE session_id = $1`, rec.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE session_id = $1`, rec.ID); err != nil {
			return err
		}

		const insertEntry = `
			INSERT INTO entries (session_id, position, speaker, text, timestamp)
			VALUES ($1, $2, $3, $4, $5)`
		for i, e := range rec.Entries {
			if _, err := tx.Exec(ctx, insertEntry, rec.ID, i, e.Speaker, e.Text, e.Timestamp); err != nil {
				return err
			}
		}

		const insertChunk = `
			INSERT INTO chunks (session_id, number, summary, source_chars, start_time, end_time)
			VALUES ($1, $2, $3, $4, $5, $6)`
		for _, c := range rec.Chunks {
			if _, err := tx.Exec(ctx, insertChunk, rec.ID, c.Number, c.Summary, c.SourceChars, c.StartTime, c.EndTime); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive: save session: %w", err)
	}
	return nil
}

// GetSession implements [transcript.SessionArchive]. It loads the session
// row plus all entries (in transcript order) and chunks (by number).
func (s *Store) GetSession(ctx context.Context, id string) (*transcript.SessionRecord, error) {
	const q = `
		SELECT title, started_at, duration_ns, text, final_summary
		FROM   sessions
		WHERE  id = $1`

	rec := transcript.SessionRecord{ID: id}
	var durationNS int64
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&rec.Title,
		&rec.StartedAt,
		&durationNS,
		&rec.Text,
		&rec.FinalSummary,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, transcript.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive: get session: %w", err)
	}
	rec.Duration = time.Duration(durationNS)

	entries, err := s.sessionEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Entries = entries

	chunks, err := s.sessionChunks(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Chunks = chunks

	return &rec, nil
}

func (s *Store) sessionEntries(ctx context.Context, id string) ([]transcript.Entry, error) {
	const q = `
		SELECT speaker, text, timestamp
		FROM   entries
		WHERE  session_id = $1
		ORDER  BY position`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("archive: get entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Entry, error) {
		var e transcript.Entry
		err := row.Scan(&e.Speaker, &e.Text, &e.Timestamp)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan entries: %w", err)
	}
	if entries == nil {
		entries = []transcript.Entry{}
	}
	return entries, nil
}

func (s *Store) sessionChunks(ctx context.Context, id string) ([]transcript.Chunk, error) {
	const q = `
		SELECT number, summary, source_chars, start_time, end_time
		FROM   chunks
		WHERE  session_id = $1
		ORDER  BY number`

	rows, err := s.pool.Query(ctx, q, id)
	if err != nil {
		return nil, fmt.Errorf("archive: get chunks: %w", err)
	}
	chunks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.Chunk, error) {
		var c transcript.Chunk
		err := row.Scan(&c.Number, &c.Summary, &c.SourceChars, &c.StartTime, &c.EndTime)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan chunks: %w", err)
	}
	if chunks == nil {
		chunks = []transcript.Chunk{}
	}
	return chunks, nil
}

// ListSessions implements [transcript.SessionArchive]. Sessions are returned
// newest first by start time.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]transcript.SessionInfo, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const q = `
		SELECT s.id, s.title, s.started_at, s.duration_ns, count(e.id)
		FROM   sessions s
		LEFT   JOIN entries e ON e.session_id = s.id
		GROUP  BY s.id
		ORDER  BY s.started_at DESC
		LIMIT  $1`

	rows, err := s.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: list sessions: %w", err)
	}
	infos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.SessionInfo, error) {
		var (
			info       transcript.SessionInfo
			durationNS int64
			entryCount int64
		)
		if err := row.Scan(&info.ID, &info.Title, &info.StartedAt, &durationNS, &entryCount); err != nil {
			return transcript.SessionInfo{}, err
		}
		info.Duration = time.Duration(durationNS)
		info.Entries = int(entryCount)
		return info, nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan sessions: %w", err)
	}
	if infos == nil {
		infos = []transcript.SessionInfo{}
	}
	return infos, nil
}

// SearchEntries implements [transcript.SessionArchive]. It performs a
// PostgreSQL full-text search over entry text and applies optional filters
// from opts.
//
// The query is passed to plainto_tsquery so no special operator syntax is
// required.
func (s *Store) SearchEntries(ctx context.Context, query string, opts transcript.SearchOpts) ([]transcript.SearchHit, error) {
	q, args := searchEntriesSQL(query, opts)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("archive: search entries: %w", err)
	}
	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (transcript.SearchHit, error) {
		var h transcript.SearchHit
		err := row.Scan(&h.SessionID, &h.Entry.Speaker, &h.Entry.Text, &h.Entry.Timestamp)
		return h, err
	})
	if err != nil {
		return nil, fmt.Errorf("archive: scan hits: %w", err)
	}
	if hits == nil {
		hits = []transcript.SearchHit{}
	}
	return hits, nil
}

// searchEntriesSQL builds the full-text search statement and its positional
// arguments. Non-zero fields of opts become AND conditions with sequentially
// numbered placeholders.
func searchEntriesSQL(query string, opts transcript.SearchOpts) (string, []any) {
	args := []any{query} // $1 = FTS query string
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{
		"to_tsvector('english', text) @@ plainto_tsquery('english', $1)",
	}
	if opts.SessionID != "" {
		conditions = append(conditions, "session_id = "+next(opts.SessionID))
	}
	if opts.Speaker != "" {
		conditions = append(conditions, "speaker = "+next(opts.Speaker))
	}
	if !opts.After.IsZero() {
		conditions = append(conditions, "timestamp > "+next(opts.After))
	}
	if !opts.Before.IsZero() {
		conditions = append(conditions, "timestamp < "+next(opts.Before))
	}

	q := "SELECT session_id, speaker, text, timestamp\n" +
		"FROM   entries\n" +
		"WHERE  " + strings.Join(conditions, "\n  AND  ") + "\n" +
		"ORDER  BY timestamp"

	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	return q, args
}

// DeleteSession implements [transcript.SessionArchive]. Entries, chunks, and
// the session note go with the session row via ON DELETE CASCADE. Deleting
// an unknown ID is not an error.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("archive: delete session: %w", err)
	}
	return nil
}
