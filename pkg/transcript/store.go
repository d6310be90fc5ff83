package transcript

import (
	"context"
	"errors"
	"time"
)

// ErrSessionNotFound reports that no archived session exists under the
// requested ID.
var ErrSessionNotFound = errors.New("transcript: session not found")

// ─────────────────────────────────────────────────────────────────────────────
// Archive supporting types
// ─────────────────────────────────────────────────────────────────────────────

// SessionInfo is a summary row describing one archived session. It carries
// everything a listing needs without loading the full transcript.
type SessionInfo struct {
	// ID is the archived session's identifier.
	ID string

	// Title is the meeting title the session was started with.
	// Empty for untitled sessions.
	Title string

	// StartedAt is when the recording began.
	StartedAt time.Time

	// Duration is the recording length at stop time.
	Duration time.Duration

	// Entries is the number of finalized utterances in the transcript.
	Entries int
}

// SearchOpts configures a full-text search over archived entries.
// All non-zero fields are applied as AND conditions.
type SearchOpts struct {
	// SessionID restricts the search to a single archived session.
	// An empty string searches across all sessions.
	SessionID string

	// Speaker restricts results to entries attributed to this label.
	// An empty string matches all speakers, including unattributed entries.
	Speaker string

	// After filters entries finalized after this instant (exclusive).
	// A zero Time disables the lower bound.
	After time.Time

	// Before filters entries finalized before this instant (exclusive).
	// A zero Time disables the upper bound.
	Before time.Time

	// Limit caps the number of results returned.
	// A value of 0 means the implementation may apply its own default.
	Limit int
}

// SearchHit pairs a matching transcript entry with the session it came from,
// so cross-session searches stay attributable.
type SearchHit struct {
	// SessionID is the archived session the entry belongs to.
	SessionID string

	// Entry is the matching utterance.
	Entry Entry
}

// Note is the markdown session note built at stop time, prepared for semantic
// indexing. Each session has at most one note; re-indexing replaces it.
type Note struct {
	// SessionID ties the note to its archived session.
	SessionID string

	// Title is the note heading, including the meeting title and start
	// timestamp.
	Title string

	// Body is the full markdown body (summary plus rendered transcript).
	// The body is what gets embedded for semantic search.
	Body string

	// CreatedAt is when the note was built. A zero Time lets the
	// implementation stamp the current time.
	CreatedAt time.Time
}

// NoteResult pairs a retrieved note with its vector-space distance from the
// query embedding. Lower Distance values indicate higher semantic similarity.
type NoteResult struct {
	// Note is the retrieved session note.
	Note Note

	// Distance is the cosine distance to the query embedding.
	Distance float64
}

// ─────────────────────────────────────────────────────────────────────────────
// Archive interfaces
// ─────────────────────────────────────────────────────────────────────────────

// SessionArchive persists finished session records and serves lookups and
// full-text search over them.
//
// The interface is public so hosts can supply alternative backends
// (Postgres, SQLite, in-memory, …) without depending on captrail internals.
// Every implementation must be safe for concurrent use.
type SessionArchive interface {
	// SaveSession writes a complete session record. If a record with the
	// same ID already exists it is completely replaced, entries and chunks
	// included.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// GetSession loads one archived session with all entries and chunks.
	// Returns [ErrSessionNotFound] when no session exists under id.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)

	// ListSessions returns summary rows for archived sessions, newest
	// first. limit caps the result; a value of 0 means the implementation
	// may apply its own default.
	// Returns an empty (non-nil) slice when the archive is empty.
	ListSessions(ctx context.Context, limit int) ([]SessionInfo, error)

	// SearchEntries performs keyword / full-text search over archived
	// transcript entries. The query string is matched against entry text;
	// opts refines the result set by session, speaker, or time range.
	// Returns an empty (non-nil) slice when no entries match.
	SearchEntries(ctx context.Context, query string, opts SearchOpts) ([]SearchHit, error)

	// DeleteSession removes an archived session with all entries, chunks,
	// and its note. Deleting an unknown ID is not an error.
	DeleteSession(ctx context.Context, id string) error
}

// NoteIndex stores per-session notes with embeddings and serves semantic
// search over them.
//
// Every implementation must be safe for concurrent use.
type NoteIndex interface {
	// IndexNote embeds and stores a session note, replacing any previous
	// note for the same session. Notes whose body is shorter than
	// [MinMeaningfulRunes] runes are skipped without error; there is
	// nothing meaningful to retrieve from them.
	IndexNote(ctx context.Context, note Note) error

	// SearchSemantic finds the archived notes closest in embedding space
	// to the query text. limit caps the result; a value of 0 means the
	// implementation may apply its own default.
	// Results are ordered by ascending distance (most similar first).
	// Returns an empty (non-nil) slice when the index is empty.
	SearchSemantic(ctx context.Context, query string, limit int) ([]NoteResult, error)
}

// Archive is the full persistence surface a session manager hands finished
// recordings to: record storage plus the semantic note index.
type Archive interface {
	SessionArchive
	NoteIndex
}
