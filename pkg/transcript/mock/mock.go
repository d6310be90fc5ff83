// Package mock provides an in-memory test double for the archive interfaces.
//
// [Archive] records every method call for assertion in tests and exposes
// exported fields that control what it returns. It is safe for concurrent use
// via an internal [sync.Mutex].
//
// Typical usage:
//
//	arc := &mock.Archive{}
//	arc.GetSessionResult = &transcript.SessionRecord{ID: "sess-1"}
//
//	// inject arc into the system under test …
//
//	if got := arc.CallCount("SaveSession"); got != 1 {
//	    t.Errorf("expected 1 SaveSession call, got %d", got)
//	}
package mock

import (
	"context"
	"sync"

	"github.com/captrail/captrail/pkg/transcript"
)

// Call records the name and arguments of a single method invocation.
type Call struct {
	// Method is the name of the interface method that was called.
	Method string

	// Args holds the non-context arguments passed to the method, in order.
	Args []any
}

// Archive is a configurable test double for [transcript.Archive].
// All exported *Err fields default to nil (success); all exported *Result
// slice fields default to nil (empty slice returned).
type Archive struct {
	mu sync.Mutex

	// calls records every method invocation in order.
	calls []Call

	// ──── SaveSession ──────────────────────────────────────────────────────
	SaveSessionErr error

	// ──── GetSession ───────────────────────────────────────────────────────
	// GetSessionResult is returned by [Archive.GetSession]. When nil and
	// GetSessionErr is also nil, GetSession returns
	// [transcript.ErrSessionNotFound].
	GetSessionResult *transcript.SessionRecord
	GetSessionErr    error

	// ──── ListSessions ─────────────────────────────────────────────────────
	ListSessionsResult []transcript.SessionInfo
	ListSessionsErr    error

	// ──── SearchEntries ────────────────────────────────────────────────────
	SearchEntriesResult []transcript.SearchHit
	SearchEntriesErr    error

	// ──── DeleteSession ────────────────────────────────────────────────────
	DeleteSessionErr error

	// ──── IndexNote ────────────────────────────────────────────────────────
	IndexNoteErr error

	// ──── SearchSemantic ───────────────────────────────────────────────────
	SearchSemanticResult []transcript.NoteResult
	SearchSemanticErr    error
}

// Calls returns a copy of all recorded method invocations.
func (m *Archive) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times the named method was invoked.
func (m *Archive) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls without altering response configuration.
func (m *Archive) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// SaveSession implements [transcript.SessionArchive].
func (m *Archive) SaveSession(_ context.Context, rec transcript.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SaveSession", Args: []any{rec}})
	return m.SaveSessionErr
}

// GetSession implements [transcript.SessionArchive].
func (m *Archive) GetSession(_ context.Context, id string) (*transcript.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "GetSession", Args: []any{id}})
	if m.GetSessionResult == nil && m.GetSessionErr == nil {
		return nil, transcript.ErrSessionNotFound
	}
	return m.GetSessionResult, m.GetSessionErr
}

// ListSessions implements [transcript.SessionArchive].
func (m *Archive) ListSessions(_ context.Context, limit int) ([]transcript.SessionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "ListSessions", Args: []any{limit}})
	if m.ListSessionsResult == nil {
		return []transcript.SessionInfo{}, m.ListSessionsErr
	}
	out := make([]transcript.SessionInfo, len(m.ListSessionsResult))
	copy(out, m.ListSessionsResult)
	return out, m.ListSessionsErr
}

// SearchEntries implements [transcript.SessionArchive].
func (m *Archive) SearchEntries(_ context.Context, query string, opts transcript.SearchOpts) ([]transcript.SearchHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchEntries", Args: []any{query, opts}})
	if m.SearchEntriesResult == nil {
		return []transcript.SearchHit{}, m.SearchEntriesErr
	}
	out := make([]transcript.SearchHit, len(m.SearchEntriesResult))
	copy(out, m.SearchEntriesResult)
	return out, m.SearchEntriesErr
}

// DeleteSession implements [transcript.SessionArchive].
func (m *Archive) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "DeleteSession", Args: []any{id}})
	return m.DeleteSessionErr
}

// IndexNote implements [transcript.NoteIndex].
func (m *Archive) IndexNote(_ context.Context, note transcript.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "IndexNote", Args: []any{note}})
	return m.IndexNoteErr
}

// SearchSemantic implements [transcript.NoteIndex].
func (m *Archive) SearchSemantic(_ context.Context, query string, limit int) ([]transcript.NoteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: "SearchSemantic", Args: []any{query, limit}})
	if m.SearchSemanticResult == nil {
		return []transcript.NoteResult{}, m.SearchSemanticErr
	}
	out := make([]transcript.NoteResult, len(m.SearchSemanticResult))
	copy(out, m.SearchSemanticResult)
	return out, m.SearchSemanticErr
}

// Ensure Archive satisfies the interface at compile time.
var _ transcript.Archive = (*Archive)(nil)
