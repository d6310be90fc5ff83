// Package ingest exposes the HTTP surface that caption observers talk to.
// An observer is a browser-side script watching a video call's caption
// container; it opens a recording session, streams rendered caption
// snapshots while the call runs, and stops the session when the call ends.
//
// Snapshots arrive over one of two transports. The WebSocket stream is the
// normal path: deliveries are debounced per connection, so a burst of DOM
// mutations collapses into the newest snapshot once the burst quiets down.
// The plain POST endpoint is a fallback for observers that cannot hold a
// socket open; it delivers synchronously.
//
// The package owns no session state. All lifecycle and assembly work is
// behind the [Controller] interface.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/captrail/captrail/internal/assemble"
	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/pkg/transcript"
	"github.com/coder/websocket"
)

// defaultDebounceWindow is how long a WebSocket connection waits after the
// last received snapshot before handing the newest one to the session.
const defaultDebounceWindow = 250 * time.Millisecond

// ErrSessionNotFound reports an operation against an unknown or already
// stopped session ID.
var ErrSessionNotFound = errors.New("ingest: session not found")

// ErrTooManySessions reports that the concurrent session limit is reached.
var ErrTooManySessions = errors.New("ingest: too many sessions")

// StopOutcome is what stopping a session yields once assembly, summarization,
// and the persistence sinks have run.
type StopOutcome struct {
	// Record is the assembled session payload. It is set even when the stop
	// finished as [transcript.ErrNothingCaptured], so callers can still
	// report the session's title and duration.
	Record *transcript.SessionRecord

	// NotePath is where the markdown note landed, when a notes sink ran.
	NotePath string

	// SinkErr carries persistence failures. Sinks are best-effort; the
	// transcript in Record is complete regardless.
	SinkErr error
}

// Controller is the session lifecycle the server drives. The application's
// session manager implements it.
type Controller interface {
	// StartSession opens a new recording session and returns its ID.
	// Returns [ErrTooManySessions] when the concurrent limit is reached.
	StartSession(ctx context.Context, title string) (string, error)

	// DeliverSnapshot hands one observer snapshot to a running session.
	// Must not block on assembly work. Returns [ErrSessionNotFound] for
	// unknown IDs.
	DeliverSnapshot(id string, snap assemble.Snapshot) error

	// StopSession finishes a session: remaining utterances are flushed, the
	// final summary is produced, and the persistence sinks run exactly once.
	// When the assembled transcript is shorter than
	// [transcript.MinMeaningfulRunes], it returns the record alongside
	// [transcript.ErrNothingCaptured] and no sinks have run.
	StopSession(ctx context.Context, id string) (StopOutcome, error)
}

// Server serves the observer API. Create with [NewServer] and mount
// [Server.Handler].
type Server struct {
	ctrl           Controller
	debounceWindow time.Duration
	met            *observe.Metrics
}

// ServerOption is a functional option for configuring the [Server].
type ServerOption func(*Server)

// WithDebounceWindow sets the WebSocket snapshot debounce window.
// Values <= 0 keep the default.
func WithDebounceWindow(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.debounceWindow = d
		}
	}
}

// NewServer creates a server driving the given controller.
func NewServer(ctrl Controller, opts ...ServerOption) *Server {
	s := &Server{
		ctrl:           ctrl,
		debounceWindow: defaultDebounceWindow,
		met:            observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns an [http.Handler] that serves the observer endpoints:
//
//	POST   /v1/sessions                  start a recording session
//	DELETE /v1/sessions/{id}             stop it and collect the outcome
//	POST   /v1/sessions/{id}/snapshot    deliver one snapshot (fallback)
//	GET    /v1/sessions/{id}/stream      WebSocket snapshot stream
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/sessions", s.handleStart)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleStop)
	mux.HandleFunc("POST /v1/sessions/{id}/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)
	return mux
}

// startRequest is the JSON body for the session start endpoint. The body may
// be omitted entirely; an untitled session is valid.
type startRequest struct {
	Title string `json:"title"`
}

// startResponse is the JSON body returned from the session start endpoint.
type startResponse struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
}

// captionPayload is one rendered caption block inside a snapshot.
type captionPayload struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// snapshotPayload is the JSON form of one observer snapshot, shared by the
// WebSocket stream and the POST fallback. ContainerAbsent marks a tick in
// which the caption container itself was gone from the page.
type snapshotPayload struct {
	Captions        []captionPayload `json:"captions"`
	ContainerAbsent bool             `json:"containerAbsent"`
}

// toSnapshot converts the wire payload into an [assemble.Snapshot] stamped
// with the receive time.
func (p snapshotPayload) toSnapshot(at time.Time) assemble.Snapshot {
	snap := assemble.Snapshot{
		ContainerAbsent: p.ContainerAbsent,
		ReceivedAt:      at,
	}
	for _, c := range p.Captions {
		snap.Captions = append(snap.Captions, assemble.Fragment{
			Speaker: c.Speaker,
			Text:    c.Text,
		})
	}
	return snap
}

// Stop outcomes reported in [stopResponse].
const (
	outcomeSaved           = "saved"
	outcomeNothingCaptured = "nothing_captured"
)

// nothingCapturedReason is surfaced to the observer so the host UI can show
// actionable guidance.
const nothingCapturedReason = "no usable captions were captured; make sure captions are enabled in the call"

// stopResponse is the JSON body returned from the session stop endpoint.
type stopResponse struct {
	ID              string  `json:"id"`
	Outcome         string  `json:"outcome"`
	Reason          string  `json:"reason,omitempty"`
	Title           string  `json:"title,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Entries         int     `json:"entries"`
	Chunks          int     `json:"chunks"`
	Summary         string  `json:"summary,omitempty"`
	NotePath        string  `json:"note_path,omitempty"`
	SinkError       string  `json:"sink_error,omitempty"`
}

// handleStart handles POST /v1/sessions.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	id, err := s.ctrl.StartSession(r.Context(), req.Title)
	if err != nil {
		if errors.Is(err, ErrTooManySessions) {
			http.Error(w, "too many active sessions", http.StatusTooManyRequests)
			return
		}
		http.Error(w, "failed to start session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(startResponse{ID: id, Title: req.Title})
}

// handleSnapshot handles POST /v1/sessions/{id}/snapshot, the synchronous
// fallback transport.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var payload snapshotPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.ctrl.DeliverSnapshot(id, payload.toSnapshot(time.Now())); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to deliver snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.met.RecordSnapshot(r.Context(), "http")
	w.WriteHeader(http.StatusAccepted)
}

// handleStop handles DELETE /v1/sessions/{id}.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	outcome, err := s.ctrl.StopSession(r.Context(), id)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		http.Error(w, "session not found", http.StatusNotFound)
		return
	case errors.Is(err, transcript.ErrNothingCaptured):
		resp := stopResponse{
			ID:      id,
			Outcome: outcomeNothingCaptured,
			Reason:  nothingCapturedReason,
		}
		if rec := outcome.Record; rec != nil {
			resp.Title = rec.Title
			resp.DurationSeconds = rec.Duration.Seconds()
		}
		writeJSON(w, http.StatusOK, resp)
		return
	case err != nil:
		http.Error(w, "failed to stop session: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rec := outcome.Record
	resp := stopResponse{
		ID:              id,
		Outcome:         outcomeSaved,
		Title:           rec.Title,
		DurationSeconds: rec.Duration.Seconds(),
		Entries:         len(rec.Entries),
		Chunks:          len(rec.Chunks),
		Summary:         rec.FinalSummary,
		NotePath:        outcome.NotePath,
	}
	if outcome.SinkErr != nil {
		resp.SinkError = outcome.SinkErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStream handles GET /v1/sessions/{id}/stream. The connection lives
// for the duration of the recording; each text message is one snapshot.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// Observers run inside the video call's page, so the Origin header
	// carries the call platform's domain and can never match this host.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		slog.Warn("snapshot stream upgrade failed", "session_id", id, "err", err)
		return
	}
	defer conn.CloseNow()

	slog.Info("snapshot stream opened", "session_id", id, "remote", r.RemoteAddr)

	// Only the newest snapshot matters: each one carries the full rendered
	// state, so the parked one is simply replaced while the debounce timer
	// is pending.
	var (
		mu     sync.Mutex
		latest *assemble.Snapshot
	)
	flush := debounce.New(s.debounceWindow)
	deliver := func() {
		mu.Lock()
		snap := latest
		latest = nil
		mu.Unlock()
		if snap == nil {
			return
		}
		if err := s.ctrl.DeliverSnapshot(id, *snap); err != nil {
			// Session already stopped; unblock the read loop.
			conn.Close(websocket.StatusGoingAway, "session stopped")
		}
	}

	ctx := r.Context()
	received := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// Normal close, session stop, or a dropped connection.
			deliver()
			slog.Info("snapshot stream closed",
				"session_id", id,
				"snapshots", received,
			)
			return
		}

		var payload snapshotPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			slog.Debug("dropping malformed snapshot", "session_id", id, "err", err)
			continue
		}

		snap := payload.toSnapshot(time.Now())
		mu.Lock()
		latest = &snap
		mu.Unlock()
		received++
		s.met.RecordSnapshot(ctx, "ws")
		flush(deliver)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
