package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/captrail/captrail/internal/assemble"
	"github.com/captrail/captrail/internal/config"
	"github.com/captrail/captrail/internal/ingest"
	"github.com/captrail/captrail/internal/noise"
	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/internal/speaker"
	"github.com/captrail/captrail/internal/summarize"
	"github.com/captrail/captrail/pkg/transcript"
	"github.com/google/uuid"
)

// Compile-time interface check.
var _ ingest.Controller = (*SessionManager)(nil)

// defaultMaxSessions caps concurrent capture sessions when the config does
// not set capture.max_sessions.
const defaultMaxSessions = 16

// Summarizer is the summarization surface the manager drives: per-chunk
// summaries while a session runs and the combined summary at stop.
// [*summarize.ChunkSummarizer] implements it; FinalSummary is expected to
// return a usable degraded summary alongside any merge error.
type Summarizer interface {
	assemble.Summarizer
	FinalSummary(ctx context.Context, title string, chunks []transcript.Chunk) (string, error)
}

// runningSession pairs an assembler with the metadata the manager needs
// again at stop time.
type runningSession struct {
	asm    *assemble.Session
	title  string
	cancel context.CancelFunc
}

// SessionManager owns the running capture sessions and drives each through
// its lifecycle: start, snapshot delivery, and the stop handoff to the
// persistence sinks. It implements [ingest.Controller].
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*runningSession

	cfg        *config.Config
	classifier *noise.Classifier
	summarizer Summarizer
	archive    transcript.Archive
	notesDir   string
	met        *observe.Metrics
}

// SessionManagerConfig holds the dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Config provides capture, chunking, and speaker tuning. Required.
	Config *config.Config

	// Classifier filters UI chrome from snapshots. It is shared across
	// sessions, so pattern reloads reach running sessions too. Required.
	Classifier *noise.Classifier

	// Summarizer produces chunk and final summaries. Required.
	Summarizer Summarizer

	// Archive receives finished sessions. Nil disables the archive sink.
	Archive transcript.Archive

	// NotesDir is where markdown notes land. Empty disables the notes sink.
	NotesDir string

	// Metrics overrides the no-op default.
	Metrics *observe.Metrics
}

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	met := cfg.Metrics
	if met == nil {
		met = observe.DefaultMetrics()
	}
	return &SessionManager{
		sessions:   make(map[string]*runningSession),
		cfg:        cfg.Config,
		classifier: cfg.Classifier,
		summarizer: cfg.Summarizer,
		archive:    cfg.Archive,
		notesDir:   cfg.NotesDir,
		met:        met,
	}
}

// StartSession opens a new capture session and returns its generated ID.
// Each session gets its own speaker unifier; label variants never bleed
// across meetings.
func (sm *SessionManager) StartSession(ctx context.Context, title string) (string, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	max := sm.cfg.Capture.MaxSessions
	if max <= 0 {
		max = defaultMaxSessions
	}
	if len(sm.sessions) >= max {
		return "", fmt.Errorf("%w (max %d)", ingest.ErrTooManySessions, max)
	}

	var spkOpts []speaker.Option
	if t := sm.cfg.Speakers.PhoneticThreshold; t > 0 {
		spkOpts = append(spkOpts, speaker.WithPhoneticThreshold(t))
	}
	if t := sm.cfg.Speakers.FuzzyThreshold; t > 0 {
		spkOpts = append(spkOpts, speaker.WithFuzzyThreshold(t))
	}

	id := uuid.NewString()
	asm, err := assemble.NewSession(assemble.SessionConfig{
		ID:              id,
		Title:           title,
		Classifier:      sm.classifier,
		Labels:          speaker.New(spkOpts...),
		Summarizer:      sm.summarizer,
		SweepInterval:   sm.cfg.Capture.SweepInterval.Std(),
		FinalizeTimeout: sm.cfg.Capture.FinalizeTimeout.Std(),
		ChunkInterval:   sm.cfg.Chunking.Interval.Std(),
		MinChunkRunes:   sm.cfg.Chunking.MinChars,
	})
	if err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}

	// The session outlives the start request; its loop runs on a
	// manager-owned context canceled at stop.
	sctx, cancel := context.WithCancel(context.Background())
	asm.Start(sctx)

	sm.sessions[id] = &runningSession{asm: asm, title: title, cancel: cancel}
	sm.met.ActiveSessions.Add(ctx, 1)

	slog.Info("capture session started",
		"session_id", id,
		"title", title,
		"active", len(sm.sessions),
	)
	return id, nil
}

// DeliverSnapshot routes one observer snapshot to its session. Never blocks
// on assembly work.
func (sm *SessionManager) DeliverSnapshot(id string, snap assemble.Snapshot) error {
	sm.mu.Lock()
	rs, ok := sm.sessions[id]
	sm.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ingest.ErrSessionNotFound, id)
	}
	rs.asm.Deliver(snap)
	return nil
}

// StopSession finishes a session and runs the persistence handoff. The
// assembled record is always part of the outcome; when its rendered text is
// shorter than [transcript.MinMeaningfulRunes] the error is
// [transcript.ErrNothingCaptured] and no sink has run.
func (sm *SessionManager) StopSession(ctx context.Context, id string) (ingest.StopOutcome, error) {
	sm.mu.Lock()
	rs, ok := sm.sessions[id]
	if ok {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()
	if !ok {
		return ingest.StopOutcome{}, fmt.Errorf("%w: %s", ingest.ErrSessionNotFound, id)
	}

	sm.met.ActiveSessions.Add(ctx, -1)

	data := rs.asm.Stop(ctx)
	rs.cancel()
	if data.FlushErr != nil {
		slog.Warn("final chunk flush failed, summaries may be incomplete",
			"session_id", id,
			"err", data.FlushErr,
		)
	}

	rec := &transcript.SessionRecord{
		ID:        id,
		Title:     rs.title,
		StartedAt: data.StartedAt,
		Duration:  data.Duration,
		Entries:   data.Entries,
		Text:      transcript.Render(data.Entries),
		Chunks:    data.Chunks,
	}

	if utf8.RuneCountInString(rec.Text) < transcript.MinMeaningfulRunes {
		slog.Info("session captured nothing usable",
			"session_id", id,
			"entries", len(rec.Entries),
		)
		return ingest.StopOutcome{Record: rec}, transcript.ErrNothingCaptured
	}

	summary, err := sm.summarizer.FinalSummary(ctx, rs.title, rec.Chunks)
	if err != nil {
		// The returned summary is the degraded concatenation; keep it.
		slog.Warn("final summary merge failed",
			"session_id", id,
			"err", err,
		)
	}
	rec.FinalSummary = summary

	outcome := ingest.StopOutcome{Record: rec}
	outcome.NotePath, outcome.SinkErr = sm.runSinks(ctx, rec)

	slog.Info("capture session stopped",
		"session_id", id,
		"entries", len(rec.Entries),
		"chunks", len(rec.Chunks),
		"duration", rec.Duration,
		"note", outcome.NotePath,
	)
	return outcome, nil
}

// Active returns the number of running sessions.
func (sm *SessionManager) Active() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.sessions)
}

// UpdateConfig swaps the tuning used for sessions started from now on.
// Running sessions keep the settings they started with.
func (sm *SessionManager) UpdateConfig(cfg *config.Config) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cfg = cfg
}

// Close stops every remaining session, running the full persistence handoff
// for each so in-flight transcripts land in the sinks instead of dying with
// the process.
func (sm *SessionManager) Close(ctx context.Context) error {
	sm.mu.Lock()
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	var errs []error
	for _, id := range ids {
		outcome, err := sm.StopSession(ctx, id)
		switch {
		case errors.Is(err, transcript.ErrNothingCaptured):
			// Nothing to persist.
		case err != nil:
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
		case outcome.SinkErr != nil:
			errs = append(errs, fmt.Errorf("session %s: %w", id, outcome.SinkErr))
		}
	}
	return errors.Join(errs...)
}

// runSinks hands the finished record to the notes directory and the archive.
// Sinks are best-effort; failures come back joined in one error while the
// record stays with the caller.
func (sm *SessionManager) runSinks(ctx context.Context, rec *transcript.SessionRecord) (notePath string, sinkErr error) {
	start := time.Now()
	defer func() {
		sm.met.SinkDuration.Record(ctx, time.Since(start).Seconds())
	}()

	noteTitle := summarize.NoteTitle(rec.Title, rec.StartedAt)
	noteBody := summarize.NoteBody(rec.FinalSummary, rec.Entries)

	var errs []error
	if sm.notesDir != "" {
		path, err := sm.writeNote(noteTitle, noteBody, rec)
		if err != nil {
			errs = append(errs, fmt.Errorf("write note: %w", err))
		} else {
			notePath = path
		}
	}

	if sm.archive != nil {
		if err := sm.archive.SaveSession(ctx, *rec); err != nil {
			errs = append(errs, fmt.Errorf("archive session: %w", err))
		} else {
			// The note row references the session row, so it is only
			// indexed after a successful save.
			note := transcript.Note{SessionID: rec.ID, Title: noteTitle, Body: noteBody}
			if err := sm.archive.IndexNote(ctx, note); err != nil {
				errs = append(errs, fmt.Errorf("index note: %w", err))
			}
		}
	}
	return notePath, errors.Join(errs...)
}

// writeNote writes the markdown note file and returns its path. The filename
// combines the session start time with the sanitized title.
func (sm *SessionManager) writeNote(title, body string, rec *transcript.SessionRecord) (string, error) {
	if err := os.MkdirAll(sm.notesDir, 0o755); err != nil {
		return "", err
	}

	name := rec.Title
	if name == "" {
		name = "meeting"
	}
	fileName := fmt.Sprintf("%s-%s.md",
		rec.StartedAt.UTC().Format("20060102T1504Z"),
		sanitizeName(name),
	)

	path := filepath.Join(sm.notesDir, fileName)
	content := fmt.Sprintf("# %s\n\n%s", title, body)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// sanitizeName lowercases a title and replaces spaces and path separators
// with hyphens for use in note filenames.
func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")
	name = strings.ReplaceAll(name, "/", "-")
	return name
}
