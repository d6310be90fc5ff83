// Package assemble reconstructs clean, speaker-attributed transcripts from
// the noisy, incrementally re-rendered caption fragments a video-call UI
// produces. It tracks in-progress utterances per speaker, decides when each
// one is complete, deduplicates finalized text against recent history, and
// slices the growing transcript into chunks for summarization.
//
// A [Session] owns all mutable state for one recording: the pending
// utterance map, the transcript log, and the chunk boundary. All ingestion
// runs on a single loop goroutine, so ticks are strictly serialized;
// snapshot deliveries that arrive while a tick is running are coalesced,
// newest wins. Summarization happens off the tick path and never blocks
// caption capture.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/captrail/captrail/internal/noise"
	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/pkg/transcript"
)

// defaultSweepInterval is how often the session loop runs a timeout sweep
// when no snapshots are arriving.
const defaultSweepInterval = time.Second

// LabelResolver unifies noisy speaker-label variants to one canonical label
// before tracking. Implementations must be safe for concurrent use.
type LabelResolver interface {
	Resolve(label string) string
}

// Snapshot is one delivery from the caption observer: every caption block
// currently rendered, or none when the caption container is absent.
type Snapshot struct {
	Captions        []Fragment
	ContainerAbsent bool
	ReceivedAt      time.Time
}

// SessionConfig carries the dependencies and tuning for one recording
// session.
type SessionConfig struct {
	// ID identifies the session in logs and the archive. Required.
	ID string

	// Title is the meeting title passed to the summarizer. Optional.
	Title string

	// Classifier filters UI chrome out of incoming fragments. Required.
	Classifier *noise.Classifier

	// Labels canonicalizes speaker labels. Nil leaves labels untouched.
	Labels LabelResolver

	// Summarizer produces chunk summaries. Required.
	Summarizer Summarizer

	// SweepInterval is the timeout-sweep cadence. Zero keeps the default.
	SweepInterval time.Duration

	// FinalizeTimeout overrides the tracker's idle timeout. Zero keeps the
	// default.
	FinalizeTimeout time.Duration

	// ChunkInterval and MinChunkRunes tune the chunk scheduler. Zero keeps
	// the defaults.
	ChunkInterval time.Duration
	MinChunkRunes int
}

// StopData is everything a session yields when it stops. The caller renders
// and persists it; the session itself is discarded.
type StopData struct {
	Entries   []transcript.Entry
	Chunks    []transcript.Chunk
	StartedAt time.Time
	Duration  time.Duration

	// FlushErr reports a failed final chunk flush. The transcript entries
	// are complete regardless.
	FlushErr error
}

// Session assembles the transcript for one recording. Create with
// [NewSession], feed with [Session.Deliver], and finish with [Session.Stop].
type Session struct {
	id         string
	title      string
	classifier *noise.Classifier
	labels     LabelResolver
	tracker    *Tracker
	log        *Log
	chunker    *Chunker
	met        *observe.Metrics

	sweepInterval time.Duration
	startedAt     time.Time

	mu     sync.Mutex
	latest *Snapshot
	notify chan struct{}

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	result   StopData
}

// NewSession wires a session from cfg. The session does nothing until
// [Session.Start].
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.ID == "" {
		return nil, errors.New("assemble: session ID must not be empty")
	}
	if cfg.Classifier == nil {
		return nil, fmt.Errorf("assemble: session %s: classifier is required", cfg.ID)
	}
	if cfg.Summarizer == nil {
		return nil, fmt.Errorf("assemble: session %s: summarizer is required", cfg.ID)
	}

	sweep := cfg.SweepInterval
	if sweep <= 0 {
		sweep = defaultSweepInterval
	}

	log := NewLog()
	s := &Session{
		id:            cfg.ID,
		title:         cfg.Title,
		classifier:    cfg.Classifier,
		labels:        cfg.Labels,
		tracker:       NewTracker(WithFinalizeTimeout(cfg.FinalizeTimeout)),
		log:           log,
		met:           observe.DefaultMetrics(),
		sweepInterval: sweep,
		notify:        make(chan struct{}, 1),
		done:          make(chan struct{}),
	}

	var chunkOpts []ChunkerOption
	if cfg.ChunkInterval > 0 {
		chunkOpts = append(chunkOpts, WithChunkInterval(cfg.ChunkInterval))
	}
	if cfg.MinChunkRunes > 0 {
		chunkOpts = append(chunkOpts, WithMinChunkRunes(cfg.MinChunkRunes))
	}
	s.chunker = NewChunker(log, cfg.Summarizer, cfg.Title, chunkOpts...)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Start launches the tick loop and the chunk scheduler.
func (s *Session) Start(ctx context.Context) {
	s.startedAt = time.Now()
	s.chunker.Start(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	slog.Info("session started", "session_id", s.id, "title", s.title)
}

// Deliver hands the session a fresh observer snapshot. Never blocks: if a
// previous snapshot is still queued it is replaced, since each snapshot
// carries the full rendered state and only the newest matters.
func (s *Session) Deliver(snap Snapshot) {
	if snap.ReceivedAt.IsZero() {
		snap.ReceivedAt = time.Now()
	}
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// TranscriptLen returns the current number of transcript entries.
func (s *Session) TranscriptLen() int {
	return s.log.Len()
}

// Stop shuts the session down: the loop exits, any undelivered snapshot is
// processed, remaining pending utterances are force-finalized in key order,
// and the chunk scheduler flushes its remainder. Safe to call more than
// once; later calls return the first result.
func (s *Session) Stop(ctx context.Context) StopData {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		if snap := s.takeLatest(); snap != nil {
			s.processSnapshot(ctx, *snap)
		}

		now := time.Now()
		final := s.tracker.Flush(now)
		for _, f := range final {
			s.append(ctx, f)
		}
		s.met.RecordFinalized(ctx, "stop", int64(len(final)))

		s.chunker.Stop()
		var data StopData
		if err := s.chunker.FlushFinal(ctx); err != nil {
			slog.Warn("final chunk flush failed",
				"session_id", s.id,
				"err", err,
			)
			data.FlushErr = err
		}

		data.Entries = s.log.Entries()
		data.Chunks = s.chunker.Chunks()
		data.StartedAt = s.startedAt
		data.Duration = now.Sub(s.startedAt)
		s.result = data

		slog.Info("session stopped",
			"session_id", s.id,
			"entries", len(data.Entries),
			"chunks", len(data.Chunks),
			"duration", data.Duration,
		)
	})
	return s.result
}

// loop serializes all state mutation: snapshot ticks and timeout sweeps run
// here and nowhere else.
func (s *Session) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-s.notify:
			if snap := s.takeLatest(); snap != nil {
				s.processSnapshot(ctx, *snap)
			}
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Session) takeLatest() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.latest
	s.latest = nil
	return snap
}

// processSnapshot runs one ingestion tick: classify, resolve labels, track,
// and fold finalized utterances into the transcript.
func (s *Session) processSnapshot(ctx context.Context, snap Snapshot) {
	start := time.Now()

	frags := make([]Fragment, 0, len(snap.Captions))
	for _, c := range snap.Captions {
		reason := s.classifier.Check(c.Text)
		if reason != noise.ReasonNone {
			s.met.RecordFragment(ctx, string(reason))
			continue
		}
		s.met.RecordFragment(ctx, "caption")

		speaker := c.Speaker
		if s.labels != nil {
			speaker = s.labels.Resolve(speaker)
		}
		frags = append(frags, Fragment{
			Speaker:    speaker,
			Text:       c.Text,
			ObservedAt: snap.ReceivedAt,
		})
	}

	finalized := s.tracker.Ingest(frags, start)
	for _, f := range finalized {
		s.append(ctx, f)
	}
	s.met.RecordFinalized(ctx, "snapshot", int64(len(finalized)))
	s.met.TickDuration.Record(ctx, time.Since(start).Seconds())
}

// sweep finalizes utterances that timed out while the observer was quiet.
func (s *Session) sweep(ctx context.Context) {
	finalized := s.tracker.TimeoutSweep(time.Now())
	for _, f := range finalized {
		s.append(ctx, f)
	}
	s.met.RecordFinalized(ctx, "sweep", int64(len(finalized)))
}

func (s *Session) append(ctx context.Context, f Finalized) {
	outcome := s.log.Append(f.Speaker, f.Text, f.At)
	s.met.RecordAppend(ctx, string(outcome))
	slog.Debug("utterance finalized",
		"session_id", s.id,
		"speaker", f.Speaker,
		"outcome", string(outcome),
		"chars", runeLen(f.Text),
	)
}
