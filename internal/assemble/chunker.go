package assemble

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/pkg/transcript"
)

const (
	// defaultChunkInterval is the cadence at which accumulated transcript
	// text is summarized during a recording.
	defaultChunkInterval = 10 * time.Minute

	// defaultMinChunkRunes is the minimum accumulated text length before a
	// cadence cycle produces a chunk. Cycles below it skip without advancing
	// the boundary, so short meetings still summarize at the final flush.
	defaultMinChunkRunes = 500
)

// ErrNoNewText is returned by [Chunker.ChunkNow] when no entries have been
// added since the last chunk boundary.
var ErrNoNewText = errors.New("assemble: no new transcript text since last chunk")

// Summarizer produces a summary for one chunk of transcript text. Failures
// are expected (network, credentials) and must leave the caller free to
// retry the same text later.
type Summarizer interface {
	SummarizeChunk(ctx context.Context, chunkNumber int, text, title string) (string, error)
}

// Chunker slices newly finalized transcript entries into time-boxed chunks
// and submits them for summarization. The boundary only advances when a
// chunk is produced, so skipped and failed cycles retry the same text on
// the next cadence or at the final flush.
type Chunker struct {
	log        *Log
	summarizer Summarizer
	title      string
	interval   time.Duration
	minRunes   int

	met *observe.Metrics

	mu       sync.Mutex
	boundary int // index of the first log entry not yet chunked
	nextNum  int
	chunks   []transcript.Chunk

	done     chan struct{}
	stopOnce sync.Once
}

// ChunkerOption configures a [Chunker].
type ChunkerOption func(*Chunker)

// WithChunkInterval sets the summarization cadence. Values <= 0 keep the
// default.
func WithChunkInterval(d time.Duration) ChunkerOption {
	return func(c *Chunker) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMinChunkRunes sets the minimum accumulated text length for a cadence
// cycle to produce a chunk. Values <= 0 keep the default.
func WithMinChunkRunes(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.minRunes = n
		}
	}
}

// NewChunker creates a chunk scheduler reading from log and summarizing via
// summarizer. The title is passed through to the summarizer for prompt
// context.
func NewChunker(log *Log, summarizer Summarizer, title string, opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		log:        log,
		summarizer: summarizer,
		title:      title,
		interval:   defaultChunkInterval,
		minRunes:   defaultMinChunkRunes,
		met:        observe.DefaultMetrics(),
		nextNum:    1,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start launches the cadence loop. The loop exits when ctx is cancelled or
// [Chunker.Stop] is called.
func (c *Chunker) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the cadence loop. It does not flush; callers run
// [Chunker.FlushFinal] themselves so they control the stop-time ordering.
func (c *Chunker) Stop() {
	c.stopOnce.Do(func() {
		close(c.done)
	})
}

func (c *Chunker) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ChunkNow(ctx); err != nil && !errors.Is(err, ErrNoNewText) {
				slog.Warn("chunk cycle failed, will retry",
					"title", c.title,
					"next_chunk", c.NextNumber(),
					"err", err,
				)
			}
		}
	}
}

// ChunkNow runs one cadence cycle immediately. Below-threshold text returns
// nil (skip, boundary unchanged); summarizer failure returns the error with
// the boundary and chunk number unchanged so the same text is retried.
func (c *Chunker) ChunkNow(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunk(ctx, false)
}

// FlushFinal summarizes any unflushed remainder regardless of the minimum
// threshold. Called once at recording stop; failure is returned but the
// remaining text is still part of the transcript payload.
func (c *Chunker) FlushFinal(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.chunk(ctx, true)
	if errors.Is(err, ErrNoNewText) {
		return nil
	}
	return err
}

// chunk runs one cycle. Callers hold c.mu, which serializes cycles without
// ever blocking transcript appends.
func (c *Chunker) chunk(ctx context.Context, force bool) error {
	entries := c.log.Since(c.boundary)
	if len(entries) == 0 {
		return ErrNoNewText
	}

	text := transcript.JoinText(entries)
	size := runeLen(text)
	if size == 0 {
		return ErrNoNewText
	}
	if !force && size < c.minRunes {
		slog.Debug("chunk cycle skipped, below threshold",
			"accumulated", size,
			"min", c.minRunes,
		)
		return nil
	}

	num := c.nextNum
	start := time.Now()
	summary, err := c.summarizer.SummarizeChunk(ctx, num, text, c.title)
	c.met.SummarizeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		c.met.RecordChunk(ctx, "error")
		return err
	}
	c.met.RecordChunk(ctx, "ok")

	c.chunks = append(c.chunks, transcript.Chunk{
		Number:      num,
		Summary:     summary,
		SourceChars: size,
		StartTime:   entries[0].Timestamp,
		EndTime:     entries[len(entries)-1].Timestamp,
	})
	c.nextNum++
	c.boundary += len(entries)

	slog.Info("chunk summarized",
		"chunk", num,
		"source_chars", size,
		"entries", len(entries),
	)
	return nil
}

// Chunks returns a copy of the chunks produced so far.
func (c *Chunker) Chunks() []transcript.Chunk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]transcript.Chunk, len(c.chunks))
	copy(out, c.chunks)
	return out
}

// NextNumber returns the number the next produced chunk will carry.
func (c *Chunker) NextNumber() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextNum
}
