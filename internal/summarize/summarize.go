// Package summarize builds meeting summaries from assembled transcript text.
//
// A [ChunkSummarizer] feeds transcript segments to a chat-completion provider
// one chunk at a time, matching the scheduler's Summarizer contract, and
// merges the per-chunk summaries into one meeting summary at session stop.
// [NoteTitle] and [NoteBody] render the markdown session note that sinks
// persist.
package summarize

import (
	"context"
	"fmt"
	"strings"

	"github.com/captrail/captrail/internal/observe"
	"github.com/captrail/captrail/pkg/provider/llm"
	"github.com/captrail/captrail/pkg/transcript"
)

const (
	// summarizeTemperature keeps summaries factual rather than creative.
	summarizeTemperature = 0.3

	// defaultMaxTokens bounds one summary completion.
	defaultMaxTokens = 1000
)

// chunkSystemPrompt is the system prompt for summarizing one transcript
// segment.
const chunkSystemPrompt = `You are a helpful assistant that creates concise summaries of meeting transcript segments.

Your task:
1. Create a clear, concise summary of the main points
2. Keep the summary in the same language as the transcript
3. Preserve key information, names, dates, decisions, and action items
4. Use bullet points for multiple distinct topics
5. Be concise but don't lose important details

Format your response as a clean summary without any preamble like "Here's a summary:" - just provide the summary directly.`

// combineSystemPrompt is the system prompt for merging numbered part
// summaries into one meeting summary.
const combineSystemPrompt = `You are a helpful assistant that merges numbered partial summaries of one meeting into a single coherent summary.

Your task:
1. Merge the parts into one summary covering the whole meeting in order
2. Keep the summary in the same language as the parts
3. Preserve key information, names, dates, decisions, and action items
4. Use bullet points for multiple distinct topics
5. Remove repetition between parts

Provide the merged summary directly without any preamble.`

// ChunkSummarizer summarizes transcript chunks through an LLM provider.
// Safe for concurrent use when the underlying provider is.
type ChunkSummarizer struct {
	llm       llm.Provider
	name      string
	maxTokens int
	met       *observe.Metrics
}

// Option configures a [ChunkSummarizer].
type Option func(*ChunkSummarizer)

// WithProviderName sets the provider label used in metrics. The default is
// "llm".
func WithProviderName(name string) Option {
	return func(s *ChunkSummarizer) {
		if name != "" {
			s.name = name
		}
	}
}

// WithMaxTokens caps completion length per summary call. Values <= 0 keep
// the default.
func WithMaxTokens(n int) Option {
	return func(s *ChunkSummarizer) {
		if n > 0 {
			s.maxTokens = n
		}
	}
}

// NewChunkSummarizer creates a summarizer backed by provider.
func NewChunkSummarizer(provider llm.Provider, opts ...Option) *ChunkSummarizer {
	s := &ChunkSummarizer{
		llm:       provider,
		name:      "llm",
		maxTokens: defaultMaxTokens,
		met:       observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SummarizeChunk summarizes one numbered transcript segment. The title gives
// the model meeting context; it may be empty.
func (s *ChunkSummarizer) SummarizeChunk(ctx context.Context, chunkNumber int, text, title string) (string, error) {
	ctx, span := observe.StartSpan(ctx, "summarize.chunk")
	defer span.End()

	meeting := "the meeting"
	if title != "" {
		meeting = fmt.Sprintf("the meeting %q", title)
	}
	prompt := fmt.Sprintf(`Please summarize part %d of %s from the following live-caption transcript:

---
%s
---

Provide a concise summary.`, chunkNumber, meeting, text)

	content, err := s.complete(ctx, chunkSystemPrompt, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: chunk %d: %w", chunkNumber, err)
	}
	return content, nil
}

// FinalSummary merges the chunk summaries into one meeting summary. With no
// chunks it returns the empty string; with exactly one it returns that
// chunk's summary without a model call. When the merge call fails, the
// returned string still holds the concatenated part summaries so callers can
// persist something useful alongside the error.
func (s *ChunkSummarizer) FinalSummary(ctx context.Context, title string, chunks []transcript.Chunk) (string, error) {
	switch len(chunks) {
	case 0:
		return "", nil
	case 1:
		return chunks[0].Summary, nil
	}

	ctx, span := observe.StartSpan(ctx, "summarize.final")
	defer span.End()

	var sb strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&sb, "Part %d:\n%s\n\n", c.Number, c.Summary)
	}
	parts := sb.String()

	meeting := "a meeting"
	if title != "" {
		meeting = fmt.Sprintf("the meeting %q", title)
	}
	prompt := fmt.Sprintf(`Please merge the following numbered partial summaries of %s into one summary:

---
%s---

Provide the merged summary.`, meeting, parts)

	content, err := s.complete(ctx, combineSystemPrompt, prompt)
	if err != nil {
		return JoinChunkSummaries(chunks), fmt.Errorf("summarize: final: %w", err)
	}
	return content, nil
}

// complete runs one provider call and records request metrics.
func (s *ChunkSummarizer) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: user},
		},
		Temperature: summarizeTemperature,
		MaxTokens:   s.maxTokens,
	})
	if err != nil {
		s.met.RecordProviderRequest(ctx, s.name, "llm", "error")
		s.met.RecordProviderError(ctx, s.name, "llm")
		return "", err
	}
	s.met.RecordProviderRequest(ctx, s.name, "llm", "ok")
	if resp == nil {
		return "", nil
	}
	return strings.TrimSpace(resp.Content), nil
}

// JoinChunkSummaries concatenates chunk summaries with part headers. Used as
// the degraded final summary when the merge call is unavailable.
func JoinChunkSummaries(chunks []transcript.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}
	if len(chunks) == 1 {
		return chunks[0].Summary
	}
	var sb strings.Builder
	for i, c := range chunks {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "**Part %d**\n\n%s", c.Number, c.Summary)
	}
	return sb.String()
}
