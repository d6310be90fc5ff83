package summarize_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/captrail/captrail/internal/summarize"
	"github.com/captrail/captrail/pkg/provider/llm"
	"github.com/captrail/captrail/pkg/provider/llm/mock"
	"github.com/captrail/captrail/pkg/transcript"
)

func TestSummarizeChunk_RequestShape(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  Plans were agreed.  "},
	}
	s := summarize.NewChunkSummarizer(m, summarize.WithProviderName("deepseek"))

	got, err := s.SummarizeChunk(t.Context(), 3, "we talked about the launch", "Weekly Sync")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Plans were agreed." {
		t.Errorf("summary should be trimmed, got %q", got)
	}

	calls := m.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.3 {
		t.Errorf("temperature: got %.2f, want 0.3", req.Temperature)
	}
	if req.MaxTokens != 1000 {
		t.Errorf("max tokens: got %d, want 1000", req.MaxTokens)
	}
	if req.SystemPrompt == "" {
		t.Error("expected a system prompt")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Fatalf("expected one user message, got %+v", req.Messages)
	}
	body := req.Messages[0].Content
	for _, want := range []string{"part 3", "Weekly Sync", "we talked about the launch"} {
		if !strings.Contains(body, want) {
			t.Errorf("prompt should contain %q, got:\n%s", want, body)
		}
	}
}

func TestSummarizeChunk_EmptyTitle(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "ok"},
	}
	s := summarize.NewChunkSummarizer(m)

	if _, err := s.SummarizeChunk(t.Context(), 1, "text", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := m.Calls()[0].Req.Messages[0].Content
	if strings.Contains(body, `""`) {
		t.Errorf("empty title should not leave empty quotes in the prompt:\n%s", body)
	}
}

func TestSummarizeChunk_Error(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("rate limited")
	m := &mock.Provider{CompleteErr: wantErr}
	s := summarize.NewChunkSummarizer(m)

	_, err := s.SummarizeChunk(t.Context(), 2, "text", "title")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped provider error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "chunk 2") {
		t.Errorf("error should name the chunk, got: %v", err)
	}
}

func TestFinalSummary_NoChunks(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{}
	s := summarize.NewChunkSummarizer(m)

	got, err := s.FinalSummary(t.Context(), "title", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty summary, got %q", got)
	}
	if len(m.Calls()) != 0 {
		t.Errorf("expected no provider calls, got %d", len(m.Calls()))
	}
}

func TestFinalSummary_SingleChunkSkipsModel(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{}
	s := summarize.NewChunkSummarizer(m)

	chunks := []transcript.Chunk{{Number: 1, Summary: "only part"}}
	got, err := s.FinalSummary(t.Context(), "title", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "only part" {
		t.Errorf("got %q, want the single chunk summary", got)
	}
	if len(m.Calls()) != 0 {
		t.Errorf("expected no provider calls, got %d", len(m.Calls()))
	}
}

func TestFinalSummary_MergesParts(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "merged"},
	}
	s := summarize.NewChunkSummarizer(m)

	chunks := []transcript.Chunk{
		{Number: 1, Summary: "intro discussed"},
		{Number: 2, Summary: "decisions made"},
	}
	got, err := s.FinalSummary(t.Context(), "Planning", chunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "merged" {
		t.Errorf("got %q, want %q", got, "merged")
	}

	calls := m.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 provider call, got %d", len(calls))
	}
	body := calls[0].Req.Messages[0].Content
	for _, want := range []string{"Part 1", "intro discussed", "Part 2", "decisions made", "Planning"} {
		if !strings.Contains(body, want) {
			t.Errorf("merge prompt should contain %q, got:\n%s", want, body)
		}
	}
}

func TestFinalSummary_ErrorFallsBackToJoined(t *testing.T) {
	t.Parallel()
	m := &mock.Provider{CompleteErr: errors.New("unavailable")}
	s := summarize.NewChunkSummarizer(m)

	chunks := []transcript.Chunk{
		{Number: 1, Summary: "first"},
		{Number: 2, Summary: "second"},
	}
	got, err := s.FinalSummary(t.Context(), "title", chunks)
	if err == nil {
		t.Fatal("expected error from failed merge call")
	}
	for _, want := range []string{"first", "second"} {
		if !strings.Contains(got, want) {
			t.Errorf("fallback text should contain %q, got %q", want, got)
		}
	}
}

func TestJoinChunkSummaries(t *testing.T) {
	t.Parallel()
	if got := summarize.JoinChunkSummaries(nil); got != "" {
		t.Errorf("nil chunks: got %q, want empty", got)
	}
	one := []transcript.Chunk{{Number: 1, Summary: "solo"}}
	if got := summarize.JoinChunkSummaries(one); got != "solo" {
		t.Errorf("single chunk: got %q, want %q", got, "solo")
	}
	two := []transcript.Chunk{
		{Number: 1, Summary: "a"},
		{Number: 2, Summary: "b"},
	}
	got := summarize.JoinChunkSummaries(two)
	if !strings.Contains(got, "Part 1") || !strings.Contains(got, "Part 2") {
		t.Errorf("joined text should carry part headers, got %q", got)
	}
}

func TestNoteTitle(t *testing.T) {
	t.Parallel()
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	got := summarize.NoteTitle("Weekly Sync", at)
	want := "🎥 Weekly Sync - 2025-03-14 09:30"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got = summarize.NoteTitle("", at)
	if !strings.HasPrefix(got, "🎥 Meeting - ") {
		t.Errorf("empty title should fall back to a generic name, got %q", got)
	}
}

func TestNoteBody(t *testing.T) {
	t.Parallel()
	entries := []transcript.Entry{
		{Speaker: "Anna", Text: "Let's begin."},
		{Speaker: "Boris", Text: "I have the numbers."},
	}
	body := summarize.NoteBody("Key points covered.", entries)

	for _, want := range []string{
		"## Summary",
		"Key points covered.",
		"## Full Transcription",
		"> Anna:",
		"> Let's begin.",
		"> Boris:",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body should contain %q, got:\n%s", want, body)
		}
	}
}

func TestNoteBody_EmptySummary(t *testing.T) {
	t.Parallel()
	body := summarize.NoteBody("", []transcript.Entry{{Speaker: "A", Text: "hi there"}})
	if !strings.Contains(body, "_No summary was generated._") {
		t.Errorf("empty summary should render the placeholder, got:\n%s", body)
	}
}
