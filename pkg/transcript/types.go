// Package transcript defines the domain types shared between the caption
// assembler, the summarization path, and the archive stores: finalized
// utterances, summary chunks, and the session record handed off when a
// recording stops.
package transcript

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// MinMeaningfulRunes is the shortest rendered transcript that counts as a
// real capture. Sessions below it finish as [ErrNothingCaptured] and are
// never handed to persistence sinks.
const MinMeaningfulRunes = 20

// ErrNothingCaptured reports that a stopped session yielded no usable
// transcript, most often because captions were disabled for the whole call.
var ErrNothingCaptured = errors.New("transcript: nothing captured")

// Entry is one finalized utterance in a session transcript.
type Entry struct {
	// Timestamp is when the utterance was finalized, or last amended.
	Timestamp time.Time

	// Speaker is the caption's attribution label. Empty when the UI
	// rendered the caption without one.
	Speaker string

	// Text is the longest rendering of the utterance that was observed.
	Text string
}

// Chunk is one time-boxed slice of transcript text that was summarized
// during the session.
type Chunk struct {
	// Number starts at 1 and increases by one per produced chunk,
	// regardless of skipped scheduler cycles.
	Number int

	// Summary is the summarizer's output for the chunk's source text.
	Summary string

	// SourceChars is the rune count of the joined source text.
	SourceChars int

	// StartTime and EndTime span the source entries.
	StartTime time.Time
	EndTime   time.Time
}

// SessionRecord is the complete payload handed to persistence sinks exactly
// once when a recording stops.
type SessionRecord struct {
	ID           string
	Title        string
	StartedAt    time.Time
	Duration     time.Duration
	Entries      []Entry
	Text         string // rendered via [Render]
	Chunks       []Chunk
	FinalSummary string
}

// Render joins entries into plain transcript text. A speaker tag line is
// emitted only when the speaker differs from the immediately preceding
// entry; unattributed entries never emit a tag.
func Render(entries []Entry) string {
	var b strings.Builder
	prev := ""
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		if e.Speaker != "" && e.Speaker != prev {
			b.WriteString(e.Speaker)
			b.WriteString(":\n")
		}
		b.WriteString(e.Text)
		prev = e.Speaker
	}
	return b.String()
}

// JoinText concatenates entry texts with single spaces, no speaker tags.
// This is the form measured against the chunk threshold and submitted for
// summarization.
func JoinText(entries []Entry) string {
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, " ")
}

// TextLen is the total rune count of all entry texts.
func TextLen(entries []Entry) int {
	n := 0
	for _, e := range entries {
		n += utf8.RuneCountInString(e.Text)
	}
	return n
}
