package summarize

import (
	"fmt"
	"strings"
	"time"

	"github.com/captrail/captrail/pkg/transcript"
)

// NoteTitle builds the display title for a session note. The start time is
// rendered minute-precise.
func NoteTitle(title string, startedAt time.Time) string {
	if title == "" {
		title = "Meeting"
	}
	return fmt.Sprintf("🎥 %s - %s", title, startedAt.Format("2006-01-02 15:04"))
}

// NoteBody renders the markdown body of a session note: the summary followed
// by the full transcript as a block quote. An empty summary still produces
// the section, with a placeholder line.
func NoteBody(summary string, entries []transcript.Entry) string {
	if summary == "" {
		summary = "_No summary was generated._"
	}

	text := transcript.Render(entries)
	quoted := "> " + strings.ReplaceAll(text, "\n", "\n> ")

	return fmt.Sprintf(`## Summary

%s

---

## Full Transcription

%s
`, summary, quoted)
}
