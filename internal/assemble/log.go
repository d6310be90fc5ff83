package assemble

import (
	"strings"
	"sync"
	"time"

	"github.com/captrail/captrail/pkg/transcript"
)

const (
	// lookback is how many recent entries are scanned for duplicates and
	// amendments. Finalization re-orderings only ever involve neighbours, so
	// a bounded window keeps appends O(1).
	lookback = 10

	// nearIdenticalRuneDiff and nearIdenticalProbe define the near-duplicate
	// check: two texts whose lengths differ by less than the former and
	// where one normalized form contains the other's leading probe are the
	// same utterance finalized twice with slightly shifted wording.
	nearIdenticalRuneDiff = 10
	nearIdenticalProbe    = 30
)

// Outcome reports what [Log.Append] did with a finalize candidate.
type Outcome string

const (
	OutcomeAppended Outcome = "appended"
	OutcomeAmended  Outcome = "amended"
	OutcomeDropped  Outcome = "dropped"
)

// Log is the ordered, append-mostly transcript of a session. Only entries
// inside the look-back window may be amended in place. Safe for concurrent
// use: the session tick loop appends while the chunk scheduler reads.
type Log struct {
	mu      sync.Mutex
	entries []transcript.Entry
}

// NewLog creates an empty transcript log.
func NewLog() *Log {
	return &Log{}
}

// Append folds a finalize candidate into the transcript. Within the
// look-back window, a candidate matching an entry's speaker and leading
// words either amends that entry (candidate longer) or is dropped
// (duplicate). Near-identical texts whose leading words shifted are also
// dropped. Everything else appends. Repeated finalization of the same
// underlying speech therefore never yields more than one entry, and the
// entry keeps the most complete wording.
func (l *Log) Append(speaker, text string, now time.Time) Outcome {
	norm := normalize(text)
	key := leadingWords(norm, matchWords)

	l.mu.Lock()
	defer l.mu.Unlock()

	start := len(l.entries) - lookback
	if start < 0 {
		start = 0
	}
	for i := len(l.entries) - 1; i >= start; i-- {
		e := &l.entries[i]
		if e.Speaker != speaker {
			continue
		}
		eNorm := normalize(e.Text)
		if leadingWords(eNorm, matchWords) == key {
			if runeLen(text) > runeLen(e.Text) {
				e.Text = text
				e.Timestamp = now
				return OutcomeAmended
			}
			return OutcomeDropped
		}
		if nearIdentical(norm, eNorm) {
			return OutcomeDropped
		}
	}

	l.entries = append(l.entries, transcript.Entry{Timestamp: now, Speaker: speaker, Text: text})
	return OutcomeAppended
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Since returns a copy of the entries at index start and later. Returns an
// empty (non-nil) slice when start is at or past the end.
func (l *Log) Since(start int) []transcript.Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if start < 0 {
		start = 0
	}
	if start >= len(l.entries) {
		return []transcript.Entry{}
	}
	out := make([]transcript.Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Entries returns a copy of the full transcript.
func (l *Log) Entries() []transcript.Entry {
	return l.Since(0)
}

// TextLen returns the total rune count of all entry texts. The session uses
// it for the "nothing captured" check at stop.
func (l *Log) TextLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return transcript.TextLen(l.entries)
}

// nearIdentical reports whether two normalized texts are the same utterance
// finalized twice: lengths within nearIdenticalRuneDiff and one containing
// the other's leading probe.
func nearIdentical(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	diff := runeLen(a) - runeLen(b)
	if diff < 0 {
		diff = -diff
	}
	if diff >= nearIdenticalRuneDiff {
		return false
	}
	return strings.Contains(a, leadingRunes(b, nearIdenticalProbe)) ||
		strings.Contains(b, leadingRunes(a, nearIdenticalProbe))
}

// leadingRunes returns the first n runes of s.
func leadingRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
