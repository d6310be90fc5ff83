package assemble

import (
	"sort"
	"time"
)

const (
	// defaultFinalizeTimeout is how long a pending utterance may sit without
	// updates before the timeout trigger finalizes it. Disappearance from the
	// rendered caption set is the primary trigger; the timeout is the
	// backstop for captions the UI never removes, typically the last speaker
	// before silence.
	defaultFinalizeTimeout = 6 * time.Second

	// minFinalizeRunes is the shortest utterance worth finalizing. Anything
	// shorter is a render artifact or a fragment that never grew into
	// speech.
	minFinalizeRunes = 10
)

// Fragment is one rendered caption block as observed at a point in time.
// Speaker may be empty when the UI renders no attribution.
type Fragment struct {
	Speaker    string
	Text       string
	ObservedAt time.Time
}

// Finalized is an utterance the tracker has decided is complete.
type Finalized struct {
	Speaker string
	Text    string
	At      time.Time
}

// pending is one in-progress utterance. Entries keep insertion order so
// ambiguous update matches resolve deterministically to the oldest entry.
type pending struct {
	speaker    string
	text       string // longest raw rendering seen
	norm       string // normalized form of text
	key        string // leading-words identity key of norm
	lastUpdate time.Time
}

// Tracker merges successive noisy snapshots of in-progress utterances and
// decides when each one is complete. One Tracker serves one recording
// session; it is not safe for concurrent use and relies on the session's
// serialized tick loop.
type Tracker struct {
	timeout time.Duration
	entries []*pending
}

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithFinalizeTimeout overrides the idle timeout after which an untouched
// pending utterance is finalized. Values <= 0 keep the default.
func WithFinalizeTimeout(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{timeout: defaultFinalizeTimeout}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PendingCount returns the number of utterances currently tracked.
func (t *Tracker) PendingCount() int {
	return len(t.entries)
}

// Ingest processes one tick's worth of observed fragments and returns the
// utterances finalized by this tick, disappearance-triggered first, then
// timeout-triggered, each in insertion order.
//
// An empty fragments slice is the "no captions rendered" case: every pending
// utterance long enough to matter finalizes immediately.
func (t *Tracker) Ingest(fragments []Fragment, now time.Time) []Finalized {
	type incoming struct {
		frag Fragment
		norm string
		key  string
	}

	current := make([]incoming, 0, len(fragments))
	currentKeys := make(map[string]struct{}, len(fragments))
	for _, f := range fragments {
		norm := normalize(f.Text)
		if norm == "" {
			continue
		}
		key := leadingWords(norm, identityWords)
		current = append(current, incoming{frag: f, norm: norm, key: key})
		currentKeys[key] = struct{}{}
	}

	var out []Finalized

	// Primary trigger: the caption block scrolled away or was removed. Short
	// entries are kept pending; they may be the seed of a caption that
	// flickers back into view and grows.
	kept := t.entries[:0]
	for _, p := range t.entries {
		if _, visible := currentKeys[p.key]; !visible && runeLen(p.text) >= minFinalizeRunes {
			out = append(out, Finalized{Speaker: p.speaker, Text: p.text, At: now})
			continue
		}
		kept = append(kept, p)
	}
	t.entries = kept

	// Update pass: attach each fragment to the utterance it re-renders, or
	// open a new one.
	touched := make(map[*pending]struct{}, len(current))
	for _, in := range current {
		p := t.match(in.frag.Speaker, in.norm)
		if p == nil {
			p = &pending{
				speaker:    in.frag.Speaker,
				text:       in.frag.Text,
				norm:       in.norm,
				key:        in.key,
				lastUpdate: now,
			}
			t.entries = append(t.entries, p)
			touched[p] = struct{}{}
			continue
		}
		if runeLen(in.frag.Text) > runeLen(p.text) {
			p.text = in.frag.Text
			p.norm = in.norm
			p.key = in.key
		}
		p.lastUpdate = now
		touched[p] = struct{}{}
	}

	// Secondary trigger: nothing re-rendered this utterance for too long.
	out = append(out, t.timeoutPass(now, touched)...)

	return out
}

// TimeoutSweep runs only the timeout trigger. The session loop calls it on
// its sweep cadence so utterances still finalize when the observer goes
// quiet because the rendered captions stopped changing.
func (t *Tracker) TimeoutSweep(now time.Time) []Finalized {
	return t.timeoutPass(now, nil)
}

// timeoutPass finalizes entries idle past the timeout, skipping any in
// touched.
func (t *Tracker) timeoutPass(now time.Time, touched map[*pending]struct{}) []Finalized {
	var out []Finalized
	kept := t.entries[:0]
	for _, p := range t.entries {
		_, fresh := touched[p]
		if !fresh &&
			now.Sub(p.lastUpdate) > t.timeout &&
			runeLen(p.text) >= minFinalizeRunes {
			out = append(out, Finalized{Speaker: p.speaker, Text: p.text, At: now})
			continue
		}
		kept = append(kept, p)
	}
	t.entries = kept
	return out
}

// match finds the oldest pending utterance from speaker that the normalized
// fragment text updates. Returns nil when the fragment starts a new
// utterance.
func (t *Tracker) match(speaker, norm string) *pending {
	for _, p := range t.entries {
		if p.speaker == speaker && updateMatch(norm, p.norm) {
			return p
		}
	}
	return nil
}

// Flush finalizes every remaining pending utterance that meets the minimum
// length, in ascending (speaker, key) order, and empties the tracker. Called
// at recording stop so trailing speech is not lost; entries below the
// minimum are discarded.
func (t *Tracker) Flush(now time.Time) []Finalized {
	remaining := t.entries
	t.entries = nil

	sort.Slice(remaining, func(i, j int) bool {
		if remaining[i].speaker != remaining[j].speaker {
			return remaining[i].speaker < remaining[j].speaker
		}
		return remaining[i].key < remaining[j].key
	})

	var out []Finalized
	for _, p := range remaining {
		if runeLen(p.text) >= minFinalizeRunes {
			out = append(out, Finalized{Speaker: p.speaker, Text: p.text, At: now})
		}
	}
	return out
}
