package assemble

import (
	"testing"
	"time"
)

var trackerBase = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

func frag(speaker, text string) Fragment {
	return Fragment{Speaker: speaker, Text: text, ObservedAt: trackerBase}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "Hello World", "hello world"},
		{"strips terminal punctuation", "so that's settled.", "so that's settled"},
		{"strips stacked punctuation", "really?!", "really"},
		{"collapses whitespace", "one   two\t three", "one two three"},
		{"trims", "  padded  ", "padded"},
		{"keeps inner punctuation", "well, yes", "well, yes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalize(tt.in); got != tt.want {
				t.Errorf("normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLeadingWords(t *testing.T) {
	if got := leadingWords("one two three four five", 3); got != "one two three" {
		t.Errorf("leadingWords = %q, want %q", got, "one two three")
	}
	if got := leadingWords("one two", 4); got != "one two" {
		t.Errorf("leadingWords short input = %q, want %q", got, "one two")
	}
	if got := leadingWords("", 3); got != "" {
		t.Errorf("leadingWords empty = %q, want empty", got)
	}
}

func TestUpdateMatch(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"identical", "hello world out there", "hello world out there", true},
		{"shared leading four", "we should ship it tuesday", "we should ship it on wednesday", true},
		{"one is prefix", "hello wor", "hello world", true},
		{"disjoint", "hello there", "completely different sentence", false},
		{"empty never matches", "", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := updateMatch(tt.a, tt.b); got != tt.want {
				t.Errorf("updateMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestTracker_GrowthKeepsLongest(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{frag("Alice", "Hello wor")}, trackerBase)
	_ = tr.Ingest([]Fragment{frag("Alice", "Hello world, how are")}, trackerBase.Add(time.Second))
	_ = tr.Ingest([]Fragment{frag("Alice", "Hello world, how are you all")}, trackerBase.Add(2*time.Second))

	if got := tr.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}

	// Caption disappears: the longest rendering finalizes.
	out := tr.Ingest(nil, trackerBase.Add(3*time.Second))
	if len(out) != 1 {
		t.Fatalf("finalized %d utterances, want 1", len(out))
	}
	if out[0].Text != "Hello world, how are you all" {
		t.Errorf("finalized text = %q, want longest rendering", out[0].Text)
	}
	if out[0].Speaker != "Alice" {
		t.Errorf("finalized speaker = %q, want Alice", out[0].Speaker)
	}
}

func TestTracker_ShrunkRerenderRefreshesOnly(t *testing.T) {
	tr := NewTracker(WithFinalizeTimeout(5 * time.Second))

	_ = tr.Ingest([]Fragment{frag("Alice", "Hello world, how are you")}, trackerBase)
	// Renderer briefly shows a shorter cut of the same utterance.
	_ = tr.Ingest([]Fragment{frag("Alice", "Hello world, how")}, trackerBase.Add(4*time.Second))

	// The refresh must have reset the idle clock: past the original timeout
	// but within it counting from the re-render, nothing finalizes.
	out := tr.TimeoutSweep(trackerBase.Add(7 * time.Second))
	if len(out) != 0 {
		t.Fatalf("TimeoutSweep finalized %d, want 0 (refresh should reset idle time)", len(out))
	}

	out = tr.Ingest(nil, trackerBase.Add(8*time.Second))
	if len(out) != 1 || out[0].Text != "Hello world, how are you" {
		t.Fatalf("finalized = %+v, want the longest rendering", out)
	}
}

func TestTracker_DisjointUtterancesOpenSeparately(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{frag("Alice", "Hello there everyone here")}, trackerBase)
	// The UI renders both blocks at once: the first utterance is still on
	// screen while the second appears below it.
	_ = tr.Ingest([]Fragment{
		frag("Alice", "Hello there everyone here"),
		frag("Alice", "Completely different sentence now"),
	}, trackerBase.Add(time.Second))

	if got := tr.PendingCount(); got != 2 {
		t.Errorf("PendingCount = %d, want 2 (disjoint utterances must not merge)", got)
	}
}

func TestTracker_SameKeyDifferentSpeakers(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{
		frag("Alice", "I think we should wait"),
		frag("Bob", "I think we should go now"),
	}, trackerBase)

	if got := tr.PendingCount(); got != 2 {
		t.Errorf("PendingCount = %d, want 2 (speakers tracked independently)", got)
	}
}

func TestTracker_DisappearanceBelowMinimumKeepsPending(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{frag("Alice", "Hi all")}, trackerBase)
	out := tr.Ingest(nil, trackerBase.Add(time.Second))
	if len(out) != 0 {
		t.Fatalf("finalized %d short utterances, want 0", len(out))
	}
	if got := tr.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1 (short entry stays pending)", got)
	}

	// The short seed grows when the caption reappears.
	_ = tr.Ingest([]Fragment{frag("Alice", "Hi all, sorry I'm late")}, trackerBase.Add(2*time.Second))
	out = tr.Ingest(nil, trackerBase.Add(3*time.Second))
	if len(out) != 1 || out[0].Text != "Hi all, sorry I'm late" {
		t.Fatalf("finalized = %+v, want grown utterance", out)
	}
}

func TestTracker_TimeoutSweep(t *testing.T) {
	tr := NewTracker(WithFinalizeTimeout(2 * time.Second))

	_ = tr.Ingest([]Fragment{frag("Alice", "the last thing I wanted to say")}, trackerBase)

	if out := tr.TimeoutSweep(trackerBase.Add(time.Second)); len(out) != 0 {
		t.Fatalf("sweep before timeout finalized %d, want 0", len(out))
	}

	out := tr.TimeoutSweep(trackerBase.Add(3 * time.Second))
	if len(out) != 1 {
		t.Fatalf("sweep after timeout finalized %d, want 1", len(out))
	}
	if out[0].Text != "the last thing I wanted to say" {
		t.Errorf("finalized text = %q", out[0].Text)
	}
	if got := tr.PendingCount(); got != 0 {
		t.Errorf("PendingCount after sweep = %d, want 0", got)
	}
}

func TestTracker_InterleavedSpeakers(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{
		frag("Alice", "did you get my message yesterday"),
	}, trackerBase)
	_ = tr.Ingest([]Fragment{
		frag("Alice", "did you get my message yesterday"),
		frag("Bob", "yes, I replied this morning"),
	}, trackerBase.Add(time.Second))

	// Alice's block scrolls off while Bob's stays rendered.
	out := tr.Ingest([]Fragment{
		frag("Bob", "yes, I replied this morning"),
	}, trackerBase.Add(2*time.Second))
	if len(out) != 1 || out[0].Speaker != "Alice" {
		t.Fatalf("finalized = %+v, want only Alice's utterance", out)
	}
	if got := tr.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1 (Bob still pending)", got)
	}

	out = tr.Ingest(nil, trackerBase.Add(3*time.Second))
	if len(out) != 1 || out[0].Speaker != "Bob" {
		t.Fatalf("finalized = %+v, want Bob's utterance", out)
	}
}

func TestTracker_FlushOrdersAndFilters(t *testing.T) {
	tr := NewTracker()

	_ = tr.Ingest([]Fragment{
		frag("Zoe", "we never removed this caption block"),
		frag("Alice", "mine neither, still on screen"),
		frag("Bob", "short"),
	}, trackerBase)

	out := tr.Flush(trackerBase.Add(time.Second))
	if len(out) != 2 {
		t.Fatalf("flushed %d, want 2 (short entry discarded)", len(out))
	}
	if out[0].Speaker != "Alice" || out[1].Speaker != "Zoe" {
		t.Errorf("flush order = [%s, %s], want [Alice, Zoe]", out[0].Speaker, out[1].Speaker)
	}
	if got := tr.PendingCount(); got != 0 {
		t.Errorf("PendingCount after flush = %d, want 0", got)
	}
}

func TestTracker_EmptyAndWhitespaceFragmentsIgnored(t *testing.T) {
	tr := NewTracker()

	out := tr.Ingest([]Fragment{frag("Alice", "   "), frag("Alice", "...")}, trackerBase)
	if len(out) != 0 || tr.PendingCount() != 0 {
		t.Errorf("whitespace/punctuation-only fragments opened entries: pending=%d", tr.PendingCount())
	}
}
