package assemble

import (
	"strings"
	"unicode/utf8"
)

const (
	// identityWords is how many leading normalized words anchor a pending
	// utterance's identity across re-renders.
	identityWords = 3

	// matchWords is the prefix width used when testing whether an incoming
	// fragment is an update of an existing utterance, and when deduplicating
	// finalized entries against recent history.
	matchWords = 4
)

// terminalPunct is stripped from the end of a fragment before keying.
// Caption renderers add and remove trailing punctuation between re-renders
// of the same words.
const terminalPunct = ".,!?…:;"

// normalize lowercases text, strips terminal punctuation, and collapses all
// whitespace runs to single spaces. Keys and match checks operate on the
// normalized form only; stored transcript text keeps the original rendering.
func normalize(text string) string {
	folded := strings.ToLower(strings.TrimSpace(text))
	folded = strings.TrimRight(folded, terminalPunct)
	return strings.Join(strings.Fields(folded), " ")
}

// leadingWords returns the first n words of normalized text joined by single
// spaces. Shorter texts return all their words.
func leadingWords(normalized string, n int) string {
	fields := strings.Fields(normalized)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}

// updateMatch reports whether two normalized texts describe the same
// in-progress utterance: they share the same leading prefix of matchWords
// words, or one is a prefix of the other. Short acknowledgements repeated by
// the same speaker can satisfy this and merge; that trade-off favors
// suppressing re-renders over perfect attribution.
func updateMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if leadingWords(a, matchWords) == leadingWords(b, matchWords) {
		return true
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// runeLen is the fragment length measure used by all thresholds.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
