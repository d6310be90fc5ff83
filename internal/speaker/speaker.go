// Package speaker canonicalizes the noisy speaker labels a video-call UI
// attaches to caption blocks. The same participant appears under many
// renderings over one call: truncated ("Alexander Petro…"), decorated
// ("Alexander Petrov (Guest)"), or transliterated between Latin and
// Cyrillic. The [Unifier] maps every variant to the first clean form seen,
// so the transcript carries one label per human.
//
// Matching runs in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     each word of the cleaned label and for each known canonical label. Any
//     shared code makes the canonical label a candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the highest-similarity
//     label wins, provided it clears the phonetic threshold. With no
//     phonetic candidate (Cyrillic labels produce no Metaphone codes), a
//     pure similarity pass applies the stricter fuzzy threshold.
package speaker

import (
	"regexp"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// qualifierRe strips the parenthesized role suffixes UIs append to names:
// "(Guest)", "(You)", "(Организатор)".
var qualifierRe = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// Option is a functional option for configuring a [Unifier].
type Option func(*Unifier)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched label to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(u *Unifier) {
		u.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate exists and matching falls back to pure string
// similarity. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(u *Unifier) {
		u.fuzzyThreshold = threshold
	}
}

// Unifier maps speaker-label variants to canonical labels. One Unifier
// serves one recording session; first-seen clean forms become canonical.
// Safe for concurrent use.
type Unifier struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	mu    sync.Mutex
	canon []string          // canonical labels in first-seen order
	cache map[string]string // raw label -> canonical label
}

// New returns an empty [Unifier] configured with the supplied options.
func New(opts ...Option) *Unifier {
	u := &Unifier{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		cache:             make(map[string]string),
	}
	for _, o := range opts {
		o(u)
	}
	return u
}

// Resolve returns the canonical label for a raw UI label, registering it as
// a new canonical label when nothing known matches. Empty labels resolve to
// empty: unattributed captions stay unattributed.
//
// Truncation markers, decoration and dedupe counters all fold into the same
// canonical label. That favors one label per human over preserving the
// renderer's "Name 2" disambiguation of actual namesakes.
func (u *Unifier) Resolve(label string) string {
	raw := strings.TrimSpace(label)
	if raw == "" {
		return ""
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if canon, ok := u.cache[raw]; ok {
		return canon
	}

	cleaned := clean(raw)
	if cleaned == "" {
		// The label was pure decoration; keep it as-is rather than invent.
		u.cache[raw] = raw
		return raw
	}

	canon, ok := u.match(cleaned)
	if !ok {
		canon = cleaned
		u.canon = append(u.canon, cleaned)
	}
	u.cache[raw] = canon
	return canon
}

// Known returns the canonical labels registered so far, in first-seen order.
// Returns an empty (non-nil) slice when nothing has been resolved.
func (u *Unifier) Known() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]string, len(u.canon))
	copy(out, u.canon)
	return out
}

// clean strips UI decoration from a label: parenthesized qualifiers,
// truncation ellipses, trailing dedupe counters, and whitespace runs.
func clean(label string) string {
	s := qualifierRe.ReplaceAllString(label, "")
	s = strings.TrimSuffix(s, "…")
	s = strings.TrimSuffix(s, "...")
	fields := strings.Fields(s)
	// A trailing bare number is the renderer's namesake counter.
	if len(fields) > 1 {
		if last := fields[len(fields)-1]; isDigits(last) {
			fields = fields[:len(fields)-1]
		}
	}
	return strings.Join(fields, " ")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// match finds the known canonical label the cleaned input refers to.
// Callers hold u.mu.
func (u *Unifier) match(cleaned string) (string, bool) {
	inputLower := strings.ToLower(cleaned)
	inputTokens := strings.Fields(inputLower)
	inputCodes := codesForTokens(inputTokens)

	type candidate struct {
		label    string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, canon := range u.canon {
		canonLower := strings.ToLower(canon)
		if canonLower == inputLower {
			return canon, true
		}
		canonTokens := strings.Fields(canonLower)

		// Full names sharing a first name score deceptively high on the
		// whole string. When both sides carry a surname, the surnames must
		// agree too, or "Ivan Petrov" swallows "Ivan Sidorov".
		if len(inputTokens) > 1 && len(canonTokens) > 1 {
			lastIn := inputTokens[len(inputTokens)-1]
			lastCanon := canonTokens[len(canonTokens)-1]
			if matchr.JaroWinkler(lastIn, lastCanon, false) < u.phoneticThreshold {
				continue
			}
		}

		phoneticMatch := codesOverlap(inputCodes, codesForTokens(canonTokens))
		score := bestSimilarity(inputTokens, canonTokens, inputLower, canonLower)

		if phoneticMatch {
			if score >= u.phoneticThreshold {
				if !best.phonetic || score > best.score {
					best = candidate{label: canon, score: score, phonetic: true}
				}
			}
		} else if !best.phonetic {
			if score >= u.fuzzyThreshold && score > best.score {
				best = candidate{label: canon, score: score, phonetic: false}
			}
		}
	}

	if best.label != "" {
		return best.label, true
	}
	return "", false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// tokens. Tokens outside the Latin alphabet produce no codes and are
// excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestSimilarity computes the highest Jaro-Winkler similarity between the
// input and a canonical label across three views: the full strings, the
// space-stripped strings, and the best pairwise token score. Truncated
// labels score highest pairwise; transliteration drift scores highest on
// the full strings.
func bestSimilarity(inputTokens, canonTokens []string, inputFull, canonFull string) float64 {
	score := matchr.JaroWinkler(inputFull, canonFull, false)

	if len(inputTokens) > 1 || len(canonTokens) > 1 {
		concatIn := strings.Join(inputTokens, "")
		concatCanon := strings.Join(canonTokens, "")
		if s := matchr.JaroWinkler(concatIn, concatCanon, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, ct := range canonTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}

	return score
}
