// Package noise decides whether a raw caption fragment is genuine speech or
// UI chrome leaked into the caption container (menu labels, device names,
// language lists, meeting controls). It is a pure classifier: no side effects,
// no state mutation during checks.
//
// The pattern set is data, not code. Deployments localize it per meeting
// platform and UI language through configuration; the built-in defaults cover
// the Russian and English chrome of common video-call UIs.
package noise

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	// minLen is the shortest fragment worth considering. Single characters
	// are rendering artifacts.
	minLen = 2

	// maxLen is the longest plausible live caption. Fragments beyond this are
	// menu dumps or accidental page-text captures.
	maxLen = 500

	// maxNewlines bounds line breaks inside one fragment. Captions render as
	// one or two lines; anything taller is a list or menu.
	maxNewlines = 5
)

// Kind selects how a pattern is matched against a fragment.
type Kind string

const (
	// KindExact matches when the case-folded, trimmed fragment equals the
	// pattern. Used for control labels ("Turn on microphone").
	KindExact Kind = "exact"

	// KindSubstring matches when the case-folded fragment contains the
	// pattern. Used for device-name prefixes ("Default - ").
	KindSubstring Kind = "substring"

	// KindRegexp matches when the compiled pattern matches the fragment.
	KindRegexp Kind = "regexp"
)

// IsValid reports whether k is a known pattern kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindExact, KindSubstring, KindRegexp:
		return true
	}
	return false
}

// Pattern is one configured chrome matcher.
type Pattern struct {
	Kind  Kind
	Value string
}

// Reason explains why a fragment was rejected. The empty reason means the
// fragment is a genuine caption.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonTooShort  Reason = "too_short"
	ReasonTooLong   Reason = "too_long"
	ReasonMultiline Reason = "multiline"
	ReasonChrome    Reason = "chrome"
)

// compiledPattern is a Pattern prepared for matching. Exact and substring
// values are pre-folded; regexps are compiled once.
type compiledPattern struct {
	kind  Kind
	value string
	re    *regexp.Regexp
}

// Classifier checks caption fragments against the size rules and the chrome
// pattern set. Safe for concurrent use; [Classifier.Reload] may swap the
// pattern set while checks are running.
type Classifier struct {
	mu       sync.RWMutex
	patterns []compiledPattern
}

// New creates a Classifier from the given patterns. An empty slice is valid
// and yields a classifier that only applies the size rules.
func New(patterns []Pattern) (*Classifier, error) {
	compiled, err := compile(patterns)
	if err != nil {
		return nil, err
	}
	return &Classifier{patterns: compiled}, nil
}

// Reload replaces the pattern set. If any pattern fails to compile the old
// set stays active and the error describes the offending entry.
func (c *Classifier) Reload(patterns []Pattern) error {
	compiled, err := compile(patterns)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.patterns = compiled
	c.mu.Unlock()
	return nil
}

// IsCaption reports whether text looks like genuine caption speech.
func (c *Classifier) IsCaption(text string) bool {
	return c.Check(text) == ReasonNone
}

// Check classifies text and returns the rejection reason, or [ReasonNone] for
// a genuine caption. Size rules run before pattern rules so oversized menu
// dumps never reach the regexps.
func (c *Classifier) Check(text string) Reason {
	trimmed := strings.TrimSpace(text)
	// Length rules count runes, not bytes, so Cyrillic captions are not
	// penalized for their encoding width.
	runes := utf8.RuneCountInString(trimmed)
	if runes < minLen {
		return ReasonTooShort
	}
	if runes > maxLen {
		return ReasonTooLong
	}
	if strings.Count(trimmed, "\n") > maxNewlines {
		return ReasonMultiline
	}

	folded := strings.ToLower(trimmed)

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.patterns {
		switch p.kind {
		case KindExact:
			if folded == p.value {
				return ReasonChrome
			}
		case KindSubstring:
			if strings.Contains(folded, p.value) {
				return ReasonChrome
			}
		case KindRegexp:
			if p.re.MatchString(trimmed) {
				return ReasonChrome
			}
		}
	}
	return ReasonNone
}

func compile(patterns []Pattern) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(patterns))
	for i, p := range patterns {
		if !p.Kind.IsValid() {
			return nil, fmt.Errorf("noise: pattern %d: unknown kind %q", i, p.Kind)
		}
		if p.Value == "" {
			return nil, fmt.Errorf("noise: pattern %d: empty value", i)
		}
		cp := compiledPattern{kind: p.Kind}
		switch p.Kind {
		case KindRegexp:
			re, err := regexp.Compile(p.Value)
			if err != nil {
				return nil, fmt.Errorf("noise: pattern %d: %w", i, err)
			}
			cp.re = re
		default:
			cp.value = strings.ToLower(p.Value)
		}
		compiled = append(compiled, cp)
	}
	return compiled, nil
}

// DefaultPatterns returns the built-in chrome pattern set for Russian and
// English video-call UIs. Deployments targeting other languages replace or
// extend this list via configuration.
func DefaultPatterns() []Pattern {
	exact := []string{
		// English meeting controls and settings labels.
		"turn on microphone",
		"turn off microphone",
		"turn on camera",
		"turn off camera",
		"turn on captions",
		"turn off captions",
		"share screen",
		"stop sharing",
		"raise hand",
		"lower hand",
		"leave call",
		"settings",
		"microphone",
		"speakers",
		"camera",
		"captions",
		"live captions",
		"chat",
		"participants",
		"activities",
		"more options",
		"caption language",
		"meeting language",

		// Russian equivalents.
		"включить микрофон",
		"выключить микрофон",
		"включить камеру",
		"выключить камеру",
		"включить субтитры",
		"выключить субтитры",
		"демонстрация экрана",
		"остановить показ",
		"поднять руку",
		"опустить руку",
		"покинуть звонок",
		"настройки",
		"микрофон",
		"динамики",
		"камера",
		"субтитры",
		"чат",
		"участники",
		"другие действия",
		"язык субтитров",

		// Language-list entries seen inside the caption settings menu.
		"english",
		"español",
		"français",
		"deutsch",
		"português",
		"русский",
		"українська",
		"中文",
		"日本語",
	}
	substring := []string{
		// Device names as rendered by browser audio pickers.
		"default - ",
		"communications - ",
		"по умолчанию - ",
	}
	regex := []string{
		// Font-size / zoom pickers ("50%", "200%").
		`^\d{1,3}\s?%$`,
		// Keyboard-shortcut hints ("Ctrl+Shift+C", "⌘+D").
		`(?i)^(ctrl|cmd|alt|shift|⌘|⌃)\s?\+`,
	}

	patterns := make([]Pattern, 0, len(exact)+len(substring)+len(regex))
	for _, v := range exact {
		patterns = append(patterns, Pattern{Kind: KindExact, Value: v})
	}
	for _, v := range substring {
		patterns = append(patterns, Pattern{Kind: KindSubstring, Value: v})
	}
	for _, v := range regex {
		patterns = append(patterns, Pattern{Kind: KindRegexp, Value: v})
	}
	return patterns
}
