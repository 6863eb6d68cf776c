// Package artist normalizes artist names into stable identity keys and
// scores how alike two names are. Keys are what the store and cooldown
// ledger index on, so every caller must go through Key rather than
// lowercasing ad hoc.
package artist

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

	deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Key folds a display name to the canonical identity key: diacritics
// stripped, lowercased, everything non-alphanumeric removed.
func Key(name string) string {
	return nonAlnum.ReplaceAllString(strings.ToLower(fold(name)), "")
}

// CleanRule is one ordered name-cleaning step. Rules run in sequence and
// each one must be testable on its own.
type CleanRule struct {
	Name  string
	Apply func(string) string
}

var (
	parenthetical = regexp.MustCompile(`\s*\([^)]*\)`)
	dashSuffix    = regexp.MustCompile(`(?i)\s*[-–—:]\s*.*\b(tour|live|in concert|presents|anniversary|tribute|benefit|release|showcase|takeover|jam|bash)\b.*$`)
	trailingEvent = regexp.MustCompile(`(?i)\s+(tour|live)\s*(\d{4})?$`)
	nthAnnual     = regexp.MustCompile(`(?i)^\d+(st|nd|rd|th)\s+annual\s+`)
	leadingThe    = regexp.MustCompile(`(?i)^the\s+`)
)

// CleanRules is the ordered list applied by CleanForSearch. Order matters:
// parentheticals go first so suffix rules see the bare title.
var CleanRules = []CleanRule{
	{"drop-parentheticals", func(s string) string {
		return parenthetical.ReplaceAllString(s, "")
	}},
	{"drop-dash-event-suffix", func(s string) string {
		return dashSuffix.ReplaceAllString(s, "")
	}},
	{"drop-trailing-tour", func(s string) string {
		return trailingEvent.ReplaceAllString(s, "")
	}},
	{"drop-nth-annual", func(s string) string {
		return nthAnnual.ReplaceAllString(s, "")
	}},
	{"strip-leading-article", func(s string) string {
		return leadingThe.ReplaceAllString(s, "")
	}},
	{"collapse-whitespace", func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	}},
}

// CleanForSearch prepares a billing name for catalog and video search by
// running every rule in CleanRules. Display casing is preserved.
func CleanForSearch(name string) string {
	s := name
	for _, r := range CleanRules {
		s = r.Apply(s)
	}
	return strings.TrimSpace(s)
}

// Tokens splits a name into lowercase alphanumeric tokens, folding accents
// the same way Key does.
func Tokens(name string) []string {
	parts := nonAlnum.Split(strings.ToLower(fold(name)), -1)
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SignificantTokens keeps only tokens of three or more characters, the set
// used for overlap scoring against video titles and channel names.
func SignificantTokens(name string) []string {
	all := Tokens(name)
	out := all[:0]
	for _, t := range all {
		if len(t) >= 3 {
			out = append(out, t)
		}
	}
	return out
}

func fold(s string) string {
	folded, _, err := transform.String(deaccent, s)
	if err != nil {
		return s
	}
	return folded
}
