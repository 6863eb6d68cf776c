package artist

import (
	"regexp"
	"strings"
)

var supportSplit = regexp.MustCompile(`(?i)\s+(?:with|w/|feat\.?|featuring)\s+`)

// nonBandPhrases mark listings that are venue events rather than acts.
var nonBandPhrases = []string{
	"open mic",
	"karaoke",
	"trivia",
	"comedy night",
	"dance party",
	"movie night",
	"market",
	"private event",
}

// SplitBilling breaks a raw listing title into the headline act and any
// supporting acts announced with "with", "w/", or "featuring".
func SplitBilling(title string) (headliner string, support []string) {
	parts := supportSplit.Split(title, -1)
	headliner = CleanForSearch(parts[0])
	for _, p := range parts[1:] {
		for _, name := range strings.Split(p, ",") {
			if cleaned := CleanForSearch(name); cleaned != "" {
				support = append(support, cleaned)
			}
		}
	}
	return headliner, support
}

// IsEventListing reports whether a billing name describes a recurring venue
// event rather than a performing act.
func IsEventListing(name string) bool {
	low := strings.ToLower(name)
	for _, phrase := range nonBandPhrases {
		if strings.Contains(low, phrase) {
			return true
		}
	}
	return false
}
