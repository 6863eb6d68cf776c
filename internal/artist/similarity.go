package artist

import "strings"

// Similarity scores how alike two names are on a 0..1 scale.
// Exact normalized match wins outright. Containment counts as strong only
// when the two keys are of comparable length; a short key swallowed by a
// much longer one is usually coincidence. Otherwise falls back to token
// overlap.
func Similarity(a, b string) float64 {
	ka, kb := Key(a), Key(b)
	if ka == "" || kb == "" {
		return 0
	}
	if ka == kb {
		return 1
	}
	if strings.Contains(ka, kb) || strings.Contains(kb, ka) {
		shorter, longer := len(ka), len(kb)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		if float64(shorter)/float64(longer) >= 0.5 {
			return 0.9
		}
		return 0.3
	}
	ta, tb := Tokens(a), Tokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	overlap := 0
	seen := make(map[string]bool, len(tb))
	for _, t := range tb {
		if set[t] && !seen[t] {
			overlap++
			seen[t] = true
		}
	}
	total := len(ta)
	if len(tb) > total {
		total = len(tb)
	}
	return float64(overlap) / float64(total)
}
