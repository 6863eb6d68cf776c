package artist

import "strings"

// Candidate-scoring signal names, recorded in assignment reasoning.
const (
	SignalArtistInChannel     = "artist-name-in-channel"
	SignalChannelInArtist     = "channel-name-in-artist"
	SignalChannelTokenOverlap = "channel-token-overlap"
	SignalArtistInTitle       = "artist-name-in-title"
	SignalTitleTokenOverlap   = "title-token-overlap"
	SignalPartialTokenOverlap = "partial-token-overlap"
	SignalNone                = "no-signal"
)

// ScoreCandidate rates how likely a (title, channel) pair belongs to the
// artist, 0..100, and names the strongest signal that fired. Channel
// identity outranks title wording: titles routinely quote an artist's name
// in covers and live bootlegs, channels rarely do.
func ScoreCandidate(name, title, channel string) (int, string) {
	ak := Key(name)
	ck := Key(channel)
	tk := Key(title)

	if ak != "" && ck != "" {
		if strings.Contains(ck, ak) {
			return 95, SignalArtistInChannel
		}
		if strings.Contains(ak, ck) {
			return 85, SignalChannelInArtist
		}
	}

	channelRatio := overlapRatio(name, channel)
	if channelRatio >= 0.5 {
		return 70 + int(channelRatio*20), SignalChannelTokenOverlap
	}

	if ak != "" && tk != "" && strings.Contains(tk, ak) {
		return 60, SignalArtistInTitle
	}

	titleRatio := overlapRatio(name, title)
	if titleRatio >= 0.5 {
		return 50 + int(titleRatio*10), SignalTitleTokenOverlap
	}

	best := channelRatio
	if titleRatio > best {
		best = titleRatio
	}
	if best > 0 {
		return 30 + int(best*30), SignalPartialTokenOverlap
	}
	return 5, SignalNone
}

// overlapRatio is the fraction of the artist's significant tokens that
// appear in the other string's significant tokens.
func overlapRatio(name, other string) float64 {
	want := SignificantTokens(name)
	if len(want) == 0 {
		return 0
	}
	have := make(map[string]bool)
	for _, t := range SignificantTokens(other) {
		have[t] = true
	}
	hits := 0
	for _, t := range want {
		if have[t] {
			hits++
		}
	}
	return float64(hits) / float64(len(want))
}
