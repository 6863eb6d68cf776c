// Package trust decides whether a video's channel can be taken at face
// value. It combines a file-backed registry of known label and distributor
// channels with structural detection of platform-generated channels.
package trust

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
)

// Level ranks how much weight a registry entry carries.
type Level string

const (
	LevelLabel       Level = "label"
	LevelDistributor Level = "distributor"
	LevelCurator     Level = "curator"
)

// Registry maps normalized channel-name keys to trust levels. Loaded once
// at process start; runtime lookups never mutate it.
type Registry struct {
	entries map[string]Level
}

type registryFile struct {
	Channels []struct {
		Name  string `yaml:"name"`
		Level Level  `yaml:"level"`
	} `yaml:"channels"`
}

// Load reads a YAML registry file. A missing file is not an error; it
// yields an empty registry so the structural detectors still run.
func Load(path string) (*Registry, error) {
	r := &Registry{entries: map[string]Level{}}
	if path == "" {
		return r, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			zap.L().Debug("trust: no registry file", zap.String("path", path))
			return r, nil
		}
		return nil, eris.Wrapf(err, "trust: read registry %s", path)
	}
	var f registryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, eris.Wrapf(err, "trust: parse registry %s", path)
	}
	for _, ch := range f.Channels {
		key := artist.Key(ch.Name)
		if key == "" {
			continue
		}
		r.entries[key] = ch.Level
	}
	zap.L().Info("trust: registry loaded",
		zap.String("path", path),
		zap.Int("channels", len(r.entries)),
	)
	return r, nil
}

// NewRegistry builds a registry from explicit entries. Used by tests and
// by callers that embed a default set.
func NewRegistry(entries map[string]Level) *Registry {
	m := make(map[string]Level, len(entries))
	for name, lvl := range entries {
		m[artist.Key(name)] = lvl
	}
	return &Registry{entries: m}
}

// Lookup returns the trust level for a channel name, if registered.
func (r *Registry) Lookup(channelName string) (Level, bool) {
	lvl, ok := r.entries[artist.Key(channelName)]
	return lvl, ok
}

// Len reports the number of registered channels.
func (r *Registry) Len() int { return len(r.entries) }

// IsTopicChannel detects platform-generated artist aggregation channels,
// which carry the literal suffix "- Topic".
func IsTopicChannel(channelName string) bool {
	return strings.HasSuffix(strings.TrimSpace(channelName), "- Topic")
}

// IsOfficialDistribution detects official artist distribution channels,
// which end in "VEVO" (case-insensitive).
func IsOfficialDistribution(channelName string) bool {
	return strings.HasSuffix(strings.ToUpper(strings.TrimSpace(channelName)), "VEVO")
}

// ChannelMatchesArtist reports whether the channel name relates to the
// artist identity. Structural suffixes are removed before comparison so
// "Waxahatchee - Topic" matches "Waxahatchee".
func ChannelMatchesArtist(channelName, artistName string) bool {
	ch := strings.TrimSpace(channelName)
	ch = strings.TrimSuffix(ch, "- Topic")
	if up := strings.ToUpper(ch); strings.HasSuffix(up, "VEVO") {
		ch = ch[:len(ch)-4]
	}
	chKey, arKey := artist.Key(ch), artist.Key(artistName)
	if chKey == "" || arKey == "" {
		return false
	}
	return strings.Contains(chKey, arKey) || strings.Contains(arKey, chKey)
}

// Decision is the bypass verdict for one candidate channel.
type Decision struct {
	Bypass bool
	Reason string
}

// Evaluate determines whether the channel earns a trust bypass for the
// given artist. Registry membership alone is enough; structural channels
// additionally require the aggregated artist name to match.
func (r *Registry) Evaluate(channelName, artistName string) Decision {
	if lvl, ok := r.Lookup(channelName); ok {
		return Decision{Bypass: true, Reason: "registry:" + string(lvl)}
	}
	if IsTopicChannel(channelName) && ChannelMatchesArtist(channelName, artistName) {
		return Decision{Bypass: true, Reason: "topic-channel-match"}
	}
	if IsOfficialDistribution(channelName) && ChannelMatchesArtist(channelName, artistName) {
		return Decision{Bypass: true, Reason: "official-distribution-match"}
	}
	return Decision{}
}
