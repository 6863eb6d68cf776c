package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/internal/resilience"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

// mockYouTube is a scriptable youtube.Client that counts calls.
type mockYouTube struct {
	mu sync.Mutex

	searchResults map[string][]youtube.SearchResult
	videos        map[string]*youtube.VideoMeta
	channels      map[string]*youtube.ChannelMeta
	oembeds       map[string]*youtube.OembedInfo

	searchCalls  int
	videoCalls   int
	channelCalls int
	oembedCalls  int
}

func newMockYouTube() *mockYouTube {
	return &mockYouTube{
		searchResults: map[string][]youtube.SearchResult{},
		videos:        map[string]*youtube.VideoMeta{},
		channels:      map[string]*youtube.ChannelMeta{},
		oembeds:       map[string]*youtube.OembedInfo{},
	}
}

func (m *mockYouTube) Search(_ context.Context, query string, _ int) ([]youtube.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchCalls++
	return m.searchResults[query], nil
}

func (m *mockYouTube) Video(_ context.Context, id string) (*youtube.VideoMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoCalls++
	v, ok := m.videos[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return v, nil
}

func (m *mockYouTube) Channel(_ context.Context, id string) (*youtube.ChannelMeta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channelCalls++
	c, ok := m.channels[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return c, nil
}

func (m *mockYouTube) Oembed(_ context.Context, id string) (*youtube.OembedInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.oembedCalls++
	o, ok := m.oembeds[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return o, nil
}

func (m *mockYouTube) counts() (search, video, channel, oembed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.searchCalls, m.videoCalls, m.channelCalls, m.oembedCalls
}

func newPipelineStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func testGovernor(searchBudget, metadataBudget int) *quota.Governor {
	return quota.NewGovernor(quota.NewPools(searchBudget, metadataBudget, 0), resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})
}

func testLedger(st store.Store) *quota.Ledger {
	return quota.NewLedger(st, quota.DefaultCooldown)
}
