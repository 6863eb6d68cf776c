package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
	"github.com/localsoundcheck/soundcheck-cli/pkg/youtube"
)

func newTestProposer(t *testing.T, yt *mockYouTube, searchBudget int) (*Proposer, store.Store) {
	t.Helper()
	st := newPipelineStore(t)
	p := NewProposer(st, yt, testGovernor(searchBudget, 0), testLedger(st), 60, 5)
	return p, st
}

func TestPropose_WritesUnverifiedAssignment(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults[`"Ratboys" official music video`] = []youtube.SearchResult{
		{VideoID: "vid00000001", Title: "Ratboys - Black Earth, WI", ChannelTitle: "Ratboys", ChannelID: "UCratboys"},
		{VideoID: "vid00000002", Title: "unrelated", ChannelTitle: "somebody"},
	}
	p, st := newTestProposer(t, yt, 0)

	outcome, err := p.Propose(context.Background(), "Ratboys", model.RoleHeadliner, "The Pinhook")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProposed, outcome)

	a, err := st.GetAssignment(context.Background(), "ratboys")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.StateUnverified, a.State)
	require.NotNil(t, a.VideoID)
	assert.Equal(t, "vid00000001", *a.VideoID)
	assert.Equal(t, 95, a.Score)
	assert.Equal(t, "The Pinhook", a.Venue)
}

func TestPropose_EventListingNoCalls(t *testing.T) {
	yt := newMockYouTube()
	p, _ := newTestProposer(t, yt, 0)

	outcome, err := p.Propose(context.Background(), "Tuesday Open Mic Night", model.RoleHeadliner, "Motorco")
	require.NoError(t, err)
	assert.Equal(t, OutcomeEventListing, outcome)

	search, _, _, _ := yt.counts()
	assert.Zero(t, search)
}

func TestPropose_OverridePreservedNoCalls(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults[`"Six More Miles" official music video`] = []youtube.SearchResult{
		{VideoID: "wrongvid123", Title: "Six More Miles - Hank Williams cover", ChannelTitle: "Six More Miles"},
	}
	p, st := newTestProposer(t, yt, 0)

	// A null override is a deliberate "no video", not missing data. No
	// search result, however high scoring, may disturb it.
	now := time.Now().UTC()
	require.NoError(t, st.PutAssignment(context.Background(), &model.Assignment{
		ArtistKey:   "sixmoremiles",
		DisplayName: "Six More Miles",
		Role:        model.RoleHeadliner,
		State:       model.StateOverride,
		VideoID:     nil,
		DecidedAt:   now,
		UpdatedAt:   now,
	}))

	outcome, err := p.Propose(context.Background(), "Six More Miles", model.RoleHeadliner, "The Pinhook")
	require.NoError(t, err)
	assert.Equal(t, OutcomePreserved, outcome)

	search, _, _, _ := yt.counts()
	assert.Zero(t, search)

	a, err := st.GetAssignment(context.Background(), "sixmoremiles")
	require.NoError(t, err)
	assert.Equal(t, model.StateOverride, a.State)
	assert.Nil(t, a.VideoID)
}

func TestPropose_VerifiedPreserved(t *testing.T) {
	yt := newMockYouTube()
	p, st := newTestProposer(t, yt, 0)

	now := time.Now().UTC()
	require.NoError(t, st.PutAssignment(context.Background(), &model.Assignment{
		ArtistKey:   "wednesday",
		DisplayName: "Wednesday",
		Role:        model.RoleHeadliner,
		State:       model.StateVerified,
		VideoID:     strptr("goodvid0001"),
		DecidedAt:   now,
		UpdatedAt:   now,
	}))

	outcome, err := p.Propose(context.Background(), "Wednesday", model.RoleHeadliner, "Local 506")
	require.NoError(t, err)
	assert.Equal(t, OutcomePreserved, outcome)

	search, _, _, _ := yt.counts()
	assert.Zero(t, search)
}

func TestPropose_ActiveCooldownNoCalls(t *testing.T) {
	yt := newMockYouTube()
	p, st := newTestProposer(t, yt, 0)

	now := time.Now().UTC()
	require.NoError(t, st.PutAssignment(context.Background(), &model.Assignment{
		ArtistKey:   "heated",
		DisplayName: "Heated",
		Role:        model.RoleHeadliner,
		State:       model.StateRejected,
		DecidedAt:   now,
		UpdatedAt:   now,
	}))
	require.NoError(t, st.AddRejection(context.Background(), &model.RejectionRecord{
		ArtistKey:  "heated",
		VideoID:    "badvid00001",
		Reasons:    []string{model.ReasonViewCountExceedsCap},
		RejectedAt: now.Add(-24 * time.Hour),
	}))

	outcome, err := p.Propose(context.Background(), "Heated", model.RoleHeadliner, "The Pinhook")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCooldown, outcome)

	search, _, _, _ := yt.counts()
	assert.Zero(t, search)

	// State unchanged.
	a, err := st.GetAssignment(context.Background(), "heated")
	require.NoError(t, err)
	assert.Equal(t, model.StateRejected, a.State)
}

func TestPropose_ExpiredCooldownSearchesAgain(t *testing.T) {
	yt := newMockYouTube()
	p, st := newTestProposer(t, yt, 0)

	now := time.Now().UTC()
	require.NoError(t, st.PutAssignment(context.Background(), &model.Assignment{
		ArtistKey:   "heated",
		DisplayName: "Heated",
		Role:        model.RoleHeadliner,
		State:       model.StateRejected,
		DecidedAt:   now.Add(-8 * 24 * time.Hour),
		UpdatedAt:   now.Add(-8 * 24 * time.Hour),
	}))
	require.NoError(t, st.AddRejection(context.Background(), &model.RejectionRecord{
		ArtistKey:  "heated",
		VideoID:    "badvid00001",
		Reasons:    []string{model.ReasonViewCountExceedsCap},
		RejectedAt: now.Add(-8 * 24 * time.Hour),
	}))

	_, err := p.Propose(context.Background(), "Heated", model.RoleHeadliner, "The Pinhook")
	require.NoError(t, err)

	search, _, _, _ := yt.counts()
	assert.Equal(t, 2, search) // primary plus empty-result fallback
}

func TestPropose_FallbackQuery(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults["Pile band music"] = []youtube.SearchResult{
		{VideoID: "vid00000009", Title: "Pile - Dogs", ChannelTitle: "Pile", ChannelID: "UCpile"},
	}
	p, _ := newTestProposer(t, yt, 0)

	outcome, err := p.Propose(context.Background(), "Pile", model.RoleHeadliner, "Kings")
	require.NoError(t, err)
	assert.Equal(t, OutcomeProposed, outcome)

	search, _, _, _ := yt.counts()
	assert.Equal(t, 2, search)
}

func TestPropose_BelowFloorNoWrite(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults[`"Wednesday" official music video`] = []youtube.SearchResult{
		{VideoID: "vid00000003", Title: "lofi beats", ChannelTitle: "ChillStream"},
	}
	p, st := newTestProposer(t, yt, 0)

	outcome, err := p.Propose(context.Background(), "Wednesday", model.RoleHeadliner, "Cat's Cradle")
	require.NoError(t, err)
	assert.Equal(t, OutcomeBelowFloor, outcome)

	a, err := st.GetAssignment(context.Background(), "wednesday")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestProposeAll_BudgetExhaustionStopsPass(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults[`"Pile" official music video`] = []youtube.SearchResult{
		{VideoID: "vid00000001", Title: "Pile - Dogs", ChannelTitle: "Pile"},
	}
	// Budget covers exactly one search call.
	p, _ := newTestProposer(t, yt, quota.CostSearch)

	shows := []model.Show{
		{Artist: "Pile", Venue: "Kings"},
		{Artist: "Wednesday", Venue: "Cat's Cradle"},
	}
	stats, err := p.ProposeAll(context.Background(), shows)
	require.Error(t, err)
	assert.ErrorIs(t, err, quota.ErrBudgetExhausted)
	assert.Equal(t, 1, stats.Proposed)

	search, _, _, _ := yt.counts()
	assert.Equal(t, 1, search)
}

func TestProposeAll_DedupesAcrossShows(t *testing.T) {
	yt := newMockYouTube()
	yt.searchResults[`"Pile" official music video`] = []youtube.SearchResult{
		{VideoID: "vid00000001", Title: "Pile - Dogs", ChannelTitle: "Pile"},
	}
	p, _ := newTestProposer(t, yt, 0)

	shows := []model.Show{
		{Artist: "Pile", Venue: "Kings"},
		{Artist: "Pile", Venue: "The Pinhook"},
		{Artist: "Trivia Night", Venue: "Motorco"},
	}
	stats, err := p.ProposeAll(context.Background(), shows)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Proposed)
	assert.Equal(t, 1, stats.EventListings)

	search, _, _, _ := yt.counts()
	assert.Equal(t, 1, search)
}

func strptr(s string) *string { return &s }
