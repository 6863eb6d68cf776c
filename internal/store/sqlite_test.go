package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func strptr(s string) *string { return &s }

func TestSQLiteAssignmentRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	a := &model.Assignment{
		ArtistKey:   "waxahatchee",
		DisplayName: "Waxahatchee",
		Role:        model.RoleHeadliner,
		State:       model.StateUnverified,
		VideoID:     strptr("dQw4w9WgXcQ"),
		Score:       95,
		Reasoning:   []string{"artist name found in channel name"},
		Venue:       "Cat's Cradle",
		DecidedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.PutAssignment(ctx, a))

	got, err := s.GetAssignment(ctx, "waxahatchee")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Waxahatchee", got.DisplayName)
	assert.Equal(t, model.StateUnverified, got.State)
	require.NotNil(t, got.VideoID)
	assert.Equal(t, "dQw4w9WgXcQ", *got.VideoID)
	assert.Equal(t, 95, got.Score)
	assert.Equal(t, []string{"artist name found in channel name"}, got.Reasoning)
	assert.Equal(t, "Cat's Cradle", got.Venue)
}

func TestSQLiteAssignmentUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	a := &model.Assignment{
		ArtistKey:   "snailmail",
		DisplayName: "Snail Mail",
		Role:        model.RoleOpener,
		State:       model.StateUnverified,
		VideoID:     strptr("abc123def45"),
		DecidedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.PutAssignment(ctx, a))

	a.State = model.StateVerified
	a.Reasoning = []string{"channel match"}
	require.NoError(t, s.PutAssignment(ctx, a))

	got, err := s.GetAssignment(ctx, "snailmail")
	require.NoError(t, err)
	assert.Equal(t, model.StateVerified, got.State)

	// Still one row.
	counts, err := s.CountAssignmentsByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[model.StateVerified])
	assert.Equal(t, 0, counts[model.StateUnverified])
}

func TestSQLiteAssignmentNullVideo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	// Override with no video is a real, durable state.
	a := &model.Assignment{
		ArtistKey:   "sixmoremiles",
		DisplayName: "Six More Miles",
		Role:        model.RoleHeadliner,
		State:       model.StateOverride,
		VideoID:     nil,
		DecidedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.PutAssignment(ctx, a))

	got, err := s.GetAssignment(ctx, "sixmoremiles")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.StateOverride, got.State)
	assert.Nil(t, got.VideoID)
	assert.False(t, got.HasVideo())
}

func TestSQLiteGetAssignmentMissing(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetAssignment(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteListAssignmentsFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, a := range []*model.Assignment{
		{ArtistKey: "a1", DisplayName: "A1", Role: model.RoleHeadliner, State: model.StateVerified, Venue: "The Pinhook", DecidedAt: now, UpdatedAt: now},
		{ArtistKey: "a2", DisplayName: "A2", Role: model.RoleHeadliner, State: model.StateRejected, Venue: "The Pinhook", DecidedAt: now, UpdatedAt: now},
		{ArtistKey: "a3", DisplayName: "A3", Role: model.RoleOpener, State: model.StateVerified, Venue: "Motorco", DecidedAt: now, UpdatedAt: now},
	} {
		require.NoError(t, s.PutAssignment(ctx, a))
	}

	verified, err := s.ListAssignments(ctx, AssignmentFilter{State: model.StateVerified})
	require.NoError(t, err)
	assert.Len(t, verified, 2)

	pinhook, err := s.ListAssignments(ctx, AssignmentFilter{Venue: "The Pinhook"})
	require.NoError(t, err)
	assert.Len(t, pinhook, 2)

	both, err := s.ListAssignments(ctx, AssignmentFilter{State: model.StateVerified, Venue: "Motorco"})
	require.NoError(t, err)
	require.Len(t, both, 1)
	assert.Equal(t, "a3", both[0].ArtistKey)
}

func TestSQLiteDeleteAssignment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.PutAssignment(ctx, &model.Assignment{
		ArtistKey: "gone", DisplayName: "Gone", Role: model.RoleHeadliner,
		State: model.StateUnverified, DecidedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.DeleteAssignment(ctx, "gone"))

	got, err := s.GetAssignment(ctx, "gone")
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Error(t, s.DeleteAssignment(ctx, "gone"))
}

func TestSQLiteRejectionLedger(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	recent := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, s.AddRejection(ctx, &model.RejectionRecord{
		ArtistKey: "lowghost", VideoID: "oldvid11chr", Reasons: []string{model.ReasonViewCountExceedsCap}, RejectedAt: old,
	}))
	require.NoError(t, s.AddRejection(ctx, &model.RejectionRecord{
		ArtistKey: "lowghost", VideoID: "newvid11chr", Reasons: []string{model.ReasonNoCatalogIdentity}, RejectedAt: recent,
	}))

	rec, err := s.LatestRejection(ctx, "lowghost")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "newvid11chr", rec.VideoID)
	assert.Equal(t, []string{model.ReasonNoCatalogIdentity}, rec.Reasons)
	assert.True(t, rec.Active(time.Now().UTC(), 7*24*time.Hour))

	none, err := s.LatestRejection(ctx, "neverseen")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteEnrichmentRoundtrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fetched := time.Now().UTC().Truncate(time.Second)
	e := &model.EnrichmentEntry{
		ArtistKey:   "bigthief",
		CatalogID:   "4t5dUZ6kNa4rUbdmn2PIXg",
		CatalogName: "Big Thief",
		Popularity:  68,
		Followers:   850000,
		Genres:      []string{"indie folk", "indie rock"},
		Tier:        model.TierExact,
		MatchScore:  1.0,
		FetchedAt:   fetched,
	}
	require.NoError(t, s.PutEnrichment(ctx, e))

	got, err := s.GetEnrichment(ctx, "bigthief")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Big Thief", got.CatalogName)
	assert.Equal(t, 68, got.Popularity)
	assert.Equal(t, []string{"indie folk", "indie rock"}, got.Genres)
	assert.Equal(t, model.TierExact, got.Tier)
	assert.True(t, got.Found())

	// No-match entries cache too.
	require.NoError(t, s.PutEnrichment(ctx, &model.EnrichmentEntry{
		ArtistKey: "obscurelocalband", Tier: model.TierNoMatch, FetchedAt: fetched,
	}))
	miss, err := s.GetEnrichment(ctx, "obscurelocalband")
	require.NoError(t, err)
	require.NotNil(t, miss)
	assert.False(t, miss.Found())
}

func TestSQLiteSnapshotsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.AccuracySnapshot{
		CapturedAt: time.Now().UTC().Add(-time.Hour), TotalEntries: 40,
		VerifiedCount: 26, RejectedCount: 8, OverrideCount: 2, UnverifiedCount: 4,
		WithVideo: 30, NoVideo: 10, HighConf: 24, MediumConf: 4, LowConf: 2,
		AccuracyRate: 80.0, AvgConfidence: 71.5,
	}
	require.NoError(t, s.AppendSnapshot(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &model.AccuracySnapshot{
		CapturedAt: time.Now().UTC(), TotalEntries: 42,
		VerifiedCount: 28, RejectedCount: 9, OverrideCount: 2, UnverifiedCount: 3,
		WithVideo: 31, NoVideo: 11, HighConf: 25, MediumConf: 4, LowConf: 2,
		AccuracyRate: 80.6, AvgConfidence: 72.0,
	}
	require.NoError(t, s.AppendSnapshot(ctx, second))

	snaps, err := s.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	// Newest first, state counts intact.
	assert.Equal(t, second.ID, snaps[0].ID)
	assert.Equal(t, 28, snaps[0].VerifiedCount)
	assert.Equal(t, 9, snaps[0].RejectedCount)
	assert.Equal(t, first.ID, snaps[1].ID)
	assert.Equal(t, 26, snaps[1].VerifiedCount)
}

func TestSQLiteStateBaseline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Absent until the first report writes it.
	states, err := s.GetStateBaseline(ctx)
	require.NoError(t, err)
	assert.Nil(t, states)

	require.NoError(t, s.PutStateBaseline(ctx, map[string]model.AssignmentState{
		"pile":    model.StateVerified,
		"ratboys": model.StateRejected,
	}))

	states, err = s.GetStateBaseline(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StateVerified, states["pile"])
	assert.Equal(t, model.StateRejected, states["ratboys"])

	// A later write replaces the single row.
	require.NoError(t, s.PutStateBaseline(ctx, map[string]model.AssignmentState{
		"pile": model.StateRejected,
	}))
	states, err = s.GetStateBaseline(ctx)
	require.NoError(t, err)
	assert.Len(t, states, 1)
	assert.Equal(t, model.StateRejected, states["pile"])
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.RunRunning, run.Status)

	phase, err := s.CreatePhase(ctx, run.ID, "propose")
	require.NoError(t, err)
	require.NoError(t, s.CompletePhase(ctx, phase.ID, model.RunCompleted, 17, ""))

	require.NoError(t, s.FinishRun(ctx, run.ID, model.RunCompleted, ""))

	assert.Error(t, s.FinishRun(ctx, "no-such-run", model.RunFailed, "boom"))
	assert.Error(t, s.CompletePhase(ctx, "no-such-phase", model.RunFailed, 0, "boom"))
}
