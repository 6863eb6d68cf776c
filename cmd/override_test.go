package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
)

func newCmdStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSetOverride_WithVideo(t *testing.T) {
	st := newCmdStore(t)
	ctx := context.Background()

	videoID := "pinned00001"
	require.NoError(t, setOverride(ctx, st, "Six More Miles", &videoID))

	a, err := st.GetAssignment(ctx, "sixmoremiles")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.StateOverride, a.State)
	require.NotNil(t, a.VideoID)
	assert.Equal(t, "pinned00001", *a.VideoID)
	assert.Contains(t, a.Reasoning, "manual-override")
}

func TestSetOverride_NullOverride(t *testing.T) {
	st := newCmdStore(t)
	ctx := context.Background()

	require.NoError(t, setOverride(ctx, st, "Six More Miles", nil))

	a, err := st.GetAssignment(ctx, "sixmoremiles")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.StateOverride, a.State)
	assert.Nil(t, a.VideoID)

	// The null override surfaces as no preview at the read boundary.
	res, err := currentVideo(ctx, st, "Six More Miles")
	require.NoError(t, err)
	assert.Equal(t, "override", res.State)
	assert.Nil(t, res.VideoURL)
}

func TestSetOverride_ReplacesAutomatedVerdict(t *testing.T) {
	st := newCmdStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	old := "autovid0001"
	require.NoError(t, st.PutAssignment(ctx, &model.Assignment{
		ArtistKey: "pile", DisplayName: "Pile", Role: model.RoleOpener,
		State: model.StateVerified, VideoID: &old, Venue: "Kings",
		DecidedAt: now, UpdatedAt: now,
	}))

	pinned := "pinned00002"
	require.NoError(t, setOverride(ctx, st, "Pile", &pinned))

	a, err := st.GetAssignment(ctx, "pile")
	require.NoError(t, err)
	assert.Equal(t, model.StateOverride, a.State)
	assert.Equal(t, "pinned00002", *a.VideoID)
	// Billing context survives the replacement.
	assert.Equal(t, model.RoleOpener, a.Role)
	assert.Equal(t, "Kings", a.Venue)
}

func TestSetOverride_EmptyNameRejected(t *testing.T) {
	st := newCmdStore(t)
	assert.Error(t, setOverride(context.Background(), st, "  !!  ", nil))
}

func TestClearOverride(t *testing.T) {
	st := newCmdStore(t)
	ctx := context.Background()

	require.NoError(t, setOverride(ctx, st, "Pile", nil))
	require.NoError(t, clearOverride(ctx, st, "Pile"))

	a, err := st.GetAssignment(ctx, "pile")
	require.NoError(t, err)
	assert.Nil(t, a, "cleared artist should read as never searched")
}

func TestClearOverride_OnlyTouchesOverrides(t *testing.T) {
	st := newCmdStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	videoID := "autovid0002"
	require.NoError(t, st.PutAssignment(ctx, &model.Assignment{
		ArtistKey: "pile", DisplayName: "Pile", Role: model.RoleHeadliner,
		State: model.StateVerified, VideoID: &videoID,
		DecidedAt: now, UpdatedAt: now,
	}))

	assert.Error(t, clearOverride(ctx, st, "Pile"))

	a, err := st.GetAssignment(ctx, "pile")
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.Equal(t, model.StateVerified, a.State)
}

func TestClearOverride_MissingArtist(t *testing.T) {
	st := newCmdStore(t)
	assert.Error(t, clearOverride(context.Background(), st, "Nobody"))
}
