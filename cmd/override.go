package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
)

var (
	overrideArtist string
	overrideVideo  string
	overrideNone   bool
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage manual video overrides",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Pin an artist's video, or pin no video at all",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if overrideVideo == "" && !overrideNone {
			return eris.New("either --video or --none is required")
		}
		if overrideVideo != "" && overrideNone {
			return eris.New("--video and --none are mutually exclusive")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var videoID *string
		if overrideVideo != "" {
			videoID = &overrideVideo
		}
		if err := setOverride(ctx, st, overrideArtist, videoID); err != nil {
			return err
		}

		zap.L().Info("override set",
			zap.String("artist", overrideArtist),
			zap.Bool("no_video", videoID == nil))
		return nil
	},
}

var overrideClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove an artist's override so the pipeline may decide again",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		if err := clearOverride(ctx, st, overrideArtist); err != nil {
			return err
		}
		zap.L().Info("override cleared", zap.String("artist", overrideArtist))
		return nil
	},
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all manual overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		overrides, err := st.ListAssignments(ctx, store.AssignmentFilter{State: model.StateOverride})
		if err != nil {
			return eris.Wrap(err, "list overrides")
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Artist", "Video", "Since"})
		for _, a := range overrides {
			video := "(none)"
			if a.HasVideo() {
				video = *a.VideoID
			}
			t.AppendRow(table.Row{a.DisplayName, video, a.DecidedAt.Format("2006-01-02")})
		}
		fmt.Println(t.Render())
		return nil
	},
}

// setOverride writes the terminal manual assignment. A nil videoID pins
// "deliberately no video"; automated runs will not reopen either form.
func setOverride(ctx context.Context, st store.Store, name string, videoID *string) error {
	key := artist.Key(artist.CleanForSearch(name))
	if key == "" {
		return eris.Errorf("artist name %q reduces to an empty identity", name)
	}

	now := time.Now().UTC()
	existing, err := st.GetAssignment(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "load assignment for %q", name)
	}

	a := &model.Assignment{
		ArtistKey:   key,
		DisplayName: artist.CleanForSearch(name),
		Role:        model.RoleHeadliner,
		State:       model.StateOverride,
		VideoID:     videoID,
		Reasoning:   []string{"manual-override"},
		DecidedAt:   now,
		UpdatedAt:   now,
	}
	if existing != nil {
		a.Role = existing.Role
		a.Venue = existing.Venue
	}
	return eris.Wrapf(st.PutAssignment(ctx, a), "write override for %q", name)
}

// clearOverride deletes the override row entirely. The next propose pass
// treats the artist as never searched.
func clearOverride(ctx context.Context, st store.Store, name string) error {
	key := artist.Key(artist.CleanForSearch(name))
	existing, err := st.GetAssignment(ctx, key)
	if err != nil {
		return eris.Wrapf(err, "load assignment for %q", name)
	}
	if existing == nil || existing.State != model.StateOverride {
		return eris.Errorf("no override exists for %q", name)
	}
	return eris.Wrapf(st.DeleteAssignment(ctx, key), "delete override for %q", name)
}

func init() {
	overrideSetCmd.Flags().StringVar(&overrideArtist, "artist", "", "artist name (required)")
	overrideSetCmd.Flags().StringVar(&overrideVideo, "video", "", "video ID to pin")
	overrideSetCmd.Flags().BoolVar(&overrideNone, "none", false, "pin the artist to no video")
	_ = overrideSetCmd.MarkFlagRequired("artist")

	overrideClearCmd.Flags().StringVar(&overrideArtist, "artist", "", "artist name (required)")
	_ = overrideClearCmd.MarkFlagRequired("artist")

	overrideCmd.AddCommand(overrideSetCmd, overrideClearCmd, overrideListCmd)
	rootCmd.AddCommand(overrideCmd)
}
