package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/localsoundcheck/soundcheck-cli/internal/artist"
	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
	"github.com/localsoundcheck/soundcheck-cli/internal/store"
)

var (
	videoShow string
	videoRole string
)

// videoResult is what the rendering collaborator consumes. A null URL means
// "show no preview"; it is never an error.
type videoResult struct {
	Artist   string  `json:"artist"`
	State    string  `json:"state,omitempty"`
	VideoURL *string `json:"video_url"`
}

var videoCmd = &cobra.Command{
	Use:   "video",
	Short: "Read the current video for a show slot",
	Long:  "Resolves a show (by event URL) or an artist name to the video the site should embed, if any. Only verified and override assignments surface a video.",
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

		role := model.Role(videoRole)
		if role != model.RoleHeadliner && role != model.RoleOpener {
			return eris.Errorf("unknown role %q", videoRole)
		}

		name, err := resolveBilledArtist(videoShow, role, cfg.Shows.DataDir)
		if err != nil {
			return err
		}

		result, err := currentVideo(ctx, st, name)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

// resolveBilledArtist maps --show to an artist name. Event URLs resolve
// through the show listings; anything else is taken as an artist name
// directly.
func resolveBilledArtist(ref string, role model.Role, showsPath string) (string, error) {
	if !strings.Contains(ref, "://") {
		return ref, nil
	}

	shows, err := pipeline.LoadShows(showsPath)
	if err != nil {
		return "", eris.Wrap(err, "load shows")
	}
	for i := range shows {
		if shows[i].ID != ref {
			continue
		}
		for _, slot := range shows[i].Billing() {
			if slot.Role == role {
				return slot.Name, nil
			}
		}
		return "", eris.Errorf("show %s has no %s slot", ref, role)
	}
	return "", eris.Errorf("no show found for %s", ref)
}

// currentVideo is the presentation-boundary read. Unverified and rejected
// assignments, and artists never seen, all surface as no preview.
func currentVideo(ctx context.Context, st store.Store, name string) (*videoResult, error) {
	key := artist.Key(artist.CleanForSearch(name))
	result := &videoResult{Artist: name}

	a, err := st.GetAssignment(ctx, key)
	if err != nil {
		return nil, eris.Wrapf(err, "load assignment for %q", name)
	}
	if a == nil {
		return result, nil
	}

	result.State = string(a.State)
	if a.State.Terminal() && a.HasVideo() {
		url := "https://www.youtube.com/watch?v=" + *a.VideoID
		result.VideoURL = &url
	}
	return result, nil
}

func init() {
	videoCmd.Flags().StringVar(&videoShow, "show", "", "event URL or artist name (required)")
	videoCmd.Flags().StringVar(&videoRole, "role", string(model.RoleHeadliner), "billing slot: headliner or opener")
	_ = videoCmd.MarkFlagRequired("show")
	rootCmd.AddCommand(videoCmd)
}
