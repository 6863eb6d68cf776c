package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
)

var proposeShowsPath string

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Propose candidate videos for billed artists",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("propose"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		shows, err := pipeline.LoadShows(showsPathOrDefault(proposeShowsPath))
		if err != nil {
			return eris.Wrap(err, "load shows")
		}

		gov := initGovernor()
		proposer := initProposer(st, initYouTube(), gov)

		stats, err := proposer.ProposeAll(ctx, shows)
		gov.Pools().LogSpend()
		if err != nil {
			if eris.Is(err, quota.ErrBudgetExhausted) {
				zap.L().Warn("search budget exhausted, pass incomplete",
					zap.Int("proposed", stats.Proposed))
				return nil
			}
			return eris.Wrap(err, "propose pass")
		}

		zap.L().Info("propose pass complete",
			zap.Int("shows", len(shows)),
			zap.Int("proposed", stats.Proposed),
			zap.Int("preserved", stats.Preserved),
			zap.Int("cooldown", stats.Cooldown),
			zap.Int("event_listings", stats.EventListings),
			zap.Int("no_results", stats.NoResults),
			zap.Int("below_floor", stats.BelowFloor),
			zap.Int("errors", stats.Errors),
		)
		return nil
	},
}

func showsPathOrDefault(path string) string {
	if path != "" {
		return path
	}
	return cfg.Shows.DataDir
}

func init() {
	proposeCmd.Flags().StringVar(&proposeShowsPath, "shows", "", "show listings file or directory (default from config)")
	rootCmd.AddCommand(proposeCmd)
}
