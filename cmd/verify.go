package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
)

var verifyShowsPath string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the trust gate over unverified assignments",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("verify"); err != nil {
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

		// Show artwork feeds the zero-cost placeholder pre-check; the
		// gate still runs without it.
		var shows []model.Show
		if path := showsPathOrDefault(verifyShowsPath); path != "" {
			loaded, loadErr := pipeline.LoadShows(path)
			if loadErr != nil {
				zap.L().Warn("show listings unavailable, skipping artwork pre-check",
					zap.Error(loadErr))
			} else {
				shows = loaded
			}
		}

		gov := initGovernor()
		verifier := initVerifier(st, initYouTube(), gov)

		stats, err := verifier.VerifyAll(ctx, shows)
		gov.Pools().LogSpend()
		if err != nil {
			return eris.Wrap(err, "verify pass")
		}

		zap.L().Info("verify pass complete",
			zap.Int("verified", stats.Verified),
			zap.Int("rejected", stats.Rejected),
			zap.Int("deferred", stats.Deferred),
			zap.Int("errors", stats.Errors),
		)
		return nil
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyShowsPath, "shows", "", "show listings file or directory (default from config)")
	rootCmd.AddCommand(verifyCmd)
}
