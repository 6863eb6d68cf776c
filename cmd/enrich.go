package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
	"github.com/localsoundcheck/soundcheck-cli/internal/quota"
)

var (
	enrichArtist    string
	enrichForce     bool
	enrichShowsPath string
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Cross-reference billed artists against the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("enrich"); err != nil {
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

		gov := initGovernor()
		svc := initEnricher(st, gov)

		if enrichArtist != "" {
			entry, cached, enrichErr := svc.Enrich(ctx, enrichArtist, enrichForce)
			if enrichErr != nil {
				return eris.Wrapf(enrichErr, "enrich %q", enrichArtist)
			}
			zap.L().Info("artist enriched",
				zap.String("artist", enrichArtist),
				zap.String("tier", string(entry.Tier)),
				zap.String("indicator", entry.Indicator()),
				zap.Bool("cached", cached),
			)
			return nil
		}

		shows, err := pipeline.LoadShows(showsPathOrDefault(enrichShowsPath))
		if err != nil {
			return eris.Wrap(err, "load shows")
		}

		stats, err := svc.EnrichAll(ctx, pipeline.BilledArtists(shows), enrichForce)
		gov.Pools().LogSpend()
		if err != nil {
			if eris.Is(err, quota.ErrBudgetExhausted) {
				zap.L().Warn("catalog budget exhausted, pass incomplete",
					zap.Int("fetched", stats.Fetched))
				return nil
			}
			return eris.Wrap(err, "enrich pass")
		}

		zap.L().Info("enrich pass complete",
			zap.Int("fetched", stats.Fetched),
			zap.Int("cached", stats.Cached),
			zap.Int("confirmed", stats.Confirmed),
			zap.Int("not_found", stats.NotFound),
			zap.Int("errors", stats.Errors),
		)
		return nil
	},
}

func init() {
	enrichCmd.Flags().StringVar(&enrichArtist, "artist", "", "enrich a single artist by name")
	enrichCmd.Flags().BoolVar(&enrichForce, "force", false, "bypass the enrichment cache")
	enrichCmd.Flags().StringVar(&enrichShowsPath, "shows", "", "show listings file or directory (default from config)")
	rootCmd.AddCommand(enrichCmd)
}
