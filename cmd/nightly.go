package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/pipeline"
)

var nightlyShowsPath string

var nightlyCmd = &cobra.Command{
	Use:   "nightly",
	Short: "Run the full propose, enrich, verify, report pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("nightly"); err != nil {
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
		yt := initYouTube()
		reporter := initReporter(st, yt)

		n := pipeline.NewNightly(st,
			initProposer(st, yt, gov),
			initEnricher(st, gov),
			initVerifier(st, yt, gov),
			reporter,
		)

		res, err := n.Run(ctx, showsPathOrDefault(nightlyShowsPath))
		gov.Pools().LogSpend()
		if err != nil {
			return eris.Wrap(err, "nightly run")
		}

		zap.L().Info("nightly run finished",
			zap.String("run_id", res.Run.ID),
			zap.String("status", string(res.Run.Status)),
		)
		if res.Report != nil {
			fmt.Print(reporter.Render(res.Report))
		}
		return nil
	},
}

func init() {
	nightlyCmd.Flags().StringVar(&nightlyShowsPath, "shows", "", "show listings file or directory (default from config)")
	rootCmd.AddCommand(nightlyCmd)
}
