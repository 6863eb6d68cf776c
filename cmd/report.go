package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reportCSVPath    string
	reportOutputPath string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the delta, inventory, and accuracy report",
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

		reporter := initReporter(st, initYouTube())

		// A standalone report diffs against the states persisted by the
		// previous report, so deltas work even when each phase runs in
		// its own process. The first report ever treats everything as new.
		before, err := reporter.Baseline(ctx)
		if err != nil {
			return eris.Wrap(err, "load report baseline")
		}

		rep, err := reporter.Generate(ctx, before)
		if err != nil {
			return eris.Wrap(err, "generate report")
		}

		out := reporter.Render(rep)
		if reportOutputPath != "" {
			if err := os.WriteFile(reportOutputPath, []byte(out), 0o644); err != nil {
				return eris.Wrapf(err, "write report %s", reportOutputPath)
			}
			zap.L().Info("report written", zap.String("path", reportOutputPath))
		} else {
			fmt.Print(out)
		}

		if reportCSVPath != "" {
			if err := reporter.WriteCSV(rep, reportCSVPath); err != nil {
				return err
			}
			zap.L().Info("csv written", zap.String("path", reportCSVPath))
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportCSVPath, "csv", "", "also write the report as CSV to this path")
	reportCmd.Flags().StringVar(&reportOutputPath, "output", "", "write the rendered report to this path instead of stdout")
	rootCmd.AddCommand(reportCmd)
}
