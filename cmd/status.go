package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/localsoundcheck/soundcheck-cli/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current assignment inventory and audit trend",
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

		counts, err := st.CountAssignmentsByState(ctx)
		if err != nil {
			return eris.Wrap(err, "count assignments")
		}

		inv := table.NewWriter()
		inv.SetStyle(table.StyleRounded)
		inv.AppendHeader(table.Row{"State", "Count"})
		total := 0
		for _, state := range []model.AssignmentState{
			model.StateVerified, model.StateOverride, model.StateUnverified, model.StateRejected,
		} {
			inv.AppendRow(table.Row{string(state), counts[state]})
			total += counts[state]
		}
		inv.AppendFooter(table.Row{"total", total})
		fmt.Println(inv.Render())

		snaps, err := st.ListSnapshots(ctx, 5)
		if err != nil {
			return eris.Wrap(err, "list snapshots")
		}
		if len(snaps) == 0 {
			return nil
		}

		trend := table.NewWriter()
		trend.SetStyle(table.StyleRounded)
		trend.AppendHeader(table.Row{"Captured", "Checked", "High", "Medium", "Low", "Errors", "Accuracy"})
		for _, s := range snaps {
			trend.AppendRow(table.Row{
				s.CapturedAt.Format("2006-01-02 15:04"),
				s.WithVideo, s.HighConf, s.MediumConf, s.LowConf, s.Errors,
				fmt.Sprintf("%.1f%%", s.AccuracyRate),
			})
		}
		fmt.Println("Recent accuracy snapshots:")
		fmt.Println(trend.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
