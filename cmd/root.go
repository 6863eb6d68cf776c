package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localsoundcheck/soundcheck-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "soundcheck",
	Short: "Video identity resolution pipeline for local show listings",
	Long:  "Proposes candidate videos for billed artists, cross-references catalog identity, runs the trust gate, and reports the nightly delta.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
