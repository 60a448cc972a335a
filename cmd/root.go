package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "gps-cli",
	Short: "Monthly survey metrics aggregation and rollups",
	Long:  "Joins the team roster with survey responses, computes NPS metrics per organization, area and role, writes monthly snapshot packages, and serves graded reports with region rollups.",
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
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
