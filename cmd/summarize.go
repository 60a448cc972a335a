package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/narrative"
	anthropicpkg "github.com/sells-group/gps-cli/pkg/anthropic"
)

var (
	summarizeMonth string
	summarizeLevel string
	summarizeLimit int
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Write AI narratives for unprocessed packages",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeSummarize); err != nil {
			return err
		}
		filter := narrative.Filter{Level: model.ScopeLevel(summarizeLevel), Limit: summarizeLimit}
		if summarizeMonth != "" {
			m, err := monthFlag(summarizeMonth, model.Month{})
			if err != nil {
				return err
			}
			filter.Month = &m
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		s := narrative.NewSummarizer(anthropicpkg.NewClient(cfg.Anthropic.Key), st, narrative.Config{
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			BatchSize:   cfg.Anthropic.BatchSize,
			Concurrency: cfg.Anthropic.Concurrency,
			RateLimit:   cfg.Anthropic.RateLimit,
			Policy:      retryPolicy(),
		})
		res, err := s.Run(ctx, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeMonth, "month", "", "only packages for this month (YYYY-MM)")
	summarizeCmd.Flags().StringVar(&summarizeLevel, "level", "", "only packages at this scope level")
	summarizeCmd.Flags().IntVar(&summarizeLimit, "limit", 0, "max packages this run (default anthropic.batch_size)")
	rootCmd.AddCommand(summarizeCmd)
}
