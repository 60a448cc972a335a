package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/packager"
	"github.com/sells-group/gps-cli/internal/responses"
	"github.com/sells-group/gps-cli/internal/roster"
)

var (
	processMonth   string
	processClearAI bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Compute and store a month's summaries, feedback and packages",
	Long:  "Fetches the roster and the month's survey responses, computes metrics for the organization and every area by role, and writes summaries, feedback and snapshot packages. Defaults to the previous calendar month.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate(config.ModeProcess); err != nil {
			return err
		}
		month, err := monthFlag(processMonth, lastMonth(time.Now()))
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rs, err := rosterSource(st)
		if err != nil {
			return err
		}
		src, err := responseSource(st)
		if err != nil {
			return err
		}
		ar, closeArchive, err := initArchive(ctx)
		if err != nil {
			return err
		}
		defer closeArchive()

		policy := retryPolicy()
		p := packager.New(st,
			roster.NewResolver(rs, policy),
			responses.NewCollector(src, policy),
			ar,
			packager.Options{Concurrency: cfg.Processing.Concurrency, Policy: policy},
		)

		res, err := p.Process(ctx, month, packager.RunOptions{ClearAI: processClearAI})
		if err != nil {
			zap.L().Error("process failed", zap.String("month", month.String()), zap.Error(err))
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	processCmd.Flags().StringVar(&processMonth, "month", "", "month to process as YYYY-MM (default previous month)")
	processCmd.Flags().BoolVar(&processClearAI, "clear-ai", false, "reset AI narratives on rewritten packages")
	rootCmd.AddCommand(processCmd)
}
