package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/report"
	"github.com/sells-group/gps-cli/internal/resilience"
)

var (
	reportMonth string
	reportRole  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print graded metrics for the organization, areas or a region",
}

var reportOrgCmd = &cobra.Command{
	Use:   "org",
	Short: "Organization metrics with previous-month trend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runReport(cmd, func(ctx context.Context, svc *report.Service, m model.Month, r model.RoleFilter) (any, error) {
			return svc.OrgMetrics(ctx, m, r)
		})
	},
}

var reportAreasCmd = &cobra.Command{
	Use:   "areas [area]",
	Short: "Metrics for every area, or one area when named",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, func(ctx context.Context, svc *report.Service, m model.Month, r model.RoleFilter) (any, error) {
			if len(args) == 1 {
				return svc.AreaDetail(ctx, args[0], m, r)
			}
			return svc.AreaMetrics(ctx, m, r)
		})
	},
}

var reportRegionCmd = &cobra.Command{
	Use:   "region <region>",
	Short: "Weighted rollup of a region's areas",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport(cmd, func(ctx context.Context, svc *report.Service, m model.Month, r model.RoleFilter) (any, error) {
			return svc.RegionMetrics(ctx, args[0], m, r)
		})
	},
}

type reportFunc func(ctx context.Context, svc *report.Service, month model.Month, role model.RoleFilter) (any, error)

func runReport(cmd *cobra.Command, fn reportFunc) error {
	ctx := cmd.Context()
	if err := cfg.Validate(config.ModeReport); err != nil {
		return err
	}
	month, err := monthFlag(reportMonth, model.Month{})
	if err != nil {
		return err
	}
	role, ok := model.ParseRoleFilter(reportRole)
	if !ok {
		return &resilience.ValidationError{Field: "role", Value: reportRole, Msg: "must be All, Setter, Closer or Manager"}
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	out, err := fn(ctx, report.NewService(st, retryPolicy()), month, role)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func init() {
	reportCmd.PersistentFlags().StringVar(&reportMonth, "month", "", "month as YYYY-MM (default latest with data)")
	reportCmd.PersistentFlags().StringVar(&reportRole, "role", "All", "role filter: All, Setter, Closer or Manager")
	reportCmd.AddCommand(reportOrgCmd, reportAreasCmd, reportRegionCmd)
	rootCmd.AddCommand(reportCmd)
}
