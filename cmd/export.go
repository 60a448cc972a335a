package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/importer"
	"github.com/sells-group/gps-cli/internal/model"
	"github.com/sells-group/gps-cli/internal/resilience"
	"github.com/sells-group/gps-cli/internal/store"
)

var (
	exportOut   string
	exportMonth string
	exportLevel string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write stored summaries to an XLSX workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}

		filter := store.SummaryFilter{Level: model.ScopeLevel(exportLevel)}
		switch filter.Level {
		case "", model.LevelOrganization, model.LevelArea:
		default:
			return &resilience.ValidationError{Field: "level", Value: exportLevel, Msg: "must be organization or area"}
		}
		if exportMonth != "" {
			m, err := monthFlag(exportMonth, model.Month{})
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

		summaries, err := st.ListSummaries(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "list summaries")
		}
		rows, err := importer.ExportSummaries(exportOut, summaries)
		if err != nil {
			return err
		}
		zap.L().Info("export complete", zap.String("file", exportOut), zap.Int("rows", rows))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "summaries.xlsx", "output workbook path")
	exportCmd.Flags().StringVar(&exportMonth, "month", "", "only this month (YYYY-MM)")
	exportCmd.Flags().StringVar(&exportLevel, "level", "", "only this scope level: organization or area")
	rootCmd.AddCommand(exportCmd)
}
