package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/importer"
	"github.com/sells-group/gps-cli/internal/store"
)

var (
	importFile  string
	importSheet string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load roster or survey responses from an XLSX workbook",
}

var importRosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Upsert team members from a workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), "roster", func(ctx context.Context, st store.Store, rows [][]string) (int64, error) {
			members, err := importer.ParseRoster(rows)
			if err != nil {
				return 0, err
			}
			return st.UpsertMembers(ctx, members)
		})
	},
}

var importResponsesCmd = &cobra.Command{
	Use:   "responses",
	Short: "Upsert survey responses from a workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), "responses", func(ctx context.Context, st store.Store, rows [][]string) (int64, error) {
			rs, err := importer.ParseResponses(rows)
			if err != nil {
				return 0, err
			}
			return st.UpsertResponses(ctx, rs)
		})
	},
}

func runImport(ctx context.Context, kind string, load func(ctx context.Context, st store.Store, rows [][]string) (int64, error)) error {
	if err := cfg.Validate(config.ModeImport); err != nil {
		return err
	}
	rows, err := importer.ReadXLSX(importFile, importer.XLSXOptions{SheetName: importSheet})
	if err != nil {
		return err
	}

	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	n, err := load(ctx, st, rows)
	if err != nil {
		return eris.Wrapf(err, "import %s", kind)
	}

	zap.L().Info("import complete",
		zap.String("kind", kind),
		zap.String("file", importFile),
		zap.Int64("upserted", n),
	)
	return nil
}

func init() {
	importCmd.PersistentFlags().StringVar(&importFile, "file", "", "path to XLSX workbook (required)")
	importCmd.PersistentFlags().StringVar(&importSheet, "sheet", "", "sheet name (default first sheet)")
	_ = importCmd.MarkPersistentFlagRequired("file")
	importCmd.AddCommand(importRosterCmd, importResponsesCmd)
	rootCmd.AddCommand(importCmd)
}
