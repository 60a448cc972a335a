package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/gps-cli/internal/config"
	"github.com/sells-group/gps-cli/internal/importer"
	"github.com/sells-group/gps-cli/internal/rollup"
)

var areasFile string

var areasCmd = &cobra.Command{
	Use:   "areas",
	Short: "Manage the area to region directory",
}

var areasLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Upsert area to region mappings from a YAML file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeImport); err != nil {
			return err
		}
		areas, err := importer.LoadAreas(areasFile)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpsertAreas(ctx, areas); err != nil {
			return eris.Wrap(err, "upsert areas")
		}
		zap.L().Info("areas loaded", zap.Int("areas", len(areas)), zap.String("file", areasFile))
		return nil
	},
}

var areasListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the area directory grouped by region",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		areas, err := st.ListAreas(ctx)
		if err != nil {
			return eris.Wrap(err, "list areas")
		}
		dir := rollup.NewDirectory(areas)
		regions := make(map[string][]string)
		for _, r := range dir.Regions() {
			regions[r] = dir.Areas(r)
		}
		if unmapped := dir.Areas(""); len(unmapped) > 0 {
			regions["unassigned"] = unmapped
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{"regions": regions})
	},
}

func init() {
	areasLoadCmd.Flags().StringVar(&areasFile, "file", "", "path to areas YAML (required)")
	_ = areasLoadCmd.MarkFlagRequired("file")
	areasCmd.AddCommand(areasLoadCmd, areasListCmd)
	rootCmd.AddCommand(areasCmd)
}
