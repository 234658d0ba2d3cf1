package cmd

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/saver"
)

var saveOutput string

var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Saves tables from the DuckDB database to Parquet files",
	Long: `Saves each table of the state database (the event log) into a separate
Parquet file, by default in <data-dir>/state/.`,
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		out := saveOutput
		if out == "" {
			out = filepath.Join(cfg.DataDir, "state")
		}

		logger.Info("Starting table save process...",
			slog.String("db_path", cfg.DbPath),
			slog.String("output_dir", out),
		)
		if err := saver.SaveTablesToParquet(cmd.Context(), getDB(), out, logger); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVarP(&saveOutput, "output", "o", "", "Output directory (default <data-dir>/state)")
}
