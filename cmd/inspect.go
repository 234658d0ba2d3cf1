package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/inspector"
)

var inspectOutput string

var inspectCmd = &cobra.Command{
	Use:   "inspect [key-prefix]",
	Short: "Compare counters across runs",
	Long: `Reads the Parquet copy of one counter output (written by 'run --parquet')
from every dated run under the data directory and prints each matching counter
per run date, with the change from the previous run.`,
	Example:     `  dumpstats inspect --output metrics item.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}

		points, err := inspector.Trend(cmd.Context(), getDB(), cfg.DataDir, inspectOutput, prefix, logger)
		if err != nil {
			return fmt.Errorf("inspection failed: %w", err)
		}
		inspector.PrintTrend(nil, inspectOutput, points)
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectOutput, "output", "o", "metrics", "Counter output to read (metrics, referenceMetrics, ...)")
}
