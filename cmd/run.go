package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/app"
	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/orchestrator"
)

const tuiLogFile = "dumpstats-tui.log"

var (
	runDate       string
	runLatest     bool
	runProcessors []string
	runTUI        bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Analyse one dump with the selected processors",
	Long: `Resolves the dump for --date (or the latest published dump with --latest),
downloading it from a mirror if it is not available locally, then streams every
entity through the processors given with --processors. Results are written to
<data-dir>/<date>/.

A processor that fails on an entity is dropped from the run and reported at the
end; the others carry on. Use --parquet to also write counters as Parquet for
the 'inspect' command.`,
	Example: `  dumpstats run --date 20160104 --processors metric,reference
  dumpstats run --latest --processors baddate --tui`,
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg, err := getConfig()
		if err != nil {
			return err
		}

		date := runDate
		switch {
		case runLatest && date != "":
			return fmt.Errorf("--date and --latest are mutually exclusive")
		case runLatest:
			date = dump.Latest
		case date == "":
			return fmt.Errorf("one of --date or --latest is required")
		}

		req := orchestrator.Request{Date: date, Processors: runProcessors}
		deps := orchestrator.Deps{DB: getDB()}

		var summary orchestrator.Summary
		if runTUI {
			l := logger
			if logOutput == "" || strings.EqualFold(logOutput, "stderr") || strings.EqualFold(logOutput, "stdout") {
				// the view owns the terminal
				f, err := os.OpenFile(filepath.Join(cfg.DataDir, tuiLogFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err != nil {
					return fmt.Errorf("open tui log file: %w", err)
				}
				defer f.Close()
				l = newLogger(f)
			}
			summary, err = app.Run(cmd.Context(), "dumpstats "+date, deps, func(ctx context.Context, d orchestrator.Deps) (orchestrator.Summary, error) {
				return orchestrator.RunAnalysis(ctx, *cfg, req, d, l)
			})
		} else {
			summary, err = orchestrator.RunAnalysis(cmd.Context(), *cfg, req, deps, logger)
		}

		for _, st := range summary.Processors {
			fmt.Printf("%-20s %s\n", st.Name, st.State)
			if st.Failure != nil {
				fmt.Printf("    %v\n", st.Failure)
			}
		}
		if err != nil {
			return fmt.Errorf("run failed: %w", err)
		}
		if summary.Failed() {
			logger.Warn("Some processors failed, their outputs are partial.", slog.Int("failed", len(summary.Failures)))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "Dump date (YYYYMMDD)")
	runCmd.Flags().BoolVar(&runLatest, "latest", false, "Analyse the most recent published dump")
	runCmd.Flags().StringSliceVarP(&runProcessors, "processors", "p", nil, "Processors to run, comma separated (see 'dumpstats processors')")
	runCmd.MarkFlagRequired("processors")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a progress view instead of log lines")
	runCmd.Flags().Bool("parquet", false, "Also write counters as Parquet")
}
