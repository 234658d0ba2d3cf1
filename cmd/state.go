package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/db"
)

var stateLimit int
var stateFilterEvent string

var stateCmd = &cobra.Command{
	Use:   "state [dumps|runs|processors]",
	Short: "View the event log of dump resolutions and runs",
	Long: `Queries the DuckDB event log and displays its history, newest first.
Specify 'dumps', 'runs' or 'processors' to filter by subject type, and use
--event to filter by event (e.g. download_end, run_end, processor_failed).`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: map[string]string{needsDB: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		typeFilter := ""
		if len(args) > 0 {
			switch strings.ToLower(args[0]) {
			case "dumps", "dump":
				typeFilter = db.SubjectDump
			case "runs", "run":
				typeFilter = db.SubjectRun
			case "processors", "processor":
				typeFilter = db.SubjectProcessor
			default:
				return fmt.Errorf("invalid subject filter: %s (use 'dumps', 'runs' or 'processors')", args[0])
			}
		}

		logger.Debug("Querying database event log", "type_filter", typeFilter, "event_filter", stateFilterEvent, "limit", stateLimit)
		if err := db.DisplayEventHistory(cmd.Context(), getDB(), typeFilter, stateFilterEvent, stateLimit); err != nil {
			logger.Error("Failed to display state history", "error", err)
			return err
		}

		completed, err := db.GetCompletedRunDates(cmd.Context(), getDB(), logger)
		if err != nil {
			return err
		}
		fmt.Printf("Dumps with a successful run: %d\n", len(completed))
		return nil
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of log records displayed")
	stateCmd.Flags().StringVarP(&stateFilterEvent, "event", "e", "", "Filter records by event (e.g., download_end, run_end, error)")
}
