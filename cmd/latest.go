package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/dump"
	"github.com/brensch/dumpstats/internal/orchestrator"
)

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Print the date of the most recent published dump",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfig()
		if err != nil {
			return err
		}
		resolver := orchestrator.NewResolver(*cfg, nil, nil, getLogger())
		id, err := resolver.ResolveDate(cmd.Context(), dump.Identifier{Project: cfg.Project, Date: dump.Latest})
		if err != nil {
			return err
		}
		fmt.Println(id.Date)
		return nil
	},
}
