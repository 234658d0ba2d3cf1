package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brensch/dumpstats/internal/processor"
)

var processorsCmd = &cobra.Command{
	Use:   "processors",
	Short: "List the available processors",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg := processor.DefaultRegistry()
		for _, name := range reg.Names() {
			fmt.Printf("%-20s %s\n", name, reg.Describe(name))
		}
		return nil
	},
}
