// Command stagectl runs stage resolution and undo checks against local files.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Global flags
var (
	catalogPath     string
	eventsPath      string
	unitPath        string
	warehousingPath string
)

var rootCmd = &cobra.Command{
	Use:   "stagectl",
	Short: "Inspect garment production progress offline",
	Long: `stagectl evaluates a production unit against its stage catalog using
exported files instead of the live service.

Examples:
  stagectl resolve --catalog stages.yaml --events events.json --unit unit.json
  stagectl resolve --catalog stages.yaml --events events.json --unit unit.json --warehousing records.json
  stagectl undo-check --catalog stages.yaml --events events.json --unit unit.json --scan S-1`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "Stage catalog YAML (default catalog when empty)")
	rootCmd.PersistentFlags().StringVar(&eventsPath, "events", "", "Scan events JSON array")
	rootCmd.PersistentFlags().StringVar(&unitPath, "unit", "", "Production unit JSON")
	rootCmd.PersistentFlags().StringVar(&warehousingPath, "warehousing", "", "Warehousing records JSON array")
	_ = rootCmd.MarkPersistentFlagRequired("events")
	_ = rootCmd.MarkPersistentFlagRequired("unit")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(undoCheckCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}
