// Package main is the entry point of the team activity report cron server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "cronserver",
		Short: "Team activity report cron server",
		Long: `Collects GitHub activity for the team roster, renders weekly and monthly
reports and delivers them on a schedule.

Commands:
  serve     Run the HTTP API and the report scheduler
  report    Generate (and optionally send) one report, then exit`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory containing config.yaml")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newReportCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
