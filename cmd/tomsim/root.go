// Package main provides the tomsim command-line interface.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tomsim",
	Short: "tomsim simulates dynamic instruction scheduling with Tomasulo's algorithm.",
	Long: `tomsim simulates dynamic instruction scheduling with Tomasulo's algorithm. ` +
		`It runs instruction traces through a configurable machine with reservation ` +
		`stations, parallel functional units, and a common data bus, and reports ` +
		`per-instruction timing and performance metrics.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Optional .env file for TOMSIM_PORT and TOMSIM_DB.
		godotenv.Load()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
