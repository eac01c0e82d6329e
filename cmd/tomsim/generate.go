package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tomsim/trace"
)

var (
	generateOut    string
	generateNum    int
	generateSeed   int64
	generateConfig string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a random trace file",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true

		config := loadConfig(generateConfig)
		stream := trace.NewGenerator(generateSeed, config.MemoryWords).
			Generate(generateNum)

		if generateOut == "" {
			fmt.Print(trace.Format(stream))
			return
		}

		if err := trace.WriteFile(generateOut, stream); err != nil {
			log.Fatalf("Error writing trace: %v", err)
		}
		fmt.Printf("Wrote %d instructions to %s\n", generateNum, generateOut)
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOut, "out", "",
		"output trace file (stdout if empty)")
	generateCmd.Flags().IntVar(&generateNum, "num", 10,
		"number of instructions to generate")
	generateCmd.Flags().Int64Var(&generateSeed, "seed", 0,
		"random seed; the same seed always produces the same trace")
	generateCmd.Flags().StringVar(&generateConfig, "config", "",
		"JSON machine configuration file, used for the memory size")

	rootCmd.AddCommand(generateCmd)
}
