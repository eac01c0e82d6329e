package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
	"github.com/sarchlab/tomsim/trace"
	"github.com/sarchlab/tomsim/tracing"
)

var (
	runTraceFile  string
	runConfigFile string
	runCSVFile    string
	runDBFile     string
	runStep       bool
	runVerbose    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a trace file through the simulator",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.SilenceUsage = true

		config := loadConfig(runConfigFile)
		stream, err := trace.ParseFile(runTraceFile)
		if err != nil {
			log.Fatalf("Error reading trace: %v", err)
		}

		c := core.NewCore(config)
		c.Reset(stream)

		if runStep {
			stepThrough(c)
			return
		}

		result, err := c.Run()
		if err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}

		printTimings(result)
		fmt.Println(result.Metrics.Report())

		writeTraces(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTraceFile, "trace", "",
		"trace file to simulate")
	runCmd.Flags().StringVar(&runConfigFile, "config", "",
		"JSON machine configuration file (default configuration if empty)")
	runCmd.Flags().StringVar(&runCSVFile, "csv", "",
		"write per-instruction timing to this CSV file")
	runCmd.Flags().StringVar(&runDBFile, "db", "",
		"write per-instruction timing to this SQLite database "+
			"(TOMSIM_DB if empty)")
	runCmd.Flags().BoolVar(&runStep, "step", false,
		"print the machine state after every cycle instead of running to the end")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false,
		"print the final register values after running")
	runCmd.MarkFlagRequired("trace")

	rootCmd.AddCommand(runCmd)
}

func loadConfig(path string) *latency.Config {
	if path == "" {
		return latency.DefaultConfig()
	}

	config, err := latency.LoadConfig(path)
	if err != nil {
		log.Fatalf("Error reading configuration: %v", err)
	}
	return config
}

func stepThrough(c *core.Core) {
	for !c.Done() {
		snap, err := c.Step()
		if err != nil {
			log.Fatalf("Simulation failed: %v", err)
		}
		printSnapshot(snap)
	}
	fmt.Println(c.Stats().Report())
}

func printSnapshot(snap *tomasulo.Snapshot) {
	fmt.Printf("=== Cycle %d ===\n", snap.Cycle)

	if snap.LastCDB != nil {
		if snap.LastCDB.Store {
			fmt.Printf("Store commit: %s (seq %d) value %d\n",
				snap.LastCDB.Station, snap.LastCDB.Seq, snap.LastCDB.Value)
		} else {
			fmt.Printf("CDB: %s (seq %d) value %d\n",
				snap.LastCDB.Station, snap.LastCDB.Seq, snap.LastCDB.Value)
		}
	}

	for _, s := range snap.Stations {
		if !s.Busy {
			continue
		}
		fmt.Printf("  %-10s %-6s seq=%-3d Vj=%-6d Vk=%-6d Qj=%-8s Qk=%-8s\n",
			s.Name, s.Op, s.Seq, s.Vj, s.Vk,
			orFree(s.Qj), orFree(s.Qk))
	}

	fmt.Print("Registers:")
	for i, v := range snap.Registers {
		fmt.Printf(" R%d=%d", i, v)
		if snap.RegisterStatus[i] != "" {
			fmt.Printf("(%s)", snap.RegisterStatus[i])
		}
	}
	fmt.Println()
}

func orFree(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printTimings(result *tomasulo.Result) {
	fmt.Printf("%-4s %-22s %8s %9s %9s %7s\n",
		"Seq", "Instruction", "Issue", "Dispatch", "Complete", "Write")
	for _, t := range result.Timings {
		fmt.Printf("%-4d %-22s %8d %9d %9d %7d\n",
			t.Seq, t.Text, t.Issue, t.Dispatch, t.Complete, t.Write)
	}

	if runVerbose {
		fmt.Print("Final registers:")
		for i, v := range result.Final.Registers {
			fmt.Printf(" R%d=%d", i, v)
		}
		fmt.Println()
	}
}

func writeTraces(result *tomasulo.Result) {
	runID := tracing.NewRunID()
	records := tracing.RecordsFromResult(runID, result)

	if runCSVFile != "" {
		writeWith(tracing.NewCSVWriter(runCSVFile), records)
	}

	dbFile := runDBFile
	if dbFile == "" {
		dbFile = os.Getenv("TOMSIM_DB")
	}
	if dbFile != "" {
		writeWith(tracing.NewSQLiteWriter(dbFile), records)
		fmt.Printf("Timing stored in %s as run %s\n", dbFile, runID)
	}
}

func writeWith(w tracing.Writer, records []tracing.Record) {
	if err := w.Init(); err != nil {
		log.Fatalf("Error opening trace output: %v", err)
	}
	for _, r := range records {
		w.Write(r)
	}
	if err := w.Close(); err != nil {
		log.Fatalf("Error writing trace output: %v", err)
	}
}
