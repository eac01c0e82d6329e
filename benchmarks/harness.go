// Package benchmarks provides workload infrastructure for validating the
// simulator's timing behavior.
package benchmarks

import (
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
)

// Workload is one named instruction stream with a description of what it
// exercises.
type Workload struct {
	Name        string
	Description string

	Stream func() []*insts.Instruction
}

// Result holds the timing results for a single workload run.
type Result struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// Cycles is the total cycle count for the run.
	Cycles int64 `json:"cycles"`

	// Instructions is the number of completed instructions.
	Instructions int64 `json:"instructions"`

	// IPC is instructions per cycle.
	IPC float64 `json:"ipc"`

	// StallCycles is the number of cycles issue was blocked by a full
	// station group.
	StallCycles int64 `json:"stall_cycles"`

	// RSOccupancy is the mean percentage of reservation stations busy.
	RSOccupancy float64 `json:"rs_occupancy"`
}

// Config controls how the harness runs workloads.
type Config struct {
	// Machine is the machine configuration to simulate.
	Machine *latency.Config

	// Output receives progress messages. Defaults to stdout.
	Output io.Writer
}

// DefaultConfig returns a harness configuration over the default machine.
func DefaultConfig() Config {
	return Config{
		Machine: latency.DefaultConfig(),
		Output:  os.Stdout,
	}
}

// Harness runs workloads and collects their results.
type Harness struct {
	config    Config
	workloads []Workload
}

// NewHarness creates a harness with the given configuration.
func NewHarness(config Config) *Harness {
	if config.Machine == nil {
		config.Machine = latency.DefaultConfig()
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	return &Harness{config: config}
}

// AddWorkload registers a workload to run.
func (h *Harness) AddWorkload(w Workload) {
	h.workloads = append(h.workloads, w)
}

// RunAll runs every registered workload and returns their results.
func (h *Harness) RunAll() ([]Result, error) {
	results := make([]Result, 0, len(h.workloads))

	for _, w := range h.workloads {
		fmt.Fprintf(h.config.Output, "Running %s...\n", w.Name)

		c := core.NewCore(h.config.Machine)
		c.Reset(w.Stream())

		runResult, err := c.Run()
		if err != nil {
			return nil, fmt.Errorf("workload %s: %w", w.Name, err)
		}

		m := runResult.Metrics
		results = append(results, Result{
			Name:         w.Name,
			Description:  w.Description,
			Cycles:       m.TotalCycles,
			Instructions: m.CompletedInstructions,
			IPC:          m.IPC(),
			StallCycles:  m.StallCycles,
			RSOccupancy:  m.RSOccupancy(),
		})
	}

	return results, nil
}

func findResult(results []Result, name string) *Result {
	for i := range results {
		if results[i].Name == name {
			return &results[i]
		}
	}
	return nil
}
