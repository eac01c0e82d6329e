package tomasulo

import (
	"fmt"
	"strings"
)

// Metrics holds the performance counters collected during a simulation.
type Metrics struct {
	// TotalCycles is the number of cycles simulated so far.
	TotalCycles int64
	// TotalInstructions is the length of the instruction stream.
	TotalInstructions int64
	// CompletedInstructions is the number of instructions that have
	// written back (or, for stores, committed).
	CompletedInstructions int64
	// StallCycles is the number of cycles in which issue was blocked by
	// a structural hazard.
	StallCycles int64

	rsBusyCycles int64
	rsSlotCycles int64
	lsBusyCycles int64
	lsSlotCycles int64
}

// IPC returns instructions completed per cycle.
func (m *Metrics) IPC() float64 {
	if m.TotalCycles == 0 {
		return 0
	}
	return float64(m.CompletedInstructions) / float64(m.TotalCycles)
}

// RSOccupancy returns the average busy fraction of the arithmetic
// reservation stations, in percent.
func (m *Metrics) RSOccupancy() float64 {
	if m.rsSlotCycles == 0 {
		return 0
	}
	return float64(m.rsBusyCycles) / float64(m.rsSlotCycles) * 100
}

// LSBufferUtilization returns the average busy fraction of the load and
// store buffers, in percent.
func (m *Metrics) LSBufferUtilization() float64 {
	if m.lsSlotCycles == 0 {
		return 0
	}
	return float64(m.lsBusyCycles) / float64(m.lsSlotCycles) * 100
}

// StallFraction returns stall cycles as a percentage of total cycles.
func (m *Metrics) StallFraction() float64 {
	if m.TotalCycles == 0 {
		return 0
	}
	return float64(m.StallCycles) / float64(m.TotalCycles) * 100
}

// observeOccupancy samples station occupancy for the current cycle.
func (m *Metrics) observeOccupancy(pool *Pool) {
	for _, group := range []stationGroup{groupALU, groupMulDiv} {
		for _, tag := range pool.groups[group] {
			m.rsSlotCycles++
			if pool.Station(tag).Busy {
				m.rsBusyCycles++
			}
		}
	}
	for _, group := range []stationGroup{groupLoad, groupStore} {
		for _, tag := range pool.groups[group] {
			m.lsSlotCycles++
			if pool.Station(tag).Busy {
				m.lsBusyCycles++
			}
		}
	}
}

// Report renders the human-readable metrics summary.
func (m *Metrics) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Performance Metrics ===\n")
	fmt.Fprintf(&b, "Total execution time: %d cycles\n", m.TotalCycles)
	fmt.Fprintf(&b, "Instructions per cycle (IPC): %.2f\n", m.IPC())
	fmt.Fprintf(&b, "Average reservation station occupancy: %.2f%%\n",
		m.RSOccupancy())
	fmt.Fprintf(&b, "Load/store buffer utilization: %.2f%%\n",
		m.LSBufferUtilization())
	fmt.Fprintf(&b, "Structural hazard stalls: %d cycles (%.2f%%)\n",
		m.StallCycles, m.StallFraction())

	return b.String()
}
