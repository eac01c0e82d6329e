package tomasulo

import (
	"fmt"

	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
)

// A Unit is one functional unit. Units are data, not goroutines: "busy"
// means a countdown is in progress, and parallel units are simply distinct
// counters.
type Unit struct {
	Name  string
	Class insts.UnitClass

	Busy       bool
	Station    int
	CyclesLeft int64
}

// Bank owns every functional unit and the latency table.
type Bank struct {
	units [insts.NumUnitClasses][]*Unit
	table *latency.Table
}

// NewBank builds the functional units from the configuration.
func NewBank(table *latency.Table) *Bank {
	b := &Bank{table: table}

	prefixes := [insts.NumUnitClasses]string{"ALU", "MULDIV", "LOADSTORE"}
	for class := insts.UnitClass(0); class < insts.NumUnitClasses; class++ {
		n := table.Units(class)
		for i := 0; i < n; i++ {
			b.units[class] = append(b.units[class], &Unit{
				Name:    fmt.Sprintf("%s%d", prefixes[class], i+1),
				Class:   class,
				Station: NoTag,
			})
		}
	}

	return b
}

// Units returns the units of one class.
func (b *Bank) Units(class insts.UnitClass) []*Unit {
	return b.units[class]
}

// AllUnits returns every unit, grouped by class.
func (b *Bank) AllUnits() []*Unit {
	var all []*Unit
	for class := insts.UnitClass(0); class < insts.NumUnitClasses; class++ {
		all = append(all, b.units[class]...)
	}
	return all
}

// AnyBusy reports whether any unit is still executing.
func (b *Bank) AnyBusy() bool {
	for _, u := range b.AllUnits() {
		if u.Busy {
			return true
		}
	}
	return false
}

// freeUnit returns an idle unit of the class, or nil.
func (b *Bank) freeUnit(class insts.UnitClass) *Unit {
	for _, u := range b.units[class] {
		if !u.Busy {
			return u
		}
	}
	return nil
}

// Dispatch begins execution of a ready station entry on a free unit of its
// class. The dispatch decision is made in the cycle the operands became
// ready, but the unit starts computing in the next cycle, so the recorded
// dispatch timestamp is cycle+1 and the completion cycle is cycle+latency.
//
// For loads and stores the effective address is computed here; the memory
// itself is touched only at commit.
//
// Dispatch returns false when no unit of the class is free.
func (b *Bank) Dispatch(tag int, s *Station, cycle int64) (bool, error) {
	class, err := s.Op.Class()
	if err != nil {
		return false, &insts.UnknownOpcodeError{Seq: s.Inst.Seq, Op: s.Op}
	}

	unit := b.freeUnit(class)
	if unit == nil {
		return false, nil
	}

	lat := b.table.Latency(s.Op)
	unit.Busy = true
	unit.Station = tag
	unit.CyclesLeft = lat

	s.Executing = true
	s.CyclesLeft = lat
	s.Inst.DispatchCycle = cycle + 1

	if s.Op.IsMemory() {
		s.Addr = s.Vj + s.Offset
	}

	return true, nil
}

// TickAndDrain advances every busy unit by one cycle and finishes the ones
// whose countdown reached zero: the unit is freed, the station entry is
// marked done, and non-memory results are computed. Finished entries become
// CDB candidates; entries that lose arbitration stay done and re-enter the
// next cycle without re-executing.
func (b *Bank) TickAndDrain(pool *Pool, cycle int64) []int {
	var finished []int

	for _, u := range b.AllUnits() {
		if !u.Busy {
			continue
		}

		s := pool.Station(u.Station)
		u.CyclesLeft--
		s.CyclesLeft--

		if u.CyclesLeft > 0 {
			continue
		}

		s.Executing = false
		s.Done = true
		s.Result = computeResult(s)
		s.Inst.CompleteCycle = cycle
		finished = append(finished, u.Station)

		u.Busy = false
		u.Station = NoTag
	}

	return finished
}

// computeResult evaluates an arithmetic entry. Memory entries defer to
// commit time, so their carried result is meaningless and left at zero.
// Division by zero yields zero.
func computeResult(s *Station) int64 {
	switch s.Op {
	case insts.OpADD:
		return s.Vj + s.Vk
	case insts.OpSUB:
		return s.Vj - s.Vk
	case insts.OpMUL:
		return s.Vj * s.Vk
	case insts.OpDIV:
		if s.Vk == 0 {
			return 0
		}
		return s.Vj / s.Vk
	default:
		return 0
	}
}
