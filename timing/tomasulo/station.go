// Package tomasulo implements the dynamic-scheduling engine: reservation
// stations, functional units, the common data bus, and the cycle scheduler
// that drives them.
package tomasulo

import (
	"fmt"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
)

// NoTag marks an operand or register with no pending producer.
const NoTag = -1

// A Station is one reservation-station entry. The entry buffers an
// instruction's operands (values or producer tags) from issue until the
// result has been broadcast on the common data bus.
type Station struct {
	Name string
	Op   insts.Op
	Inst *insts.Instruction

	Busy      bool
	Executing bool

	// Vj/Vk hold operand values once known; Qj/Qk hold the tags of the
	// stations that will produce them. A NoTag Q field means the matching
	// V field is valid.
	Vj, Vk int64
	Qj, Qk int

	Dest   uint8
	Offset int64
	Addr   int64

	// CyclesLeft counts down while the entry executes on a unit.
	CyclesLeft int64

	// Done marks an entry whose execution finished but whose result has
	// not won CDB arbitration yet. Result holds the value for non-memory
	// operations; loads read memory at commit time.
	Done   bool
	Result int64
}

// Ready reports whether the entry can be dispatched: both operands present
// and execution not started.
func (s *Station) Ready() bool {
	return s.Busy && !s.Executing && !s.Done && s.Qj == NoTag && s.Qk == NoTag
}

// clear releases the entry after a successful broadcast.
func (s *Station) clear() {
	name := s.Name
	*s = Station{Name: name, Qj: NoTag, Qk: NoTag}
}

// updateOperand fills an operand waiting on tag with value.
func (s *Station) updateOperand(tag int, value int64) {
	if s.Qj == tag {
		s.Qj = NoTag
		s.Vj = value
	}
	if s.Qk == tag {
		s.Qk = NoTag
		s.Vk = value
	}
}

// stationGroup selects which group of the pool an opcode issues into.
// Loads and stores have separate buffers even though they share the
// load/store units.
type stationGroup uint8

const (
	groupALU stationGroup = iota
	groupMulDiv
	groupLoad
	groupStore
	numGroups
)

func groupForOp(op insts.Op) (stationGroup, error) {
	switch op {
	case insts.OpADD, insts.OpSUB:
		return groupALU, nil
	case insts.OpMUL, insts.OpDIV:
		return groupMulDiv, nil
	case insts.OpLOAD:
		return groupLoad, nil
	case insts.OpSTORE:
		return groupStore, nil
	default:
		return 0, &insts.UnknownOpcodeError{Op: op}
	}
}

// Pool holds every reservation station, indexed by tag. A tag is the plain
// index of a station in the pool; register status entries and operand Q
// fields store tags, never pointers.
type Pool struct {
	stations []*Station
	groups   [numGroups][]int
}

// NewPool builds the station pool from the configuration.
func NewPool(config *latency.Config) *Pool {
	p := &Pool{}

	add := func(group stationGroup, prefix string, n int) {
		for i := 0; i < n; i++ {
			tag := len(p.stations)
			s := &Station{
				Name: fmt.Sprintf("%s%d", prefix, i+1),
				Qj:   NoTag,
				Qk:   NoTag,
			}
			p.stations = append(p.stations, s)
			p.groups[group] = append(p.groups[group], tag)
		}
	}

	add(groupALU, "ALU", config.ALUStations)
	add(groupMulDiv, "MULDIV", config.MulDivStations)
	add(groupLoad, "LOAD", config.LoadBuffers)
	add(groupStore, "STORE", config.StoreBuffers)

	return p
}

// Station returns the entry for a tag.
func (p *Pool) Station(tag int) *Station {
	return p.stations[tag]
}

// Stations returns all entries in tag order.
func (p *Pool) Stations() []*Station {
	return p.stations
}

// AnyBusy reports whether any entry is still in flight.
func (p *Pool) AnyBusy() bool {
	for _, s := range p.stations {
		if s.Busy {
			return true
		}
	}
	return false
}

// freeTag returns the lowest free tag of the group, or NoTag.
func (p *Pool) freeTag(group stationGroup) int {
	for _, tag := range p.groups[group] {
		if !p.stations[tag].Busy {
			return tag
		}
	}
	return NoTag
}

// TryIssue allocates a station for the instruction and captures its
// operands from the register file: available registers are copied by
// value, pending ones by producer tag. The destination register's status
// is then pointed at the new entry, overwriting any previous producer.
//
// NoTag is returned when no station of the required group is free — a
// structural hazard. The caller must not issue any later instruction in
// the same cycle.
func (p *Pool) TryIssue(inst *insts.Instruction, regFile *emu.RegFile) (int, error) {
	group, err := groupForOp(inst.Op)
	if err != nil {
		return NoTag, &insts.UnknownOpcodeError{Seq: inst.Seq, Op: inst.Op}
	}

	tag := p.freeTag(group)
	if tag == NoTag {
		return NoTag, nil
	}

	s := p.stations[tag]
	s.Busy = true
	s.Op = inst.Op
	s.Inst = inst

	readOperand := func(reg uint8) (int64, int) {
		if producer := regFile.Producer(reg); producer != emu.NoProducer {
			return 0, producer
		}
		return regFile.Read(reg), NoTag
	}

	switch {
	case inst.Op.IsArithmetic():
		s.Dest = inst.Dest
		s.Vj, s.Qj = readOperand(inst.Src1)
		s.Vk, s.Qk = readOperand(inst.Src2)
		regFile.SetProducer(inst.Dest, tag)

	case inst.Op == insts.OpLOAD:
		s.Dest = inst.Dest
		s.Offset = inst.Offset
		s.Vj, s.Qj = readOperand(inst.Base)
		regFile.SetProducer(inst.Dest, tag)

	case inst.Op == insts.OpSTORE:
		s.Offset = inst.Offset
		s.Vj, s.Qj = readOperand(inst.Base)
		s.Vk, s.Qk = readOperand(inst.Src1)
	}

	return tag, nil
}

// OnBroadcast delivers a CDB value to every entry waiting on the tag.
func (p *Pool) OnBroadcast(tag int, value int64) {
	for _, s := range p.stations {
		if s.Busy {
			s.updateOperand(tag, value)
		}
	}
}

// Release frees the entry after its result has been committed.
func (p *Pool) Release(tag int) {
	p.stations[tag].clear()
}
