package tomasulo

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
)

// DivergenceError reports a simulation that failed to drain before the
// configured safety cap, e.g. because the machine has no unit for an
// opcode class that the stream needs.
type DivergenceError struct {
	Cycle int64
	Cap   int64
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf(
		"simulation diverged: %d cycles elapsed without draining (cap %d)",
		e.Cycle, e.Cap)
}

// Scheduler drives the per-cycle issue/execute/write-back protocol and owns
// all simulation state. One Scheduler is one simulation instance; instances
// share nothing, so any number can coexist.
//
// Within a cycle the phases run in the fixed order write-back, execute,
// issue. Each phase completes all its mutations before the next reads
// state: a broadcast in write-back is visible to the readiness checks of
// the same cycle's execute phase, and a register freed by a broadcast can
// be renamed by the same cycle's issue phase. There is no randomness
// anywhere; every tie-break is lowest sequence id first.
type Scheduler struct {
	stream  []*insts.Instruction
	pool    *Pool
	bank    *Bank
	regFile *emu.RegFile
	memory  *emu.Memory
	table   *latency.Table
	metrics Metrics

	pc    int
	cycle int64
	done  bool
	err   error

	// memQueue holds the sequence ids of issued but uncommitted memory
	// operations in program order. Only the head may commit, which
	// serializes loads and stores against each other.
	memQueue []int

	lastCDB *CDBTransaction
}

// NewScheduler creates a simulation over the given stream and machine
// state. The stream is in program order; sequence ids must match slice
// positions.
func NewScheduler(
	stream []*insts.Instruction,
	table *latency.Table,
	regFile *emu.RegFile,
	memory *emu.Memory,
) *Scheduler {
	s := &Scheduler{
		stream:  stream,
		pool:    NewPool(table.Config()),
		bank:    NewBank(table),
		regFile: regFile,
		memory:  memory,
		table:   table,
	}
	s.metrics.TotalInstructions = int64(len(stream))
	s.done = len(stream) == 0
	return s
}

// Cycle returns the current cycle number.
func (s *Scheduler) Cycle() int64 {
	return s.cycle
}

// Done reports whether the simulation has drained.
func (s *Scheduler) Done() bool {
	return s.done
}

// Metrics returns the counters collected so far.
func (s *Scheduler) Metrics() *Metrics {
	return &s.metrics
}

// Step advances the simulation by exactly one cycle and returns the state
// snapshot after that cycle. Stepping a drained or failed simulation does
// not advance it further.
func (s *Scheduler) Step() (*Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.done {
		return s.Snapshot(), nil
	}

	s.cycle++
	s.metrics.TotalCycles = s.cycle
	s.metrics.observeOccupancy(s.pool)

	if err := s.writeBack(); err != nil {
		s.err = err
		return nil, err
	}
	if err := s.execute(); err != nil {
		s.err = err
		return nil, err
	}
	if err := s.issue(); err != nil {
		s.err = err
		return nil, err
	}

	if s.pc >= len(s.stream) && !s.pool.AnyBusy() && !s.bank.AnyBusy() {
		s.done = true
	}

	return s.Snapshot(), nil
}

// Run repeats Step until the simulation drains, enforcing the configured
// cycle cap. A drained simulation returns its final snapshot and metrics.
func (s *Scheduler) Run() (*Result, error) {
	limit := s.table.Config().MaxCycles

	for !s.done {
		if s.cycle >= limit {
			s.err = &DivergenceError{Cycle: s.cycle, Cap: limit}
			return nil, s.err
		}
		if _, err := s.Step(); err != nil {
			return nil, err
		}
	}

	return &Result{
		Final:   s.Snapshot(),
		Metrics: s.metrics,
		Timings: s.timings(),
	}, nil
}

// writeBack runs CDB arbitration: finished units are drained, at most one
// candidate commits, and the committed value is broadcast to the register
// file and every waiting station.
func (s *Scheduler) writeBack() error {
	s.lastCDB = nil
	s.bank.TickAndDrain(s.pool, s.cycle)

	winner := s.arbitrate()
	if winner == NoTag {
		return nil
	}

	return s.commit(winner)
}

// arbitrate picks the station to commit this cycle: the lowest sequence id
// among all finished entries, except that a finished load or store is not
// eligible until every earlier memory operation has committed.
func (s *Scheduler) arbitrate() int {
	winner := NoTag
	var winnerSeq int

	for tag, st := range s.pool.Stations() {
		if !st.Done {
			continue
		}
		if st.Op.IsMemory() && st.Inst.Seq != s.oldestMemSeq() {
			continue
		}
		if winner == NoTag || st.Inst.Seq < winnerSeq {
			winner = tag
			winnerSeq = st.Inst.Seq
		}
	}

	return winner
}

func (s *Scheduler) oldestMemSeq() int {
	if len(s.memQueue) == 0 {
		return -1
	}
	return s.memQueue[0]
}

// commit finishes the winning entry. Stores write memory directly and
// never broadcast a register value; everything else goes out on the bus.
// A broadcast whose destination register has been renamed since issue is
// stale for register purposes: the waiting stations still receive the
// value, but the register keeps its newer producer.
func (s *Scheduler) commit(tag int) error {
	st := s.pool.Station(tag)
	inst := st.Inst

	if st.Op == insts.OpSTORE {
		if err := s.memory.Store(st.Addr, st.Vk); err != nil {
			return s.memoryFault(err, inst)
		}

		s.lastCDB = &CDBTransaction{
			Station: st.Name,
			Tag:     tag,
			Seq:     inst.Seq,
			Value:   st.Vk,
			Cycle:   s.cycle,
			Store:   true,
		}
		s.retire(tag, inst)
		return nil
	}

	value := st.Result
	if st.Op == insts.OpLOAD {
		// Loads read memory at commit time, after every earlier store
		// has committed.
		v, err := s.memory.Load(st.Addr)
		if err != nil {
			return s.memoryFault(err, inst)
		}
		value = v
	}

	if s.regFile.Producer(st.Dest) == tag {
		s.regFile.Write(st.Dest, value)
		s.regFile.ClearProducer(st.Dest)
	}

	s.pool.OnBroadcast(tag, value)

	s.lastCDB = &CDBTransaction{
		Station: st.Name,
		Tag:     tag,
		Seq:     inst.Seq,
		Value:   value,
		Cycle:   s.cycle,
	}
	s.retire(tag, inst)
	return nil
}

// retire records the write cycle, maintains the memory commit order, and
// releases the station.
func (s *Scheduler) retire(tag int, inst *insts.Instruction) {
	inst.WriteCycle = s.cycle
	if inst.Op.IsMemory() {
		s.memQueue = s.memQueue[1:]
	}
	s.pool.Release(tag)
	s.metrics.CompletedInstructions++
}

func (s *Scheduler) memoryFault(err error, inst *insts.Instruction) error {
	var fault *emu.InvalidMemoryAddressError
	if errors.As(err, &fault) {
		fault.Seq = inst.Seq
		fault.Cycle = s.cycle
	}
	return err
}

// execute dispatches every ready station that can get a unit, oldest
// first. Entries made ready by this cycle's broadcast are eligible now;
// their units begin computing next cycle.
func (s *Scheduler) execute() error {
	var ready []int
	for tag, st := range s.pool.Stations() {
		if st.Ready() {
			ready = append(ready, tag)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return s.pool.Station(ready[i]).Inst.Seq < s.pool.Station(ready[j]).Inst.Seq
	})

	for _, tag := range ready {
		if _, err := s.bank.Dispatch(tag, s.pool.Station(tag), s.cycle); err != nil {
			return err
		}
	}

	return nil
}

// issue attempts to issue the next instruction in program order. A
// structural hazard (no free station) records a stall and blocks all
// later instructions for this cycle, preserving in-order issue.
func (s *Scheduler) issue() error {
	if s.pc >= len(s.stream) {
		return nil
	}

	inst := s.stream[s.pc]
	if err := s.validate(inst); err != nil {
		return err
	}

	tag, err := s.pool.TryIssue(inst, s.regFile)
	if err != nil {
		return err
	}
	if tag == NoTag {
		s.metrics.StallCycles++
		return nil
	}

	inst.IssueCycle = s.cycle
	if inst.Op.IsMemory() {
		s.memQueue = append(s.memQueue, inst.Seq)
	}
	s.pc++

	return nil
}

// validate re-checks an instruction at issue time. The constructors in the
// insts package enforce the same rules, but the engine also accepts
// hand-built streams.
func (s *Scheduler) validate(inst *insts.Instruction) error {
	if _, err := inst.Op.Class(); err != nil {
		return &insts.UnknownOpcodeError{Seq: inst.Seq, Op: inst.Op}
	}

	regs := []uint8{inst.Src1}
	switch {
	case inst.Op.IsArithmetic():
		regs = append(regs, inst.Dest, inst.Src2)
	case inst.Op == insts.OpLOAD:
		regs = []uint8{inst.Dest, inst.Base}
	case inst.Op == insts.OpSTORE:
		regs = append(regs, inst.Base)
	}
	for _, r := range regs {
		if r >= insts.NumRegisters {
			return &insts.RegisterOutOfRangeError{Seq: inst.Seq, Reg: r}
		}
	}

	return nil
}

// timings extracts the per-instruction cycle timestamps.
func (s *Scheduler) timings() []InstructionTiming {
	out := make([]InstructionTiming, 0, len(s.stream))
	for _, inst := range s.stream {
		out = append(out, InstructionTiming{
			Seq:      inst.Seq,
			Text:     inst.String(),
			Issue:    inst.IssueCycle,
			Dispatch: inst.DispatchCycle,
			Complete: inst.CompleteCycle,
			Write:    inst.WriteCycle,
		})
	}
	return out
}
