package tomasulo

import (
	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
)

// CDBTransaction describes one common data bus broadcast, or a store
// commit that consumed the bus slot without carrying a register value.
type CDBTransaction struct {
	Station string `json:"station"`
	Tag     int    `json:"tag"`
	Seq     int    `json:"seq"`
	Value   int64  `json:"value"`
	Cycle   int64  `json:"cycle"`
	Store   bool   `json:"store,omitempty"`
}

// StationSnapshot is the observable state of one reservation station or
// memory buffer entry.
type StationSnapshot struct {
	Name       string `json:"name"`
	Busy       bool   `json:"busy"`
	Op         string `json:"op,omitempty"`
	Seq        int    `json:"seq,omitempty"`
	Vj         int64  `json:"vj"`
	Vk         int64  `json:"vk"`
	Qj         string `json:"qj,omitempty"`
	Qk         string `json:"qk,omitempty"`
	Dest       uint8  `json:"dest"`
	Addr       int64  `json:"addr"`
	Executing  bool   `json:"executing"`
	Done       bool   `json:"done"`
	CyclesLeft int64  `json:"cycles_left"`
}

// UnitSnapshot is the observable state of one functional unit.
type UnitSnapshot struct {
	Name       string `json:"name"`
	Busy       bool   `json:"busy"`
	Station    string `json:"station,omitempty"`
	CyclesLeft int64  `json:"cycles_left"`
}

// Snapshot is a read-only copy of the full simulation state after a
// cycle. Mutating a snapshot has no effect on the simulation.
type Snapshot struct {
	Cycle int64 `json:"cycle"`
	PC    int   `json:"pc"`
	Done  bool  `json:"done"`

	Registers []int64 `json:"registers"`
	// RegisterStatus holds, per register, the name of the station that
	// will produce its next value, or "" when the register holds its
	// final value.
	RegisterStatus []string `json:"register_status"`

	Stations []StationSnapshot `json:"stations"`
	Units    []UnitSnapshot    `json:"units"`

	LastCDB *CDBTransaction `json:"last_cdb,omitempty"`
}

// InstructionTiming holds the cycle timestamps recorded for one
// instruction. A value of -1 means the stage was never reached.
type InstructionTiming struct {
	Seq      int    `json:"seq"`
	Text     string `json:"text"`
	Issue    int64  `json:"issue"`
	Dispatch int64  `json:"dispatch"`
	Complete int64  `json:"complete"`
	Write    int64  `json:"write"`
}

// Result is what a completed run produces.
type Result struct {
	Final   *Snapshot           `json:"final"`
	Metrics Metrics             `json:"metrics"`
	Timings []InstructionTiming `json:"timings"`
}

// Snapshot captures the current state. It is safe to call at any time,
// including after a drained run.
func (s *Scheduler) Snapshot() *Snapshot {
	snap := &Snapshot{
		Cycle:     s.cycle,
		PC:        s.pc,
		Done:      s.done,
		Registers: s.regFile.Values(),
		LastCDB:   s.lastCDB,
	}

	snap.RegisterStatus = make([]string, insts.NumRegisters)
	for r := uint8(0); r < insts.NumRegisters; r++ {
		if tag := s.regFile.Producer(r); tag != emu.NoProducer {
			snap.RegisterStatus[r] = s.pool.Station(tag).Name
		}
	}

	for _, st := range s.pool.Stations() {
		snap.Stations = append(snap.Stations, snapshotStation(s.pool, st))
	}
	for _, u := range s.bank.AllUnits() {
		us := UnitSnapshot{
			Name:       u.Name,
			Busy:       u.Busy,
			CyclesLeft: u.CyclesLeft,
		}
		if u.Busy && u.Station != NoTag {
			us.Station = s.pool.Station(u.Station).Name
		}
		snap.Units = append(snap.Units, us)
	}

	return snap
}

func snapshotStation(pool *Pool, st *Station) StationSnapshot {
	ss := StationSnapshot{
		Name:       st.Name,
		Busy:       st.Busy,
		Vj:         st.Vj,
		Vk:         st.Vk,
		Dest:       st.Dest,
		Addr:       st.Addr,
		Executing:  st.Executing,
		Done:       st.Done,
		CyclesLeft: st.CyclesLeft,
	}
	if !st.Busy {
		return ss
	}

	ss.Op = st.Op.String()
	ss.Seq = st.Inst.Seq
	if st.Qj != NoTag {
		ss.Qj = pool.Station(st.Qj).Name
	}
	if st.Qk != NoTag {
		ss.Qk = pool.Station(st.Qk).Name
	}

	return ss
}
