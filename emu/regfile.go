// Package emu provides the architectural state of the simulated machine:
// the register file with its status table, and the data memory.
package emu

import "github.com/sarchlab/tomsim/insts"

// NoProducer marks a register with no in-flight producer: its value can be
// read directly.
const NoProducer = -1

// RegFile represents the register file and the register status table.
//
// Each register holds a value and, when an in-flight instruction will write
// it, the tag of the reservation station that produces the value. At most
// one producer tag is live per register; issuing a new producer for the
// same register overwrites the tag, which is what eliminates WAW and WAR
// hazards.
type RegFile struct {
	values [insts.NumRegisters]int64
	status [insts.NumRegisters]int
}

// NewRegFile creates a register file with all registers available and the
// given initial values. Values beyond the register count are ignored.
func NewRegFile(initial []int64) *RegFile {
	r := &RegFile{}
	for i := range r.status {
		r.status[i] = NoProducer
	}
	for i, v := range initial {
		if i >= insts.NumRegisters {
			break
		}
		r.values[i] = v
	}
	return r
}

// Read returns the committed value of a register.
func (r *RegFile) Read(reg uint8) int64 {
	return r.values[reg]
}

// Write sets the committed value of a register.
func (r *RegFile) Write(reg uint8, value int64) {
	r.values[reg] = value
}

// Producer returns the tag of the reservation station that will write the
// register, or NoProducer if the value is available now.
func (r *RegFile) Producer(reg uint8) int {
	return r.status[reg]
}

// SetProducer records the reservation station that will write the register.
// An existing tag is overwritten: the newest issue always wins (renaming).
func (r *RegFile) SetProducer(reg uint8, tag int) {
	r.status[reg] = tag
}

// ClearProducer marks the register as available again. The caller is
// responsible for checking that the clearing broadcast is not stale.
func (r *RegFile) ClearProducer(reg uint8) {
	r.status[reg] = NoProducer
}

// Available returns true if the register's value can be read directly.
func (r *RegFile) Available(reg uint8) bool {
	return r.status[reg] == NoProducer
}

// Values returns a copy of all register values.
func (r *RegFile) Values() []int64 {
	out := make([]int64, insts.NumRegisters)
	copy(out, r.values[:])
	return out
}

// Producers returns a copy of the register status table.
func (r *RegFile) Producers() []int {
	out := make([]int, insts.NumRegisters)
	copy(out, r.status[:])
	return out
}
