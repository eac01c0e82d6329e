// Package latency provides the machine configuration and per-opcode timing
// for the Tomasulo simulator.
package latency

import (
	"github.com/sarchlab/tomsim/insts"
)

// Table provides per-opcode latency lookups and per-class resource counts
// derived from a Config.
type Table struct {
	config *Config
}

// NewTable creates a latency table with the default configuration.
func NewTable() *Table {
	return &Table{config: DefaultConfig()}
}

// NewTableWithConfig creates a latency table from a custom configuration.
func NewTableWithConfig(config *Config) *Table {
	return &Table{config: config}
}

// Latency returns the execution latency in cycles for the given opcode.
func (t *Table) Latency(op insts.Op) int64 {
	switch op {
	case insts.OpADD:
		return t.config.AddLatency
	case insts.OpSUB:
		return t.config.SubLatency
	case insts.OpMUL:
		return t.config.MulLatency
	case insts.OpDIV:
		return t.config.DivLatency
	case insts.OpLOAD:
		return t.config.LoadLatency
	case insts.OpSTORE:
		return t.config.StoreLatency
	default:
		return 1
	}
}

// Units returns the number of functional units of the given class.
func (t *Table) Units(class insts.UnitClass) int {
	switch class {
	case insts.UnitALU:
		return t.config.ALUUnits
	case insts.UnitMulDiv:
		return t.config.MulDivUnits
	case insts.UnitLoadStore:
		return t.config.LoadStoreUnits
	default:
		return 0
	}
}

// Config returns the underlying configuration.
func (t *Table) Config() *Config {
	return t.config
}
