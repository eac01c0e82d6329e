// Package insts provides the instruction model for the Tomasulo simulator.
//
// An instruction carries its program-order sequence id, its opcode, its
// register operands, and the cycle timestamps filled in by the scheduler as
// the instruction moves through issue, dispatch, and write-back.
//
// Usage:
//
//	inst, err := insts.NewArithmetic(0, insts.OpADD, 1, 2, 3)
//	fmt.Println(inst) // ADD R1, R2, R3
package insts

import "fmt"

// NumRegisters is the size of the architectural register file (R0-R7).
const NumRegisters = 8

// Op represents an opcode.
type Op uint8

// Opcodes. The set is closed; anything else is an unknown-opcode error.
const (
	OpUnknown Op = iota
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpLOAD
	OpSTORE
)

var opNames = [...]string{
	OpUnknown: "UNKNOWN",
	OpADD:     "ADD",
	OpSUB:     "SUB",
	OpMUL:     "MUL",
	OpDIV:     "DIV",
	OpLOAD:    "LOAD",
	OpSTORE:   "STORE",
}

// String returns the trace mnemonic for the opcode.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "UNKNOWN"
}

// OpFromMnemonic maps a trace mnemonic to its opcode.
// OpUnknown is returned for anything outside the closed set.
func OpFromMnemonic(s string) Op {
	for op, name := range opNames {
		if Op(op) != OpUnknown && name == s {
			return Op(op)
		}
	}
	return OpUnknown
}

// UnitClass identifies the functional-unit type an opcode executes on.
type UnitClass uint8

// Functional-unit classes.
const (
	UnitALU UnitClass = iota // ADD, SUB
	UnitMulDiv
	UnitLoadStore
	NumUnitClasses = 3
)

// String returns a short name for the unit class.
func (c UnitClass) String() string {
	switch c {
	case UnitALU:
		return "ALU"
	case UnitMulDiv:
		return "MULDIV"
	case UnitLoadStore:
		return "LOADSTORE"
	default:
		return "INVALID"
	}
}

// Class returns the functional-unit class the opcode requires.
func (o Op) Class() (UnitClass, error) {
	switch o {
	case OpADD, OpSUB:
		return UnitALU, nil
	case OpMUL, OpDIV:
		return UnitMulDiv, nil
	case OpLOAD, OpSTORE:
		return UnitLoadStore, nil
	default:
		return 0, &UnknownOpcodeError{Op: o}
	}
}

// IsArithmetic returns true for register-to-register opcodes.
func (o Op) IsArithmetic() bool {
	switch o {
	case OpADD, OpSUB, OpMUL, OpDIV:
		return true
	default:
		return false
	}
}

// IsMemory returns true for LOAD and STORE.
func (o Op) IsMemory() bool {
	return o == OpLOAD || o == OpSTORE
}

// UnknownOpcodeError reports an opcode outside the closed set.
type UnknownOpcodeError struct {
	Seq int
	Op  Op
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("instruction %d: unknown opcode %d", e.Seq, e.Op)
}

// RegisterOutOfRangeError reports a register id outside [0, NumRegisters).
type RegisterOutOfRangeError struct {
	Seq int
	Reg uint8
}

func (e *RegisterOutOfRangeError) Error() string {
	return fmt.Sprintf("instruction %d: register R%d out of range [0, %d)",
		e.Seq, e.Reg, NumRegisters)
}

// Instruction represents one instruction of the trace.
//
// Seq is the program-order position and never changes after construction.
// The cycle timestamps start at -1 and are written only by the scheduler.
type Instruction struct {
	Seq int
	Op  Op

	// Register operands. Dest is unused for STORE; Src2 is unused for
	// LOAD and STORE; Base and Offset are used only by LOAD and STORE.
	Dest   uint8
	Src1   uint8
	Src2   uint8
	Base   uint8
	Offset int64

	// Cycle timestamps, -1 until the corresponding event happens.
	IssueCycle    int64
	DispatchCycle int64
	CompleteCycle int64
	WriteCycle    int64
}

// NewArithmetic creates an ADD, SUB, MUL, or DIV instruction.
func NewArithmetic(seq int, op Op, dest, src1, src2 uint8) (*Instruction, error) {
	if !op.IsArithmetic() {
		return nil, &UnknownOpcodeError{Seq: seq, Op: op}
	}
	if err := checkRegs(seq, dest, src1, src2); err != nil {
		return nil, err
	}

	inst := newInstruction(seq, op)
	inst.Dest = dest
	inst.Src1 = src1
	inst.Src2 = src2

	return inst, nil
}

// NewLoad creates a LOAD instruction reading offset(Rbase) into dest.
func NewLoad(seq int, dest, base uint8, offset int64) (*Instruction, error) {
	if err := checkRegs(seq, dest, base); err != nil {
		return nil, err
	}

	inst := newInstruction(seq, OpLOAD)
	inst.Dest = dest
	inst.Base = base
	inst.Offset = offset

	return inst, nil
}

// NewStore creates a STORE instruction writing src to offset(Rbase).
func NewStore(seq int, src, base uint8, offset int64) (*Instruction, error) {
	if err := checkRegs(seq, src, base); err != nil {
		return nil, err
	}

	inst := newInstruction(seq, OpSTORE)
	inst.Src1 = src
	inst.Base = base
	inst.Offset = offset

	return inst, nil
}

func newInstruction(seq int, op Op) *Instruction {
	return &Instruction{
		Seq:           seq,
		Op:            op,
		IssueCycle:    -1,
		DispatchCycle: -1,
		CompleteCycle: -1,
		WriteCycle:    -1,
	}
}

func checkRegs(seq int, regs ...uint8) error {
	for _, r := range regs {
		if r >= NumRegisters {
			return &RegisterOutOfRangeError{Seq: seq, Reg: r}
		}
	}
	return nil
}

// String renders the instruction in trace syntax.
func (i *Instruction) String() string {
	switch i.Op {
	case OpLOAD:
		return fmt.Sprintf("%s R%d, %d(R%d)", i.Op, i.Dest, i.Offset, i.Base)
	case OpSTORE:
		return fmt.Sprintf("%s %d(R%d), R%d", i.Op, i.Offset, i.Base, i.Src1)
	default:
		return fmt.Sprintf("%s R%d, R%d, R%d", i.Op, i.Dest, i.Src1, i.Src2)
	}
}
