package trace

import (
	"math/rand"

	"github.com/sarchlab/tomsim/insts"
)

// maxOffsetMagnitude bounds generated load/store offsets for readability.
const maxOffsetMagnitude = 32

// A Generator produces random but well-formed instruction streams. It
// emulates the register file and memory while generating, so every memory
// access in the output stays within bounds when the stream runs against
// the default initial registers. The same seed always yields the same
// stream.
type Generator struct {
	rng     *rand.Rand
	regs    [insts.NumRegisters]int64
	mem     []int64
	memSize int64
}

// NewGenerator creates a generator for a machine with the given memory
// size in words.
func NewGenerator(seed int64, memoryWords int64) *Generator {
	g := &Generator{
		rng:     rand.New(rand.NewSource(seed)),
		mem:     make([]int64, memoryWords),
		memSize: memoryWords,
	}
	for i := range g.regs {
		g.regs[i] = int64(10 * i)
	}
	return g
}

// Generate produces n instructions.
func (g *Generator) Generate(n int) []*insts.Instruction {
	stream := make([]*insts.Instruction, 0, n)
	for seq := 0; seq < n; seq++ {
		stream = append(stream, g.next(seq))
	}
	return stream
}

func (g *Generator) next(seq int) *insts.Instruction {
	switch g.rng.Intn(6) {
	case 0:
		return g.arithmetic(seq, insts.OpADD)
	case 1:
		return g.arithmetic(seq, insts.OpSUB)
	case 2:
		return g.arithmetic(seq, insts.OpMUL)
	case 3:
		return g.arithmetic(seq, insts.OpDIV)
	case 4:
		if inst := g.load(seq); inst != nil {
			return inst
		}
		return g.arithmetic(seq, insts.OpADD)
	default:
		if inst := g.store(seq); inst != nil {
			return inst
		}
		return g.arithmetic(seq, insts.OpSUB)
	}
}

// arithmetic emits an ALU or mul/div instruction. R0 is never a
// destination, and DIV never names R0 as its divisor.
func (g *Generator) arithmetic(seq int, op insts.Op) *insts.Instruction {
	dest := uint8(1 + g.rng.Intn(insts.NumRegisters-1))
	src1 := uint8(g.rng.Intn(insts.NumRegisters))
	src2 := uint8(g.rng.Intn(insts.NumRegisters))
	if op == insts.OpDIV {
		src2 = uint8(1 + g.rng.Intn(insts.NumRegisters-1))
	}

	inst, _ := insts.NewArithmetic(seq, op, dest, src1, src2)

	a, b := g.regs[src1], g.regs[src2]
	switch op {
	case insts.OpADD:
		g.regs[dest] = a + b
	case insts.OpSUB:
		g.regs[dest] = a - b
	case insts.OpMUL:
		g.regs[dest] = a * b
	case insts.OpDIV:
		if b == 0 {
			g.regs[dest] = 0
		} else {
			g.regs[dest] = a / b
		}
	}

	return inst
}

// load emits a LOAD with an in-range address, or nil when no base
// register can reach memory.
func (g *Generator) load(seq int) *insts.Instruction {
	base, offset, ok := g.memRef()
	if !ok {
		return nil
	}
	dest := uint8(1 + g.rng.Intn(insts.NumRegisters-1))

	inst, _ := insts.NewLoad(seq, dest, base, offset)
	g.regs[dest] = g.mem[g.regs[base]+offset]
	return inst
}

// store emits a STORE with an in-range address, or nil when no base
// register can reach memory.
func (g *Generator) store(seq int) *insts.Instruction {
	base, offset, ok := g.memRef()
	if !ok {
		return nil
	}
	src := uint8(1 + g.rng.Intn(insts.NumRegisters-1))

	inst, _ := insts.NewStore(seq, src, base, offset)
	g.mem[g.regs[base]+offset] = g.regs[src]
	return inst
}

// memRef picks a base register and an offset whose sum lands inside
// memory, given the emulated register values.
func (g *Generator) memRef() (uint8, int64, bool) {
	start := g.rng.Intn(insts.NumRegisters)
	for i := 0; i < insts.NumRegisters; i++ {
		base := uint8((start + i) % insts.NumRegisters)
		lo, hi, ok := g.offsetWindow(g.regs[base])
		if !ok {
			continue
		}
		return base, lo + g.rng.Int63n(hi-lo+1), true
	}
	return 0, 0, false
}

func (g *Generator) offsetWindow(baseVal int64) (int64, int64, bool) {
	lo := max(-baseVal, -maxOffsetMagnitude)
	hi := min(g.memSize-1-baseVal, maxOffsetMagnitude)
	return lo, hi, lo <= hi
}
