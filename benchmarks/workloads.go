package benchmarks

import (
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/trace"
)

func mustArith(seq int, op insts.Op, dest, src1, src2 uint8) *insts.Instruction {
	inst, err := insts.NewArithmetic(seq, op, dest, src1, src2)
	if err != nil {
		panic(err)
	}
	return inst
}

func mustLoad(seq int, dest, base uint8, offset int64) *insts.Instruction {
	inst, err := insts.NewLoad(seq, dest, base, offset)
	if err != nil {
		panic(err)
	}
	return inst
}

func mustStore(seq int, src, base uint8, offset int64) *insts.Instruction {
	inst, err := insts.NewStore(seq, src, base, offset)
	if err != nil {
		panic(err)
	}
	return inst
}

// independentArithmetic issues ADDs with disjoint registers, so every
// entry can execute as soon as a unit is free.
func independentArithmetic(n int) Workload {
	return Workload{
		Name:        "independent_arithmetic",
		Description: "ADDs with no data dependencies between them",
		Stream: func() []*insts.Instruction {
			stream := make([]*insts.Instruction, 0, n)
			for i := 0; i < n; i++ {
				dest := uint8(1 + i%3)
				stream = append(stream,
					mustArith(i, insts.OpADD, dest, 4+dest%3, 0))
			}
			return stream
		},
	}
}

// dependencyChain makes every instruction consume the previous result, so
// nothing can overlap.
func dependencyChain(n int) Workload {
	return Workload{
		Name:        "dependency_chain",
		Description: "each ADD reads the previous ADD's destination",
		Stream: func() []*insts.Instruction {
			stream := make([]*insts.Instruction, 0, n)
			for i := 0; i < n; i++ {
				stream = append(stream, mustArith(i, insts.OpADD, 1, 1, 2))
			}
			return stream
		},
	}
}

// mulDivHeavy saturates the single mul/div unit.
func mulDivHeavy(n int) Workload {
	return Workload{
		Name:        "muldiv_heavy",
		Description: "back-to-back MULs competing for one mul/div unit",
		Stream: func() []*insts.Instruction {
			stream := make([]*insts.Instruction, 0, n)
			for i := 0; i < n; i++ {
				stream = append(stream,
					mustArith(i, insts.OpMUL, uint8(1+i%3), 4, 5))
			}
			return stream
		},
	}
}

// memorySequential alternates stores and loads over a small buffer,
// serializing on the memory commit order.
func memorySequential(n int) Workload {
	return Workload{
		Name:        "memory_sequential",
		Description: "alternating stores and loads at the same addresses",
		Stream: func() []*insts.Instruction {
			stream := make([]*insts.Instruction, 0, n)
			for i := 0; i < n; i++ {
				offset := int64(i % 8)
				if i%2 == 0 {
					stream = append(stream, mustStore(i, 1, 0, offset))
				} else {
					stream = append(stream, mustLoad(i, 2, 0, offset))
				}
			}
			return stream
		},
	}
}

// mixedRandom replays a seeded random stream from the trace generator.
func mixedRandom(n int, seed int64, memoryWords int64) Workload {
	return Workload{
		Name:        "mixed_random",
		Description: "seeded random mix of all opcodes",
		Stream: func() []*insts.Instruction {
			return trace.NewGenerator(seed, memoryWords).Generate(n)
		},
	}
}
