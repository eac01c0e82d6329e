package tomasulo_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

func TestTomasulo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Tomasulo Suite")
}

func arith(seq int, op insts.Op, dest, src1, src2 uint8) *insts.Instruction {
	inst, err := insts.NewArithmetic(seq, op, dest, src1, src2)
	Expect(err).ToNot(HaveOccurred())
	return inst
}

func load(seq int, dest, base uint8, offset int64) *insts.Instruction {
	inst, err := insts.NewLoad(seq, dest, base, offset)
	Expect(err).ToNot(HaveOccurred())
	return inst
}

func store(seq int, src, base uint8, offset int64) *insts.Instruction {
	inst, err := insts.NewStore(seq, src, base, offset)
	Expect(err).ToNot(HaveOccurred())
	return inst
}

func newSim(
	config *latency.Config,
	regs []int64,
	stream []*insts.Instruction,
) *tomasulo.Scheduler {
	table := latency.NewTableWithConfig(config)
	regFile := emu.NewRegFile(regs)
	memory := emu.NewMemory(config.MemoryWords)
	return tomasulo.NewScheduler(stream, table, regFile, memory)
}

var _ = Describe("Scheduler", func() {
	var config *latency.Config

	BeforeEach(func() {
		config = latency.DefaultConfig()
	})

	Context("data dependency through the bus", func() {
		// ADD R1, R2, R3 followed by MUL R4, R1, R5. The MUL must wait
		// in its station until the ADD's broadcast delivers R1.
		var (
			add, mul *insts.Instruction
			sim      *tomasulo.Scheduler
		)

		BeforeEach(func() {
			add = arith(0, insts.OpADD, 1, 2, 3)
			mul = arith(1, insts.OpMUL, 4, 1, 5)
			sim = newSim(config, []int64{0, 0, 2, 3, 0, 7}, []*insts.Instruction{add, mul})
		})

		It("should forward the result and dispatch the consumer the next cycle", func() {
			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(add.IssueCycle).To(Equal(int64(1)))
			Expect(add.DispatchCycle).To(Equal(int64(3)))
			Expect(add.CompleteCycle).To(Equal(int64(4)))
			Expect(add.WriteCycle).To(Equal(int64(4)))

			Expect(mul.IssueCycle).To(Equal(int64(2)))
			Expect(mul.DispatchCycle).To(Equal(add.WriteCycle + 1))
			Expect(mul.WriteCycle).To(Equal(int64(14)))

			Expect(result.Final.Registers[1]).To(Equal(int64(5)))
			Expect(result.Final.Registers[4]).To(Equal(int64(35)))
		})
	})

	Context("structural hazards", func() {
		It("should block issue in order when no mul/div station is free", func() {
			// Two MULDIV stations; the third MUL waits at issue until the
			// first one's station is released by its broadcast.
			m1 := arith(0, insts.OpMUL, 1, 2, 3)
			m2 := arith(1, insts.OpMUL, 4, 5, 6)
			m3 := arith(2, insts.OpMUL, 7, 2, 3)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 5, 6, 0},
				[]*insts.Instruction{m1, m2, m3})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(m1.IssueCycle).To(Equal(int64(1)))
			Expect(m2.IssueCycle).To(Equal(int64(2)))
			Expect(m1.WriteCycle).To(Equal(int64(12)))
			Expect(m3.IssueCycle).To(Equal(m1.WriteCycle))

			Expect(result.Metrics.StallCycles).To(Equal(int64(9)))
			Expect(result.Final.Registers[1]).To(Equal(int64(6)))
			Expect(result.Final.Registers[4]).To(Equal(int64(30)))
			Expect(result.Final.Registers[7]).To(Equal(int64(6)))
		})

		It("should hold a ready entry until a unit frees up", func() {
			// One mul/div unit. The second MUL has its operands from
			// issue but cannot dispatch until the first finishes.
			m1 := arith(0, insts.OpMUL, 1, 2, 3)
			m2 := arith(1, insts.OpMUL, 4, 5, 6)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 5, 6, 0},
				[]*insts.Instruction{m1, m2})

			_, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(m1.DispatchCycle).To(Equal(int64(3)))
			Expect(m1.WriteCycle).To(Equal(int64(12)))
			Expect(m2.DispatchCycle).To(Equal(int64(13)))
		})
	})

	Context("register renaming", func() {
		It("should not let a superseded producer overwrite the register", func() {
			// MUL R1 issues first but finishes after ADD R1 renamed the
			// register. The MUL's broadcast must leave R1 alone.
			mul := arith(0, insts.OpMUL, 1, 2, 3)
			add := arith(1, insts.OpADD, 1, 4, 5)
			sim := newSim(config, []int64{0, 0, 2, 3, 4, 5, 0, 0},
				[]*insts.Instruction{mul, add})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(add.WriteCycle).To(BeNumerically("<", mul.WriteCycle))
			Expect(result.Final.Registers[1]).To(Equal(int64(9)))
		})

		It("should route a consumer to the newest producer", func() {
			// SUB reads R1 after the rename, so it must see the ADD's
			// value, not the MUL's.
			mul := arith(0, insts.OpMUL, 1, 2, 3)
			add := arith(1, insts.OpADD, 1, 4, 5)
			sub := arith(2, insts.OpSUB, 6, 1, 2)
			sim := newSim(config, []int64{0, 0, 2, 3, 4, 5, 0, 0},
				[]*insts.Instruction{mul, add, sub})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(result.Final.Registers[6]).To(Equal(int64(7)))
		})
	})

	Context("memory ordering", func() {
		It("should make a store visible to a later load at the same address", func() {
			// STORE 0(R1), R2 then LOAD R3, 0(R1).
			st := store(0, 2, 1, 0)
			ld := load(1, 3, 1, 0)
			sim := newSim(config, []int64{0, 6, 42, 0, 0, 0, 0, 0},
				[]*insts.Instruction{st, ld})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(ld.WriteCycle).To(BeNumerically(">", st.WriteCycle))
			Expect(result.Final.Registers[3]).To(Equal(int64(42)))
		})

		It("should hold a finished load behind an uncommitted earlier store", func() {
			// The store's address depends on a slow MUL, so the load
			// finishes executing first. It still must not commit until
			// the store has.
			config.LoadStoreUnits = 2

			mul := arith(0, insts.OpMUL, 1, 5, 6) // R1 = 6
			st := store(1, 2, 1, 0)               // mem[6] = 42
			ld := load(2, 3, 4, 0)                // R3 = mem[6]
			sim := newSim(config, []int64{0, 0, 42, 0, 6, 2, 3, 0},
				[]*insts.Instruction{mul, st, ld})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(ld.CompleteCycle).To(BeNumerically("<", st.CompleteCycle))
			Expect(st.WriteCycle).To(Equal(int64(17)))
			Expect(ld.WriteCycle).To(Equal(int64(18)))
			Expect(result.Final.Registers[3]).To(Equal(int64(42)))
		})
	})

	Context("the common data bus", func() {
		It("should commit at most one entry per cycle", func() {
			stream := []*insts.Instruction{
				arith(0, insts.OpADD, 1, 2, 3),
				arith(1, insts.OpSUB, 4, 2, 3),
				arith(2, insts.OpADD, 5, 2, 3),
				arith(3, insts.OpSUB, 6, 2, 3),
			}
			sim := newSim(config, []int64{0, 0, 9, 4, 0, 0, 0, 0}, stream)

			writes := map[int64]int{}
			for !sim.Done() {
				snap, err := sim.Step()
				Expect(err).ToNot(HaveOccurred())
				if snap.LastCDB != nil {
					writes[snap.LastCDB.Cycle]++
				}
			}

			for _, n := range writes {
				Expect(n).To(Equal(1))
			}

			seen := map[int64]bool{}
			for _, inst := range stream {
				Expect(inst.WriteCycle).To(BeNumerically(">", 0))
				Expect(seen[inst.WriteCycle]).To(BeFalse())
				seen[inst.WriteCycle] = true
			}
		})

		It("should break completion ties by sequence id", func() {
			// With a one-cycle SUB the two entries finish on parallel
			// units in the same cycle; the older one broadcasts first.
			config.SubLatency = 1
			a0 := arith(0, insts.OpADD, 1, 2, 3)
			a1 := arith(1, insts.OpSUB, 4, 2, 3)
			sim := newSim(config, []int64{0, 0, 9, 4, 0, 0, 0, 0},
				[]*insts.Instruction{a0, a1})

			_, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(a0.CompleteCycle).To(Equal(a1.CompleteCycle))
			Expect(a0.WriteCycle).To(Equal(int64(4)))
			Expect(a1.WriteCycle).To(Equal(int64(5)))
		})
	})

	Context("arithmetic edge cases", func() {
		It("should define division by zero as zero", func() {
			div := arith(0, insts.OpDIV, 1, 2, 3)
			sim := newSim(config, []int64{0, 0, 10, 0, 0, 0, 0, 0},
				[]*insts.Instruction{div})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())
			Expect(result.Final.Registers[1]).To(Equal(int64(0)))
		})
	})

	Context("fatal conditions", func() {
		It("should fail a load outside the memory range", func() {
			ld := load(0, 1, 2, 0)
			sim := newSim(config, []int64{0, 0, config.MemoryWords, 0, 0, 0, 0, 0},
				[]*insts.Instruction{ld})

			_, err := sim.Run()
			Expect(err).To(HaveOccurred())

			var fault *emu.InvalidMemoryAddressError
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Seq).To(Equal(0))
			Expect(fault.Cycle).To(BeNumerically(">", 0))
		})

		It("should keep returning the same error after a fault", func() {
			ld := load(0, 1, 2, -1)
			sim := newSim(config, []int64{0, 0, 0, 0, 0, 0, 0, 0},
				[]*insts.Instruction{ld})

			_, err := sim.Run()
			Expect(err).To(HaveOccurred())

			_, again := sim.Step()
			Expect(again).To(Equal(err))
		})

		It("should report divergence when the cycle cap is hit", func() {
			config.MaxCycles = 5
			mul := arith(0, insts.OpMUL, 1, 2, 3)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 0, 0, 0},
				[]*insts.Instruction{mul})

			_, err := sim.Run()
			Expect(err).To(HaveOccurred())

			var div *tomasulo.DivergenceError
			Expect(errors.As(err, &div)).To(BeTrue())
			Expect(div.Cap).To(Equal(int64(5)))
		})
	})

	Context("determinism", func() {
		It("should produce identical results on identical inputs", func() {
			build := func() *tomasulo.Scheduler {
				return newSim(config.Clone(), []int64{0, 10, 20, 30, 40, 50, 60, 70},
					[]*insts.Instruction{
						arith(0, insts.OpMUL, 1, 2, 3),
						arith(1, insts.OpADD, 4, 1, 5),
						store(2, 4, 7, 0),
						load(3, 6, 7, 0),
						arith(4, insts.OpDIV, 2, 6, 3),
					})
			}

			r1, err := build().Run()
			Expect(err).ToNot(HaveOccurred())
			r2, err := build().Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(r1.Timings).To(Equal(r2.Timings))
			Expect(r1.Final.Registers).To(Equal(r2.Final.Registers))
			Expect(r1.Metrics).To(Equal(r2.Metrics))
		})
	})

	Context("stepping", func() {
		It("should expose register status and station contents", func() {
			add := arith(0, insts.OpADD, 1, 2, 3)
			mul := arith(1, insts.OpMUL, 4, 1, 5)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 7, 0, 0},
				[]*insts.Instruction{add, mul})

			snap, err := sim.Step()
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.Cycle).To(Equal(int64(1)))
			Expect(snap.RegisterStatus[1]).To(Equal("ALU1"))

			snap, err = sim.Step()
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.RegisterStatus[4]).To(Equal("MULDIV1"))

			var mulStation *tomasulo.StationSnapshot
			for i := range snap.Stations {
				if snap.Stations[i].Name == "MULDIV1" {
					mulStation = &snap.Stations[i]
				}
			}
			Expect(mulStation).ToNot(BeNil())
			Expect(mulStation.Qj).To(Equal("ALU1"))
			Expect(mulStation.Seq).To(Equal(1))
		})

		It("should not advance a drained simulation", func() {
			add := arith(0, insts.OpADD, 1, 2, 3)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 0, 0, 0},
				[]*insts.Instruction{add})

			_, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())
			final := sim.Cycle()

			snap, err := sim.Step()
			Expect(err).ToNot(HaveOccurred())
			Expect(snap.Cycle).To(Equal(final))
			Expect(snap.Done).To(BeTrue())
		})
	})

	Context("metrics", func() {
		It("should count cycles, completions, and stalls", func() {
			add := arith(0, insts.OpADD, 1, 2, 3)
			mul := arith(1, insts.OpMUL, 4, 1, 5)
			sim := newSim(config, []int64{0, 0, 2, 3, 0, 7, 0, 0},
				[]*insts.Instruction{add, mul})

			result, err := sim.Run()
			Expect(err).ToNot(HaveOccurred())

			Expect(result.Metrics.TotalCycles).To(Equal(int64(14)))
			Expect(result.Metrics.CompletedInstructions).To(Equal(int64(2)))
			Expect(result.Metrics.IPC()).To(BeNumerically("~", 2.0/14.0, 1e-9))
		})
	})
})
