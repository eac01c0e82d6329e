// Package core provides the high-level simulation facade.
// It wires the register file, memory, and the Tomasulo engine together so
// callers only deal with instruction streams and configurations.
package core

import (
	"github.com/sarchlab/tomsim/emu"
	"github.com/sarchlab/tomsim/insts"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
)

// Core owns one simulation instance. Cores are independent; any number of
// them can run side by side.
type Core struct {
	config    *latency.Config
	scheduler *tomasulo.Scheduler

	regFile *emu.RegFile
	memory  *emu.Memory

	initRegs []int64
	stream   []*insts.Instruction
}

// Option configures a Core.
type Option func(*Core)

// WithInitialRegisters sets the register values installed on every reset.
// Without it, register Ri starts at 10*i.
func WithInitialRegisters(values []int64) Option {
	return func(c *Core) {
		c.initRegs = append([]int64(nil), values...)
	}
}

// NewCore creates a core with the given configuration.
func NewCore(config *latency.Config, opts ...Option) *Core {
	c := &Core{config: config.Clone()}
	for _, opt := range opts {
		opt(c)
	}
	if c.initRegs == nil {
		c.initRegs = defaultRegisters()
	}
	c.Reset(nil)
	return c
}

func defaultRegisters() []int64 {
	values := make([]int64, insts.NumRegisters)
	for i := range values {
		values[i] = int64(10 * i)
	}
	return values
}

// Reset discards all simulation state and installs a new instruction
// stream. Passing nil clears the stream; timestamps on the given
// instructions are reset so a stream can be replayed.
func (c *Core) Reset(stream []*insts.Instruction) {
	for _, inst := range stream {
		inst.IssueCycle = -1
		inst.DispatchCycle = -1
		inst.CompleteCycle = -1
		inst.WriteCycle = -1
	}

	c.stream = stream
	c.regFile = emu.NewRegFile(c.initRegs)
	c.memory = emu.NewMemory(c.config.MemoryWords)
	c.scheduler = tomasulo.NewScheduler(
		stream,
		latency.NewTableWithConfig(c.config),
		c.regFile,
		c.memory,
	)
}

// Reconfigure replaces the configuration and resets with an empty stream.
func (c *Core) Reconfigure(config *latency.Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	c.config = config.Clone()
	c.Reset(nil)
	return nil
}

// Config returns a copy of the active configuration.
func (c *Core) Config() *latency.Config {
	return c.config.Clone()
}

// Step advances the simulation one cycle.
func (c *Core) Step() (*tomasulo.Snapshot, error) {
	return c.scheduler.Step()
}

// Run drives the simulation until it drains or fails.
func (c *Core) Run() (*tomasulo.Result, error) {
	return c.scheduler.Run()
}

// Snapshot returns the current state without advancing.
func (c *Core) Snapshot() *tomasulo.Snapshot {
	return c.scheduler.Snapshot()
}

// Done reports whether the current stream has drained.
func (c *Core) Done() bool {
	return c.scheduler.Done()
}

// Stats returns the metrics collected so far.
func (c *Core) Stats() *tomasulo.Metrics {
	return c.scheduler.Metrics()
}
