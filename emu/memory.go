package emu

import (
	"encoding/binary"
	"fmt"

	"github.com/sarchlab/akita/v4/mem/mem"
)

const wordSize = 8

// InvalidMemoryAddressError reports a memory access outside [0, size).
// Seq and Cycle are filled in by the scheduler before the error is
// surfaced, so the report names the offending instruction.
type InvalidMemoryAddressError struct {
	Addr  int64
	Size  int64
	Seq   int
	Cycle int64
}

func (e *InvalidMemoryAddressError) Error() string {
	return fmt.Sprintf(
		"instruction %d: memory address %d out of range [0, %d) at cycle %d",
		e.Seq, e.Addr, e.Size, e.Cycle)
}

// Memory is the word-addressable data memory.
//
// Words are 64-bit. The backing store is an Akita storage object, which
// allocates pages lazily, so large memories cost only what is touched.
// Stores reach this object only at write-back, in program order relative
// to other memory operations; the ordering is enforced by the scheduler,
// not here.
type Memory struct {
	storage *mem.Storage
	words   int64
}

// NewMemory creates a memory with the given number of words.
func NewMemory(words int64) *Memory {
	return &Memory{
		storage: mem.NewStorage(uint64(words) * wordSize),
		words:   words,
	}
}

// Words returns the memory size in words.
func (m *Memory) Words() int64 {
	return m.words
}

// Load reads the word at addr.
func (m *Memory) Load(addr int64) (int64, error) {
	if addr < 0 || addr >= m.words {
		return 0, &InvalidMemoryAddressError{Addr: addr, Size: m.words, Seq: -1}
	}

	data, err := m.storage.Read(uint64(addr)*wordSize, wordSize)
	if err != nil {
		return 0, fmt.Errorf("reading word %d: %w", addr, err)
	}

	return int64(binary.LittleEndian.Uint64(data)), nil
}

// Store writes the word at addr.
func (m *Memory) Store(addr int64, value int64) error {
	if addr < 0 || addr >= m.words {
		return &InvalidMemoryAddressError{Addr: addr, Size: m.words, Seq: -1}
	}

	data := make([]byte, wordSize)
	binary.LittleEndian.PutUint64(data, uint64(value))

	if err := m.storage.Write(uint64(addr)*wordSize, data); err != nil {
		return fmt.Errorf("writing word %d: %w", addr, err)
	}

	return nil
}
