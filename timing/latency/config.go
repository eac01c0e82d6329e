package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds the machine configuration: how many functional units and
// reservation stations exist per class, the per-opcode execution latencies,
// and the simulation safety limits.
type Config struct {
	// ALUUnits is the number of ADD/SUB functional units. Default: 2.
	ALUUnits int `json:"alu_units"`

	// ALUStations is the number of ADD/SUB reservation stations, shared
	// by all ALU units. Default: 3.
	ALUStations int `json:"alu_stations"`

	// MulDivUnits is the number of MUL/DIV functional units. Default: 1.
	MulDivUnits int `json:"mul_div_units"`

	// MulDivStations is the number of MUL/DIV reservation stations.
	// Default: 2.
	MulDivStations int `json:"mul_div_stations"`

	// LoadStoreUnits is the number of LOAD/STORE functional units,
	// shared by the load and store buffers. Default: 1.
	LoadStoreUnits int `json:"load_store_units"`

	// LoadBuffers is the number of load buffer entries. Default: 2.
	LoadBuffers int `json:"load_buffers"`

	// StoreBuffers is the number of store buffer entries. Default: 2.
	StoreBuffers int `json:"store_buffers"`

	// AddLatency is the execution latency of ADD in cycles. Default: 2.
	AddLatency int64 `json:"add_latency"`

	// SubLatency is the execution latency of SUB in cycles. Default: 2.
	SubLatency int64 `json:"sub_latency"`

	// MulLatency is the execution latency of MUL in cycles. Default: 10.
	MulLatency int64 `json:"mul_latency"`

	// DivLatency is the execution latency of DIV in cycles. Default: 20.
	DivLatency int64 `json:"div_latency"`

	// LoadLatency covers address computation plus memory access for
	// LOAD. Default: 5.
	LoadLatency int64 `json:"load_latency"`

	// StoreLatency covers address computation plus memory access for
	// STORE. Default: 5.
	StoreLatency int64 `json:"store_latency"`

	// MemoryWords is the data memory size in 64-bit words. Default: 1024.
	MemoryWords int64 `json:"memory_words"`

	// MaxCycles is the safety cap for Run. A simulation that has not
	// drained after this many cycles is reported as divergent instead of
	// looping forever. Default: 1000000.
	MaxCycles int64 `json:"max_cycles"`
}

// DefaultConfig returns the classic configuration the simulator ships with.
func DefaultConfig() *Config {
	return &Config{
		ALUUnits:       2,
		ALUStations:    3,
		MulDivUnits:    1,
		MulDivStations: 2,
		LoadStoreUnits: 1,
		LoadBuffers:    2,
		StoreBuffers:   2,
		AddLatency:     2,
		SubLatency:     2,
		MulLatency:     10,
		DivLatency:     20,
		LoadLatency:    5,
		StoreLatency:   5,
		MemoryWords:    1024,
		MaxCycles:      1000000,
	}
}

// LoadConfig loads a Config from a JSON file. Missing fields keep their
// default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// SaveConfig writes the Config to a JSON file.
func (c *Config) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks that the configuration describes a machine that can run.
func (c *Config) Validate() error {
	counts := map[string]int{
		"alu_units":        c.ALUUnits,
		"alu_stations":     c.ALUStations,
		"mul_div_units":    c.MulDivUnits,
		"mul_div_stations": c.MulDivStations,
		"load_store_units": c.LoadStoreUnits,
		"load_buffers":     c.LoadBuffers,
		"store_buffers":    c.StoreBuffers,
	}
	for name, n := range counts {
		if n <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}

	latencies := map[string]int64{
		"add_latency":   c.AddLatency,
		"sub_latency":   c.SubLatency,
		"mul_latency":   c.MulLatency,
		"div_latency":   c.DivLatency,
		"load_latency":  c.LoadLatency,
		"store_latency": c.StoreLatency,
	}
	for name, l := range latencies {
		if l <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}

	if c.MemoryWords <= 0 {
		return fmt.Errorf("memory_words must be > 0")
	}
	if c.MaxCycles <= 0 {
		return fmt.Errorf("max_cycles must be > 0")
	}

	return nil
}

// Clone returns a deep copy of the Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
