// Package monitoring turns a simulation into a web server so the
// simulator can be controlled and observed over HTTP.
package monitoring

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"

	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/trace"
)

// Monitor serves one simulation instance over HTTP. All endpoints
// serialize on one lock, so concurrent requests observe consistent
// state.
type Monitor struct {
	lock sync.Mutex
	core *core.Core

	portNumber int
	port       int
}

// NewMonitor creates a monitor over the given simulation.
func NewMonitor(c *core.Core) *Monitor {
	return &Monitor{core: c}
}

// WithPortNumber sets the port to listen on. Ports below 1000 are
// rejected and replaced with a random port.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is not allowed for the simulation server. "+
				"Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// Port returns the port the server listens on, available after
// StartServer.
func (m *Monitor) Port() int {
	return m.port
}

// Router builds the HTTP routes.
func (m *Monitor) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/reset", m.reset).Methods(http.MethodPost)
	r.HandleFunc("/api/step", m.step).Methods(http.MethodPost)
	r.HandleFunc("/api/run", m.run).Methods(http.MethodPost)
	r.HandleFunc("/api/generate", m.generate).Methods(http.MethodPost)
	r.HandleFunc("/api/state", m.state).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics", m.listMetrics).Methods(http.MethodGet)
	r.HandleFunc("/api/config", m.showConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/resource", m.listResources).Methods(http.MethodGet)

	return r
}

// StartServer starts serving in the background and reports the address.
func (m *Monitor) StartServer() error {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return err
	}

	m.port = listener.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stderr,
		"Simulation served at http://localhost:%d\n", m.port)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	return nil
}

type resetReq struct {
	Trace  string          `json:"trace"`
	Config *latency.Config `json:"config,omitempty"`
}

func (m *Monitor) reset(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	stream, err := trace.Parse(strings.NewReader(req.Trace))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m.lock.Lock()
	defer m.lock.Unlock()

	if req.Config != nil {
		if err := m.core.Reconfigure(req.Config); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	m.core.Reset(stream)

	writeJSON(w, m.core.Snapshot())
}

func (m *Monitor) step(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	snap, err := m.core.Step()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, snap)
}

func (m *Monitor) run(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	result, err := m.core.Run()
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	writeJSON(w, result)
}

type generateReq struct {
	Count int   `json:"count"`
	Seed  int64 `json:"seed"`
}

func (m *Monitor) generate(w http.ResponseWriter, r *http.Request) {
	var req generateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Count <= 0 {
		http.Error(w, "count must be positive", http.StatusBadRequest)
		return
	}

	m.lock.Lock()
	memWords := m.core.Config().MemoryWords
	m.lock.Unlock()

	stream := trace.NewGenerator(req.Seed, memWords).Generate(req.Count)
	writeJSON(w, map[string]string{"trace": trace.Format(stream)})
}

func (m *Monitor) state(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	writeJSON(w, m.core.Snapshot())
}

type metricsRsp struct {
	TotalCycles           int64   `json:"total_cycles"`
	TotalInstructions     int64   `json:"total_instructions"`
	CompletedInstructions int64   `json:"completed_instructions"`
	StallCycles           int64   `json:"stall_cycles"`
	IPC                   float64 `json:"ipc"`
	RSOccupancy           float64 `json:"rs_occupancy"`
	LSBufferUtilization   float64 `json:"ls_buffer_utilization"`
	StallFraction         float64 `json:"stall_fraction"`
}

func (m *Monitor) listMetrics(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	stats := m.core.Stats()
	writeJSON(w, metricsRsp{
		TotalCycles:           stats.TotalCycles,
		TotalInstructions:     stats.TotalInstructions,
		CompletedInstructions: stats.CompletedInstructions,
		StallCycles:           stats.StallCycles,
		IPC:                   stats.IPC(),
		RSOccupancy:           stats.RSOccupancy(),
		LSBufferUtilization:   stats.LSBufferUtilization(),
		StallFraction:         stats.StallFraction(),
	})
}

func (m *Monitor) showConfig(w http.ResponseWriter, _ *http.Request) {
	m.lock.Lock()
	defer m.lock.Unlock()

	writeJSON(w, m.core.Config())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := proc.CPUPercent()
	dieOnErr(err)

	memorySize, err := proc.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(v)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
