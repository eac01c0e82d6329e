package monitoring_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarchlab/tomsim/monitoring"
	"github.com/sarchlab/tomsim/timing/core"
	"github.com/sarchlab/tomsim/timing/latency"
	"github.com/sarchlab/tomsim/timing/tomasulo"
	"github.com/sarchlab/tomsim/trace"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()

	m := monitoring.NewMonitor(core.NewCore(latency.DefaultConfig()))
	server := httptest.NewServer(m.Router())
	t.Cleanup(server.Close)

	return server
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()

	rsp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { rsp.Body.Close() })

	return rsp
}

func TestResetAndState(t *testing.T) {
	server := newServer(t)

	rsp := postJSON(t, server.URL+"/api/reset",
		`{"trace": "ADD R1, R2, R3\nMUL R4, R1, R5\n"}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var snap tomasulo.Snapshot
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&snap))
	assert.Equal(t, int64(0), snap.Cycle)
	assert.False(t, snap.Done)
	assert.Equal(t, int64(20), snap.Registers[2])
}

func TestResetRejectsBadTrace(t *testing.T) {
	server := newServer(t)

	rsp := postJSON(t, server.URL+"/api/reset", `{"trace": "JMP R1\n"}`)
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)
}

func TestResetWithConfig(t *testing.T) {
	server := newServer(t)

	rsp := postJSON(t, server.URL+"/api/reset",
		`{"trace": "ADD R1, R2, R3\n", "config": {
			"alu_units": 1, "alu_stations": 1,
			"mul_div_units": 1, "mul_div_stations": 1,
			"load_store_units": 1, "load_buffers": 1, "store_buffers": 1,
			"add_latency": 7, "sub_latency": 2, "mul_latency": 10,
			"div_latency": 20, "load_latency": 5, "store_latency": 5,
			"memory_words": 64, "max_cycles": 1000
		}}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	runRsp := postJSON(t, server.URL+"/api/run", "")
	require.Equal(t, http.StatusOK, runRsp.StatusCode)

	var result tomasulo.Result
	require.NoError(t, json.NewDecoder(runRsp.Body).Decode(&result))
	// Issue 1, dispatch from 2, seven execute cycles.
	assert.Equal(t, int64(9), result.Metrics.TotalCycles)
}

func TestStepAdvancesOneCycle(t *testing.T) {
	server := newServer(t)

	postJSON(t, server.URL+"/api/reset", `{"trace": "ADD R1, R2, R3\n"}`)

	rsp := postJSON(t, server.URL+"/api/step", "")
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var snap tomasulo.Snapshot
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Cycle)
	assert.Equal(t, "ALU1", snap.RegisterStatus[1])
}

func TestRunReportsMetrics(t *testing.T) {
	server := newServer(t)

	postJSON(t, server.URL+"/api/reset",
		`{"trace": "ADD R1, R2, R3\nMUL R4, R1, R5\n"}`)

	rsp := postJSON(t, server.URL+"/api/run", "")
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var result tomasulo.Result
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&result))
	assert.Equal(t, int64(14), result.Metrics.TotalCycles)
	assert.True(t, result.Final.Done)

	metricsRsp, err := http.Get(server.URL + "/api/metrics")
	require.NoError(t, err)
	defer metricsRsp.Body.Close()

	var metrics map[string]float64
	require.NoError(t, json.NewDecoder(metricsRsp.Body).Decode(&metrics))
	assert.Equal(t, float64(14), metrics["total_cycles"])
	assert.InDelta(t, 2.0/14.0, metrics["ipc"], 1e-9)
}

func TestRunReportsDivergence(t *testing.T) {
	server := newServer(t)

	config := latency.DefaultConfig()
	config.MaxCycles = 3
	body, err := json.Marshal(map[string]any{
		"trace":  "MUL R1, R2, R3\n",
		"config": config,
	})
	require.NoError(t, err)

	postJSON(t, server.URL+"/api/reset", string(body))

	rsp := postJSON(t, server.URL+"/api/run", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rsp.StatusCode)
}

func TestGenerateReturnsParseableTrace(t *testing.T) {
	server := newServer(t)

	rsp := postJSON(t, server.URL+"/api/generate", `{"count": 20, "seed": 3}`)
	require.Equal(t, http.StatusOK, rsp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&body))

	stream, err := trace.Parse(strings.NewReader(body["trace"]))
	require.NoError(t, err)
	assert.Len(t, stream, 20)
}

func TestGenerateRejectsBadCount(t *testing.T) {
	server := newServer(t)

	rsp := postJSON(t, server.URL+"/api/generate", `{"count": 0}`)
	assert.Equal(t, http.StatusBadRequest, rsp.StatusCode)
}

func TestConfigEndpoint(t *testing.T) {
	server := newServer(t)

	rsp, err := http.Get(server.URL + "/api/config")
	require.NoError(t, err)
	defer rsp.Body.Close()

	var config latency.Config
	require.NoError(t, json.NewDecoder(rsp.Body).Decode(&config))
	assert.Equal(t, latency.DefaultConfig(), &config)
}

func TestMethodsAreEnforced(t *testing.T) {
	server := newServer(t)

	rsp, err := http.Get(server.URL + "/api/step")
	require.NoError(t, err)
	defer rsp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, rsp.StatusCode)
}
