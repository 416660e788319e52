package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/gpu-pulse/benchmark"
	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeBench struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeBench) record(lane string, req telemetry.BenchmarkRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s:%s:%d", lane, req.Type, req.Size))
}

func (f *fakeBench) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBench) Run(_ context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	f.record("run", req)
	if f.err != nil {
		return nil, f.err
	}
	return &telemetry.BenchmarkResult{
		Size:        req.MatrixSize(),
		ComputeTime: telemetry.Float(0.5),
		Device:      "worker pool (4 workers)",
	}, nil
}

func (f *fakeBench) Baseline(_ context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	f.record("baseline", req)
	if f.err != nil {
		return nil, f.err
	}
	return &telemetry.BenchmarkResult{
		Size:        req.MatrixSize(),
		ComputeTime: telemetry.Float(2),
		Device:      benchmark.BaselineDevice,
	}, nil
}

func (f *fakeBench) Compare(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.Comparison, error) {
	f.record("compare", req)
	if f.err != nil {
		return nil, f.err
	}
	return &telemetry.Comparison{
		Type:      req.Type,
		GPUResult: &telemetry.BenchmarkResult{Size: req.MatrixSize(), ComputeTime: telemetry.Float(0.5)},
		CPUResult: &telemetry.BenchmarkResult{Size: req.MatrixSize(), ComputeTime: telemetry.Float(2)},
		Speedup:   telemetry.Float(4),
		RequestID: req.RequestID,
	}, nil
}

func newTestServer(t *testing.T, enabled bool, bench Benchmarker) (*Server, *Aggregator) {
	t.Helper()
	metrics := NewMetrics()
	agg := NewAggregator(metrics, nil)
	srv := New(Options{Listen: "127.0.0.1:0", PushInterval: 20 * time.Millisecond, BenchmarksEnabled: enabled}, agg, bench, metrics, nil)
	return srv, agg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body telemetry.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestHealth(t *testing.T) {
	srv, agg := newTestServer(t, true, &fakeBench{})
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	srv.now = func() time.Time { return fixed }
	agg.Apply(gpuUpdate(nil, telemetry.GPUDevice{ID: 0, Name: "RTX"}))

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var h telemetry.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, fixed.Format(time.RFC3339Nano), h.Timestamp)
	assert.True(t, h.GPUAvailable)
	assert.True(t, h.GPUDemosAvailable)
}

type staticStatus []collectors.CollectorStatus

func (s staticStatus) AllStatus() []collectors.CollectorStatus { return s }

func TestHealthReportsCollectors(t *testing.T) {
	metrics := NewMetrics()
	lastRun := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	statuses := staticStatus{
		{Name: "gpu", Description: "gpu [circuit: open]", RunCount: 3, ErrorCount: 3, LastRun: lastRun, LastError: errors.New("exit status 9")},
		{Name: "sysmetrics", RunCount: 10, Healthy: true, LastRun: lastRun, LastLatency: 1500 * time.Microsecond},
	}
	srv := New(Options{Collectors: statuses}, NewAggregator(metrics, nil), nil, metrics, nil)

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var h telemetry.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "healthy", h.Status)
	require.Len(t, h.Collectors, 2)

	gpu := h.Collectors[0]
	assert.Equal(t, "gpu", gpu.Name)
	assert.Equal(t, "gpu [circuit: open]", gpu.Description)
	assert.False(t, gpu.Healthy)
	assert.Equal(t, int64(3), gpu.Errors)
	assert.Equal(t, "exit status 9", gpu.LastError)
	assert.Equal(t, lastRun.Format(time.RFC3339Nano), gpu.LastRun)

	sys := h.Collectors[1]
	assert.True(t, sys.Healthy)
	assert.Equal(t, int64(10), sys.Runs)
	assert.InDelta(t, 1.5, sys.LastLatencyMS, 1e-9)
	assert.Empty(t, sys.LastError)
}

func TestHealthWithoutCollectors(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.NotContains(t, rec.Body.String(), `"collectors"`)
}

func TestHealthWithoutBenchmarks(t *testing.T) {
	srv, _ := newTestServer(t, true, nil)

	rec := do(t, srv.Handler(), http.MethodGet, "/health", "")
	var h telemetry.Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.False(t, h.GPUAvailable)
	assert.False(t, h.GPUDemosAvailable)
}

func TestSystemInfo(t *testing.T) {
	srv, agg := newTestServer(t, true, &fakeBench{})
	agg.Apply(hostUpdate(&telemetry.Stats{
		Timestamp: "2026-01-02T03:04:05Z",
		CPU:       &telemetry.CPUStats{UsagePercent: telemetry.Float(42), Count: 8},
	}))

	rec := do(t, srv.Handler(), http.MethodGet, "/api/system-info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats telemetry.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.NotNil(t, stats.CPU)
	assert.Equal(t, 42.0, *stats.CPU.UsagePercent)
	assert.NotNil(t, stats.GPU)
	assert.Empty(t, stats.GPU)
}

func TestGPUInfo(t *testing.T) {
	srv, agg := newTestServer(t, true, &fakeBench{})

	rec := do(t, srv.Handler(), http.MethodGet, "/api/gpu-info", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"error":"GPU not available"}`, rec.Body.String())

	agg.Apply(gpuUpdate(nil, telemetry.GPUDevice{ID: 0, Name: "RTX", Load: telemetry.Float(0.5)}))
	rec = do(t, srv.Handler(), http.MethodGet, "/api/gpu-info", "")
	var info telemetry.GPUInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Len(t, info.GPUs, 1)
	assert.Equal(t, "RTX", info.GPUs[0].Name)
}

func TestGPUBenchmark(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/gpu-benchmark", `{"type":"matrix_multiply","size":256}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res telemetry.BenchmarkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, 256, res.Size)
	assert.Equal(t, []string{"run:matrix_multiply:256"}, bench.Calls())
}

func TestGPUBenchmarkDefaultsToMatrix(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/gpu-benchmark", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"run:matrix_multiply:0"}, bench.Calls())
}

func TestGPUBenchmarkErrors(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		err     error
		body    string
		status  int
		message string
	}{
		{"disabled", false, nil, `{"type":"matrix_multiply"}`, http.StatusBadRequest, MsgBenchmarksDisabled},
		{"unknown type", true, nil, `{"type":"quantum"}`, http.StatusBadRequest, MsgUnknownBenchmark},
		{"malformed body", true, nil, `{"type":`, http.StatusBadRequest, "invalid request body"},
		{"size too large", true, fmt.Errorf("size 9000: %w", benchmark.ErrSizeTooLarge), `{"size":9000}`, http.StatusBadRequest, "size 9000"},
		{"runner failure", true, errors.New("out of memory"), `{"type":"ml_inference"}`, http.StatusInternalServerError, "out of memory"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.enabled, &fakeBench{err: tt.err})
			rec := do(t, srv.Handler(), http.MethodPost, "/api/gpu-benchmark", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decodeError(t, rec), tt.message)
		})
	}
}

func TestCPUBenchmark(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/cpu-benchmark", `{"type":"matrix_multiply","size":512}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res telemetry.BenchmarkResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, benchmark.BaselineDevice, res.Device)
	assert.Equal(t, []string{"baseline:matrix_multiply:512"}, bench.Calls())
}

func TestCPUBenchmarkRejectsOtherTypes(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)

	rec := do(t, srv.Handler(), http.MethodPost, "/api/cpu-benchmark", `{"type":"image_processing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, MsgBaselineUnsupported, decodeError(t, rec))
	assert.Empty(t, bench.Calls())
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	do(t, srv.Handler(), http.MethodPost, "/api/gpu-benchmark", `{"size":128}`)
	do(t, srv.Handler(), http.MethodGet, "/health", "")

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `gpu_pulse_benchmark_runs_total{lane="accelerated",outcome="ok",type="matrix_multiply"} 1`)
	assert.Contains(t, body, `gpu_pulse_http_requests_total{method="GET",route="/health",status="200"} 1`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	ln, err := listenLocal()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRunRejectsBadAddress(t *testing.T) {
	srv := New(Options{Listen: "not-an-address"}, NewAggregator(nil, nil), nil, nil, nil)
	err := srv.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "listen not-an-address"))
}
