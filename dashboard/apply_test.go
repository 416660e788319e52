package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/gpu-pulse/series"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

func f(v float64) *float64 { return telemetry.Float(v) }

func newTestState(t *testing.T, capacity int) State {
	t.Helper()
	s, err := NewState(capacity)
	require.NoError(t, err)
	return s
}

// chartValues collects the ChartUpdate payloads by series.
func chartValues(out []Instruction) map[series.Name][]float64 {
	m := make(map[series.Name][]float64)
	for _, inst := range out {
		if cu, ok := inst.(ChartUpdate); ok {
			m[cu.Series] = cu.Values
		}
	}
	return m
}

func findInstruction[T Instruction](out []Instruction) (T, bool) {
	for _, inst := range out {
		if v, ok := inst.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func TestNewState_ZeroFilled(t *testing.T) {
	s := newTestState(t, DefaultCapacity)
	for _, name := range series.DashboardNames {
		snap := s.Series.Snapshot(name)
		assert.Len(t, snap, DefaultCapacity)
		for _, v := range snap {
			assert.Zero(t, v)
		}
	}

	_, err := NewState(0)
	assert.Error(t, err)
}

func TestApply_StatsPushesEverySeries(t *testing.T) {
	s := newTestState(t, 3)
	st := telemetry.Stats{
		CPU:     &telemetry.CPUStats{UsagePercent: f(57.34)},
		Memory:  &telemetry.MemoryStats{Percent: f(40)},
		GPU:     []telemetry.GPUDevice{{Name: "A100", Load: f(0.25), MemoryUsed: f(10), MemoryTotal: f(40), Temperature: f(55)}},
		Network: &telemetry.NetworkStats{BytesRecv: f(2048), BytesSent: f(1024)},
	}

	next, out := Apply(s, StatsReceived{Stats: st})

	assert.Equal(t, []float64{0, 0, 57.34}, next.Series.Snapshot(series.CPU))
	assert.Equal(t, []float64{0, 0, 40}, next.Series.Snapshot(series.Memory))
	assert.Equal(t, []float64{0, 0, 25}, next.Series.Snapshot(series.GPU))
	assert.Equal(t, []float64{0, 0, 2.0}, next.Series.Snapshot(series.NetIn))
	assert.Equal(t, []float64{0, 0, 1.0}, next.Series.Snapshot(series.NetOut))

	charts := chartValues(out)
	assert.Len(t, charts, 5)
	assert.Equal(t, []float64{0, 0, 2.0}, charts[series.NetIn])

	panel, ok := findInstruction[SystemPanel](out)
	require.True(t, ok)
	assert.Equal(t, "57.3%", panel.CPU)
	assert.Equal(t, "40.0%", panel.Memory)
	assert.Equal(t, "N/A", panel.Disk)

	gpu, ok := findInstruction[GPUPanel](out)
	require.True(t, ok)
	assert.True(t, gpu.Online)
	assert.Equal(t, "A100", gpu.Name)
	assert.Equal(t, "25.0%", gpu.Load)
	assert.Equal(t, "25.0%", gpu.Memory)
	assert.Equal(t, "55°C", gpu.Temperature)
}

func TestApply_DoesNotMutateInputState(t *testing.T) {
	s := newTestState(t, 3)
	st := telemetry.Stats{CPU: &telemetry.CPUStats{UsagePercent: f(10)}}

	_, _ = Apply(s, StatsReceived{Stats: st})

	assert.Equal(t, []float64{0, 0, 0}, s.Series.Snapshot(series.CPU))
}

func TestApply_StatsWithoutGPUField(t *testing.T) {
	s := newTestState(t, 2)
	st := telemetry.Stats{CPU: &telemetry.CPUStats{UsagePercent: f(5)}}

	var out []Instruction
	require.NotPanics(t, func() {
		s, out = Apply(s, StatsReceived{Stats: st})
	})

	assert.Equal(t, []float64{0, 0}, s.Series.Snapshot(series.GPU))
	_, ok := findInstruction[GPUPanel](out)
	assert.False(t, ok, "GPU panel must not be redrawn without gpu data")
}

func TestApply_EmptySnapshotDefaultsToZero(t *testing.T) {
	s := newTestState(t, 2)
	s = mustPush(t, s, telemetry.Stats{CPU: &telemetry.CPUStats{UsagePercent: f(9)}})

	next, out := Apply(s, StatsReceived{Stats: telemetry.Stats{}})

	assert.Equal(t, []float64{9, 0}, next.Series.Snapshot(series.CPU))
	panel, ok := findInstruction[SystemPanel](out)
	require.True(t, ok)
	assert.Equal(t, SystemPanel{CPU: "N/A", Memory: "N/A", Disk: "N/A"}, panel)
}

func TestApply_StatsWithErrorIgnored(t *testing.T) {
	s := newTestState(t, 2)

	next, out := Apply(s, StatsReceived{Stats: telemetry.Stats{Error: "psutil failed"}})

	assert.Empty(t, out)
	assert.Equal(t, []float64{0, 0}, next.Series.Snapshot(series.CPU))
}

func TestApply_BenchmarkErrorLeavesBuffers(t *testing.T) {
	s := newTestState(t, 2)
	s = mustPush(t, s, telemetry.Stats{CPU: &telemetry.CPUStats{UsagePercent: f(3)}})
	before := s.Series.Snapshot(series.CPU)

	for _, ev := range []Event{
		ResultReceived{Kind: telemetry.KindMLInference, Result: telemetry.BenchmarkResult{Error: "boom"}},
		BenchmarkFailed{Title: TitleBenchmarkError, Message: "boom"},
	} {
		next, out := Apply(s, ev)

		panel, ok := findInstruction[ErrorPanel](out)
		require.True(t, ok)
		assert.Equal(t, ErrorPanel{Title: TitleBenchmarkError, Message: "boom"}, panel)
		loading, ok := findInstruction[Loading](out)
		require.True(t, ok)
		assert.False(t, loading.Visible)
		_, charted := findInstruction[ChartUpdate](out)
		assert.False(t, charted)
		assert.Equal(t, before, next.Series.Snapshot(series.CPU))
	}
}

func TestApply_BenchmarkLifecycle(t *testing.T) {
	s := newTestState(t, 2)
	req := telemetry.BenchmarkRequest{Type: telemetry.KindMatrixMultiply, Size: 512}

	s, out := Apply(s, BenchmarkRequested{Request: req})
	require.Len(t, out, 1)
	assert.Equal(t, Loading{Visible: true, Text: "Running matrix_multiply benchmark..."}, out[0])
	assert.Equal(t, 1, s.InFlight)

	s, _ = Apply(s, BenchmarkRequested{Request: req})
	assert.Equal(t, 2, s.InFlight)

	c := telemetry.Comparison{
		Type:      telemetry.KindMatrixMultiply,
		GPUResult: &telemetry.BenchmarkResult{Size: 512, ComputeTime: f(0.5), GFLOPS: f(100)},
		CPUResult: &telemetry.BenchmarkResult{Size: 512, ComputeTime: f(2), GFLOPS: f(25)},
	}
	s, out = Apply(s, ComparisonReceived{Comparison: c})
	assert.Equal(t, 1, s.InFlight)
	_, ok := findInstruction[BenchmarkPanel](out)
	assert.True(t, ok)

	s, _ = Apply(s, BenchmarkFailed{Title: TitleNetworkError, Message: "refused"})
	s, _ = Apply(s, BenchmarkFailed{Title: TitleNetworkError, Message: "refused"})
	assert.Equal(t, 0, s.InFlight)
}

func TestApply_UnrenderableResultStillHidesLoading(t *testing.T) {
	s := newTestState(t, 2)
	_, out := Apply(s, ComparisonReceived{Comparison: telemetry.Comparison{Type: telemetry.KindImageProcessing}})

	require.Len(t, out, 1)
	assert.Equal(t, Loading{}, out[0])
}

func TestApply_ConnectionEvents(t *testing.T) {
	s := newTestState(t, 2)

	s, out := Apply(s, Connected{})
	assert.True(t, s.Connected)
	assert.Equal(t, []Instruction{ConnectionStatus{Connected: true}}, out)

	s, out = Apply(s, Disconnected{})
	assert.False(t, s.Connected)
	assert.Equal(t, []Instruction{ConnectionStatus{Connected: false}}, out)
}

func TestApply_StartupFetches(t *testing.T) {
	s := newTestState(t, 2)

	tests := []struct {
		name string
		ev   Event
		want Instruction
	}{
		{
			name: "system info",
			ev: SystemInfoLoaded{Info: telemetry.Stats{
				CPU:  &telemetry.CPUStats{UsagePercent: f(12.26)},
				Disk: &telemetry.DiskStats{Percent: f(80)},
			}},
			want: SystemPanel{CPU: "12.3%", Memory: "N/A", Disk: "80.0%"},
		},
		{
			name: "system info error payload",
			ev:   SystemInfoLoaded{Info: telemetry.Stats{Error: "no psutil"}},
			want: SystemPanel{Err: "no psutil"},
		},
		{
			name: "system info transport failure",
			ev:   SystemInfoFailed{},
			want: SystemPanel{Err: MsgSystemInfoFailed},
		},
		{
			name: "gpu info error payload",
			ev:   GPUInfoLoaded{Info: telemetry.GPUInfo{Error: "GPU not available"}},
			want: GPUPanel{Message: MsgNoGPU},
		},
		{
			name: "gpu info breaker error payload",
			ev:   GPUInfoLoaded{Info: telemetry.GPUInfo{Error: "gpu: circuit open (retry in 30s): exit status 9"}},
			want: GPUPanel{Message: MsgNoGPU},
		},
		{
			name: "gpu info empty",
			ev:   GPUInfoLoaded{Info: telemetry.GPUInfo{}},
			want: GPUPanel{Message: MsgNoGPU},
		},
		{
			name: "gpu info transport failure",
			ev:   GPUInfoFailed{},
			want: GPUPanel{Message: MsgGPUInfoFailed},
		},
		{
			name: "gpu info first device",
			ev: GPUInfoLoaded{Info: telemetry.GPUInfo{GPUs: []telemetry.GPUDevice{
				{ID: 1, Load: f(0.5)},
				{ID: 2, Name: "second"},
			}}},
			want: GPUPanel{Online: true, Name: "GPU 1", Load: "50.0%", Memory: "N/A", Temperature: "N/A"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, out := Apply(s, tt.ev)
			assert.Equal(t, []Instruction{tt.want}, out)
			assert.Equal(t, s.Series.Snapshot(series.CPU), next.Series.Snapshot(series.CPU))
		})
	}
}

func TestInitialInstructions(t *testing.T) {
	s := newTestState(t, 4)
	out := InitialInstructions(s)

	charts := chartValues(out)
	assert.Len(t, charts, len(series.DashboardNames))
	status, ok := findInstruction[ConnectionStatus](out)
	require.True(t, ok)
	assert.False(t, status.Connected)
}

func TestApply_UnknownEventIsNoop(t *testing.T) {
	s := newTestState(t, 2)
	next, out := Apply(s, nil)
	assert.Nil(t, out)
	assert.Equal(t, s, next)
}

func mustPush(t *testing.T, s State, st telemetry.Stats) State {
	t.Helper()
	next, _ := Apply(s, StatsReceived{Stats: st})
	return next
}
