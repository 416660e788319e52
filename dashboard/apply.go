// Package dashboard implements the dashboard session: a single ordered queue
// of events folded into chart buffers and panel text by a pure Apply
// function, with the push feed, the call client and the renderer injected.
package dashboard

import (
	"fmt"

	"gitlab.com/tinyland/lab/gpu-pulse/internal/format"
	"gitlab.com/tinyland/lab/gpu-pulse/series"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// DefaultCapacity is the number of samples kept per chart.
const DefaultCapacity = 30

// Messages shown when the startup fetches fail or find nothing.
const (
	MsgSystemInfoFailed = "Failed to load system information"
	MsgGPUInfoFailed    = "GPU information not available"
	MsgNoGPU            = "No GPU detected"
)

// State is the session's mutable data. Treat it as a value: Apply never
// modifies the State it is given.
type State struct {
	Series    *series.Set
	Connected bool
	// InFlight counts benchmark requests without a completion yet.
	InFlight int
}

// NewState returns a state with zero-filled dashboard series.
func NewState(capacity int) (State, error) {
	set, err := series.NewSet(capacity, series.DashboardNames...)
	if err != nil {
		return State{}, fmt.Errorf("create series: %w", err)
	}
	return State{Series: set}, nil
}

// InitialInstructions draws every chart and the disconnected badge.
func InitialInstructions(s State) []Instruction {
	out := chartUpdates(s.Series)
	return append(out, ConnectionStatus{Connected: s.Connected})
}

// Apply folds one event into the state and returns what to redraw.
func Apply(s State, ev Event) (State, []Instruction) {
	switch ev := ev.(type) {
	case Connected:
		s.Connected = true
		return s, []Instruction{ConnectionStatus{Connected: true}}

	case Disconnected:
		s.Connected = false
		return s, []Instruction{ConnectionStatus{Connected: false}}

	case StatsReceived:
		return applyStats(s, ev.Stats)

	case SystemInfoLoaded:
		return s, []Instruction{systemPanel(ev.Info)}

	case SystemInfoFailed:
		return s, []Instruction{SystemPanel{Err: MsgSystemInfoFailed}}

	case GPUInfoLoaded:
		return s, []Instruction{gpuInfoPanel(ev.Info)}

	case GPUInfoFailed:
		return s, []Instruction{GPUPanel{Message: MsgGPUInfoFailed}}

	case BenchmarkRequested:
		s.InFlight++
		return s, []Instruction{Loading{
			Visible: true,
			Text:    fmt.Sprintf("Running %s benchmark...", ev.Request.Type),
		}}

	case ComparisonReceived:
		s = completed(s)
		out := []Instruction{Loading{}}
		if panel, ok := DescribeComparison(ev.Comparison); ok {
			out = append(out, panel)
		}
		return s, out

	case ResultReceived:
		s = completed(s)
		if ev.Result.Error != "" {
			return s, []Instruction{Loading{}, ErrorPanel{Title: TitleBenchmarkError, Message: ev.Result.Error}}
		}
		out := []Instruction{Loading{}}
		if panel, ok := DescribeResult(ev.Kind, ev.Result); ok {
			out = append(out, panel)
		}
		return s, out

	case BenchmarkFailed:
		s = completed(s)
		return s, []Instruction{Loading{}, ErrorPanel{Title: ev.Title, Message: ev.Message}}
	}

	return s, nil
}

func completed(s State) State {
	if s.InFlight > 0 {
		s.InFlight--
	}
	return s
}

// applyStats pushes one sample onto every series. Missing chart values
// become 0; missing text values become the placeholder.
func applyStats(s State, st telemetry.Stats) (State, []Instruction) {
	if st.Error != "" || s.Series == nil {
		return s, nil
	}

	set := s.Series.Clone()

	var cpu, mem, gpu, netIn, netOut float64
	if st.CPU != nil {
		cpu = format.ValueOr(st.CPU.UsagePercent, 0)
	}
	if st.Memory != nil {
		mem = format.ValueOr(st.Memory.Percent, 0)
	}
	if dev, ok := st.FirstGPU(); ok {
		gpu = format.ValueOr(dev.Load, 0) * 100
	}
	if st.Network != nil {
		netIn = format.KB(format.ValueOr(st.Network.BytesRecv, 0))
		netOut = format.KB(format.ValueOr(st.Network.BytesSent, 0))
	}

	// Names come from DashboardNames, so these cannot fail.
	_ = set.Push(series.CPU, cpu)
	_ = set.Push(series.Memory, mem)
	_ = set.Push(series.GPU, gpu)
	_ = set.PushPair(series.NetIn, netIn, series.NetOut, netOut)

	s.Series = set
	out := chartUpdates(set)
	out = append(out, systemPanel(st))
	if len(st.GPU) > 0 {
		out = append(out, gpuPanel(st.GPU[0]))
	}
	return s, out
}

func chartUpdates(set *series.Set) []Instruction {
	if set == nil {
		return nil
	}
	names := set.Names()
	out := make([]Instruction, 0, len(names))
	for _, name := range names {
		out = append(out, ChartUpdate{Series: name, Values: set.Snapshot(name)})
	}
	return out
}

func systemPanel(st telemetry.Stats) SystemPanel {
	if st.Error != "" {
		return SystemPanel{Err: st.Error}
	}
	p := SystemPanel{CPU: format.Placeholder, Memory: format.Placeholder, Disk: format.Placeholder}
	if st.CPU != nil {
		p.CPU = format.Percent(st.CPU.UsagePercent)
	}
	if st.Memory != nil {
		p.Memory = format.Percent(st.Memory.Percent)
	}
	if st.Disk != nil {
		p.Disk = format.Percent(st.Disk.Percent)
	}
	return p
}

// gpuInfoPanel shows the first device. An error payload reads the same as
// an empty device list.
func gpuInfoPanel(info telemetry.GPUInfo) GPUPanel {
	if info.Error != "" || len(info.GPUs) == 0 {
		return GPUPanel{Message: MsgNoGPU}
	}
	return gpuPanel(info.GPUs[0])
}

func gpuPanel(dev telemetry.GPUDevice) GPUPanel {
	p := GPUPanel{
		Online:      true,
		Name:        dev.Name,
		Load:        format.Placeholder,
		Memory:      format.Percent(format.Ratio(dev.MemoryUsed, dev.MemoryTotal)),
		Temperature: format.Placeholder,
	}
	if p.Name == "" {
		p.Name = fmt.Sprintf("GPU %d", dev.ID)
	}
	if dev.Load != nil {
		p.Load = format.Percent(telemetry.Float(*dev.Load * 100))
	}
	if dev.Temperature != nil {
		p.Temperature = fmt.Sprintf("%.0f°C", *dev.Temperature)
	}
	return p
}
