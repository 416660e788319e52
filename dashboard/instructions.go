package dashboard

import (
	"gitlab.com/tinyland/lab/gpu-pulse/series"
)

// Instruction tells a Renderer what to redraw. Instructions carry copies of
// any state they reference.
type Instruction interface{ isInstruction() }

// ChartUpdate replaces the samples drawn for one series.
type ChartUpdate struct {
	Series series.Name
	Values []float64
}

// SystemPanel holds the CPU/memory/disk text. Err replaces the figures when set.
type SystemPanel struct {
	CPU    string
	Memory string
	Disk   string
	Err    string
}

// GPUPanel describes the first GPU, or carries Message when there is none.
type GPUPanel struct {
	Online      bool
	Name        string
	Load        string
	Memory      string
	Temperature string
	Message     string
}

// ConnectionStatus reflects the push feed state.
type ConnectionStatus struct{ Connected bool }

// Loading shows or hides the busy indicator.
type Loading struct {
	Visible bool
	Text    string
}

// BenchmarkPanel is a rendered benchmark result.
type BenchmarkPanel struct {
	Title string
	Lines []string
	// Badge is the speedup text; empty when no speedup is known.
	Badge string
	// BaselineBar is the baseline lane bar width in percent of the
	// accelerated lane's bar; nil when not drawn.
	BaselineBar *float64
}

// ErrorPanel replaces the benchmark panel with a one-line failure.
type ErrorPanel struct {
	Title   string
	Message string
}

func (ChartUpdate) isInstruction()      {}
func (SystemPanel) isInstruction()      {}
func (GPUPanel) isInstruction()         {}
func (ConnectionStatus) isInstruction() {}
func (Loading) isInstruction()          {}
func (BenchmarkPanel) isInstruction()   {}
func (ErrorPanel) isInstruction()       {}

// Renderer draws instructions. Render is called from the session goroutine,
// one instruction at a time, in order.
type Renderer interface {
	Render(Instruction)
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(Instruction)

// Render calls f(inst).
func (f RenderFunc) Render(inst Instruction) { f(inst) }
