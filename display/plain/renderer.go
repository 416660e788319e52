// Package plain renders the dashboard as timestamped text lines, for pipes,
// logs and terminals without a full-screen UI.
package plain

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/series"
)

// Renderer implements dashboard.Renderer. Panel lines are only written when
// their text changes; chart samples are written once per snapshot.
type Renderer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
	err error

	connected bool
	latest    map[series.Name]float64
	last      map[string]string
}

// New writes to w.
func New(w io.Writer) *Renderer {
	return &Renderer{
		w:      w,
		now:    time.Now,
		latest: make(map[series.Name]float64),
		last:   make(map[string]string),
	}
}

// Err returns the first write error.
func (r *Renderer) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Render implements dashboard.Renderer.
func (r *Renderer) Render(inst dashboard.Instruction) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch v := inst.(type) {
	case dashboard.ChartUpdate:
		if n := len(v.Values); n > 0 {
			r.latest[v.Series] = v.Values[n-1]
		}
		// net_out is the last series of a snapshot.
		if v.Series == series.NetOut && r.connected {
			r.line("stats", fmt.Sprintf("cpu %5.1f%%  mem %5.1f%%  gpu %5.1f%%  net in %.1f KB  out %.1f KB",
				r.latest[series.CPU], r.latest[series.Memory], r.latest[series.GPU],
				r.latest[series.NetIn], r.latest[series.NetOut]))
		}

	case dashboard.SystemPanel:
		text := fmt.Sprintf("cpu %s  memory %s  disk %s", v.CPU, v.Memory, v.Disk)
		if v.Err != "" {
			text = v.Err
		}
		r.changed("system", text)

	case dashboard.GPUPanel:
		text := v.Message
		if v.Online {
			text = fmt.Sprintf("%s  load %s  memory %s  temp %s", v.Name, v.Load, v.Memory, v.Temperature)
		}
		r.changed("gpu", text)

	case dashboard.ConnectionStatus:
		r.connected = v.Connected
		text := "disconnected"
		if v.Connected {
			text = "connected"
		}
		r.changed("feed", text)

	case dashboard.Loading:
		if v.Visible {
			r.line("bench", v.Text)
		}

	case dashboard.BenchmarkPanel:
		r.write(r.stamp() + " ")
		r.write(FormatPanel(v))

	case dashboard.ErrorPanel:
		r.line("error", fmt.Sprintf("%s: %s", v.Title, v.Message))
	}
}

// FormatPanel renders a benchmark panel as an indented block ending in a
// newline.
func FormatPanel(p dashboard.BenchmarkPanel) string {
	var sb strings.Builder
	sb.WriteString("== " + p.Title + " ==\n")
	for _, l := range p.Lines {
		sb.WriteString("  " + l + "\n")
	}
	if p.BaselineBar != nil {
		fmt.Fprintf(&sb, "  CPU bar: %.1f%% of GPU\n", *p.BaselineBar)
	}
	if p.Badge != "" {
		sb.WriteString("  Speedup: " + p.Badge + "\n")
	}
	return sb.String()
}

func (r *Renderer) changed(tag, text string) {
	if prev, ok := r.last[tag]; ok && prev == text {
		return
	}
	r.last[tag] = text
	r.line(tag, text)
}

func (r *Renderer) line(tag, text string) {
	r.write(fmt.Sprintf("%s %-6s %s\n", r.stamp(), tag, text))
}

func (r *Renderer) stamp() string {
	return r.now().Format("15:04:05")
}

func (r *Renderer) write(s string) {
	if r.err != nil {
		return
	}
	_, r.err = io.WriteString(r.w, s)
}
