// Package widgets renders the dashboard's building blocks as strings:
// sparkline charts, bar gauges, the connection badge and bordered panels.
package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// sparkBlocks are the eight bar heights, lowest first.
var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// SparklineConfig controls one sparkline.
type SparklineConfig struct {
	// Data points to render, oldest first.
	Data []float64
	// Width is the number of cells. 0 means len(Data).
	Width int
	// Min and Max fix the scale. When equal the scale follows the data.
	Min float64
	Max float64
	// Color of the bars. Empty leaves them unstyled.
	Color lipgloss.Color
}

// RenderSparkline draws Data as a row of block characters. The most recent
// samples are kept when Data is wider than Width; a narrower Data is padded
// on the left.
func RenderSparkline(cfg SparklineConfig) string {
	if len(cfg.Data) == 0 {
		return ""
	}

	data := cfg.Data
	width := cfg.Width
	if width <= 0 {
		width = len(data)
	}
	if width < len(data) {
		data = data[len(data)-width:]
	}

	lo, hi := cfg.Min, cfg.Max
	if lo == hi {
		lo, hi = bounds(data)
	}

	runes := make([]rune, 0, width)
	for i := len(data); i < width; i++ {
		runes = append(runes, ' ')
	}
	for _, v := range data {
		runes = append(runes, block(v, lo, hi))
	}

	out := string(runes)
	if cfg.Color != "" {
		out = lipgloss.NewStyle().Foreground(cfg.Color).Render(out)
	}
	return out
}

func block(v, lo, hi float64) rune {
	if hi == lo {
		if v == 0 {
			return sparkBlocks[0]
		}
		return sparkBlocks[len(sparkBlocks)/2]
	}
	n := (v - lo) / (hi - lo)
	n = math.Max(0, math.Min(1, n))
	return sparkBlocks[int(n*float64(len(sparkBlocks)-1))]
}

func bounds(data []float64) (float64, float64) {
	lo, hi := data[0], data[0]
	for _, v := range data[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// ChartConfig describes a labelled chart row: "Title ▁▂▃▅ 42.0%".
type ChartConfig struct {
	Title string
	// TitleWidth pads the title so rows line up.
	TitleWidth int
	Data       []float64
	Width      int
	// Percent charts use a fixed 0-100 scale; others scale from 0 to the
	// window maximum.
	Percent bool
	Unit    string
	Color   lipgloss.Color
}

// RenderChart draws one chart row with the latest value on the right.
func RenderChart(cfg ChartConfig) string {
	spark := SparklineConfig{Data: cfg.Data, Width: cfg.Width, Color: cfg.Color}
	if cfg.Percent {
		spark.Max = 100
	} else if len(cfg.Data) > 0 {
		_, hi := bounds(cfg.Data)
		spark.Max = hi
	}

	latest := 0.0
	if n := len(cfg.Data); n > 0 {
		latest = cfg.Data[n-1]
	}
	value := fmt.Sprintf("%.1f%s", latest, cfg.Unit)
	if cfg.Percent {
		value = fmt.Sprintf("%5.1f%%", latest)
	}

	title := cfg.Title
	if pad := cfg.TitleWidth - lipgloss.Width(title); pad > 0 {
		title += strings.Repeat(" ", pad)
	}
	return title + " " + RenderSparkline(spark) + " " + value
}
