package tui

import "strings"

// LayoutSize is a width breakpoint.
type LayoutSize int

const (
	// LayoutCompact is below 60 columns: panels stack, charts shrink.
	LayoutCompact LayoutSize = iota
	// LayoutNormal is 60 to 120 columns.
	LayoutNormal
	// LayoutWide is above 120 columns: panels sit side by side.
	LayoutWide
)

// DetectLayout maps a terminal width to a breakpoint.
func DetectLayout(width int) LayoutSize {
	switch {
	case width < 60:
		return LayoutCompact
	case width <= 120:
		return LayoutNormal
	default:
		return LayoutWide
	}
}

// LayoutConfig holds the sizes derived from the terminal width.
type LayoutConfig struct {
	// ChartWidth is the number of sparkline cells per chart.
	ChartWidth int
	// GaugeWidth is the width of comparison bars.
	GaugeWidth int
	// PanelWidth is the outer width of one info panel.
	PanelWidth int
	// SideBySide places the system and GPU panels on one row.
	SideBySide bool
}

const chartChrome = 20

// LayoutFor returns the layout for a terminal width. capacity caps the chart
// width at the number of samples kept.
func LayoutFor(width, capacity int) LayoutConfig {
	var cfg LayoutConfig
	switch DetectLayout(width) {
	case LayoutCompact:
		cfg = LayoutConfig{GaugeWidth: 10, PanelWidth: max(width-2, 20)}
	case LayoutWide:
		cfg = LayoutConfig{GaugeWidth: 40, PanelWidth: (width - 4) / 2, SideBySide: true}
	default:
		cfg = LayoutConfig{GaugeWidth: 24, PanelWidth: width - 4}
	}
	cfg.ChartWidth = max(width-chartChrome, 5)
	if capacity > 0 && cfg.ChartWidth > capacity {
		cfg.ChartWidth = capacity
	}
	return cfg
}

// sectionTitle centres title in a rule of the given width:
// "──── Title ────".
func sectionTitle(title string, width int) string {
	titleLen := len([]rune(title)) + 2
	if width <= 0 || titleLen >= width {
		return title
	}
	left := (width - titleLen) / 2
	right := width - titleLen - left
	return strings.Repeat("─", left) + " " + title + " " + strings.Repeat("─", right)
}
