package widgets

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// GaugeConfig controls a horizontal bar.
type GaugeConfig struct {
	// Width is the bar width in cells.
	Width int
	// Percent is 0-100; values outside are clamped.
	Percent float64
	Label   string
	// ShowPercent appends "NN%".
	ShowPercent bool
	// Warning and Danger switch the fill to yellow and red. Zero disables
	// threshold colouring and uses Color.
	Warning float64
	Danger  float64
	Color   lipgloss.Color
}

const (
	filledCell = "█"
	emptyCell  = "░"

	defaultGaugeWidth = 20
)

var (
	colorOK      = lipgloss.Color("#22C55E")
	colorWarn    = lipgloss.Color("#EAB308")
	colorDanger  = lipgloss.Color("#EF4444")
	colorNeutral = lipgloss.Color("#06B6D4")
)

// DefaultGaugeConfig is a 20-cell load gauge with 70/90 thresholds.
func DefaultGaugeConfig() GaugeConfig {
	return GaugeConfig{
		Width:       defaultGaugeWidth,
		ShowPercent: true,
		Warning:     70,
		Danger:      90,
	}
}

func (cfg GaugeConfig) fill(percent float64) lipgloss.Color {
	switch {
	case cfg.Danger > 0 && percent >= cfg.Danger:
		return colorDanger
	case cfg.Warning > 0 && percent >= cfg.Warning:
		return colorWarn
	case cfg.Warning > 0 || cfg.Danger > 0:
		return colorOK
	case cfg.Color != "":
		return cfg.Color
	}
	return colorNeutral
}

// RenderGauge draws "[Label ]████░░░░[ NN%]".
func RenderGauge(cfg GaugeConfig) string {
	percent := math.Max(0, math.Min(100, cfg.Percent))
	width := cfg.Width
	if width <= 0 {
		width = defaultGaugeWidth
	}

	filled := int(math.Round(percent / 100 * float64(width)))
	bar := lipgloss.NewStyle().Foreground(cfg.fill(percent)).Render(strings.Repeat(filledCell, filled)) +
		strings.Repeat(emptyCell, width-filled)

	var sb strings.Builder
	if cfg.Label != "" {
		sb.WriteString(cfg.Label)
		sb.WriteString(" ")
	}
	sb.WriteString(bar)
	if cfg.ShowPercent {
		sb.WriteString(fmt.Sprintf(" %3.0f%%", percent))
	}
	return sb.String()
}

// RenderComparison draws the accelerated lane as a full bar and the baseline
// lane as baselinePercent of it. Labels are padded to the same width.
func RenderComparison(accelLabel, baselineLabel string, baselinePercent float64, width int) string {
	pad := max(lipgloss.Width(accelLabel), lipgloss.Width(baselineLabel))
	label := func(s string) string {
		return s + strings.Repeat(" ", pad-lipgloss.Width(s))
	}
	accel := RenderGauge(GaugeConfig{Width: width, Percent: 100, Label: label(accelLabel), Color: colorOK})
	base := RenderGauge(GaugeConfig{Width: width, Percent: baselinePercent, Label: label(baselineLabel), Color: colorWarn})
	return accel + "\n" + base
}
