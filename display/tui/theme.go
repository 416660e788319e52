package tui

import (
	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/gpu-pulse/series"
)

const (
	colorPrimary   = lipgloss.Color("#7C3AED") // Purple
	colorSecondary = lipgloss.Color("#06B6D4") // Cyan
	colorSuccess   = lipgloss.Color("#22C55E") // Green
	colorWarning   = lipgloss.Color("#EAB308") // Yellow
	colorDanger    = lipgloss.Color("#EF4444") // Red
	colorMuted     = lipgloss.Color("#6B7280") // Gray
)

// seriesColors gives each chart its own hue.
var seriesColors = map[series.Name]lipgloss.Color{
	series.CPU:    colorSecondary,
	series.Memory: colorPrimary,
	series.GPU:    colorSuccess,
	series.NetIn:  colorWarning,
	series.NetOut: lipgloss.Color("#F472B6"),
}

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorPrimary).
			Padding(0, 1)

	styleHeader = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorMuted).
			MarginBottom(1)

	styleMuted = lipgloss.NewStyle().Foreground(colorMuted)

	styleButton = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorMuted).
			Padding(0, 1).
			MarginRight(1)

	styleButtonPrimary = styleButton.Background(colorPrimary)

	styleError = lipgloss.NewStyle().Foreground(colorDanger)

	styleFooter = lipgloss.NewStyle().MarginTop(1)
)
