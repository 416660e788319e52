package widgets

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PanelConfig describes a bordered box with a bold title line.
type PanelConfig struct {
	Title string
	Lines []string
	// Width is the outer width including the border. 0 fits the content.
	Width  int
	Accent lipgloss.Color
}

var panelBorder = lipgloss.RoundedBorder()

// RenderPanel draws the panel. Lines wider than the inner width wrap.
func RenderPanel(cfg PanelConfig) string {
	accent := cfg.Accent
	if accent == "" {
		accent = colorNeutral
	}
	box := lipgloss.NewStyle().
		Border(panelBorder).
		BorderForeground(accent).
		Padding(0, 1)
	if cfg.Width > 0 {
		// Width excludes the border but includes padding.
		box = box.Width(max(cfg.Width-2, 1))
	}

	body := make([]string, 0, len(cfg.Lines)+1)
	if cfg.Title != "" {
		body = append(body, lipgloss.NewStyle().Bold(true).Foreground(accent).Render(cfg.Title))
	}
	body = append(body, cfg.Lines...)
	return box.Render(strings.Join(body, "\n"))
}

// Badge is an inverted label, used for speedups.
func Badge(text string, color lipgloss.Color) string {
	if text == "" {
		return ""
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(color).
		Padding(0, 1).
		Render(text)
}
