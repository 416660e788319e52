package widgets

import "github.com/charmbracelet/lipgloss"

// StatusLevel selects the colour and glyph of a status badge.
type StatusLevel int

const (
	StatusOK StatusLevel = iota
	StatusWarning
	StatusCritical
	StatusUnknown
	StatusPending
)

var statusIcons = map[StatusLevel]string{
	StatusOK:       "●",
	StatusWarning:  "●",
	StatusCritical: "●",
	StatusUnknown:  "○",
	StatusPending:  "◌",
}

var statusColors = map[StatusLevel]lipgloss.Color{
	StatusOK:       colorOK,
	StatusWarning:  colorWarn,
	StatusCritical: colorDanger,
	StatusUnknown:  lipgloss.Color("#6B7280"),
	StatusPending:  lipgloss.Color("#3B82F6"),
}

// RenderStatus draws a coloured glyph followed by text.
func RenderStatus(level StatusLevel, text string) string {
	icon := lipgloss.NewStyle().Foreground(statusColors[level]).Render(statusIcons[level])
	if text == "" {
		return icon
	}
	return icon + " " + text
}

// Connection badge texts.
const (
	TextConnected    = "Connected"
	TextDisconnected = "Disconnected"
)

// RenderConnection is the push feed badge.
func RenderConnection(connected bool) string {
	if connected {
		return RenderStatus(StatusOK, TextConnected)
	}
	return RenderStatus(StatusCritical, TextDisconnected)
}
