package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/display/widgets"
	"gitlab.com/tinyland/lab/gpu-pulse/internal/format"
	"gitlab.com/tinyland/lab/gpu-pulse/series"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

type button struct {
	id    string
	label string
	kind  telemetry.Kind
	style dashboard.Style
}

var buttons = []button{
	{"btn-compare", "Compare GPU/CPU", telemetry.KindMatrixMultiply, dashboard.ViaFeed},
	{"btn-matrix", "Matrix", telemetry.KindMatrixMultiply, dashboard.ViaCall},
	{"btn-kmeans", "K-Means", telemetry.KindMLInference, dashboard.ViaCall},
	{"btn-regression", "Regression", telemetry.KindLinearRegression, dashboard.ViaCall},
	{"btn-image", "Image", telemetry.KindImageProcessing, dashboard.ViaCall},
}

var chartRows = []struct {
	name    series.Name
	title   string
	percent bool
	unit    string
}{
	{series.CPU, "CPU", true, ""},
	{series.Memory, "Memory", true, ""},
	{series.GPU, "GPU", true, ""},
	{series.NetIn, "Net In", false, " KB"},
	{series.NetOut, "Net Out", false, " KB"},
}

const (
	textLoading       = "Loading..."
	textBenchmarkHint = "Press c to compare lanes, or 1-4 to run a benchmark."
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Initializing..."
	}
	layout := LayoutFor(m.width, m.opts.Capacity)

	sections := []string{
		m.viewHeader(),
		m.viewCharts(layout),
		m.viewPanels(layout),
		m.viewBenchmarks(layout),
		styleFooter.Render(m.help.View(m.keys)),
	}
	return m.zones.Scan(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) viewHeader() string {
	title := styleTitle.Render("GPU Pulse")
	server := styleMuted.Render(m.opts.ServerURL)
	line := lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", widgets.RenderConnection(m.connected), "  ", server)
	return styleHeader.Width(max(m.width, 1)).Render(line)
}

func (m Model) viewCharts(layout LayoutConfig) string {
	rows := make([]string, 0, len(chartRows))
	for _, r := range chartRows {
		rows = append(rows, widgets.RenderChart(widgets.ChartConfig{
			Title:      r.title,
			TitleWidth: 8,
			Data:       m.charts[r.name],
			Width:      layout.ChartWidth,
			Percent:    r.percent,
			Unit:       r.unit,
			Color:      seriesColors[r.name],
		}))
	}
	return strings.Join(rows, "\n") + "\n"
}

func (m Model) viewPanels(layout LayoutConfig) string {
	system := widgets.RenderPanel(widgets.PanelConfig{
		Title:  "System",
		Lines:  systemLines(m.system),
		Width:  layout.PanelWidth,
		Accent: colorSecondary,
	})
	gpu := widgets.RenderPanel(widgets.PanelConfig{
		Title:  "GPU",
		Lines:  gpuLines(m.gpu, layout.PanelWidth-4),
		Width:  layout.PanelWidth,
		Accent: colorSuccess,
	})
	if layout.SideBySide {
		return lipgloss.JoinHorizontal(lipgloss.Top, system, " ", gpu)
	}
	return lipgloss.JoinVertical(lipgloss.Left, system, gpu)
}

func systemLines(p *dashboard.SystemPanel) []string {
	switch {
	case p == nil:
		return []string{textLoading}
	case p.Err != "":
		return []string{styleError.Render(p.Err)}
	}
	return []string{
		"CPU Usage:    " + p.CPU,
		"Memory Usage: " + p.Memory,
		"Disk Usage:   " + p.Disk,
	}
}

func gpuLines(p *dashboard.GPUPanel, width int) []string {
	switch {
	case p == nil:
		return []string{textLoading}
	case !p.Online:
		return []string{styleMuted.Render(p.Message)}
	}
	return []string{
		format.TruncateWithEllipsis(p.Name, width),
		"Load:        " + p.Load,
		"Memory:      " + p.Memory,
		"Temperature: " + p.Temperature,
	}
}

func (m Model) viewBenchmarks(layout LayoutConfig) string {
	var btns []string
	for i, b := range buttons {
		style := styleButton
		if i == 0 {
			style = styleButtonPrimary
		}
		btns = append(btns, m.zones.Mark(b.id, style.Render(b.label)))
	}

	lines := []string{
		sectionTitle("Benchmarks", layout.PanelWidth),
		lipgloss.JoinHorizontal(lipgloss.Top, btns...),
		styleMuted.Render(fmt.Sprintf("Matrix size: %dx%d", m.MatrixSize(), m.MatrixSize())),
	}

	switch {
	case m.loading.Visible:
		lines = append(lines, m.spinner.View()+" "+m.loading.Text)
	case m.failure != nil:
		lines = append(lines, widgets.RenderPanel(widgets.PanelConfig{
			Title:  m.failure.Title,
			Lines:  []string{m.failure.Message},
			Width:  layout.PanelWidth,
			Accent: colorDanger,
		}))
	case m.result != nil:
		lines = append(lines, m.viewResult(layout))
	default:
		lines = append(lines, styleMuted.Render(textBenchmarkHint))
	}
	if m.notice != "" {
		lines = append(lines, styleError.Render(m.notice))
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewResult(layout LayoutConfig) string {
	r := m.result
	body := append([]string(nil), r.Lines...)
	if r.BaselineBar != nil {
		body = append(body, "", widgets.RenderComparison("GPU", "CPU", *r.BaselineBar, layout.GaugeWidth))
	}
	if r.Badge != "" {
		body = append(body, "", widgets.Badge(r.Badge, colorSuccess))
	}
	return widgets.RenderPanel(widgets.PanelConfig{
		Title:  r.Title,
		Lines:  body,
		Width:  layout.PanelWidth,
		Accent: colorPrimary,
	})
}
