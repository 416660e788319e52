// Package tui is the Bubbletea front end of the dashboard. The session
// drives it through render instructions delivered as messages; key presses
// and button clicks turn into benchmark requests on the session.
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	zone "github.com/lrstanley/bubblezone"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/series"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Requester starts benchmarks. *dashboard.Session implements it.
type Requester interface {
	RequestBenchmark(ctx context.Context, kind telemetry.Kind, size int, style dashboard.Style) (string, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, kind telemetry.Kind, size int, style dashboard.Style) (string, error)

// RequestBenchmark calls f.
func (f RequesterFunc) RequestBenchmark(ctx context.Context, kind telemetry.Kind, size int, style dashboard.Style) (string, error) {
	return f(ctx, kind, size, style)
}

// Options configures the model.
type Options struct {
	ServerURL   string
	MatrixSizes []int
	// Capacity is the number of samples per chart.
	Capacity int
}

var defaultMatrixSizes = []int{256, 512, 1024, 2048}

type instructionMsg struct{ inst dashboard.Instruction }

type requestFailedMsg struct{ err error }

// Model is the root Bubbletea model.
type Model struct {
	ctx       context.Context
	requester Requester
	opts      Options

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	zones   *zone.Manager

	width  int
	height int
	ready  bool

	charts    map[series.Name][]float64
	system    *dashboard.SystemPanel
	gpu       *dashboard.GPUPanel
	connected bool
	loading   dashboard.Loading
	result    *dashboard.BenchmarkPanel
	failure   *dashboard.ErrorPanel
	notice    string
	sizeIdx   int
}

// New creates the model. ctx bounds the benchmark requests it issues.
func New(ctx context.Context, requester Requester, opts Options) Model {
	if len(opts.MatrixSizes) == 0 {
		opts.MatrixSizes = defaultMatrixSizes
	}
	if opts.Capacity <= 0 {
		opts.Capacity = dashboard.DefaultCapacity
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styleMuted.Foreground(colorSecondary)

	m := Model{
		ctx:       ctx,
		requester: requester,
		opts:      opts,
		keys:      keys,
		help:      help.New(),
		spinner:   sp,
		zones:     zone.New(),
		charts:    make(map[series.Name][]float64),
	}
	m.sizeIdx = m.defaultSizeIndex()
	return m
}

func (m Model) defaultSizeIndex() int {
	for i, n := range m.opts.MatrixSizes {
		if n == telemetry.DefaultMatrixSize {
			return i
		}
	}
	return 0
}

// MatrixSize is the size used by matrix requests.
func (m Model) MatrixSize() int { return m.opts.MatrixSizes[m.sizeIdx] }

// Close releases the mouse zone tracker.
func (m Model) Close() { m.zones.Close() }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.ready = true
		return m, nil

	case instructionMsg:
		wasLoading := m.loading.Visible
		m.apply(msg.inst)
		if m.loading.Visible && !wasLoading {
			return m, m.spinner.Tick
		}
		return m, nil

	case spinner.TickMsg:
		if !m.loading.Visible {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case requestFailedMsg:
		m.notice = msg.err.Error()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		for _, b := range buttons {
			if z := m.zones.Get(b.id); z != nil && z.InBounds(msg) {
				return m, m.request(b.kind, b.style)
			}
		}
	}
	return m, nil
}

func (m *Model) apply(inst dashboard.Instruction) {
	switch v := inst.(type) {
	case dashboard.ChartUpdate:
		m.charts[v.Series] = v.Values
	case dashboard.SystemPanel:
		m.system = &v
	case dashboard.GPUPanel:
		m.gpu = &v
	case dashboard.ConnectionStatus:
		m.connected = v.Connected
	case dashboard.Loading:
		m.loading = v
	case dashboard.BenchmarkPanel:
		m.result, m.failure = &v, nil
	case dashboard.ErrorPanel:
		m.failure, m.result = &v, nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.SizeDown):
		if m.sizeIdx > 0 {
			m.sizeIdx--
		}
	case key.Matches(msg, m.keys.SizeUp):
		if m.sizeIdx < len(m.opts.MatrixSizes)-1 {
			m.sizeIdx++
		}
	case key.Matches(msg, m.keys.Compare):
		return m, m.request(telemetry.KindMatrixMultiply, dashboard.ViaFeed)
	case key.Matches(msg, m.keys.Matrix):
		return m, m.request(telemetry.KindMatrixMultiply, dashboard.ViaCall)
	case key.Matches(msg, m.keys.KMeans):
		return m, m.request(telemetry.KindMLInference, dashboard.ViaCall)
	case key.Matches(msg, m.keys.Regression):
		return m, m.request(telemetry.KindLinearRegression, dashboard.ViaCall)
	case key.Matches(msg, m.keys.Image):
		return m, m.request(telemetry.KindImageProcessing, dashboard.ViaCall)
	}
	return m, nil
}

// request returns a command that hands the benchmark to the session.
func (m *Model) request(kind telemetry.Kind, style dashboard.Style) tea.Cmd {
	m.notice = ""
	ctx, requester, size := m.ctx, m.requester, m.MatrixSize()
	return func() tea.Msg {
		if _, err := requester.RequestBenchmark(ctx, kind, size, style); err != nil {
			return requestFailedMsg{err: fmt.Errorf("request %s: %w", kind, err)}
		}
		return nil
	}
}
