package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/series"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

type call struct {
	kind  telemetry.Kind
	size  int
	style dashboard.Style
}

type fakeRequester struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (f *fakeRequester) RequestBenchmark(_ context.Context, kind telemetry.Kind, size int, style dashboard.Style) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind, size, style})
	return "id", f.err
}

func newModel(t *testing.T, req Requester) Model {
	t.Helper()
	m := New(context.Background(), req, Options{ServerURL: "http://gpu-box:5000", Capacity: 10})
	t.Cleanup(m.Close)
	m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 40})
	return m
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func render(m Model, insts ...dashboard.Instruction) Model {
	for _, inst := range insts {
		m, _ = update(m, instructionMsg{inst: inst})
	}
	return m
}

func TestView_BeforeResize(t *testing.T) {
	m := New(context.Background(), &fakeRequester{}, Options{})
	defer m.Close()
	if got := m.View(); got != "Initializing..." {
		t.Errorf("expected placeholder before first resize, got %q", got)
	}
}

func TestView_InitialFrame(t *testing.T) {
	m := newModel(t, &fakeRequester{})
	view := m.View()

	for _, want := range []string{"GPU Pulse", "http://gpu-box:5000", "Disconnected", textLoading, textBenchmarkHint, "Matrix size: 1024x1024", "Compare GPU/CPU"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in initial view:\n%s", want, view)
		}
	}
}

func TestView_RendersInstructions(t *testing.T) {
	m := newModel(t, &fakeRequester{})
	m = render(m,
		dashboard.ConnectionStatus{Connected: true},
		dashboard.ChartUpdate{Series: series.CPU, Values: []float64{0, 12.5}},
		dashboard.SystemPanel{CPU: "12.5%", Memory: "40.0%", Disk: "N/A"},
		dashboard.GPUPanel{Online: true, Name: "RTX 4090", Load: "55.0%", Memory: "25.0%", Temperature: "61°C"},
	)
	view := m.View()

	for _, want := range []string{"Connected", "12.5%", "CPU Usage:    12.5%", "Disk Usage:   N/A", "RTX 4090", "Temperature: 61°C"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Disconnected") {
		t.Errorf("connection badge not updated:\n%s", view)
	}
}

func TestView_PanelMessages(t *testing.T) {
	m := newModel(t, &fakeRequester{})
	m = render(m,
		dashboard.SystemPanel{Err: dashboard.MsgSystemInfoFailed},
		dashboard.GPUPanel{Message: dashboard.MsgNoGPU},
	)
	view := m.View()
	for _, want := range []string{dashboard.MsgSystemInfoFailed, dashboard.MsgNoGPU} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}
}

func TestLoadingStartsSpinnerOnce(t *testing.T) {
	m := newModel(t, &fakeRequester{})

	m, cmd := update(m, instructionMsg{inst: dashboard.Loading{Visible: true, Text: "Running matrix_multiply benchmark..."}})
	if cmd == nil {
		t.Fatal("expected spinner tick when loading starts")
	}
	if !strings.Contains(m.View(), "Running matrix_multiply benchmark...") {
		t.Error("expected loading text in view")
	}

	_, cmd = update(m, instructionMsg{inst: dashboard.Loading{Visible: true, Text: "again"}})
	if cmd != nil {
		t.Error("expected no second tick while already loading")
	}

	m, _ = update(m, instructionMsg{inst: dashboard.Loading{}})
	if strings.Contains(m.View(), "Running matrix_multiply") {
		t.Error("expected loading text to disappear")
	}
}

func TestBenchmarkPanelAndError(t *testing.T) {
	m := newModel(t, &fakeRequester{})
	m = render(m, dashboard.BenchmarkPanel{
		Title:       "Matrix Multiplication (512x512)",
		Lines:       []string{"GPU: 120.00 GFLOPS (0.0022s)"},
		Badge:       "4.00x faster",
		BaselineBar: telemetry.Float(25),
	})
	view := m.View()
	for _, want := range []string{"Matrix Multiplication (512x512)", "GPU: 120.00 GFLOPS", "4.00x faster", "CPU "} {
		if !strings.Contains(view, want) {
			t.Errorf("expected %q in view:\n%s", want, view)
		}
	}

	m = render(m, dashboard.ErrorPanel{Title: dashboard.TitleNetworkError, Message: "connection refused"})
	view = m.View()
	if !strings.Contains(view, "connection refused") || !strings.Contains(view, dashboard.TitleNetworkError) {
		t.Errorf("expected error panel:\n%s", view)
	}
	if strings.Contains(view, "4.00x faster") {
		t.Errorf("error panel should replace the result:\n%s", view)
	}
}

func TestKeysRequestBenchmarks(t *testing.T) {
	tests := []struct {
		key  string
		want call
	}{
		{"c", call{telemetry.KindMatrixMultiply, 1024, dashboard.ViaFeed}},
		{"1", call{telemetry.KindMatrixMultiply, 1024, dashboard.ViaCall}},
		{"2", call{telemetry.KindMLInference, 1024, dashboard.ViaCall}},
		{"3", call{telemetry.KindLinearRegression, 1024, dashboard.ViaCall}},
		{"4", call{telemetry.KindImageProcessing, 1024, dashboard.ViaCall}},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			req := &fakeRequester{}
			m := newModel(t, req)

			_, cmd := update(m, runes(tt.key))
			if cmd == nil {
				t.Fatal("expected a request command")
			}
			if msg := cmd(); msg != nil {
				t.Fatalf("expected no message on success, got %#v", msg)
			}
			if len(req.calls) != 1 || req.calls[0] != tt.want {
				t.Errorf("calls = %+v, want [%+v]", req.calls, tt.want)
			}
		})
	}
}

func TestMatrixSizeKeys(t *testing.T) {
	req := &fakeRequester{}
	m := newModel(t, req)

	m, _ = update(m, runes("]"))
	if m.MatrixSize() != 2048 {
		t.Errorf("expected 2048 after ], got %d", m.MatrixSize())
	}
	m, _ = update(m, runes("]"))
	if m.MatrixSize() != 2048 {
		t.Errorf("expected size to stop at 2048, got %d", m.MatrixSize())
	}
	for i := 0; i < 5; i++ {
		m, _ = update(m, runes("["))
	}
	if m.MatrixSize() != 256 {
		t.Errorf("expected size to stop at 256, got %d", m.MatrixSize())
	}

	_, cmd := update(m, runes("c"))
	cmd()
	if req.calls[0].size != 256 {
		t.Errorf("expected request with size 256, got %d", req.calls[0].size)
	}
}

func TestRequestFailureShowsNotice(t *testing.T) {
	m := newModel(t, &fakeRequester{err: errors.New("queue closed")})

	m, cmd := update(m, runes("2"))
	msg := cmd()
	if _, ok := msg.(requestFailedMsg); !ok {
		t.Fatalf("expected requestFailedMsg, got %#v", msg)
	}
	m, _ = update(m, msg)
	if !strings.Contains(m.View(), "request ml_inference: queue closed") {
		t.Errorf("expected notice in view:\n%s", m.View())
	}
}

func TestQuitAndHelp(t *testing.T) {
	m := newModel(t, &fakeRequester{})

	m, _ = update(m, runes("?"))
	if !m.help.ShowAll {
		t.Error("expected full help after ?")
	}
	if !strings.Contains(m.View(), "larger matrix") {
		t.Error("expected full help bindings in view")
	}

	_, cmd := update(m, runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestCustomMatrixSizes(t *testing.T) {
	m := New(context.Background(), &fakeRequester{}, Options{MatrixSizes: []int{64, 128}})
	defer m.Close()
	if m.MatrixSize() != 64 {
		t.Errorf("expected first size when default is absent, got %d", m.MatrixSize())
	}
}

func TestRendererSendsInstructionMsg(t *testing.T) {
	var got []tea.Msg
	r := &Renderer{send: func(msg tea.Msg) { got = append(got, msg) }}

	r.Render(dashboard.ConnectionStatus{Connected: true})

	if len(got) != 1 {
		t.Fatalf("expected one message, got %d", len(got))
	}
	msg, ok := got[0].(instructionMsg)
	if !ok || msg.inst != (dashboard.ConnectionStatus{Connected: true}) {
		t.Errorf("unexpected message %#v", got[0])
	}
}

func TestGPULinesTruncateName(t *testing.T) {
	p := &dashboard.GPUPanel{Online: true, Name: "NVIDIA GeForce RTX 4090 Laptop GPU", Load: "1.0%"}
	lines := gpuLines(p, 12)
	if lines[0] != "NVIDIA Ge..." {
		t.Errorf("name line = %q, want %q", lines[0], "NVIDIA Ge...")
	}
	if lines[1] != "Load:        1.0%" {
		t.Errorf("load line = %q", lines[1])
	}
}
