package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

func dialFeed(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) telemetry.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env telemetry.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func sendRequest(t *testing.T, conn *websocket.Conn, req telemetry.BenchmarkRequest) {
	t.Helper()
	env, err := telemetry.NewEnvelope(telemetry.EventRequestBenchmark, req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
}

func TestFeedGreeting(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	conn := dialFeed(t, srv)

	env := readEnvelope(t, conn)
	assert.Equal(t, telemetry.EventConnected, env.Event)
	var g telemetry.Greeting
	require.NoError(t, env.Decode(&g))
	assert.Equal(t, MsgGreeting, g.Data)
	assert.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFeedBenchmarkComparison(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)
	conn := dialFeed(t, srv)
	readEnvelope(t, conn)

	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 256, RequestID: "abc"})

	env := readEnvelope(t, conn)
	require.Equal(t, telemetry.EventBenchmarkResult, env.Event)
	var cmp telemetry.Comparison
	require.NoError(t, env.Decode(&cmp))
	assert.Equal(t, telemetry.KindMatrixMultiply, cmp.Type)
	assert.Equal(t, "abc", cmp.RequestID)
	require.NotNil(t, cmp.Speedup)
	assert.Equal(t, 4.0, *cmp.Speedup)
	assert.Equal(t, []string{"compare:matrix_multiply:256"}, bench.Calls())
}

func TestFeedBenchmarkErrors(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		err     error
		req     telemetry.BenchmarkRequest
		message string
	}{
		{"disabled", false, nil, telemetry.BenchmarkRequest{}, MsgBenchmarksDisabled},
		{"unsupported type", true, nil, telemetry.BenchmarkRequest{Type: telemetry.KindImageProcessing}, MsgFeedUnsupportedType},
		{"runner failure", true, errors.New("boom"), telemetry.BenchmarkRequest{Size: 64}, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, tt.enabled, &fakeBench{err: tt.err})
			conn := dialFeed(t, srv)
			readEnvelope(t, conn)

			sendRequest(t, conn, tt.req)

			env := readEnvelope(t, conn)
			require.Equal(t, telemetry.EventBenchmarkError, env.Event)
			var body telemetry.ErrorResponse
			require.NoError(t, env.Decode(&body))
			assert.Equal(t, tt.message, body.Error)
		})
	}
}

func TestFeedIgnoresUnknownFrames(t *testing.T) {
	bench := &fakeBench{}
	srv, _ := newTestServer(t, true, bench)
	conn := dialFeed(t, srv)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(telemetry.Envelope{Event: "hello"}))
	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 32})

	env := readEnvelope(t, conn)
	assert.Equal(t, telemetry.EventBenchmarkResult, env.Event)
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	a := dialFeed(t, srv)
	b := dialFeed(t, srv)
	readEnvelope(t, a)
	readEnvelope(t, b)
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 2 }, time.Second, 5*time.Millisecond)

	srv.Hub().Broadcast(telemetry.EventSystemStats, telemetry.Stats{Timestamp: "t1", GPU: []telemetry.GPUDevice{}})

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, telemetry.EventSystemStats, env.Event)
		var s telemetry.Stats
		require.NoError(t, env.Decode(&s))
		assert.Equal(t, "t1", s.Timestamp)
	}
}

func TestClientDisconnectUnregisters(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	conn := dialFeed(t, srv)
	readEnvelope(t, conn)
	require.Eventually(t, func() bool { return srv.Hub().Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return srv.Hub().Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestFeedFrameLabelsAreBounded(t *testing.T) {
	srv, _ := newTestServer(t, true, &fakeBench{})
	conn := dialFeed(t, srv)
	readEnvelope(t, conn)

	for i := 0; i < 50; i++ {
		require.NoError(t, conn.WriteJSON(telemetry.Envelope{Event: fmt.Sprintf("junk-%d", i)}))
	}
	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 16})
	env := readEnvelope(t, conn)
	require.Equal(t, telemetry.EventBenchmarkResult, env.Event)

	rec := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var series []string
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		if strings.HasPrefix(line, "gpu_pulse_feed_frames_total{") {
			series = append(series, line)
		}
	}
	assert.NotContains(t, rec.Body.String(), "junk-")
	assert.Contains(t, series, `gpu_pulse_feed_frames_total{direction="in",event="other"} 50`)
	assert.Contains(t, series, `gpu_pulse_feed_frames_total{direction="in",event="request_benchmark"} 1`)
	assert.LessOrEqual(t, len(series), 6)
}

func TestFrameLabel(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{telemetry.EventConnected, telemetry.EventConnected},
		{telemetry.EventSystemStats, telemetry.EventSystemStats},
		{telemetry.EventRequestBenchmark, telemetry.EventRequestBenchmark},
		{telemetry.EventBenchmarkResult, telemetry.EventBenchmarkResult},
		{telemetry.EventBenchmarkError, telemetry.EventBenchmarkError},
		{"", eventOther},
		{"hello", eventOther},
		{"junk-123", eventOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, frameLabel(tt.event), "event %q", tt.event)
	}
}

// slowBench blocks Compare until release is closed.
type slowBench struct {
	fakeBench
	started chan struct{}
	release chan struct{}
}

func (s *slowBench) Compare(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.Comparison, error) {
	s.started <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.fakeBench.Compare(ctx, req)
}

func TestFeedOneBenchmarkPerClient(t *testing.T) {
	bench := &slowBench{started: make(chan struct{}, 4), release: make(chan struct{})}
	srv, _ := newTestServer(t, true, bench)
	conn := dialFeed(t, srv)
	readEnvelope(t, conn)

	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 16, RequestID: "first"})
	select {
	case <-bench.started:
	case <-time.After(3 * time.Second):
		t.Fatal("first benchmark never started")
	}

	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 16, RequestID: "second"})
	env := readEnvelope(t, conn)
	require.Equal(t, telemetry.EventBenchmarkError, env.Event)
	var body telemetry.ErrorResponse
	require.NoError(t, env.Decode(&body))
	assert.Equal(t, MsgBenchmarkBusy, body.Error)

	close(bench.release)
	env = readEnvelope(t, conn)
	require.Equal(t, telemetry.EventBenchmarkResult, env.Event)
	var cmp telemetry.Comparison
	require.NoError(t, env.Decode(&cmp))
	assert.Equal(t, "first", cmp.RequestID)
	assert.Equal(t, []string{"compare:matrix_multiply:16"}, bench.Calls())

	// The slot frees once the running benchmark answers.
	sendRequest(t, conn, telemetry.BenchmarkRequest{Size: 16, RequestID: "third"})
	env = readEnvelope(t, conn)
	require.Equal(t, telemetry.EventBenchmarkResult, env.Event)
	require.NoError(t, env.Decode(&cmp))
	assert.Equal(t, "third", cmp.RequestID)
}
