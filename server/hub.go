package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Feed messages.
const (
	MsgGreeting            = "Connected to GPU Pulse server"
	MsgFeedUnsupportedType = "Benchmark type not supported via WebSocket"
	MsgBenchmarkBusy       = "A benchmark is already running for this connection"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
	sendBuffer     = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect from anywhere.
		return true
	},
}

// Hub tracks push feed clients, broadcasts snapshots and answers
// request_benchmark frames.
type Hub struct {
	logger  *zap.Logger
	metrics *Metrics
	bench   Benchmarker
	enabled bool

	baseCtx context.Context

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	cancel context.CancelFunc

	// busy holds a token while a feed benchmark runs.
	busy chan struct{}
}

// NewHub creates a hub. bench may be nil when benchmarks are disabled.
func NewHub(bench Benchmarker, enabled bool, metrics *Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:  logger.Named("hub"),
		metrics: metrics,
		bench:   bench,
		enabled: enabled && bench != nil,
		baseCtx: context.Background(),
		clients: make(map[*client]struct{}),
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeWS upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(h.baseCtx)
	cl := &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		cancel: cancel,
		busy:   make(chan struct{}, 1),
	}
	logger := h.logger.With(zap.String("client", cl.id), zap.String("remote", c.Request.RemoteAddr))

	h.register(cl)
	logger.Info("client connected")

	h.sendTo(cl, telemetry.EventConnected, telemetry.Greeting{Data: MsgGreeting})

	go h.writePump(cl, logger)
	h.readPump(ctx, cl, logger)

	h.unregister(cl)
	logger.Info("client disconnected")
}

// Broadcast sends one envelope to every client. Clients whose buffers are
// full miss the frame.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		select {
		case cl.send <- data:
			h.countOut(event)
		default:
			h.logger.Debug("client buffer full, dropping frame", zap.String("client", cl.id), zap.String("event", event))
		}
	}
}

// RunPush broadcasts source() as system_stats every interval until ctx is
// done.
func (h *Hub) RunPush(ctx context.Context, interval time.Duration, source func() telemetry.Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.Clients() == 0 {
				continue
			}
			h.Broadcast(telemetry.EventSystemStats, source())
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		cl.cancel()
		_ = cl.conn.Close()
	}
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.feedClients.Set(float64(n))
	}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	cl.cancel()
	if h.metrics != nil {
		h.metrics.feedClients.Set(float64(n))
	}
}

// sendTo queues one envelope for a single client, if it is still connected.
func (h *Hub) sendTo(cl *client, event string, payload any) {
	data, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode reply", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- data:
		h.countOut(event)
	default:
		h.logger.Warn("client buffer full, dropping reply", zap.String("client", cl.id), zap.String("event", event))
	}
}

func (h *Hub) readPump(ctx context.Context, cl *client, logger *zap.Logger) {
	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		var env telemetry.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Warn("dropping undecodable frame", zap.Error(err))
			continue
		}
		if h.metrics != nil {
			h.metrics.frame(env.Event, "in")
		}

		switch env.Event {
		case telemetry.EventRequestBenchmark:
			select {
			case cl.busy <- struct{}{}:
				go func(env telemetry.Envelope) {
					event, reply := h.handleBenchmark(ctx, env, logger)
					<-cl.busy
					h.sendTo(cl, event, reply)
				}(env)
			default:
				logger.Debug("benchmark already running, rejecting request")
				h.sendTo(cl, telemetry.EventBenchmarkError, telemetry.ErrorResponse{Error: MsgBenchmarkBusy})
			}
		default:
			logger.Debug("ignoring frame", zap.String("event", env.Event))
		}
	}
}

func (h *Hub) writePump(cl *client, logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleBenchmark runs one request_benchmark frame and returns the reply.
func (h *Hub) handleBenchmark(ctx context.Context, env telemetry.Envelope, logger *zap.Logger) (string, any) {
	var req telemetry.BenchmarkRequest
	if err := env.Decode(&req); err != nil {
		return telemetry.EventBenchmarkError, telemetry.ErrorResponse{Error: err.Error()}
	}
	if req.Type == "" {
		req.Type = telemetry.KindMatrixMultiply
	}
	logger = logger.With(zap.String("type", string(req.Type)), zap.String("request_id", req.RequestID))

	switch {
	case !h.enabled:
		return telemetry.EventBenchmarkError, telemetry.ErrorResponse{Error: MsgBenchmarksDisabled}
	case req.Type != telemetry.KindMatrixMultiply:
		return telemetry.EventBenchmarkError, telemetry.ErrorResponse{Error: MsgFeedUnsupportedType}
	}

	start := time.Now()
	cmp, err := h.bench.Compare(ctx, req)
	if h.metrics != nil {
		h.metrics.observeBenchmark(req.Type, laneBoth, time.Since(start), err)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("feed benchmark failed", zap.Error(err))
		}
		return telemetry.EventBenchmarkError, telemetry.ErrorResponse{Error: err.Error()}
	}
	return telemetry.EventBenchmarkResult, cmp
}

func (h *Hub) countOut(event string) {
	if h.metrics != nil {
		h.metrics.frame(event, "out")
	}
}

func encode(event string, payload any) ([]byte, error) {
	env, err := telemetry.NewEnvelope(event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
