package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

var errEmptyResponse = errors.New("empty response")

// DefaultQueueSize is the capacity of the inbound event queue.
const DefaultQueueSize = 64

// Feed is the push-update channel.
type Feed interface {
	// Envelopes delivers frames until the feed shuts down, then closes.
	Envelopes() <-chan telemetry.Envelope
	// RequestBenchmark sends request_benchmark; the outcome arrives later
	// on Envelopes.
	RequestBenchmark(ctx context.Context, req telemetry.BenchmarkRequest) error
}

// Caller is the request/response client.
type Caller interface {
	SystemInfo(ctx context.Context) (*telemetry.Stats, error)
	GPUInfo(ctx context.Context) (*telemetry.GPUInfo, error)
	RunBenchmark(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error)
}

// Config sizes a session.
type Config struct {
	Capacity  int
	QueueSize int
}

// Session owns the dashboard state and processes its event queue on the
// goroutine that calls Run. Collaborators complete asynchronously and report
// back by enqueueing events.
type Session struct {
	feed     Feed
	caller   Caller
	renderer Renderer
	logger   *zap.Logger

	queue chan Event
	state State
}

// NewSession creates a session. A nil logger is replaced by a no-op logger.
func NewSession(cfg Config, feed Feed, caller Caller, renderer Renderer, logger *zap.Logger) (*Session, error) {
	if feed == nil || caller == nil || renderer == nil {
		return nil, errors.New("dashboard: feed, caller and renderer are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	state, err := NewState(cfg.Capacity)
	if err != nil {
		return nil, err
	}

	return &Session{
		feed:     feed,
		caller:   caller,
		renderer: renderer,
		logger:   logger,
		queue:    make(chan Event, cfg.QueueSize),
		state:    state,
	}, nil
}

// Run draws the initial frame, starts the startup fetches and the feed pump,
// then processes events in arrival order until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	for _, inst := range InitialInstructions(s.state) {
		s.renderer.Render(inst)
	}

	go s.loadSystemInfo(ctx)
	go s.loadGPUInfo(ctx)
	go s.pumpFeed(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.queue:
			s.handle(ctx, ev)
		}
	}
}

// RequestBenchmark queues a benchmark request. It returns the request id.
func (s *Session) RequestBenchmark(ctx context.Context, kind telemetry.Kind, size int, style Style) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("unknown benchmark type %q", kind)
	}
	req := telemetry.BenchmarkRequest{Type: kind, RequestID: uuid.NewString()}
	if kind == telemetry.KindMatrixMultiply {
		req.Size = size
	}
	if err := s.enqueue(ctx, BenchmarkRequested{Request: req, Style: style}); err != nil {
		return "", err
	}
	return req.RequestID, nil
}

// Submit queues an arbitrary event.
func (s *Session) Submit(ctx context.Context, ev Event) error {
	return s.enqueue(ctx, ev)
}

func (s *Session) enqueue(ctx context.Context, ev Event) error {
	select {
	case s.queue <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) handle(ctx context.Context, ev Event) {
	switch ev.(type) {
	case ComparisonReceived, ResultReceived, BenchmarkFailed:
		if s.state.InFlight > 1 {
			// Completions are not matched to requests; the panel shows
			// whichever finishes last.
			s.logger.Warn("benchmark completed while others are still running",
				zap.Int("in_flight", s.state.InFlight))
		}
	}

	var out []Instruction
	s.state, out = Apply(s.state, ev)
	for _, inst := range out {
		s.renderer.Render(inst)
	}

	if req, ok := ev.(BenchmarkRequested); ok {
		s.dispatch(ctx, req)
	}
}

func (s *Session) dispatch(ctx context.Context, ev BenchmarkRequested) {
	req := ev.Request
	logger := s.logger.With(
		zap.String("request_id", req.RequestID),
		zap.String("type", string(req.Type)),
		zap.Stringer("style", ev.Style),
	)
	logger.Debug("dispatching benchmark")

	switch ev.Style {
	case ViaFeed:
		go func() {
			if err := s.feed.RequestBenchmark(ctx, req); err != nil {
				logger.Warn("feed benchmark request failed", zap.Error(err))
				_ = s.enqueue(ctx, BenchmarkFailed{Title: TitleNetworkError, Message: err.Error()})
			}
		}()
	default:
		go func() {
			res, err := s.caller.RunBenchmark(ctx, req)
			if err == nil && res == nil {
				err = errEmptyResponse
			}
			if err != nil {
				logger.Warn("benchmark call failed", zap.Error(err))
				_ = s.enqueue(ctx, FailureFromError(err))
				return
			}
			_ = s.enqueue(ctx, ResultReceived{Kind: req.Type, Result: *res})
		}()
	}
}

func (s *Session) loadSystemInfo(ctx context.Context) {
	info, err := s.caller.SystemInfo(ctx)
	if err == nil && info == nil {
		err = errEmptyResponse
	}
	if err != nil {
		s.logger.Warn("system info fetch failed", zap.Error(err))
		_ = s.enqueue(ctx, SystemInfoFailed{Err: err})
		return
	}
	_ = s.enqueue(ctx, SystemInfoLoaded{Info: *info})
}

func (s *Session) loadGPUInfo(ctx context.Context) {
	info, err := s.caller.GPUInfo(ctx)
	if err == nil && info == nil {
		err = errEmptyResponse
	}
	if err != nil {
		s.logger.Warn("gpu info fetch failed", zap.Error(err))
		_ = s.enqueue(ctx, GPUInfoFailed{Err: err})
		return
	}
	_ = s.enqueue(ctx, GPUInfoLoaded{Info: *info})
}

func (s *Session) pumpFeed(ctx context.Context) {
	envelopes := s.feed.Envelopes()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			ev, err := Translate(env)
			if err != nil {
				s.logger.Warn("dropping malformed feed frame", zap.String("event", env.Event), zap.Error(err))
				continue
			}
			if ev == nil {
				s.logger.Debug("ignoring feed frame", zap.String("event", env.Event))
				continue
			}
			if s.enqueue(ctx, ev) != nil {
				return
			}
		}
	}
}
