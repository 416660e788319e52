// Package server is the gpu-pulse backend: a REST API for host, GPU and
// benchmark calls, a websocket push feed of telemetry snapshots, and a
// Prometheus endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	laneAccelerated = "accelerated"
	laneBaseline    = "baseline"
	laneBoth        = "both"

	shutdownTimeout = 5 * time.Second
)

// Benchmarker runs workloads. *benchmark.Runner implements it.
type Benchmarker interface {
	Run(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error)
	Baseline(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error)
	Compare(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.Comparison, error)
}

// StatusSource reports collector run history. *collectors.Registry
// implements it.
type StatusSource interface {
	AllStatus() []collectors.CollectorStatus
}

// Options configures a Server.
type Options struct {
	Listen            string
	PushInterval      time.Duration
	BenchmarksEnabled bool
	// Collectors, when set, adds per-collector status to /health.
	Collectors StatusSource
}

// Server wires the aggregator, hub and handlers to a gin engine.
type Server struct {
	opts    Options
	agg     *Aggregator
	bench   Benchmarker
	hub     *Hub
	metrics *Metrics
	logger  *zap.Logger
	engine  *gin.Engine
	now     func() time.Time
}

// New builds a server. metrics and logger may be nil.
func New(opts Options, agg *Aggregator, bench Benchmarker, metrics *Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = 2 * time.Second
	}
	if bench == nil {
		opts.BenchmarksEnabled = false
	}

	s := &Server{
		opts:    opts,
		agg:     agg,
		bench:   bench,
		hub:     NewHub(bench, opts.BenchmarksEnabled, metrics, logger),
		metrics: metrics,
		logger:  logger.Named("server"),
		now:     time.Now,
	}
	s.engine = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Hub returns the push feed hub.
func (s *Server) Hub() *Hub { return s.hub }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.hub.baseCtx = ctx

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.hub.RunPush(ctx, s.opts.PushInterval, s.agg.Drain)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()),
			zap.Bool("benchmarks", s.opts.BenchmarksEnabled),
			zap.Duration("push_interval", s.opts.PushInterval))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.metrics.Middleware(), requestLogger(s.logger))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/ws", s.hub.ServeWS)

	api := r.Group("/api")
	{
		api.GET("/system-info", s.systemInfo)
		api.GET("/gpu-info", s.gpuInfo)
		api.POST("/gpu-benchmark", s.gpuBenchmark)
		api.POST("/cpu-benchmark", s.cpuBenchmark)
	}
	return r
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.FullPath() == "/ws" {
			return
		}
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
