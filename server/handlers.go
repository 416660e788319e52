package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/benchmark"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// REST error messages.
const (
	MsgBenchmarksDisabled  = "Benchmarks not available"
	MsgUnknownBenchmark    = "Unknown benchmark type"
	MsgBaselineUnsupported = "CPU benchmark not available for this type"

	statusHealthy = "healthy"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, telemetry.Health{
		Status:            statusHealthy,
		Timestamp:         s.now().Format(time.RFC3339Nano),
		GPUAvailable:      s.agg.GPUAvailable(),
		GPUDemosAvailable: s.opts.BenchmarksEnabled,
		Collectors:        s.collectorHealth(),
	})
}

func (s *Server) collectorHealth() []telemetry.CollectorHealth {
	if s.opts.Collectors == nil {
		return nil
	}
	statuses := s.opts.Collectors.AllStatus()
	out := make([]telemetry.CollectorHealth, 0, len(statuses))
	for _, st := range statuses {
		ch := telemetry.CollectorHealth{
			Name:          st.Name,
			Description:   st.Description,
			Healthy:       st.Healthy,
			Runs:          st.RunCount,
			Errors:        st.ErrorCount,
			LastLatencyMS: float64(st.LastLatency) / float64(time.Millisecond),
		}
		if !st.LastRun.IsZero() {
			ch.LastRun = st.LastRun.UTC().Format(time.RFC3339Nano)
		}
		if st.LastError != nil {
			ch.LastError = st.LastError.Error()
		}
		out = append(out, ch)
	}
	return out
}

func (s *Server) systemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.Snapshot())
}

func (s *Server) gpuInfo(c *gin.Context) {
	c.JSON(http.StatusOK, s.agg.GPUInfo())
}

func (s *Server) gpuBenchmark(c *gin.Context) {
	req, ok := s.bindBenchmark(c)
	if !ok {
		return
	}
	if !req.Type.Valid() {
		abort(c, http.StatusBadRequest, MsgUnknownBenchmark)
		return
	}

	start := time.Now()
	res, err := s.bench.Run(c.Request.Context(), req)
	s.metrics.observeBenchmark(req.Type, laneAccelerated, time.Since(start), err)
	if err != nil {
		s.benchmarkFailed(c, req, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) cpuBenchmark(c *gin.Context) {
	req, ok := s.bindBenchmark(c)
	if !ok {
		return
	}
	if req.Type != telemetry.KindMatrixMultiply {
		abort(c, http.StatusBadRequest, MsgBaselineUnsupported)
		return
	}

	start := time.Now()
	res, err := s.bench.Baseline(c.Request.Context(), req)
	s.metrics.observeBenchmark(req.Type, laneBaseline, time.Since(start), err)
	if err != nil {
		s.benchmarkFailed(c, req, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// bindBenchmark decodes the request body. A missing type means
// matrix_multiply.
func (s *Server) bindBenchmark(c *gin.Context) (telemetry.BenchmarkRequest, bool) {
	var req telemetry.BenchmarkRequest
	if !s.opts.BenchmarksEnabled {
		abort(c, http.StatusBadRequest, MsgBenchmarksDisabled)
		return req, false
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	if req.Type == "" {
		req.Type = telemetry.KindMatrixMultiply
	}
	return req, true
}

func (s *Server) benchmarkFailed(c *gin.Context, req telemetry.BenchmarkRequest, err error) {
	switch {
	case errors.Is(err, benchmark.ErrUnknownKind):
		abort(c, http.StatusBadRequest, MsgUnknownBenchmark)
	case errors.Is(err, benchmark.ErrSizeTooLarge):
		abort(c, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("benchmark failed", zap.String("type", string(req.Type)), zap.Error(err))
		abort(c, http.StatusInternalServerError, err.Error())
	}
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, telemetry.ErrorResponse{Error: msg})
}
