// Package benchmark runs the four demo workloads. Every workload has an
// accelerated lane, which splits the work across a worker pool, and a
// baseline lane that runs on a single goroutine. On the wire the
// accelerated lane is reported under the gpu_* keys and the baseline under
// cpu_*.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

var (
	// ErrUnknownKind is returned for a request type no workload handles.
	ErrUnknownKind = errors.New("unknown benchmark type")

	// ErrBaselineUnsupported is returned when only the baseline lane is
	// requested for a workload other than matrix_multiply.
	ErrBaselineUnsupported = errors.New("baseline lane not available for this type")

	// ErrSizeTooLarge is returned for a matrix size above Config.MaxMatrixSize.
	ErrSizeTooLarge = errors.New("matrix size too large")
)

// Algorithm labels reported in results.
const (
	AlgorithmKMeans     = "K-Means Clustering"
	AlgorithmRegression = "Linear Regression"
	AlgorithmImage      = "Image Processing Pipeline"
)

// Config sizes the workloads.
type Config struct {
	// Workers is the accelerated lane's pool size; 0 means runtime.NumCPU.
	Workers           int
	DefaultMatrixSize int
	MaxMatrixSize     int

	KMeansSamples    int
	KMeansFeatures   int
	KMeansClusters   int
	KMeansIterations int

	RegressionSamples  int
	RegressionFeatures int

	ImageWidth  int
	ImageHeight int

	// Seed makes the synthetic inputs reproducible.
	Seed uint64
}

// DefaultConfig returns the sizes used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DefaultMatrixSize:  telemetry.DefaultMatrixSize,
		MaxMatrixSize:      4096,
		KMeansSamples:      10000,
		KMeansFeatures:     10,
		KMeansClusters:     5,
		KMeansIterations:   20,
		RegressionSamples:  50000,
		RegressionFeatures: 20,
		ImageWidth:         1024,
		ImageHeight:        1024,
		Seed:               42,
	}
}

// Runner executes workloads. It is safe for concurrent use; every run
// allocates its own inputs.
type Runner struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Runner. If logger is nil, a no-op logger is used.
func New(cfg Config, logger *zap.Logger) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.DefaultMatrixSize <= 0 {
		cfg.DefaultMatrixSize = telemetry.DefaultMatrixSize
	}
	if cfg.MaxMatrixSize < cfg.DefaultMatrixSize {
		cfg.MaxMatrixSize = cfg.DefaultMatrixSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger.Named("benchmark"), now: time.Now}
}

// Workers returns the accelerated lane's pool size.
func (r *Runner) Workers() int { return r.cfg.Workers }

// Run executes req. matrix_multiply runs only the accelerated lane; the
// other workloads run both lanes and report the two timings and their
// ratio.
func (r *Runner) Run(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	logger := r.logger.With(zap.String("type", string(req.Type)), zap.String("request_id", req.RequestID))
	logger.Info("running benchmark")

	var (
		res *telemetry.BenchmarkResult
		err error
	)
	switch req.Type {
	case telemetry.KindMatrixMultiply:
		var n int
		if n, err = r.matrixSize(req); err == nil {
			res, err = r.matrixAccelerated(ctx, n)
		}
	case telemetry.KindMLInference:
		res, err = r.kmeans(ctx)
	case telemetry.KindLinearRegression:
		res, err = r.regression(ctx)
	case telemetry.KindImageProcessing:
		res, err = r.imagePipeline(ctx)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Type)
	}
	if err != nil {
		logger.Warn("benchmark failed", zap.Error(err))
		return nil, err
	}
	logResult(logger, res)
	return res, nil
}

// Baseline runs matrix_multiply on the baseline lane only.
func (r *Runner) Baseline(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Type)
	}
	if req.Type != telemetry.KindMatrixMultiply {
		return nil, fmt.Errorf("%w: %s", ErrBaselineUnsupported, req.Type)
	}
	n, err := r.matrixSize(req)
	if err != nil {
		return nil, err
	}
	return r.matrixBaseline(ctx, n)
}

// Compare runs matrix_multiply on both lanes. Speedup is the baseline
// compute time over the accelerated compute time.
func (r *Runner) Compare(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.Comparison, error) {
	if req.Type != telemetry.KindMatrixMultiply {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, req.Type)
	}
	n, err := r.matrixSize(req)
	if err != nil {
		return nil, err
	}

	accel, err := r.matrixAccelerated(ctx, n)
	if err != nil {
		return nil, err
	}
	base, err := r.matrixBaseline(ctx, n)
	if err != nil {
		return nil, err
	}

	cmp := &telemetry.Comparison{
		Type:      telemetry.KindMatrixMultiply,
		GPUResult: accel,
		CPUResult: base,
		RequestID: req.RequestID,
	}
	if *accel.ComputeTime > 0 {
		cmp.Speedup = telemetry.Float(*base.ComputeTime / *accel.ComputeTime)
	}
	return cmp, nil
}

func (r *Runner) matrixSize(req telemetry.BenchmarkRequest) (int, error) {
	n := req.Size
	if n <= 0 {
		n = r.cfg.DefaultMatrixSize
	}
	if n > r.cfg.MaxMatrixSize {
		return 0, fmt.Errorf("%w: %d exceeds %d", ErrSizeTooLarge, n, r.cfg.MaxMatrixSize)
	}
	return n, nil
}

func (r *Runner) stamp() string {
	return r.now().Format(time.RFC3339Nano)
}

func seconds(d time.Duration) *float64 {
	return telemetry.Float(d.Seconds())
}

// ratio returns base/accel, or nil when accel did not register.
func ratio(base, accel time.Duration) *float64 {
	if accel <= 0 {
		return nil
	}
	return telemetry.Float(base.Seconds() / accel.Seconds())
}

func logResult(logger *zap.Logger, res *telemetry.BenchmarkResult) {
	fields := []zap.Field{}
	if res.GFLOPS != nil {
		fields = append(fields, zap.Float64("gflops", *res.GFLOPS))
	}
	if res.ComputeTime != nil {
		fields = append(fields, zap.Float64("compute_time", *res.ComputeTime))
	}
	if res.Speedup != nil {
		fields = append(fields, zap.Float64("speedup", *res.Speedup))
	}
	logger.Info("benchmark completed", fields...)
}
