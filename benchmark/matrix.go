package benchmark

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const mib = 1 << 20

// BaselineDevice labels the single-goroutine lane.
const BaselineDevice = "single goroutine"

func (r *Runner) acceleratedDevice() string {
	return fmt.Sprintf("worker pool (%d workers)", r.cfg.Workers)
}

// randomMatrix fills an n×n row-major float32 matrix with values in [0,1).
func randomMatrix(rng *rand.Rand, n int) []float32 {
	m := make([]float32, n*n)
	for i := range m {
		m[i] = rng.Float32()
	}
	return m
}

// mulRows computes rows [lo,hi) of c = a·b for n×n row-major matrices,
// using i-k-j order so the inner loop streams over contiguous memory.
func mulRows(ctx context.Context, a, b, c []float32, n, lo, hi int) error {
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		ci := c[i*n : (i+1)*n]
		for k := 0; k < n; k++ {
			aik := a[i*n+k]
			bk := b[k*n : (k+1)*n]
			for j, bkj := range bk {
				ci[j] += aik * bkj
			}
		}
	}
	return nil
}

func (r *Runner) matrixAccelerated(ctx context.Context, n int) (*telemetry.BenchmarkResult, error) {
	start := time.Now()
	rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(n)))
	a, b := randomMatrix(rng, n), randomMatrix(rng, n)
	c := make([]float32, n*n)

	computeStart := time.Now()
	err := parallelRange(ctx, r.cfg.Workers, n, func(ctx context.Context, _, lo, hi int) error {
		return mulRows(ctx, a, b, c, n, lo, hi)
	})
	if err != nil {
		return nil, fmt.Errorf("matrix multiply: %w", err)
	}
	compute := time.Since(computeStart)

	res := matrixResult(n, compute, time.Since(start), r.acceleratedDevice(), r.stamp())
	res.MemoryUsedMB = telemetry.Float(float64(3*n*n*4) / mib)
	return res, nil
}

func (r *Runner) matrixBaseline(ctx context.Context, n int) (*telemetry.BenchmarkResult, error) {
	start := time.Now()
	rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(n)))
	a, b := randomMatrix(rng, n), randomMatrix(rng, n)
	c := make([]float32, n*n)

	computeStart := time.Now()
	if err := mulRows(ctx, a, b, c, n, 0, n); err != nil {
		return nil, fmt.Errorf("matrix multiply: %w", err)
	}
	compute := time.Since(computeStart)

	return matrixResult(n, compute, time.Since(start), BaselineDevice, r.stamp()), nil
}

func matrixResult(n int, compute, total time.Duration, device, stamp string) *telemetry.BenchmarkResult {
	res := &telemetry.BenchmarkResult{
		Size:        n,
		ComputeTime: seconds(compute),
		TotalTime:   seconds(total),
		Device:      device,
		Timestamp:   stamp,
	}
	if compute > 0 {
		res.GFLOPS = telemetry.Float(GFLOPS(n, compute))
	}
	return res
}

// GFLOPS is the multiply-add rate of an n×n product computed in d.
func GFLOPS(n int, d time.Duration) float64 {
	ops := 2 * float64(n) * float64(n) * float64(n)
	return ops / (d.Seconds() * 1e9)
}
