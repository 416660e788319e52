package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cdipaolo/goml/base"
	"github.com/cdipaolo/goml/linear"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	baselineIterations = 25
	baselineAlpha      = 1e-3
	noiseStdDev        = 0.1
)

var errSingular = errors.New("normal equations are singular")

func (r *Runner) regression(ctx context.Context) (*telemetry.BenchmarkResult, error) {
	start := time.Now()
	n, f := r.cfg.RegressionSamples, r.cfg.RegressionFeatures
	rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(n)))
	x, y := regressionData(rng, n, f)

	accelStart := time.Now()
	scaled, err := standardize(ctx, x, r.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("linear regression: %w", err)
	}
	coef, err := fitNormalEquations(ctx, scaled, y, r.cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("linear regression: %w", err)
	}
	r2 := rSquared(scaled, y, coef)
	accel := time.Since(accelStart)

	baseStart := time.Now()
	baseScaled, err := standardize(ctx, x, 1)
	if err != nil {
		return nil, fmt.Errorf("linear regression baseline: %w", err)
	}
	model := linear.NewLeastSquares(base.BatchGA, baselineAlpha, 0, baselineIterations, baseScaled, y)
	model.Output = io.Discard
	if err := model.Learn(); err != nil {
		return nil, fmt.Errorf("linear regression baseline: %w", err)
	}
	for _, row := range baseScaled {
		if _, err := model.Predict(row); err != nil {
			return nil, fmt.Errorf("linear regression baseline: %w", err)
		}
	}
	baseTime := time.Since(baseStart)

	return &telemetry.BenchmarkResult{
		Algorithm: AlgorithmRegression,
		NSamples:  telemetry.Int(n),
		NFeatures: telemetry.Int(f),
		R2Score:   telemetry.Float(r2),
		GPUTime:   seconds(accel),
		CPUTime:   seconds(baseTime),
		Speedup:   ratio(baseTime, accel),
		TotalTime: seconds(time.Since(start)),
		Timestamp: r.stamp(),
	}, nil
}

// regressionData draws x uniform in [0,1) and y = x·w + noise.
func regressionData(rng *rand.Rand, n, f int) ([][]float64, []float64) {
	w := make([]float64, f)
	for j := range w {
		w[j] = rng.Float64()
	}
	x := randomPoints(rng, n, f)
	y := make([]float64, n)
	for i, row := range x {
		dot := 0.0
		for j, v := range row {
			dot += v * w[j]
		}
		y[i] = dot + rng.NormFloat64()*noiseStdDev
	}
	return x, y
}

// standardize returns a copy of x with every column scaled to zero mean and
// unit variance. Constant columns are only centred.
func standardize(ctx context.Context, x [][]float64, workers int) ([][]float64, error) {
	n, f := len(x), len(x[0])
	parts := chunks(workers, n)
	partSum := make([][]float64, parts)
	partSq := make([][]float64, parts)

	err := parallelRange(ctx, workers, n, func(_ context.Context, w, lo, hi int) error {
		sum, sq := make([]float64, f), make([]float64, f)
		for _, row := range x[lo:hi] {
			for j, v := range row {
				sum[j] += v
				sq[j] += v * v
			}
		}
		partSum[w], partSq[w] = sum, sq
		return nil
	})
	if err != nil {
		return nil, err
	}

	mean, scale := make([]float64, f), make([]float64, f)
	for j := 0; j < f; j++ {
		var s, q float64
		for w := 0; w < parts; w++ {
			s += partSum[w][j]
			q += partSq[w][j]
		}
		mean[j] = s / float64(n)
		std := math.Sqrt(math.Max(q/float64(n)-mean[j]*mean[j], 0))
		scale[j] = 1
		if std > 0 {
			scale[j] = 1 / std
		}
	}

	out := make([][]float64, n)
	err = parallelRange(ctx, workers, n, func(_ context.Context, _, lo, hi int) error {
		for i := lo; i < hi; i++ {
			row := make([]float64, f)
			for j, v := range x[i] {
				row[j] = (v - mean[j]) * scale[j]
			}
			out[i] = row
		}
		return nil
	})
	return out, err
}

// fitNormalEquations solves (XᵀX)β = Xᵀy with an intercept as β[0]. Each
// worker accumulates a partial Gram matrix over its rows.
func fitNormalEquations(ctx context.Context, x [][]float64, y []float64, workers int) ([]float64, error) {
	n, p := len(x), len(x[0])+1
	parts := chunks(workers, n)
	grams := make([][]float64, parts)
	moments := make([][]float64, parts)

	err := parallelRange(ctx, workers, n, func(ctx context.Context, w, lo, hi int) error {
		g, m := make([]float64, p*p), make([]float64, p)
		row := make([]float64, p)
		row[0] = 1
		for i := lo; i < hi; i++ {
			copy(row[1:], x[i])
			for a := 0; a < p; a++ {
				m[a] += row[a] * y[i]
				for b := a; b < p; b++ {
					g[a*p+b] += row[a] * row[b]
				}
			}
		}
		grams[w], moments[w] = g, m
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}

	g, m := make([]float64, p*p), make([]float64, p)
	for w := 0; w < parts; w++ {
		for i := range g {
			g[i] += grams[w][i]
		}
		for i := range m {
			m[i] += moments[w][i]
		}
	}
	for a := 0; a < p; a++ {
		for b := 0; b < a; b++ {
			g[a*p+b] = g[b*p+a]
		}
	}
	return solve(g, m, p)
}

// solve runs Gaussian elimination with partial pivoting on the p×p system
// a·x = b. a and b are overwritten.
func solve(a, b []float64, p int) ([]float64, error) {
	for col := 0; col < p; col++ {
		pivot := col
		for r := col + 1; r < p; r++ {
			if math.Abs(a[r*p+col]) > math.Abs(a[pivot*p+col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot*p+col]) < 1e-12 {
			return nil, errSingular
		}
		if pivot != col {
			for c := 0; c < p; c++ {
				a[col*p+c], a[pivot*p+c] = a[pivot*p+c], a[col*p+c]
			}
			b[col], b[pivot] = b[pivot], b[col]
		}
		for r := col + 1; r < p; r++ {
			factor := a[r*p+col] / a[col*p+col]
			for c := col; c < p; c++ {
				a[r*p+c] -= factor * a[col*p+c]
			}
			b[r] -= factor * b[col]
		}
	}

	x := make([]float64, p)
	for r := p - 1; r >= 0; r-- {
		s := b[r]
		for c := r + 1; c < p; c++ {
			s -= a[r*p+c] * x[c]
		}
		x[r] = s / a[r*p+r]
	}
	return x, nil
}

// rSquared is the coefficient of determination of coef (intercept first)
// on x, y.
func rSquared(x [][]float64, y, coef []float64) float64 {
	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssRes, ssTot float64
	for i, row := range x {
		pred := coef[0]
		for j, v := range row {
			pred += coef[j+1] * v
		}
		ssRes += (y[i] - pred) * (y[i] - pred)
		ssTot += (y[i] - mean) * (y[i] - mean)
	}
	if ssTot == 0 {
		return 0
	}
	return 1 - ssRes/ssTot
}
