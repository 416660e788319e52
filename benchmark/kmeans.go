package benchmark

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cdipaolo/goml/cluster"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

func randomPoints(rng *rand.Rand, n, dims int) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		p := make([]float64, dims)
		for j := range p {
			p[j] = rng.Float64()
		}
		pts[i] = p
	}
	return pts
}

func (r *Runner) kmeans(ctx context.Context) (*telemetry.BenchmarkResult, error) {
	start := time.Now()
	n, dims, k := r.cfg.KMeansSamples, r.cfg.KMeansFeatures, r.cfg.KMeansClusters
	rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(n)))
	data := randomPoints(rng, n, dims)

	accelStart := time.Now()
	if _, err := lloyd(ctx, data, k, r.cfg.KMeansIterations, r.cfg.Workers, rng); err != nil {
		return nil, fmt.Errorf("k-means: %w", err)
	}
	accel := time.Since(accelStart)

	baseStart := time.Now()
	model := cluster.NewKMeans(k, r.cfg.KMeansIterations, data)
	model.Output = io.Discard
	if err := model.Learn(); err != nil {
		return nil, fmt.Errorf("k-means baseline: %w", err)
	}
	base := time.Since(baseStart)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &telemetry.BenchmarkResult{
		Algorithm: AlgorithmKMeans,
		NSamples:  telemetry.Int(n),
		NFeatures: telemetry.Int(dims),
		NClusters: telemetry.Int(k),
		GPUTime:   seconds(accel),
		CPUTime:   seconds(base),
		Speedup:   ratio(base, accel),
		TotalTime: seconds(time.Since(start)),
		Timestamp: r.stamp(),
	}, nil
}

// lloyd clusters data into k groups. Assignment runs across workers, each
// accumulating partial centroid sums that are merged after every pass. It
// stops early when no assignment changes.
func lloyd(ctx context.Context, data [][]float64, k, iterations, workers int, rng *rand.Rand) ([]int, error) {
	if k <= 0 || k > len(data) {
		return nil, fmt.Errorf("cluster count %d out of range for %d samples", k, len(data))
	}
	dims := len(data[0])

	centroids := make([][]float64, k)
	for i, idx := range rng.Perm(len(data))[:k] {
		centroids[i] = append([]float64(nil), data[idx]...)
	}

	labels := make([]int, len(data))
	for i := range labels {
		labels[i] = -1
	}

	parts := chunks(workers, len(data))
	sums := make([][][]float64, parts)
	counts := make([][]int, parts)
	changed := make([]int, parts)

	for iter := 0; iter < iterations; iter++ {
		err := parallelRange(ctx, workers, len(data), func(_ context.Context, w, lo, hi int) error {
			sum := make([][]float64, k)
			for c := range sum {
				sum[c] = make([]float64, dims)
			}
			count := make([]int, k)
			moved := 0
			for i := lo; i < hi; i++ {
				best := nearest(data[i], centroids)
				if best != labels[i] {
					labels[i] = best
					moved++
				}
				count[best]++
				for d, v := range data[i] {
					sum[best][d] += v
				}
			}
			sums[w], counts[w], changed[w] = sum, count, moved
			return nil
		})
		if err != nil {
			return nil, err
		}

		moved := 0
		for c := 0; c < k; c++ {
			total := 0
			acc := make([]float64, dims)
			for w := 0; w < parts; w++ {
				total += counts[w][c]
				for d := range acc {
					acc[d] += sums[w][c][d]
				}
			}
			// An empty cluster keeps its previous centroid.
			if total == 0 {
				continue
			}
			for d := range acc {
				centroids[c][d] = acc[d] / float64(total)
			}
		}
		for _, m := range changed {
			moved += m
		}
		if moved == 0 {
			break
		}
	}
	return labels, nil
}

func nearest(p []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		dist := 0.0
		for d, v := range p {
			diff := v - centroid[d]
			dist += diff * diff
		}
		if dist < bestDist {
			best, bestDist = c, dist
		}
	}
	return best
}
