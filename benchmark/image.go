package benchmark

import (
	"context"
	"fmt"
	"image"
	"math"
	"math/rand/v2"
	"time"

	"github.com/disintegration/imaging"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	channels      = 3
	histogramBins = 256

	blurSigma = 3.0
	// blurRadius matches imaging.Blur: ceil(3 sigma).
	blurRadius = 9
)

// Operations lists the image pipeline stages in order.
var Operations = []string{"grayscale", "blur", "edge_detection", "histogram"}

// edgeKernel is the Laplacian both lanes use for the edge pass.
var edgeKernel = [9]float64{
	-1, -1, -1,
	-1, 8, -1,
	-1, -1, -1,
}

func (r *Runner) imagePipeline(ctx context.Context) (*telemetry.BenchmarkResult, error) {
	start := time.Now()
	w, h := r.cfg.ImageWidth, r.cfg.ImageHeight
	rng := rand.New(rand.NewPCG(r.cfg.Seed, uint64(w*h)))
	src := randomImage(rng, w, h)

	accelStart := time.Now()
	if _, err := acceleratedPipeline(ctx, src, r.cfg.Workers); err != nil {
		return nil, fmt.Errorf("image pipeline: %w", err)
	}
	accel := time.Since(accelStart)

	baseStart := time.Now()
	if _, err := baselinePipeline(ctx, src); err != nil {
		return nil, fmt.Errorf("image pipeline baseline: %w", err)
	}
	base := time.Since(baseStart)

	return &telemetry.BenchmarkResult{
		Algorithm:    AlgorithmImage,
		ImageSize:    fmt.Sprintf("%dx%dx%d", w, h, channels),
		Operations:   append([]string(nil), Operations...),
		GPUTime:      seconds(accel),
		CPUTime:      seconds(base),
		Speedup:      ratio(base, accel),
		TotalTime:    seconds(time.Since(start)),
		MemoryUsedMB: telemetry.Float(float64(w*h*channels) / mib),
		Timestamp:    r.stamp(),
	}, nil
}

// randomImage returns an opaque image with random RGB values.
func randomImage(rng *rand.Rand, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.IntN(256))
		img.Pix[i+1] = uint8(rng.IntN(256))
		img.Pix[i+2] = uint8(rng.IntN(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

// acceleratedPipeline runs the stages through imaging, which spreads each
// filter across GOMAXPROCS, and builds the histogram on the worker pool.
func acceleratedPipeline(ctx context.Context, src *image.NRGBA, workers int) ([histogramBins]int, error) {
	var hist [histogramBins]int

	gray := imaging.Grayscale(src)
	if err := ctx.Err(); err != nil {
		return hist, err
	}
	blurred := imaging.Blur(gray, blurSigma)
	if err := ctx.Err(); err != nil {
		return hist, err
	}
	_ = imaging.Convolve3x3(blurred, edgeKernel, &imaging.ConvolveOptions{Abs: true})

	pixels := len(gray.Pix) / 4
	parts := make([][histogramBins]int, chunks(workers, pixels))
	err := parallelRange(ctx, workers, pixels, func(_ context.Context, w, lo, hi int) error {
		for i := lo; i < hi; i++ {
			parts[w][gray.Pix[i*4]]++
		}
		return nil
	})
	if err != nil {
		return hist, err
	}
	for _, p := range parts {
		for b, c := range p {
			hist[b] += c
		}
	}
	return hist, nil
}

// baselinePipeline runs the same stages with plain loops on one goroutine:
// luma grayscale, a separable gaussian blur, the Laplacian edge pass and a
// histogram.
func baselinePipeline(ctx context.Context, src *image.NRGBA) ([histogramBins]int, error) {
	var hist [histogramBins]int
	w, h := src.Rect.Dx(), src.Rect.Dy()

	gray := make([]float64, w*h)
	for i := range gray {
		p := src.Pix[i*4 : i*4+3]
		v := luma(p[0], p[1], p[2])
		gray[i] = float64(v)
		hist[v]++
	}
	if err := ctx.Err(); err != nil {
		return hist, err
	}

	kernel := gaussianKernel(blurSigma, blurRadius)
	tmp := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0.0
			for k, kv := range kernel {
				xx := clamp(x+k-blurRadius, 0, w-1)
				s += gray[y*w+xx] * kv
			}
			tmp[y*w+x] = s
		}
	}
	if err := ctx.Err(); err != nil {
		return hist, err
	}
	blurred := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0.0
			for k, kv := range kernel {
				yy := clamp(y+k-blurRadius, 0, h-1)
				s += tmp[yy*w+x] * kv
			}
			blurred[y*w+x] = s
		}
	}
	if err := ctx.Err(); err != nil {
		return hist, err
	}

	_ = laplacian(blurred, w, h)
	return hist, nil
}

// luma is the Rec. 601 weighting imaging.Grayscale applies, rounded the
// same way.
func luma(r, g, b uint8) uint8 {
	f := 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
	return uint8(f + 0.5)
}

// laplacian applies edgeKernel with clamped borders and returns absolute
// responses.
func laplacian(src []float64, w, h int) []float64 {
	out := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			s := 0.0
			for ky := -1; ky <= 1; ky++ {
				yy := clamp(y+ky, 0, h-1)
				for kx := -1; kx <= 1; kx++ {
					xx := clamp(x+kx, 0, w-1)
					s += src[yy*w+xx] * edgeKernel[(ky+1)*3+kx+1]
				}
			}
			out[y*w+x] = math.Abs(s)
		}
	}
	return out
}

func gaussianKernel(sigma float64, radius int) []float64 {
	k := make([]float64, 2*radius+1)
	sum := 0.0
	for i := range k {
		d := float64(i - radius)
		k[i] = math.Exp(-0.5 * d * d / (sigma * sigma))
		sum += k[i]
	}
	for i := range k {
		k[i] /= sum
	}
	return k
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
