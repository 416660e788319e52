package dashboard

import (
	"fmt"

	"gitlab.com/tinyland/lab/gpu-pulse/internal/format"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// DescribeComparison renders a push-channel matrix comparison. It reports
// false for payloads that have no rendering (other kinds or a missing lane).
func DescribeComparison(c telemetry.Comparison) (BenchmarkPanel, bool) {
	if c.Type != telemetry.KindMatrixMultiply || c.GPUResult == nil || c.CPUResult == nil {
		return BenchmarkPanel{}, false
	}

	p := BenchmarkPanel{
		Title: matrixTitle(c.GPUResult.Size),
		Lines: []string{
			laneLine("GPU", c.GPUResult),
			laneLine("CPU", c.CPUResult),
		},
	}
	if v, ok := c.SpeedupsOf().Effective(); ok {
		p.Badge = format.Speedup(v)
		if v != 0 {
			p.BaselineBar = telemetry.Float(1 / v * 100)
		}
	}
	return p, true
}

// DescribeResult renders a request/response result for the kind that was
// requested. It reports false for kinds without a rendering.
func DescribeResult(kind telemetry.Kind, r telemetry.BenchmarkResult) (BenchmarkPanel, bool) {
	var p BenchmarkPanel

	switch kind {
	case telemetry.KindMatrixMultiply:
		p.Title = matrixTitle(r.Size)
		p.Lines = []string{laneLine("Result", &r)}
		if r.TotalTime != nil {
			p.Lines = append(p.Lines, "Total Time: "+format.Seconds(r.TotalTime))
		}
		return p, true

	case telemetry.KindMLInference:
		p.Title = orDefault(r.Algorithm, "ML Algorithm")
		p.Lines = []string{
			"Samples: " + format.Count(r.NSamples),
			"Features: " + format.Count(r.NFeatures),
		}
		if r.NClusters != nil {
			p.Lines = append(p.Lines, "Clusters: "+format.Count(r.NClusters))
		}

	case telemetry.KindLinearRegression:
		p.Title = orDefault(r.Algorithm, "Linear Regression")
		p.Lines = []string{
			"Samples: " + format.Count(r.NSamples),
			"Features: " + format.Count(r.NFeatures),
		}
		if r.R2Score != nil {
			p.Lines = append(p.Lines, "R²: "+format.Fixed(r.R2Score, 4))
		}

	case telemetry.KindImageProcessing:
		p.Title = orDefault(r.Algorithm, "Image Processing")
		p.Lines = []string{
			"Image Size: " + orDefault(r.ImageSize, format.Placeholder),
			"Operations: " + format.JoinOr(r.Operations, ", "),
		}

	default:
		return BenchmarkPanel{}, false
	}

	p.Lines = append(p.Lines, "GPU Time: "+format.Seconds(r.GPUTime))
	if r.CPUTime != nil {
		p.Lines = append(p.Lines, "CPU Time: "+format.Seconds(r.CPUTime))
	}
	if v, ok := r.SpeedupsOf().Effective(); ok {
		p.Badge = format.Speedup(v)
	}
	return p, true
}

func matrixTitle(n int) string {
	return fmt.Sprintf("Matrix Multiplication (%dx%d)", n, n)
}

func laneLine(label string, r *telemetry.BenchmarkResult) string {
	if r.Device != "" {
		label = fmt.Sprintf("%s [%s]", label, r.Device)
	}
	return fmt.Sprintf("%s: %s GFLOPS (%s)", label, format.Fixed(r.GFLOPS, 2), format.Seconds(r.ComputeTime))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
