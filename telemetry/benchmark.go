package telemetry

import (
	"fmt"
	"strings"
)

// Kind names a benchmark workload.
type Kind string

// Benchmark kinds accepted by the server.
const (
	KindMatrixMultiply   Kind = "matrix_multiply"
	KindMLInference      Kind = "ml_inference"
	KindLinearRegression Kind = "linear_regression"
	KindImageProcessing  Kind = "image_processing"
)

// DefaultMatrixSize is used when a matrix request omits size.
const DefaultMatrixSize = 1024

// Kinds lists every workload in menu order.
var Kinds = []Kind{KindMatrixMultiply, KindMLInference, KindLinearRegression, KindImageProcessing}

// Valid reports whether k is a known workload.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// ParseKind accepts the wire name or the dashboard menu aliases
// ("kmeans", "matrix", "image").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "matrix_multiply", "matrix":
		return KindMatrixMultiply, nil
	case "ml_inference", "kmeans":
		return KindMLInference, nil
	case "linear_regression":
		return KindLinearRegression, nil
	case "image_processing", "image":
		return KindImageProcessing, nil
	}
	return "", fmt.Errorf("unknown benchmark type %q", s)
}

// BenchmarkRequest asks the server to run one workload.
type BenchmarkRequest struct {
	Type Kind `json:"type"`
	Size int  `json:"size,omitempty"`
	// RequestID correlates log lines; the server does not require it.
	RequestID string `json:"request_id,omitempty"`
}

// MatrixSize returns Size, or DefaultMatrixSize when unset.
func (r BenchmarkRequest) MatrixSize() int {
	if r.Size <= 0 {
		return DefaultMatrixSize
	}
	return r.Size
}

// BenchmarkResult is a single-call result. Fields not produced by a workload
// are omitted.
type BenchmarkResult struct {
	// Matrix lane fields.
	Size        int      `json:"size,omitempty"`
	ComputeTime *float64 `json:"compute_time,omitempty"`
	GFLOPS      *float64 `json:"gflops,omitempty"`
	Device      string   `json:"device,omitempty"`

	// Workload fields.
	Algorithm  string   `json:"algorithm,omitempty"`
	NSamples   *int     `json:"n_samples,omitempty"`
	NFeatures  *int     `json:"n_features,omitempty"`
	NClusters  *int     `json:"n_clusters,omitempty"`
	R2Score    *float64 `json:"r2_score,omitempty"`
	ImageSize  string   `json:"image_size,omitempty"`
	Operations []string `json:"operations,omitempty"`
	GPUTime    *float64 `json:"gpu_time,omitempty"`
	CPUTime    *float64 `json:"cpu_time,omitempty"`
	Speedup    *float64 `json:"speedup,omitempty"`

	TotalTime    *float64 `json:"total_time,omitempty"`
	MemoryUsedMB *float64 `json:"memory_used_mb,omitempty"`
	Timestamp    string   `json:"timestamp,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// Comparison is the push-channel result of a matrix run on both lanes.
type Comparison struct {
	Type      Kind             `json:"type"`
	GPUResult *BenchmarkResult `json:"gpu_result,omitempty"`
	CPUResult *BenchmarkResult `json:"cpu_result,omitempty"`
	Speedup   *float64         `json:"speedup,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}
