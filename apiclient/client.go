// Package apiclient is the request/response client for the backend's REST
// API.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	healthAPI       = "/health"
	systemInfoAPI   = "/api/system-info"
	gpuInfoAPI      = "/api/gpu-info"
	gpuBenchmarkAPI = "/api/gpu-benchmark"
	cpuBenchmarkAPI = "/api/cpu-benchmark"
)

// DefaultTimeout bounds a single call. Benchmarks at the largest matrix
// sizes take a while on the baseline lane.
const DefaultTimeout = 2 * time.Minute

// Config represents client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// APIError is a non-2xx response. Message carries the server's {error}
// text when the body had one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
}

// RemoteMessage is the text the server reported.
func (e *APIError) RemoteMessage() string { return e.Message }

// Client calls the backend.
type Client struct {
	client *resty.Client
}

// New creates a client for the backend at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("apiclient: base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{client: client}, nil
}

// Health queries /health.
func (c *Client) Health(ctx context.Context) (*telemetry.Health, error) {
	var out telemetry.Health
	if err := c.get(ctx, healthAPI, &out); err != nil {
		return nil, fmt.Errorf("health: %w", err)
	}
	return &out, nil
}

// SystemInfo fetches a full host snapshot.
func (c *Client) SystemInfo(ctx context.Context) (*telemetry.Stats, error) {
	var out telemetry.Stats
	if err := c.get(ctx, systemInfoAPI, &out); err != nil {
		return nil, fmt.Errorf("system info: %w", err)
	}
	return &out, nil
}

// GPUInfo fetches the GPU list. A host without GPUs answers 200 with the
// Error field set.
func (c *Client) GPUInfo(ctx context.Context) (*telemetry.GPUInfo, error) {
	var out telemetry.GPUInfo
	if err := c.get(ctx, gpuInfoAPI, &out); err != nil {
		return nil, fmt.Errorf("gpu info: %w", err)
	}
	return &out, nil
}

// RunBenchmark runs a workload on the accelerated lane.
func (c *Client) RunBenchmark(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	var out telemetry.BenchmarkResult
	if err := c.post(ctx, gpuBenchmarkAPI, req, &out); err != nil {
		return nil, fmt.Errorf("run %s benchmark: %w", req.Type, err)
	}
	return &out, nil
}

// CPUBenchmark runs matrix_multiply on the baseline lane only.
func (c *Client) CPUBenchmark(ctx context.Context, req telemetry.BenchmarkRequest) (*telemetry.BenchmarkResult, error) {
	var out telemetry.BenchmarkResult
	if err := c.post(ctx, cpuBenchmarkAPI, req, &out); err != nil {
		return nil, fmt.Errorf("run %s cpu benchmark: %w", req.Type, err)
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	var apiErr telemetry.ErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&apiErr).
		Get(path)
	return check(resp, err, &apiErr)
}

func (c *Client) post(ctx context.Context, path string, body, result any) error {
	var apiErr telemetry.ErrorResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(result).
		SetError(&apiErr).
		Post(path)
	return check(resp, err, &apiErr)
}

func check(resp *resty.Response, err error, apiErr *telemetry.ErrorResponse) error {
	if err != nil {
		return err
	}
	if !resp.IsError() {
		return nil
	}
	msg := apiErr.Error
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
