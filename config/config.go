// Package config provides configuration parsing for gpu-pulse.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings.
const (
	EnvListen    = "GPU_PULSE_LISTEN"
	EnvServerURL = "GPU_PULSE_SERVER_URL"
	EnvLogLevel  = "GPU_PULSE_LOG_LEVEL"
	EnvLogFile   = "GPU_PULSE_LOG_FILE"
)

// Config represents the gpu-pulse configuration shared by the server and
// the dashboard.
type Config struct {
	// Server holds backend settings.
	Server ServerConfig `yaml:"server"`

	// Benchmarks holds workload sizes for the benchmark endpoints.
	Benchmarks BenchmarksConfig `yaml:"benchmarks"`

	// Dashboard holds dashboard session settings.
	Dashboard DashboardConfig `yaml:"dashboard"`

	// Logging holds log output settings.
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds backend settings.
type ServerConfig struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`
	// PushInterval is a duration string between system_stats broadcasts.
	PushInterval string `yaml:"push_interval"`
	// CollectInterval is a duration string between host metric samples.
	CollectInterval string `yaml:"collect_interval"`
	// GPUCommand is the GPU query tool. Empty disables GPU collection.
	GPUCommand string `yaml:"gpu_command"`
}

// BenchmarksConfig holds workload sizes.
type BenchmarksConfig struct {
	// Enabled turns the benchmark endpoints on.
	Enabled bool `yaml:"enabled"`
	// Workers is the accelerated lane's pool size; 0 means one per CPU.
	Workers int `yaml:"workers"`
	// DefaultMatrixSize is used when a request has no size.
	DefaultMatrixSize int `yaml:"default_matrix_size"`
	// MaxMatrixSize rejects larger requests.
	MaxMatrixSize int `yaml:"max_matrix_size"`
	// KMeans sizes the ml_inference workload.
	KMeans KMeansConfig `yaml:"kmeans"`
	// Regression sizes the linear_regression workload.
	Regression RegressionConfig `yaml:"regression"`
	// Image sizes the image_processing workload.
	Image ImageConfig `yaml:"image"`
}

// KMeansConfig sizes the clustering workload.
type KMeansConfig struct {
	Samples    int `yaml:"samples"`
	Features   int `yaml:"features"`
	Clusters   int `yaml:"clusters"`
	Iterations int `yaml:"iterations"`
}

// RegressionConfig sizes the regression workload.
type RegressionConfig struct {
	Samples  int `yaml:"samples"`
	Features int `yaml:"features"`
}

// ImageConfig sizes the image workload.
type ImageConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// DashboardConfig holds dashboard session settings.
type DashboardConfig struct {
	// ServerURL is the backend base URL.
	ServerURL string `yaml:"server_url"`
	// MaxDataPoints is the chart window length.
	MaxDataPoints int `yaml:"max_data_points"`
	// MatrixSizes are the selectable matrix sizes.
	MatrixSizes []int `yaml:"matrix_sizes"`
	// RequestTimeout is a duration string bounding one REST call.
	RequestTimeout string `yaml:"request_timeout"`
	// ReconnectDelay is a duration string between push feed redials.
	ReconnectDelay string `yaml:"reconnect_delay"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// File receives JSON logs when set.
	File string `yaml:"file"`
}

// DefaultPath returns the default configuration file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gpu-pulse", "config.yaml")
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          ":5000",
			PushInterval:    "2s",
			CollectInterval: "1s",
			GPUCommand:      "nvidia-smi",
		},
		Benchmarks: BenchmarksConfig{
			Enabled:           true,
			Workers:           0,
			DefaultMatrixSize: 1024,
			MaxMatrixSize:     4096,
			KMeans: KMeansConfig{
				Samples:    10000,
				Features:   10,
				Clusters:   5,
				Iterations: 20,
			},
			Regression: RegressionConfig{
				Samples:  50000,
				Features: 20,
			},
			Image: ImageConfig{
				Width:  1024,
				Height: 1024,
			},
		},
		Dashboard: DashboardConfig{
			ServerURL:      "http://localhost:5000",
			MaxDataPoints:  30,
			MatrixSizes:    []int{256, 512, 1024, 2048},
			RequestTimeout: "2m",
			ReconnectDelay: "2s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a YAML file, merging with defaults,
// then applies environment overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	config.ApplyEnv(os.LookupEnv)
	return config, nil
}

// ApplyEnv overrides settings from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvListen); ok && v != "" {
		c.Server.Listen = v
	}
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.Dashboard.ServerURL = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvLogFile); ok {
		c.Logging.File = v
	}
}

// Validate checks the configuration for required fields and logical consistency.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if err := positiveDuration("server.push_interval", c.Server.PushInterval); err != nil {
		return err
	}
	if err := positiveDuration("server.collect_interval", c.Server.CollectInterval); err != nil {
		return err
	}

	// Benchmark validation
	b := c.Benchmarks
	if b.Workers < 0 {
		return fmt.Errorf("benchmarks.workers must be non-negative, got %d", b.Workers)
	}
	if b.DefaultMatrixSize <= 0 {
		return fmt.Errorf("benchmarks.default_matrix_size must be positive, got %d", b.DefaultMatrixSize)
	}
	if b.MaxMatrixSize < b.DefaultMatrixSize {
		return fmt.Errorf("benchmarks.max_matrix_size (%d) must be at least default_matrix_size (%d)", b.MaxMatrixSize, b.DefaultMatrixSize)
	}
	if b.KMeans.Samples <= 0 || b.KMeans.Features <= 0 || b.KMeans.Iterations <= 0 {
		return fmt.Errorf("benchmarks.kmeans sizes must be positive")
	}
	if b.KMeans.Clusters <= 0 || b.KMeans.Clusters > b.KMeans.Samples {
		return fmt.Errorf("benchmarks.kmeans.clusters must be between 1 and samples, got %d", b.KMeans.Clusters)
	}
	if b.Regression.Features <= 0 || b.Regression.Samples <= b.Regression.Features {
		return fmt.Errorf("benchmarks.regression.samples must exceed features")
	}
	if b.Image.Width <= 0 || b.Image.Height <= 0 {
		return fmt.Errorf("benchmarks.image dimensions must be positive")
	}

	// Dashboard validation
	if c.Dashboard.ServerURL == "" {
		return fmt.Errorf("dashboard.server_url is required")
	}
	if c.Dashboard.MaxDataPoints <= 0 {
		return fmt.Errorf("dashboard.max_data_points must be positive, got %d", c.Dashboard.MaxDataPoints)
	}
	for i, n := range c.Dashboard.MatrixSizes {
		if n <= 0 || n > b.MaxMatrixSize {
			return fmt.Errorf("dashboard.matrix_sizes[%d] must be between 1 and %d, got %d", i, b.MaxMatrixSize, n)
		}
	}
	if err := positiveDuration("dashboard.request_timeout", c.Dashboard.RequestTimeout); err != nil {
		return err
	}
	if err := positiveDuration("dashboard.reconnect_delay", c.Dashboard.ReconnectDelay); err != nil {
		return err
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level)
	}

	return nil
}

// PushInterval returns the parsed broadcast interval.
func (c *Config) PushInterval() time.Duration {
	return mustDuration(c.Server.PushInterval)
}

// CollectInterval returns the parsed sampling interval.
func (c *Config) CollectInterval() time.Duration {
	return mustDuration(c.Server.CollectInterval)
}

// RequestTimeout returns the parsed REST call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return mustDuration(c.Dashboard.RequestTimeout)
}

// ReconnectDelay returns the parsed feed redial delay.
func (c *Config) ReconnectDelay() time.Duration {
	return mustDuration(c.Dashboard.ReconnectDelay)
}

func positiveDuration(field, s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, s, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %s", field, s)
	}
	return nil
}

// mustDuration parses a duration that Validate has already checked.
// Unparseable input yields zero.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}
