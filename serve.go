package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/benchmark"
	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/collectors/gpu"
	"gitlab.com/tinyland/lab/gpu-pulse/collectors/retry"
	"gitlab.com/tinyland/lab/gpu-pulse/collectors/sysmetrics"
	"gitlab.com/tinyland/lab/gpu-pulse/config"
	"gitlab.com/tinyland/lab/gpu-pulse/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry and benchmark backend",
	Long: `Run the backend: REST endpoints under /api, the websocket push feed at
/ws, /health, and Prometheus metrics at /metrics.

Host counters are sampled every server.collect_interval and GPU readings
come from server.gpu_command (nvidia-smi by default) when it is installed.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveListen != "" {
		cfg.Server.Listen = serveListen
	}

	logger, closeLog, err := initLogger(cfg.Logging.Level, cfg.Logging.File, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	logger.Info("starting gpu-pulse server", zap.String("version", version), zap.String("listen", cfg.Server.Listen))
	return serve(ctx, cfg, logger)
}

// serve wires collectors, the aggregator, the benchmark runner and the HTTP
// server, and blocks until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	metrics := server.NewMetrics()

	registry := collectors.NewRegistry()
	registry.Register(sysmetrics.New(logger, sysmetrics.WithInterval(cfg.CollectInterval())))
	if cfg.Server.GPUCommand != "" {
		g := gpu.New(cfg.Server.GPUCommand, logger, gpu.WithInterval(cfg.PushInterval()))
		if g.Available() {
			breaker := retry.DefaultConfig()
			breaker.Logger = logger
			registry.Register(retry.NewCircuitBreaker(g, breaker))
		} else {
			logger.Warn("gpu query tool not found, GPU telemetry disabled", zap.String("command", cfg.Server.GPUCommand))
		}
	}

	updates := make(chan collectors.Update, collectors.DefaultUpdateBufferSize)
	agg := server.NewAggregator(metrics, logger)
	go agg.Run(ctx, updates)

	runner := collectors.NewRunner(registry, updates, logger)
	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("start collectors: %w", err)
	}
	defer runner.Stop()

	var bench server.Benchmarker
	if cfg.Benchmarks.Enabled {
		br := benchmark.New(benchmarkConfig(cfg.Benchmarks), logger)
		logger.Info("benchmarks enabled", zap.Int("workers", br.Workers()))
		bench = br
	}

	srv := server.New(server.Options{
		Listen:            cfg.Server.Listen,
		PushInterval:      cfg.PushInterval(),
		BenchmarksEnabled: cfg.Benchmarks.Enabled,
		Collectors:        registry,
	}, agg, bench, metrics, logger)
	return srv.Run(ctx)
}

func benchmarkConfig(b config.BenchmarksConfig) benchmark.Config {
	cfg := benchmark.DefaultConfig()
	cfg.Workers = b.Workers
	cfg.DefaultMatrixSize = b.DefaultMatrixSize
	cfg.MaxMatrixSize = b.MaxMatrixSize
	cfg.KMeansSamples = b.KMeans.Samples
	cfg.KMeansFeatures = b.KMeans.Features
	cfg.KMeansClusters = b.KMeans.Clusters
	cfg.KMeansIterations = b.KMeans.Iterations
	cfg.RegressionSamples = b.Regression.Samples
	cfg.RegressionFeatures = b.Regression.Features
	cfg.ImageWidth = b.Image.Width
	cfg.ImageHeight = b.Image.Height
	return cfg
}
