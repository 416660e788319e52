// gpu-pulse streams host and GPU telemetry from a backend server to a
// terminal dashboard, and runs compute benchmarks on an accelerated worker
// pool lane and a single-goroutine baseline lane.
//
// Usage:
//
//	gpu-pulse serve              run the backend (REST API, push feed, /metrics)
//	gpu-pulse dash [--plain]     open the dashboard against the backend
//	gpu-pulse bench <type>       run one benchmark and print the result
//	gpu-pulse health [--json]    check the backend's /health endpoint
//	gpu-pulse version            print build information
//
// Global flags:
//
//	--config string   configuration file (default ~/.config/gpu-pulse/config.yaml)
//	--verbose         debug logging
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/gpu-pulse/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "gpu-pulse",
	Short: "GPU and host telemetry dashboard with compute benchmarks",
	Long: `gpu-pulse pairs a telemetry backend with a terminal dashboard.

The backend samples host counters and GPU readings, pushes snapshots to
connected dashboards over a websocket feed, and runs matrix, k-means,
regression and image benchmarks on request.

Example:
  gpu-pulse serve
  gpu-pulse dash
  gpu-pulse bench matrix --size 2048`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ~/.config/gpu-pulse/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, applies env overrides and --verbose,
// then validates.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
