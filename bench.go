package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/apiclient"
	"gitlab.com/tinyland/lab/gpu-pulse/cache"
	"gitlab.com/tinyland/lab/gpu-pulse/config"
	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/display/plain"
	"gitlab.com/tinyland/lab/gpu-pulse/feed"
	"gitlab.com/tinyland/lab/gpu-pulse/internal/format"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Ways a benchmark can reach the server.
const (
	viaCall     = "call"
	viaFeed     = "feed"
	viaBaseline = "baseline"
)

var errFeedClosed = errors.New("push feed closed before a result arrived")

type benchOptions struct {
	kind telemetry.Kind
	size int
	via  string
	json bool
	last bool
}

var benchOpts benchOptions

var benchCmd = &cobra.Command{
	Use:   "bench <type>",
	Short: "Run one benchmark on the server and print the result",
	Long: `Run one benchmark on the server and print it the way the dashboard
shows it.

Types: matrix_multiply (matrix), ml_inference (kmeans), linear_regression,
image_processing (image).

--via call      POST /api/gpu-benchmark (default)
--via baseline  POST /api/cpu-benchmark, matrix only
--via feed      request_benchmark on the push feed, matrix only; runs both lanes

Each result is saved under ~/.cache/gpu-pulse; --last prints it again.`,
	Args: cobra.ExactArgs(1),
	RunE: runBench,
}

func init() {
	benchCmd.Flags().IntVar(&benchOpts.size, "size", 0, "matrix size (default benchmarks.default_matrix_size on the server)")
	benchCmd.Flags().StringVar(&benchOpts.via, "via", viaCall, "call, baseline or feed")
	benchCmd.Flags().BoolVar(&benchOpts.json, "json", false, "print the raw JSON result")
	benchCmd.Flags().BoolVar(&benchOpts.last, "last", false, "print the saved result of the previous run instead of running")
	benchCmd.Flags().StringVarP(&dashServer, "server", "s", "", "server base URL (overrides dashboard.server_url)")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) error {
	kind, err := telemetry.ParseKind(args[0])
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dashServer != "" {
		cfg.Dashboard.ServerURL = dashServer
	}

	logger, closeLog, err := initLogger(cfg.Logging.Level, cfg.Logging.File, os.Stderr)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	store, err := cache.NewStore(cache.DefaultDir(), logger)
	if err != nil {
		logger.Warn("benchmark history disabled", zap.Error(err))
	}

	opts := benchOpts
	opts.kind = kind
	if opts.last {
		if store == nil {
			return errors.New("no benchmark history available")
		}
		return printLastRun(store, opts, cmd.OutOrStdout())
	}
	return runBenchmark(ctx, cfg, opts, store, cmd.OutOrStdout(), logger)
}

// runBenchmark runs one benchmark and prints it. A non-nil store receives
// the result.
func runBenchmark(ctx context.Context, cfg *config.Config, opts benchOptions, store *cache.Store, w io.Writer, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	req := telemetry.BenchmarkRequest{Type: opts.kind}
	if opts.kind == telemetry.KindMatrixMultiply {
		req.Size = opts.size
	}

	var (
		result any
		panel  dashboard.BenchmarkPanel
		ok     bool
	)
	switch opts.via {
	case viaCall, viaBaseline:
		api, err := apiclient.New(apiclient.Config{BaseURL: cfg.Dashboard.ServerURL, Timeout: cfg.RequestTimeout()})
		if err != nil {
			return err
		}
		call := api.RunBenchmark
		if opts.via == viaBaseline {
			call = api.CPUBenchmark
		}
		res, err := call(ctx, req)
		if err != nil {
			return describeFailure(err)
		}
		result = res
		panel, ok = dashboard.DescribeResult(opts.kind, *res)

	case viaFeed:
		cmp, err := compareViaFeed(ctx, cfg, req, logger)
		if err != nil {
			return err
		}
		result = cmp
		panel, ok = dashboard.DescribeComparison(*cmp)

	default:
		return fmt.Errorf("unknown --via %q (want %s, %s or %s)", opts.via, viaCall, viaBaseline, viaFeed)
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if store != nil {
		run := cache.Run{Kind: opts.kind, Via: opts.via, Server: cfg.Dashboard.ServerURL, Panel: panel, Result: raw}
		if err := store.SaveRun(run); err != nil {
			logger.Warn("could not save benchmark result", zap.Error(err))
		}
	}

	if opts.json {
		_, err := fmt.Fprintln(w, string(raw))
		return err
	}
	if !ok {
		return fmt.Errorf("no rendering for %s result", opts.kind)
	}
	_, err = io.WriteString(w, plain.FormatPanel(panel))
	return err
}

func printLastRun(store *cache.Store, opts benchOptions, w io.Writer) error {
	run, err := store.LastRun(opts.kind, opts.via)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no saved %s result for --via %s", opts.kind, opts.via)
	}
	if opts.json {
		_, err := fmt.Fprintln(w, string(run.Result))
		return err
	}
	fmt.Fprintf(w, "saved %s from %s\n", format.FormatTimeSince(run.At), run.Server)
	_, err = io.WriteString(w, plain.FormatPanel(run.Panel))
	return err
}

// describeFailure gives call errors the dashboard's error panel titles.
func describeFailure(err error) error {
	f := dashboard.FailureFromError(err)
	return fmt.Errorf("%s: %s", f.Title, f.Message)
}

// compareViaFeed opens the push feed, sends one request once connected, and
// waits for its result or error.
func compareViaFeed(ctx context.Context, cfg *config.Config, req telemetry.BenchmarkRequest, logger *zap.Logger) (*telemetry.Comparison, error) {
	wsURL, err := feed.URLFromBase(cfg.Dashboard.ServerURL)
	if err != nil {
		return nil, err
	}
	fc, err := feed.New(feed.Config{URL: wsURL, ReconnectDelay: cfg.ReconnectDelay()}, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()
	go func() { _ = fc.Run(ctx) }()

	return awaitComparison(ctx, fc.Envelopes(), func(ctx context.Context) error {
		return fc.RequestBenchmark(ctx, req)
	}, logger)
}

// awaitComparison calls send on the first connect only, so a redial while
// the benchmark runs does not submit it twice.
func awaitComparison(ctx context.Context, envs <-chan telemetry.Envelope, send func(context.Context) error, logger *zap.Logger) (*telemetry.Comparison, error) {
	sent := false
	for env := range envs {
		ev, err := dashboard.Translate(env)
		if err != nil {
			logger.Warn("dropping malformed feed frame", zap.String("event", env.Event), zap.Error(err))
			continue
		}
		switch ev := ev.(type) {
		case dashboard.Connected:
			if sent {
				logger.Warn("feed reconnected while a benchmark was pending")
				continue
			}
			if err := send(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", dashboard.TitleNetworkError, err)
			}
			sent = true
		case dashboard.ComparisonReceived:
			return &ev.Comparison, nil
		case dashboard.BenchmarkFailed:
			return nil, fmt.Errorf("%s: %s", ev.Title, ev.Message)
		}
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%s: %w", dashboard.TitleNetworkError, ctx.Err())
	}
	return nil, errFeedClosed
}
