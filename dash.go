package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.com/tinyland/lab/gpu-pulse/apiclient"
	"gitlab.com/tinyland/lab/gpu-pulse/config"
	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/display/color"
	"gitlab.com/tinyland/lab/gpu-pulse/display/plain"
	"gitlab.com/tinyland/lab/gpu-pulse/display/tui"
	"gitlab.com/tinyland/lab/gpu-pulse/feed"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

var (
	dashPlain  bool
	dashServer string
)

var dashCmd = &cobra.Command{
	Use:   "dash",
	Short: "Open the dashboard",
	Long: `Open the dashboard against a gpu-pulse server.

The full-screen view needs a terminal; when stdout is not one, or with
--plain, the dashboard prints timestamped text lines instead.

Keys: c compares GPU and CPU lanes over the push feed, 1-4 run the matrix,
k-means, regression and image benchmarks, [ and ] change the matrix size.`,
	Args: cobra.NoArgs,
	RunE: runDash,
}

func init() {
	dashCmd.Flags().BoolVar(&dashPlain, "plain", false, "print text lines instead of the full-screen view")
	dashCmd.Flags().StringVarP(&dashServer, "server", "s", "", "server base URL (overrides dashboard.server_url)")
	rootCmd.AddCommand(dashCmd)
}

type dashClients struct {
	feed *feed.Client
	api  *apiclient.Client
}

func runDash(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dashServer != "" {
		cfg.Dashboard.ServerURL = dashServer
	}

	usePlain := dashPlain || !term.IsTerminal(os.Stdout.Fd())

	// The full-screen view owns the terminal, so only the log file gets lines.
	var console io.Writer
	if usePlain {
		console = os.Stderr
	}
	logger, closeLog, err := initLogger(cfg.Logging.Level, cfg.Logging.File, console)
	if err != nil {
		return err
	}
	defer closeLog()

	clients, err := newDashClients(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	if usePlain {
		return runPlainDash(ctx, cfg, clients, logger)
	}
	return runTUIDash(ctx, cfg, clients, logger)
}

func newDashClients(cfg *config.Config, logger *zap.Logger) (dashClients, error) {
	api, err := apiclient.New(apiclient.Config{
		BaseURL: cfg.Dashboard.ServerURL,
		Timeout: cfg.RequestTimeout(),
	})
	if err != nil {
		return dashClients{}, err
	}
	wsURL, err := feed.URLFromBase(cfg.Dashboard.ServerURL)
	if err != nil {
		return dashClients{}, err
	}
	fc, err := feed.New(feed.Config{URL: wsURL, ReconnectDelay: cfg.ReconnectDelay()}, logger)
	if err != nil {
		return dashClients{}, err
	}
	return dashClients{feed: fc, api: api}, nil
}

func runPlainDash(ctx context.Context, cfg *config.Config, clients dashClients, logger *zap.Logger) error {
	color.Apply(os.Stdout)
	renderer := plain.New(os.Stdout)

	session, err := dashboard.NewSession(dashboard.Config{Capacity: cfg.Dashboard.MaxDataPoints}, clients.feed, clients.api, renderer, logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return clients.feed.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return renderer.Err()
}

func runTUIDash(ctx context.Context, cfg *config.Config, clients dashClients, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The model is built before the session exists; requests go through
	// this closure once session is assigned below.
	var session *dashboard.Session
	requester := tui.RequesterFunc(func(ctx context.Context, kind telemetry.Kind, size int, style dashboard.Style) (string, error) {
		return session.RequestBenchmark(ctx, kind, size, style)
	})

	model := tui.New(ctx, requester, tui.Options{
		ServerURL:   cfg.Dashboard.ServerURL,
		MatrixSizes: cfg.Dashboard.MatrixSizes,
		Capacity:    cfg.Dashboard.MaxDataPoints,
	})
	defer model.Close()
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))

	var err error
	session, err = dashboard.NewSession(dashboard.Config{Capacity: cfg.Dashboard.MaxDataPoints}, clients.feed, clients.api, tui.NewRenderer(p), logger)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return clients.feed.Run(gctx) })
	g.Go(func() error { return session.Run(gctx) })

	_, runErr := p.Run()
	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("dashboard stopped with error", zap.Error(err))
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("dashboard: %w", runErr)
	}
	return nil
}
