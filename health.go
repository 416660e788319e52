package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"gitlab.com/tinyland/lab/gpu-pulse/apiclient"
	"gitlab.com/tinyland/lab/gpu-pulse/config"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const statusHealthy = "healthy"

var errUnhealthy = errors.New("server unhealthy")

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the server's /health endpoint",
	Long: `Query /health on the configured server. Exits 0 when the server reports
healthy and non-zero otherwise, so it can back container health checks.`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the health document as JSON")
	healthCmd.Flags().StringVarP(&dashServer, "server", "s", "", "server base URL (overrides dashboard.server_url)")
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dashServer != "" {
		cfg.Dashboard.ServerURL = dashServer
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return checkHealth(ctx, cfg, healthJSON, cmd.OutOrStdout())
}

func checkHealth(ctx context.Context, cfg *config.Config, jsonOutput bool, w io.Writer) error {
	api, err := apiclient.New(apiclient.Config{BaseURL: cfg.Dashboard.ServerURL, Timeout: cfg.RequestTimeout()})
	if err != nil {
		return err
	}

	h, err := api.Health(ctx)
	if err != nil {
		if jsonOutput {
			out, _ := json.Marshal(telemetry.ErrorResponse{Error: err.Error()})
			fmt.Fprintln(w, string(out))
		}
		return fmt.Errorf("health check: %w", err)
	}

	if jsonOutput {
		data, err := json.MarshalIndent(h, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	} else {
		fmt.Fprintf(w, "server %s at %s\n", h.Status, cfg.Dashboard.ServerURL)
		fmt.Fprintf(w, "  gpu:        %s\n", yesNo(h.GPUAvailable))
		fmt.Fprintf(w, "  benchmarks: %s\n", yesNo(h.GPUDemosAvailable))
		printCollectors(w, h.Collectors)
	}

	if h.Status != statusHealthy {
		return errUnhealthy
	}
	return nil
}

func printCollectors(w io.Writer, cs []telemetry.CollectorHealth) {
	if len(cs) == 0 {
		return
	}
	fmt.Fprintln(w, "  collectors:")
	for _, c := range cs {
		switch {
		case c.Runs == 0:
			fmt.Fprintf(w, "    %-12s waiting for first sample\n", c.Name)
		case c.Healthy:
			fmt.Fprintf(w, "    %-12s ok, %d runs, last took %.1fms\n", c.Name, c.Runs, c.LastLatencyMS)
		default:
			fmt.Fprintf(w, "    %-12s failing, %d of %d runs: %s\n", c.Name, c.Errors, c.Runs, c.LastError)
		}
	}
}

func yesNo(b bool) string {
	if b {
		return "available"
	}
	return "not available"
}
