// Package gpu reads accelerator load, memory and temperature from the
// NVIDIA query tool.
package gpu

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	collectorName        = "gpu"
	collectorDescription = "GPU load, memory and temperature (nvidia-smi)"

	// DefaultCommand is the query tool looked up on PATH.
	DefaultCommand = "nvidia-smi"

	// DefaultInterval is the sampling interval when none is configured.
	DefaultInterval = 2 * time.Second

	queryFields = "index,name,utilization.gpu,memory.total,memory.used,memory.free,temperature.gpu,uuid"
	fieldCount  = 8
)

// ErrUnavailable is returned when the query tool is not installed.
var ErrUnavailable = errors.New("gpu: query tool not available")

// CommandRunner executes the query tool and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Collector implements collectors.Collector. Its sample is a
// []telemetry.GPUDevice, empty when the tool reports no devices.
type Collector struct {
	command  string
	interval time.Duration
	run      CommandRunner
	lookPath func(string) (string, error)
	logger   *zap.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithRunner replaces command execution.
func WithRunner(run CommandRunner) Option {
	return func(c *Collector) { c.run = run }
}

// WithLookPath replaces the PATH lookup used by Available.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(c *Collector) { c.lookPath = fn }
}

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	}
}

// New creates a collector for command (DefaultCommand when empty).
func New(command string, logger *zap.Logger, opts ...Option) *Collector {
	if command == "" {
		command = DefaultCommand
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		command:  command,
		interval: DefaultInterval,
		run:      execRunner,
		lookPath: exec.LookPath,
		logger:   logger.Named(collectorName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements collectors.Collector.
func (c *Collector) Name() string { return collectorName }

// Description implements collectors.Collector.
func (c *Collector) Description() string { return collectorDescription }

// Interval implements collectors.Collector.
func (c *Collector) Interval() time.Duration { return c.interval }

// Available reports whether the query tool is installed.
func (c *Collector) Available() bool {
	_, err := c.lookPath(c.command)
	return err == nil
}

// Devices queries every device once.
func (c *Collector) Devices(ctx context.Context) ([]telemetry.GPUDevice, error) {
	if !c.Available() {
		return nil, ErrUnavailable
	}
	out, err := c.run(ctx, c.command, "--query-gpu="+queryFields, "--format=csv,noheader,nounits")
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", c.command, err)
	}
	devices, err := ParseCSV(out)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("gpu query", zap.Int("devices", len(devices)))
	return devices, nil
}

// Collect implements collectors.Collector.
func (c *Collector) Collect(ctx context.Context) (*collectors.CollectResult, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		return nil, err
	}
	return &collectors.CollectResult{
		Collector: collectorName,
		Timestamp: time.Now(),
		Data:      devices,
	}, nil
}

// ParseCSV parses the tool's headerless, unitless CSV output. Load is
// converted from percent to a 0-1 fraction. Fields the driver reports as
// "[N/A]" or "[Not Supported]" are left nil.
func ParseCSV(out []byte) ([]telemetry.GPUDevice, error) {
	r := csv.NewReader(bytes.NewReader(out))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = fieldCount

	devices := make([]telemetry.GPUDevice, 0)
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return devices, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse gpu query output: %w", err)
		}

		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return nil, fmt.Errorf("parse gpu index %q: %w", rec[0], err)
		}

		dev := telemetry.GPUDevice{
			ID:          id,
			Name:        strings.TrimSpace(rec[1]),
			Load:        optional(rec[2]),
			MemoryTotal: optional(rec[3]),
			MemoryUsed:  optional(rec[4]),
			MemoryFree:  optional(rec[5]),
			Temperature: optional(rec[6]),
			UUID:        strings.TrimSpace(rec[7]),
		}
		if dev.Load != nil {
			*dev.Load /= 100
		}
		devices = append(devices, dev)
	}
}

func optional(field string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
	if err != nil {
		return nil
	}
	return &v
}
