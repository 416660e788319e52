package sysmetrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

const (
	collectorName        = "sysmetrics"
	collectorDescription = "Host metrics (CPU, memory, root disk, network)"

	// DefaultInterval is the sampling interval when none is configured.
	DefaultInterval = time.Second

	// DefaultDiskPath is the filesystem whose usage is reported.
	DefaultDiskPath = "/"
)

var errNoReadings = errors.New("sysmetrics: no host counters readable")

// Collector implements collectors.Collector for host metrics. Network
// counters are reported as the change since the previous Collect call; the
// first call establishes the baseline and reports zero.
type Collector struct {
	src      Source
	interval time.Duration
	diskPath string
	logger   *zap.Logger
	now      func() time.Time

	mu          sync.Mutex
	netBaseline *netTotals
}

type netTotals struct {
	bytesSent, bytesRecv     uint64
	packetsSent, packetsRecv uint64
}

// Option configures a Collector.
type Option func(*Collector)

// WithSource replaces the host readers.
func WithSource(src Source) Option {
	return func(c *Collector) { c.src = src }
}

// WithInterval sets the sampling interval.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithDiskPath sets the filesystem whose usage is reported.
func WithDiskPath(path string) Option {
	return func(c *Collector) { c.diskPath = path }
}

// New creates a host metrics collector. If logger is nil, a no-op logger is
// used.
func New(logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		src:      HostSource(),
		interval: DefaultInterval,
		diskPath: DefaultDiskPath,
		logger:   logger.Named(collectorName),
		now:      time.Now,
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

// Collect reads every counter. A counter that fails is left nil in the
// snapshot and noted as a warning; Collect errors only when nothing could be
// read.
func (c *Collector) Collect(ctx context.Context) (*collectors.CollectResult, error) {
	var warnings []string
	warn := func(what string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", what, err))
	}

	stats := &telemetry.Stats{}

	if cpuStats, err := c.readCPU(ctx); err != nil {
		warn("cpu", err)
	} else {
		stats.CPU = cpuStats
	}

	if vm, err := c.src.VirtualMemory(ctx); err != nil {
		warn("memory", err)
	} else {
		stats.Memory = &telemetry.MemoryStats{
			Total:     vm.Total,
			Available: vm.Available,
			Used:      vm.Used,
			Percent:   telemetry.Float(vm.UsedPercent),
		}
	}

	if du, err := c.src.DiskUsage(ctx, c.diskPath); err != nil {
		warn("disk", err)
	} else {
		stats.Disk = &telemetry.DiskStats{
			Total:   du.Total,
			Used:    du.Used,
			Free:    du.Free,
			Percent: telemetry.Float(du.UsedPercent),
		}
	}

	if netStats, err := c.readNetwork(ctx); err != nil {
		warn("network", err)
	} else {
		stats.Network = netStats
	}

	if stats.CPU == nil && stats.Memory == nil && stats.Disk == nil && stats.Network == nil {
		return nil, fmt.Errorf("%w: %v", errNoReadings, warnings)
	}

	now := c.now()
	stats.Timestamp = now.Format(time.RFC3339Nano)
	return &collectors.CollectResult{
		Collector: collectorName,
		Timestamp: now,
		Data:      stats,
		Warnings:  warnings,
	}, nil
}

func (c *Collector) readCPU(ctx context.Context) (*telemetry.CPUStats, error) {
	pct, err := c.src.CPUPercent(ctx, 0, false)
	if err != nil {
		return nil, err
	}
	if len(pct) == 0 {
		return nil, errors.New("no cpu percentage reported")
	}

	out := &telemetry.CPUStats{UsagePercent: telemetry.Float(pct[0])}

	if n, err := c.src.CPUCounts(ctx, true); err == nil {
		out.Count = n
	} else {
		c.logger.Debug("cpu count unavailable", zap.Error(err))
	}

	// gopsutil reports a single rated clock per package.
	if info, err := c.src.CPUInfo(ctx); err == nil && len(info) > 0 && info[0].Mhz > 0 {
		out.Freq = &telemetry.CPUFreq{Current: info[0].Mhz, Max: info[0].Mhz}
	} else if err != nil {
		c.logger.Debug("cpu info unavailable", zap.Error(err))
	}

	return out, nil
}

func (c *Collector) readNetwork(ctx context.Context) (*telemetry.NetworkStats, error) {
	counters, err := c.src.NetIOCounters(ctx, false)
	if err != nil {
		return nil, err
	}
	if len(counters) == 0 {
		return nil, errors.New("no interface counters reported")
	}

	total := netTotals{
		bytesSent:   counters[0].BytesSent,
		bytesRecv:   counters[0].BytesRecv,
		packetsSent: counters[0].PacketsSent,
		packetsRecv: counters[0].PacketsRecv,
	}

	c.mu.Lock()
	prev := c.netBaseline
	c.netBaseline = &total
	c.mu.Unlock()

	var delta netTotals
	if prev != nil {
		delta = netTotals{
			bytesSent:   sub(total.bytesSent, prev.bytesSent),
			bytesRecv:   sub(total.bytesRecv, prev.bytesRecv),
			packetsSent: sub(total.packetsSent, prev.packetsSent),
			packetsRecv: sub(total.packetsRecv, prev.packetsRecv),
		}
	}

	return &telemetry.NetworkStats{
		BytesSent:   telemetry.Float(float64(delta.bytesSent)),
		BytesRecv:   telemetry.Float(float64(delta.bytesRecv)),
		PacketsSent: delta.packetsSent,
		PacketsRecv: delta.packetsRecv,
	}, nil
}

// sub treats a counter that went backwards (interface reset) as no traffic.
func sub(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}
