package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Collector names the aggregator routes on.
const (
	SourceHost = "sysmetrics"
	SourceGPU  = "gpu"
)

// MsgGPUNotAvailable is reported when no GPU sample exists.
const MsgGPUNotAvailable = "GPU not available"

// Aggregator keeps the latest host and GPU samples from the collector
// runner. Network deltas are summed between Drain calls so each pushed
// snapshot covers the whole push interval.
type Aggregator struct {
	logger  *zap.Logger
	metrics *Metrics
	now     func() time.Time

	mu         sync.RWMutex
	host       *telemetry.Stats
	gpus       []telemetry.GPUDevice
	gpuErr     error
	gpuSeen    bool
	pendingNet telemetry.NetworkStats
}

// NewAggregator creates an empty aggregator. metrics may be nil.
func NewAggregator(metrics *Metrics, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{logger: logger.Named("aggregator"), metrics: metrics, now: time.Now}
}

// Run consumes updates until ctx is done or the channel closes.
func (a *Aggregator) Run(ctx context.Context, updates <-chan collectors.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			a.Apply(u)
		}
	}
}

// Apply records one collector update.
func (a *Aggregator) Apply(u collectors.Update) {
	if a.metrics != nil {
		a.metrics.collectorStatus(u.Source, u.Error == nil)
	}

	switch u.Source {
	case SourceHost:
		if u.Error != nil || u.Data == nil {
			return
		}
		stats, ok := u.Data.Data.(*telemetry.Stats)
		if !ok {
			a.logger.Warn("unexpected host sample", zap.Any("data", u.Data.Data))
			return
		}
		a.mu.Lock()
		a.host = stats
		if stats.Network != nil {
			addNet(&a.pendingNet, stats.Network)
		}
		a.mu.Unlock()
		if a.metrics != nil {
			a.metrics.observeStats(stats)
		}

	case SourceGPU:
		a.mu.Lock()
		defer a.mu.Unlock()
		a.gpuSeen = true
		if u.Error != nil || u.Data == nil {
			a.gpus, a.gpuErr = nil, u.Error
			return
		}
		devices, ok := u.Data.Data.([]telemetry.GPUDevice)
		if !ok {
			a.logger.Warn("unexpected gpu sample", zap.Any("data", u.Data.Data))
			return
		}
		a.gpus, a.gpuErr = devices, nil
		if a.metrics != nil {
			a.metrics.observeGPUs(devices)
		}
	}
}

// GPUAvailable reports whether the last GPU sample succeeded.
func (a *Aggregator) GPUAvailable() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.gpuSeen && a.gpuErr == nil && a.gpus != nil
}

// Snapshot returns the latest sample with the most recent network delta.
func (a *Aggregator) Snapshot() telemetry.Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshotLocked()
}

// Drain returns the latest sample with network counters summed since the
// previous Drain, then resets the sum.
func (a *Aggregator) Drain() telemetry.Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.snapshotLocked()
	if s.Network != nil {
		net := *s.Network
		net.BytesSent = telemetry.Float(valueOf(a.pendingNet.BytesSent))
		net.BytesRecv = telemetry.Float(valueOf(a.pendingNet.BytesRecv))
		net.PacketsSent = a.pendingNet.PacketsSent
		net.PacketsRecv = a.pendingNet.PacketsRecv
		s.Network = &net
	}
	a.pendingNet = telemetry.NetworkStats{}
	return s
}

func (a *Aggregator) snapshotLocked() telemetry.Stats {
	var s telemetry.Stats
	if a.host != nil {
		s = *a.host
	} else {
		s.Timestamp = a.now().Format(time.RFC3339Nano)
	}
	s.GPU = make([]telemetry.GPUDevice, len(a.gpus))
	copy(s.GPU, a.gpus)
	return s
}

// GPUInfo returns the /api/gpu-info document.
func (a *Aggregator) GPUInfo() telemetry.GPUInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.gpuSeen || a.gpus == nil {
		msg := MsgGPUNotAvailable
		if a.gpuErr != nil {
			msg = a.gpuErr.Error()
		}
		return telemetry.GPUInfo{Error: msg}
	}
	out := make([]telemetry.GPUDevice, len(a.gpus))
	copy(out, a.gpus)
	return telemetry.GPUInfo{GPUs: out}
}

func addNet(acc *telemetry.NetworkStats, n *telemetry.NetworkStats) {
	acc.BytesSent = telemetry.Float(valueOf(acc.BytesSent) + valueOf(n.BytesSent))
	acc.BytesRecv = telemetry.Float(valueOf(acc.BytesRecv) + valueOf(n.BytesRecv))
	acc.PacketsSent += n.PacketsSent
	acc.PacketsRecv += n.PacketsRecv
}

func valueOf(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
