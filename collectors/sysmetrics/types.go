// Package sysmetrics samples host CPU, memory, root filesystem and network
// counters through gopsutil and reports them as a telemetry.Stats snapshot
// without the gpu field.
package sysmetrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
)

// Source is the set of host readers a collector samples. Tests replace
// individual readers.
type Source struct {
	CPUPercent    func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)
	CPUCounts     func(ctx context.Context, logical bool) (int, error)
	CPUInfo       func(ctx context.Context) ([]cpu.InfoStat, error)
	VirtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	DiskUsage     func(ctx context.Context, path string) (*disk.UsageStat, error)
	NetIOCounters func(ctx context.Context, pernic bool) ([]net.IOCountersStat, error)
}

// HostSource reads the local machine.
func HostSource() Source {
	return Source{
		CPUPercent:    cpu.PercentWithContext,
		CPUCounts:     cpu.CountsWithContext,
		CPUInfo:       cpu.InfoWithContext,
		VirtualMemory: mem.VirtualMemoryWithContext,
		DiskUsage:     disk.UsageWithContext,
		NetIOCounters: net.IOCountersWithContext,
	}
}
