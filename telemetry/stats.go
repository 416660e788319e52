// Package telemetry defines the JSON documents exchanged between the
// gpu-pulse server and its dashboards: push-feed snapshots, informational
// fetches, benchmark requests and their results.
//
// Numeric fields are pointers so that a field the server did not send can be
// told apart from a zero reading. Consumers decide how to substitute missing
// values.
package telemetry

// Stats is a telemetry snapshot. It is pushed as the system_stats event and
// served by /api/system-info.
type Stats struct {
	Timestamp string       `json:"timestamp,omitempty"`
	CPU       *CPUStats     `json:"cpu,omitempty"`
	Memory    *MemoryStats  `json:"memory,omitempty"`
	Disk      *DiskStats    `json:"disk,omitempty"`
	Network   *NetworkStats `json:"network,omitempty"`
	// GPU is nil when the field was absent and empty when no device exists.
	GPU   []GPUDevice `json:"gpu"`
	Error string      `json:"error,omitempty"`
}

// CPUStats holds processor utilisation.
type CPUStats struct {
	UsagePercent *float64 `json:"usage_percent,omitempty"`
	Count        int      `json:"count,omitempty"`
	Freq         *CPUFreq `json:"freq,omitempty"`
}

// CPUFreq is the processor clock in MHz.
type CPUFreq struct {
	Current float64 `json:"current"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// MemoryStats holds virtual memory usage in bytes.
type MemoryStats struct {
	Total     uint64   `json:"total,omitempty"`
	Available uint64   `json:"available,omitempty"`
	Used      uint64   `json:"used,omitempty"`
	Percent   *float64 `json:"percent,omitempty"`
}

// DiskStats holds root filesystem usage in bytes.
type DiskStats struct {
	Total   uint64   `json:"total,omitempty"`
	Used    uint64   `json:"used,omitempty"`
	Free    uint64   `json:"free,omitempty"`
	Percent *float64 `json:"percent,omitempty"`
}

// NetworkStats holds interface counters accumulated since the previous
// snapshot.
type NetworkStats struct {
	BytesSent   *float64 `json:"bytes_sent,omitempty"`
	BytesRecv   *float64 `json:"bytes_recv,omitempty"`
	PacketsSent uint64   `json:"packets_sent,omitempty"`
	PacketsRecv uint64   `json:"packets_recv,omitempty"`
}

// GPUDevice describes one accelerator. Load is a 0-1 fraction; memory
// figures are MiB; temperature is degrees Celsius.
type GPUDevice struct {
	ID          int      `json:"id"`
	Name        string   `json:"name,omitempty"`
	Load        *float64 `json:"load,omitempty"`
	MemoryTotal *float64 `json:"memoryTotal,omitempty"`
	MemoryUsed  *float64 `json:"memoryUsed,omitempty"`
	MemoryFree  *float64 `json:"memoryFree,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	UUID        string   `json:"uuid,omitempty"`
}

// GPUInfo is the /api/gpu-info document. Error is set instead of GPUs when
// the server cannot query devices.
type GPUInfo struct {
	GPUs  []GPUDevice `json:"gpus,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Health is the /health document.
type Health struct {
	Status            string            `json:"status"`
	Timestamp         string            `json:"timestamp"`
	GPUAvailable      bool              `json:"gpu_available"`
	GPUDemosAvailable bool              `json:"gpu_demos_available"`
	Collectors        []CollectorHealth `json:"collectors,omitempty"`
}

// CollectorHealth is one sampler's run history in the /health document.
type CollectorHealth struct {
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	Healthy       bool    `json:"healthy"`
	Runs          int64   `json:"runs"`
	Errors        int64   `json:"errors"`
	LastRun       string  `json:"last_run,omitempty"`
	LastLatencyMS float64 `json:"last_latency_ms"`
	LastError     string  `json:"last_error,omitempty"`
}

// ErrorResponse is the body of a failed call and the payload of
// benchmark_error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// FirstGPU returns the first device, if any.
func (s *Stats) FirstGPU() (GPUDevice, bool) {
	if s == nil || len(s.GPU) == 0 {
		return GPUDevice{}, false
	}
	return s.GPU[0], true
}
