package dashboard

import (
	"errors"

	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Event is one entry of the session's inbound queue.
type Event interface{ isEvent() }

// Connected is raised when the push feed opens.
type Connected struct{}

// Disconnected is raised when the push feed closes.
type Disconnected struct{ Err error }

// StatsReceived carries a system_stats snapshot.
type StatsReceived struct{ Stats telemetry.Stats }

// SystemInfoLoaded carries the startup /api/system-info document.
type SystemInfoLoaded struct{ Info telemetry.Stats }

// SystemInfoFailed reports a transport failure of the system info fetch.
type SystemInfoFailed struct{ Err error }

// GPUInfoLoaded carries the startup /api/gpu-info document.
type GPUInfoLoaded struct{ Info telemetry.GPUInfo }

// GPUInfoFailed reports a transport failure of the GPU info fetch.
type GPUInfoFailed struct{ Err error }

// Style selects how a benchmark request travels to the server.
type Style int

const (
	// ViaFeed sends request_benchmark on the push feed; the result arrives
	// later as a feed event.
	ViaFeed Style = iota
	// ViaCall performs a request/response call.
	ViaCall
)

func (s Style) String() string {
	if s == ViaFeed {
		return "feed"
	}
	return "call"
}

// BenchmarkRequested asks the session to start a benchmark.
type BenchmarkRequested struct {
	Request telemetry.BenchmarkRequest
	Style   Style
}

// ComparisonReceived carries a benchmark_result feed event.
type ComparisonReceived struct{ Comparison telemetry.Comparison }

// ResultReceived carries a request/response benchmark result.
type ResultReceived struct {
	Kind   telemetry.Kind
	Result telemetry.BenchmarkResult
}

// BenchmarkFailed carries any benchmark failure, already titled.
type BenchmarkFailed struct {
	Title   string
	Message string
}

func (Connected) isEvent()          {}
func (Disconnected) isEvent()       {}
func (StatsReceived) isEvent()      {}
func (SystemInfoLoaded) isEvent()   {}
func (SystemInfoFailed) isEvent()   {}
func (GPUInfoLoaded) isEvent()      {}
func (GPUInfoFailed) isEvent()      {}
func (BenchmarkRequested) isEvent() {}
func (ComparisonReceived) isEvent() {}
func (ResultReceived) isEvent()     {}
func (BenchmarkFailed) isEvent()    {}

// Error panel titles.
const (
	TitleBenchmarkError = "Benchmark Error"
	TitleNetworkError   = "Network Error"
)

// remoteError is implemented by errors that carry a server {error} payload.
type remoteError interface {
	error
	RemoteMessage() string
}

// FailureFromError classifies a call error: server payloads become
// "Benchmark Error", everything else "Network Error".
func FailureFromError(err error) BenchmarkFailed {
	var remote remoteError
	if errors.As(err, &remote) {
		return BenchmarkFailed{Title: TitleBenchmarkError, Message: remote.RemoteMessage()}
	}
	return BenchmarkFailed{Title: TitleNetworkError, Message: err.Error()}
}
