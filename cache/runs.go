package cache

import (
	"encoding/json"
	"time"

	"gitlab.com/tinyland/lab/gpu-pulse/dashboard"
	"gitlab.com/tinyland/lab/gpu-pulse/telemetry"
)

// Run is one saved benchmark outcome.
type Run struct {
	Kind   telemetry.Kind           `json:"kind"`
	Via    string                   `json:"via"`
	Server string                   `json:"server"`
	At     time.Time                `json:"at"`
	Panel  dashboard.BenchmarkPanel `json:"panel"`
	Result json.RawMessage          `json:"result"`
}

// RunKey names the entry for a workload and the path it was requested on.
func RunKey(kind telemetry.Kind, via string) string {
	return string(kind) + "-" + via
}

// SaveRun stores r under RunKey(r.Kind, r.Via).
func (s *Store) SaveRun(r Run) error {
	if r.At.IsZero() {
		r.At = s.now()
	}
	return SetTyped(s, RunKey(r.Kind, r.Via), &r)
}

// LastRun returns the saved run for kind and via, or nil.
func (s *Store) LastRun(kind telemetry.Kind, via string) (*Run, error) {
	return GetTyped[Run](s, RunKey(kind, via))
}

// Runs returns every saved run, ordered by key.
func (s *Store) Runs() []Run {
	var out []Run
	for _, key := range s.Keys() {
		r, err := GetTyped[Run](s, key)
		if err != nil || r == nil {
			continue
		}
		out = append(out, *r)
	}
	return out
}
