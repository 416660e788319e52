// Package collectors provides the sampling interface and registry used by
// the gpu-pulse server. Each collector reads one source (host counters, the
// GPU query tool) on its own interval; the Runner fans their samples into a
// single channel.
package collectors

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Collector is the interface that all data collectors must implement.
type Collector interface {
	// Name returns the collector's unique identifier (e.g. "sysmetrics", "gpu").
	// Names must be unique within a Registry.
	Name() string

	// Description returns a human-readable description of what this collector gathers.
	Description() string

	// Interval returns the sampling interval for this collector.
	Interval() time.Duration

	// Collect takes one sample. Non-fatal issues are reported as Warnings
	// rather than errors. The context bounds any external command.
	Collect(ctx context.Context) (*CollectResult, error)
}

// CollectResult holds the output of a collection run.
type CollectResult struct {
	// Collector is the name of the collector that produced this result.
	Collector string `json:"collector"`

	// Timestamp records when the collection completed.
	Timestamp time.Time `json:"timestamp"`

	// Data is the collector-specific sample.
	Data interface{} `json:"data"`

	// Warnings contains non-fatal issues encountered during collection,
	// such as one counter being unreadable while the others succeed.
	Warnings []string `json:"warnings,omitempty"`
}

// Update is one collection outcome delivered by the Runner.
type Update struct {
	Source    string
	Data      *CollectResult
	Timestamp time.Time
	Error     error
}

// CollectorStatus tracks the run history of one collector.
type CollectorStatus struct {
	Name        string
	Description string
	LastRun     time.Time
	RunCount    int64
	LastLatency time.Duration
	ErrorCount  int64
	LastError   error
	Healthy     bool
}

// Registry holds registered collectors and their run status.
type Registry struct {
	mu         sync.RWMutex
	collectors []Collector
	status     map[string]*CollectorStatus
}

// NewRegistry creates a new empty collector registry.
func NewRegistry() *Registry {
	return &Registry{
		collectors: make([]Collector, 0),
		status:     make(map[string]*CollectorStatus),
	}
}

// Register adds a collector to the registry.
// If a collector with the same name already exists, it is replaced and its
// status reset.
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status[c.Name()] = &CollectorStatus{Name: c.Name()}
	for i, existing := range r.collectors {
		if existing.Name() == c.Name() {
			r.collectors[i] = c
			return
		}
	}
	r.collectors = append(r.collectors, c)
}

// All returns all registered collectors in registration order.
func (r *Registry) All() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// AllStatus returns copies of every collector's status, sorted by name.
// Description is read from the collector at call time.
func (r *Registry) AllStatus() []CollectorStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]CollectorStatus, 0, len(r.collectors))
	for _, c := range r.collectors {
		st := CollectorStatus{Name: c.Name()}
		if s, ok := r.status[c.Name()]; ok {
			st = *s
		}
		st.Description = c.Description()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) updateStatus(name string, fn func(*CollectorStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.status[name]
	if !ok {
		s = &CollectorStatus{Name: name}
		r.status[name] = s
	}
	fn(s)
}
