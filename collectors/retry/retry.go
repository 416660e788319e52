// Package retry wraps collectors with a circuit breaker. A source that keeps
// failing, such as a GPU query tool that hangs or exits non-zero, is skipped
// for growing intervals instead of being re-run on every tick.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"gitlab.com/tinyland/lab/gpu-pulse/collectors"
)

var _ collectors.Collector = (*CircuitBreaker)(nil)

// ErrOpen is wrapped by the error Collect returns while the circuit is open.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
type State int

const (
	// StateClosed passes every Collect through.
	StateClosed State = iota
	// StateOpen skips the wrapped collector until the timeout elapses.
	StateOpen
	// StateHalfOpen lets one probe through.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Config configures the breaker.
type Config struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int
	// ResetTimeout is the first wait before a probe.
	ResetTimeout time.Duration
	// MaxResetTimeout caps the backoff.
	MaxResetTimeout time.Duration
	// BackoffMultiplier grows the wait after each failed probe.
	BackoffMultiplier float64
	// Logger may be nil.
	Logger *zap.Logger
}

// DefaultConfig suits collectors sampled every few seconds.
func DefaultConfig() Config {
	return Config{
		MaxFailures:       3,
		ResetTimeout:      30 * time.Second,
		MaxResetTimeout:   10 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// Stats is a point-in-time view of the breaker.
type Stats struct {
	State            State
	ConsecutiveFails int
	TotalFailures    int
	TotalSuccesses   int
	LastFailure      time.Time
	LastSuccess      time.Time
	CurrentTimeout   time.Duration
	ConsecutiveSkips int
}

// CircuitBreaker wraps a collectors.Collector with failure tracking.
type CircuitBreaker struct {
	collector collectors.Collector
	config    Config
	logger    *zap.Logger
	now       func() time.Time

	mu               sync.Mutex
	state            State
	failures         int
	lastErr          error
	lastFailure      time.Time
	lastSuccess      time.Time
	currentTimeout   time.Duration
	totalFailures    int
	totalSuccesses   int
	consecutiveSkips int
}

// NewCircuitBreaker wraps c. Zero config fields take DefaultConfig values.
func NewCircuitBreaker(c collectors.Collector, cfg Config) *CircuitBreaker {
	def := DefaultConfig()
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.MaxResetTimeout < cfg.ResetTimeout {
		cfg.MaxResetTimeout = cfg.ResetTimeout
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		collector:      c,
		config:         cfg,
		logger:         logger.Named("breaker").With(zap.String("collector", c.Name())),
		now:            time.Now,
		state:          StateClosed,
		currentTimeout: cfg.ResetTimeout,
	}
}

func (cb *CircuitBreaker) Name() string { return cb.collector.Name() }

// Description appends the circuit state to the wrapped description.
func (cb *CircuitBreaker) Description() string {
	return fmt.Sprintf("%s [circuit: %s]", cb.collector.Description(), cb.State())
}

func (cb *CircuitBreaker) Interval() time.Duration { return cb.collector.Interval() }

// Collect runs the wrapped collector unless the circuit is open. While open
// it returns an error wrapping ErrOpen and the last failure, so consumers
// keep reporting the source as unavailable.
func (cb *CircuitBreaker) Collect(ctx context.Context) (*collectors.CollectResult, error) {
	cb.mu.Lock()
	switch cb.state {
	case StateOpen:
		elapsed := cb.now().Sub(cb.lastFailure)
		if elapsed < cb.currentTimeout {
			remaining := cb.currentTimeout - elapsed
			cb.consecutiveSkips++
			lastErr := cb.lastErr
			cb.mu.Unlock()

			cb.logger.Debug("circuit open, skipping collection", zap.Duration("retry_in", remaining))
			return nil, fmt.Errorf("%s: %w (retry in %s): %v", cb.collector.Name(), ErrOpen, remaining.Truncate(time.Second), lastErr)
		}
		cb.state = StateHalfOpen
		cb.mu.Unlock()
		cb.logger.Info("circuit half-open, probing")
		return cb.probe(ctx)

	case StateHalfOpen:
		cb.mu.Unlock()
		return cb.probe(ctx)

	default:
		cb.mu.Unlock()
	}

	result, err := cb.collector.Collect(ctx)
	if err != nil {
		cb.recordFailure(err)
		return result, err
	}
	cb.recordSuccess()
	return result, nil
}

func (cb *CircuitBreaker) probe(ctx context.Context) (*collectors.CollectResult, error) {
	result, err := cb.collector.Collect(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.failures++
		cb.totalFailures++
		cb.lastErr = err
		cb.lastFailure = cb.now()
		cb.currentTimeout = time.Duration(float64(cb.currentTimeout) * cb.config.BackoffMultiplier)
		if cb.currentTimeout > cb.config.MaxResetTimeout {
			cb.currentTimeout = cb.config.MaxResetTimeout
		}
		cb.state = StateOpen
		cb.logger.Warn("circuit re-opened after failed probe",
			zap.Int("failures", cb.failures),
			zap.Duration("next_timeout", cb.currentTimeout),
			zap.Error(err),
		)
		return result, err
	}

	cb.state = StateClosed
	cb.failures = 0
	cb.lastErr = nil
	cb.consecutiveSkips = 0
	cb.totalSuccesses++
	cb.lastSuccess = cb.now()
	cb.currentTimeout = cb.config.ResetTimeout
	cb.logger.Info("circuit closed after successful probe")
	return result, nil
}

func (cb *CircuitBreaker) recordFailure(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.totalFailures++
	cb.lastErr = err
	cb.lastFailure = cb.now()

	if cb.failures >= cb.config.MaxFailures {
		cb.state = StateOpen
		cb.currentTimeout = cb.config.ResetTimeout
		cb.logger.Warn("circuit opened",
			zap.Int("failures", cb.failures),
			zap.Duration("timeout", cb.currentTimeout),
			zap.Error(err),
		)
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.lastErr = nil
	cb.consecutiveSkips = 0
	cb.totalSuccesses++
	cb.lastSuccess = cb.now()
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats returns a snapshot of the counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		State:            cb.state,
		ConsecutiveFails: cb.failures,
		TotalFailures:    cb.totalFailures,
		TotalSuccesses:   cb.totalSuccesses,
		LastFailure:      cb.lastFailure,
		LastSuccess:      cb.lastSuccess,
		CurrentTimeout:   cb.currentTimeout,
		ConsecutiveSkips: cb.consecutiveSkips,
	}
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = StateClosed
	cb.failures = 0
	cb.lastErr = nil
	cb.consecutiveSkips = 0
	cb.currentTimeout = cb.config.ResetTimeout
}
