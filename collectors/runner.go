package collectors

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultUpdateBufferSize is the default capacity of the updates channel.
	DefaultUpdateBufferSize = 64

	// DefaultStopTimeout is the maximum time Stop() will wait for goroutines
	// to finish before returning.
	DefaultStopTimeout = 5 * time.Second

	// errRepeatWindow is how long an identical error stays suppressed.
	errRepeatWindow = time.Hour
)

// errTracker deduplicates repeated identical errors per collector.
type errTracker struct {
	lastMsg    string
	lastTime   time.Time
	suppressed int64
}

// Runner starts and stops collector goroutines. Each registered collector
// runs in its own goroutine with an independent ticker. Results fan in to a
// single updates channel.
type Runner struct {
	registry *Registry
	updates  chan<- Update
	logger   *zap.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopped  chan struct{}
	once     sync.Once

	errMu       sync.Mutex
	errTrackers map[string]*errTracker
}

// NewRunner creates a runner that sends collection results to the provided
// updates channel. The caller is responsible for creating and reading from
// the channel.
func NewRunner(registry *Registry, updates chan<- Update, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry:    registry,
		updates:     updates,
		logger:      logger.Named("collectors"),
		stopped:     make(chan struct{}),
		errTrackers: make(map[string]*errTracker),
	}
}

// Start launches a goroutine for each registered collector. Each goroutine
// collects immediately, then at the collector's Interval(). An empty
// registry is not an error; the runner simply does nothing.
//
// The provided context controls the lifetime of all collector goroutines.
// Cancelling it (or calling Stop) shuts them down.
func (r *Runner) Start(ctx context.Context) error {
	ctx, r.cancel = context.WithCancel(ctx)

	collectors := r.registry.All()
	if len(collectors) == 0 {
		close(r.stopped)
		return nil
	}

	for _, c := range collectors {
		r.wg.Add(1)
		go r.runCollector(ctx, c)
	}

	go func() {
		r.wg.Wait()
		close(r.stopped)
	}()

	return nil
}

// Stop cancels the runner context and waits for all collector goroutines to
// finish, with a timeout to prevent indefinite blocking.
func (r *Runner) Stop() {
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})

	select {
	case <-r.stopped:
	case <-time.After(DefaultStopTimeout):
		r.logger.Warn("runner stop timed out", zap.Duration("timeout", DefaultStopTimeout))
	}
}

func (r *Runner) runCollector(ctx context.Context, c Collector) {
	defer r.wg.Done()

	interval := c.Interval()
	if interval <= 0 {
		interval = time.Second
	}

	r.collectAndSend(ctx, c)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.collectAndSend(ctx, c)
		}
	}
}

func (r *Runner) collect(ctx context.Context, c Collector) (*CollectResult, time.Time, error) {
	name := c.Name()
	start := time.Now()

	res, err := c.Collect(ctx)
	latency := time.Since(start)

	r.registry.updateStatus(name, func(s *CollectorStatus) {
		s.LastRun = start
		s.RunCount++
		s.LastLatency = latency
		if err != nil {
			s.ErrorCount++
			s.LastError = err
			s.Healthy = false
		} else {
			s.LastError = nil
			s.Healthy = true
		}
	})

	if err != nil {
		r.logCollectorError(name, err)
	} else if res != nil {
		for _, w := range res.Warnings {
			r.logger.Debug("collector warning", zap.String("collector", name), zap.String("warning", w))
		}
	}
	return res, start, err
}

// collectAndSend performs one collection cycle and sends the result without
// blocking; a full channel drops the update.
func (r *Runner) collectAndSend(ctx context.Context, c Collector) {
	res, start, err := r.collect(ctx, c)
	if ctx.Err() != nil {
		return
	}

	update := Update{
		Source:    c.Name(),
		Data:      res,
		Timestamp: start,
		Error:     err,
	}

	select {
	case r.updates <- update:
	default:
		r.logger.Warn("update channel full, dropping update", zap.String("collector", c.Name()))
	}
}

// logCollectorError deduplicates repeated identical errors from the same
// collector. A message seen again within errRepeatWindow is suppressed, with
// a summary every 100 suppressions.
func (r *Runner) logCollectorError(name string, err error) {
	r.errMu.Lock()
	defer r.errMu.Unlock()

	msg := err.Error()
	tracker := r.errTrackers[name]
	if tracker == nil {
		tracker = &errTracker{}
		r.errTrackers[name] = tracker
	}
	now := time.Now()
	if msg == tracker.lastMsg && now.Sub(tracker.lastTime) < errRepeatWindow {
		tracker.suppressed++
		if tracker.suppressed%100 == 0 {
			r.logger.Warn("collector error repeated",
				zap.String("collector", name), zap.Int64("times", tracker.suppressed), zap.Error(err))
		}
		return
	}
	if tracker.suppressed > 0 {
		r.logger.Info("previous collector error repeated",
			zap.String("collector", name), zap.Int64("times", tracker.suppressed))
	}
	r.logger.Warn("collector error", zap.String("collector", name), zap.Error(err))
	tracker.lastMsg = msg
	tracker.lastTime = now
	tracker.suppressed = 0
}
