package collectors

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type countingCollector struct {
	name     string
	interval time.Duration
	err      error
	calls    atomic.Int64
}

func (c *countingCollector) Name() string            { return c.name }
func (c *countingCollector) Description() string     { return "counting " + c.name }
func (c *countingCollector) Interval() time.Duration { return c.interval }
func (c *countingCollector) Collect(_ context.Context) (*CollectResult, error) {
	n := c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &CollectResult{Collector: c.name, Timestamp: time.Now(), Data: n}, nil
}

func TestRunner_CollectsImmediatelyAndOnTick(t *testing.T) {
	reg := NewRegistry()
	c := &countingCollector{name: "fast", interval: 10 * time.Millisecond}
	reg.Register(c)

	updates := make(chan Update, DefaultUpdateBufferSize)
	r := NewRunner(reg, updates, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	for i := 0; i < 3; i++ {
		select {
		case u := <-updates:
			if u.Source != "fast" || u.Error != nil || u.Data == nil {
				t.Fatalf("unexpected update %+v", u)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}

	st := reg.AllStatus()
	if len(st) != 1 || !st[0].Healthy || st[0].RunCount < 3 {
		t.Errorf("expected a healthy collector with 3+ runs, got %+v", st)
	}
}

func TestRunner_ErrorMarksUnhealthy(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&countingCollector{name: "broken", interval: time.Hour, err: errors.New("no counters")})

	updates := make(chan Update, 1)
	r := NewRunner(reg, updates, nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer r.Stop()

	select {
	case u := <-updates:
		if u.Error == nil {
			t.Fatal("expected error update")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}

	st := reg.AllStatus()[0]
	if st.Healthy || st.ErrorCount != 1 || st.LastError == nil {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRunner_EmptyRegistry(t *testing.T) {
	r := NewRunner(NewRegistry(), make(chan Update), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan struct{})
	go func() {
		r.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on empty registry")
	}
}

func TestRunner_DropsWhenChannelFull(t *testing.T) {
	reg := NewRegistry()
	c := &countingCollector{name: "chatty", interval: time.Millisecond}
	reg.Register(c)

	// Unbuffered and never read: every send must be dropped, not block.
	r := NewRunner(reg, make(chan Update), nil)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for c.calls.Load() < 5 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	r.Stop()

	if c.calls.Load() < 5 {
		t.Errorf("collector stalled after %d calls", c.calls.Load())
	}
}

func TestLogCollectorErrorSuppressesRepeats(t *testing.T) {
	r := NewRunner(NewRegistry(), make(chan Update), nil)
	err := errors.New("same")
	for i := 0; i < 5; i++ {
		r.logCollectorError("x", err)
	}
	if got := r.errTrackers["x"].suppressed; got != 4 {
		t.Errorf("expected 4 suppressed, got %d", got)
	}

	r.logCollectorError("x", errors.New("different"))
	if got := r.errTrackers["x"].suppressed; got != 0 {
		t.Errorf("expected reset on new message, got %d", got)
	}
}
