// Package series keeps fixed-length rolling windows of chart samples.
//
// A Buffer is created full: it holds exactly its capacity of zero samples from
// the start, and every Push evicts the oldest sample. Snapshots are ordered
// oldest first. Buffers are not safe for concurrent use; the dashboard session
// owns them from a single goroutine.
package series

import (
	"errors"
	"fmt"
)

// ErrCapacity is returned when a buffer is requested with a non-positive capacity.
var ErrCapacity = errors.New("series: capacity must be greater than zero")

// Buffer is a fixed-capacity FIFO of float64 samples backed by a ring.
type Buffer struct {
	values []float64
	// head is the ring index of the oldest sample.
	head int
}

// New returns a buffer pre-filled with capacity zero samples.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacity, capacity)
	}
	return &Buffer{values: make([]float64, capacity)}, nil
}

// Push appends v as the newest sample and drops the oldest one.
// Non-finite values are stored as given.
func (b *Buffer) Push(v float64) {
	b.values[b.head] = v
	b.head = (b.head + 1) % len(b.values)
}

// Snapshot returns a copy of the samples, index 0 oldest.
func (b *Buffer) Snapshot() []float64 {
	out := make([]float64, len(b.values))
	n := copy(out, b.values[b.head:])
	copy(out[n:], b.values[:b.head])
	return out
}

// Latest returns the newest sample.
func (b *Buffer) Latest() float64 {
	idx := b.head - 1
	if idx < 0 {
		idx = len(b.values) - 1
	}
	return b.values[idx]
}

// Len is always equal to Cap.
func (b *Buffer) Len() int { return len(b.values) }

// Cap returns the fixed capacity.
func (b *Buffer) Cap() int { return len(b.values) }

// Clone returns an independent copy of the buffer.
func (b *Buffer) Clone() *Buffer {
	values := make([]float64, len(b.values))
	copy(values, b.values)
	return &Buffer{values: values, head: b.head}
}
