// Package ringchan provides a bounded channel with drop-oldest overflow
// semantics. It backs the coordinator's host delivery queue: producers
// (radio callbacks) must never block indefinitely on a slow host, so when
// the buffer is full the oldest element is discarded and counted.
package ringchan

import "sync/atomic"

// RingChannel is a bounded channel-like buffer with overwrite-oldest
// semantics. Writers use Send; readers range over C() until closed.
type RingChannel[T any] struct {
	ch      chan T
	metrics Metrics
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel. Consumers can range over
// this until it is closed. Reads taken directly from C bypass the
// processed counter; use Receive when the metric matters.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts an item without ever blocking indefinitely. If the buffer
// is full the oldest element is discarded. Returns true when an element
// was dropped to make room.
func (rc *RingChannel[T]) Send(v T) bool {
	dropped := false

	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
	default:
		select {
		case <-rc.ch: // drop oldest
			rc.metrics.addOverwritten(1)
			dropped = true
		default:
		}
		rc.ch <- v
		rc.metrics.addWritten(1)
	}

	return dropped
}

// TrySend attempts a non-blocking insert. Returns false if the buffer is
// full.
func (rc *RingChannel[T]) TrySend(v T) bool {
	select {
	case rc.ch <- v:
		rc.metrics.addWritten(1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available or the channel is closed.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.metrics.addProcessed(1)
	}
	return
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. After this, Send panics.
func (rc *RingChannel[T]) Close() {
	close(rc.ch)
}

// Snapshot returns a copy of the current metrics counters.
func (rc *RingChannel[T]) Snapshot() Metrics {
	return Metrics{
		Processed:   atomic.LoadInt64(&rc.metrics.Processed),
		Written:     atomic.LoadInt64(&rc.metrics.Written),
		Overwritten: atomic.LoadInt64(&rc.metrics.Overwritten),
	}
}

// Metrics tracks queue activity with atomic counters.
type Metrics struct {
	Processed   int64
	Written     int64
	Overwritten int64
}

func (m *Metrics) addProcessed(n int) {
	atomic.AddInt64(&m.Processed, int64(n))
}

func (m *Metrics) addWritten(n int) {
	atomic.AddInt64(&m.Written, int64(n))
}

func (m *Metrics) addOverwritten(n int) {
	atomic.AddInt64(&m.Overwritten, int64(n))
}
