// Package eventbus broadcasts coordinator lifecycle transitions to
// interested observers (CLI progress display, diagnostics). It is a thin
// wrapper over cskr/pubsub; delivery here is best-effort and entirely
// separate from the ordered host callback queue.
package eventbus

import (
	"time"

	"github.com/cskr/pubsub/v2"
)

// Kind identifies a lifecycle transition.
type Kind uint

const (
	KindReadiness Kind = iota
	KindSessionStarted
	KindSessionStopped
	KindScanStarted
	KindScanStopped
	KindDeviceFound
	KindDeviceConnected
	KindDeviceDisconnected
)

func (k Kind) String() string {
	switch k {
	case KindReadiness:
		return "readiness"
	case KindSessionStarted:
		return "session_started"
	case KindSessionStopped:
		return "session_stopped"
	case KindScanStarted:
		return "scan_started"
	case KindScanStopped:
		return "scan_stopped"
	case KindDeviceFound:
		return "device_found"
	case KindDeviceConnected:
		return "device_connected"
	case KindDeviceDisconnected:
		return "device_disconnected"
	default:
		return "unknown"
	}
}

// Event is a single lifecycle transition.
type Event struct {
	Kind      Kind
	SessionID string
	DeviceID  string // empty for session-scoped events
	Ready     bool   // valid for KindReadiness
	At        time.Time
}

// Bus is a non-blocking publisher of lifecycle events. Slow subscribers
// miss events rather than stalling the coordinator.
type Bus struct {
	ps *pubsub.PubSub[Kind, Event]
}

// New creates a Bus with the given per-subscriber buffer capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 16
	}
	return &Bus{ps: pubsub.New[Kind, Event](capacity)}
}

// Publish delivers the event to current subscribers of its kind without
// blocking; full subscriber buffers drop the event.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.ps.TryPub(ev, ev.Kind)
}

// Subscribe returns a channel receiving events of the given kinds.
func (b *Bus) Subscribe(kinds ...Kind) chan Event {
	return b.ps.Sub(kinds...)
}

// Unsubscribe removes a subscription created by Subscribe.
func (b *Bus) Unsubscribe(ch chan Event, kinds ...Kind) {
	go b.ps.Unsub(ch, kinds...)
}

// Shutdown closes all subscriber channels.
func (b *Bus) Shutdown() {
	b.ps.Shutdown()
}
