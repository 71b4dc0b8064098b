// Package coordinator implements the discovery and connection coordinator
// for BLE-style peripherals: it owns the session state (matched devices,
// connected devices, filter criteria, handler table) and drives the
// multi-phase protocol scan -> connect -> enumerate -> subscribe ->
// dispatch -> teardown on top of an asynchronous transport.
//
// All inbound transport events funnel through a single dispatch function
// under one mutex. All outbound host notifications are serialized onto a
// single FIFO delivery queue with a dedicated consumer goroutine, so host
// callbacks observe a stable, non-reentrant event order regardless of how
// concurrently the transport delivers.
package coordinator

import (
	"fmt"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bleio/internal/eventbus"
	"github.com/srg/bleio/internal/ringchan"
	"github.com/srg/bleio/transport"
)

// DefaultDeliveryQueueSize is the default capacity of the host delivery
// queue. When the host falls this far behind, the oldest undelivered
// notification is dropped and a warning is logged.
const DefaultDeliveryQueueSize = 256

// Options configures a Coordinator.
type Options struct {
	Logger            *logrus.Logger
	DeliveryQueueSize int // 0 = DefaultDeliveryQueueSize
	BusCapacity       int // per-subscriber lifecycle bus buffer, 0 = default
}

// Coordinator coordinates discovery, connection, and data exchange with
// peripherals exposing a service/characteristic hierarchy. Create one with
// New, drive it with Start/DiscoverPeripherals/Connect/..., and tear it
// down with Stop. The handler table registered via RegisterHandlers is
// process-wide: it survives Stop/Start cycles and reconnects.
type Coordinator struct {
	central transport.Central
	logger  *logrus.Logger
	bus     *eventbus.Bus

	queueSize int

	// handlers maps normalized characteristic IDs to host handlers. It is
	// a concurrent map on purpose: registration may race with dispatch.
	handlers *hashmap.Map[string, Handler]

	mu        sync.Mutex
	session   transport.Session
	sessionID string
	ready     bool

	scanning          bool
	scanStopRequested bool
	filter            Filter
	matched           *orderedmap.OrderedMap[string, transport.Device]

	connected *hashmap.Map[string, transport.Device]

	// pendingWantedChars maps a service ID to the characteristic IDs
	// requested for it; an absent entry means "accept all". Entries are
	// consumed when the discovery response arrives.
	pendingWantedChars map[string][]string
	// wantedServices remembers the last service-ID filter requested per
	// device; nil means "accept all". Also used to filter invalidation
	// events.
	wantedServices map[string][]string
	// serviceOwner maps a discovered service ID back to its device.
	serviceOwner map[string]string
	// deviceChars caches discovered characteristics per device so that
	// teardown can disable active notifications before disconnecting.
	deviceChars map[string][]transport.Characteristic

	// Host-registered callbacks. Invoked only from the delivery goroutine.
	onReady            func(ready bool)
	onFound            func(dev transport.Device)
	onConnection       func(res ConnectionResult)
	onDisconnection    func(d Disconnection)
	onServices         func(res ServicesResult)
	onCharacteristics  func(res CharacteristicsResult)
	onServicesModified func(dev transport.Device, invalidated []transport.Service)

	deliver      *ringchan.RingChannel[func()]
	deliveryDone chan struct{}
}

// New creates a Coordinator bound to the given transport. The transport
// session itself is created lazily on Start (or the first
// DiscoverPeripherals call).
func New(central transport.Central, opts *Options) *Coordinator {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	queueSize := opts.DeliveryQueueSize
	if queueSize <= 0 {
		queueSize = DefaultDeliveryQueueSize
	}

	return &Coordinator{
		central:            central,
		logger:             logger,
		bus:                eventbus.New(opts.BusCapacity),
		queueSize:          queueSize,
		handlers:           hashmap.New[string, Handler](),
		connected:          hashmap.New[string, transport.Device](),
		matched:            orderedmap.New[string, transport.Device](),
		pendingWantedChars: make(map[string][]string),
		wantedServices:     make(map[string][]string),
		serviceOwner:       make(map[string]string),
		deviceChars:        make(map[string][]transport.Characteristic),
	}
}

// Bus exposes the lifecycle event bus for observers. Subscriptions are
// best-effort and independent of the ordered host callback queue.
func (c *Coordinator) Bus() *eventbus.Bus {
	return c.bus
}

// Start opens a fresh transport session and begins event processing.
// onReady is invoked (through the delivery queue) with the current
// readiness immediately and again on every readiness change.
func (c *Coordinator) Start(onReady func(ready bool)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrSessionActive
	}
	if onReady != nil {
		c.onReady = onReady
	}
	return c.startSessionLocked()
}

// startSessionLocked opens the transport session and spins up the delivery
// consumer. Caller holds c.mu.
func (c *Coordinator) startSessionLocked() error {
	sess, err := c.central.OpenSession(c)
	if err != nil {
		return fmt.Errorf("failed to open transport session: %w", err)
	}

	c.session = sess
	c.sessionID = uuid.NewString()
	c.ready = sess.IsReady()

	c.deliver = ringchan.New[func()](c.queueSize)
	c.deliveryDone = make(chan struct{})
	go c.runDelivery(c.deliver, c.deliveryDone)

	c.logger.WithFields(logrus.Fields{
		"session": c.sessionID,
		"ready":   c.ready,
	}).Info("Coordinator session started")

	c.bus.Publish(eventbus.Event{Kind: eventbus.KindSessionStarted, SessionID: c.sessionID})
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindReadiness, SessionID: c.sessionID, Ready: c.ready})

	if cb := c.onReady; cb != nil {
		ready := c.ready
		c.enqueue(func() { cb(ready) })
	}
	return nil
}

// runDelivery drains the host notification queue. Exactly one consumer per
// session keeps callbacks FIFO and non-reentrant. Draining through Receive
// keeps the processed counter accurate.
func (c *Coordinator) runDelivery(q *ringchan.RingChannel[func()], done chan struct{}) {
	defer close(done)
	for {
		fn, ok := q.Receive()
		if !ok {
			return
		}
		fn()
	}
}

// enqueue schedules a host notification on the delivery queue. Caller
// holds c.mu.
func (c *Coordinator) enqueue(fn func()) {
	if c.deliver == nil {
		return
	}
	if dropped := c.deliver.Send(fn); dropped {
		c.logger.WithField("session", c.sessionID).Warn("Host delivery queue overflow, dropped oldest notification")
	}
}

func (c *Coordinator) handleReadyChanged(e readyChangedEvent) {
	c.ready = e.ready
	c.logger.WithFields(logrus.Fields{
		"session": c.sessionID,
		"ready":   e.ready,
	}).Info("Transport readiness changed")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindReadiness, SessionID: c.sessionID, Ready: e.ready})

	if cb := c.onReady; cb != nil {
		ready := e.ready
		c.enqueue(func() { cb(ready) })
	}
}

// Stop halts any in-flight scan, disconnects every connected device
// (disabling its notifications first), clears session-scoped state, and
// releases the transport session. The handler table is preserved; a
// subsequent Start creates a fresh session.
func (c *Coordinator) Stop() error {
	c.mu.Lock()

	if c.session == nil {
		c.mu.Unlock()
		return ErrNoSession
	}

	if c.scanning {
		if err := c.session.EndScan(); err != nil {
			c.logger.WithError(err).Warn("Failed to end scan during stop")
		}
		c.scanning = false
		c.bus.Publish(eventbus.Event{Kind: eventbus.KindScanStopped, SessionID: c.sessionID})
	}

	c.connected.Range(func(id string, dev transport.Device) bool {
		c.disableNotificationsLocked(dev)
		if err := c.session.CancelConnection(dev); err != nil {
			c.logger.WithError(err).WithField("device", id).Warn("Failed to cancel connection during stop")
		}
		return true
	})

	if err := c.session.Close(); err != nil {
		c.logger.WithError(err).Warn("Transport session closed with error")
	}

	sessionID := c.sessionID
	c.session = nil
	c.sessionID = ""
	c.ready = false
	c.scanStopRequested = false
	c.filter = Filter{}
	c.matched = orderedmap.New[string, transport.Device]()
	c.connected = hashmap.New[string, transport.Device]()
	c.pendingWantedChars = make(map[string][]string)
	c.wantedServices = make(map[string][]string)
	c.serviceOwner = make(map[string]string)
	c.deviceChars = make(map[string][]transport.Characteristic)

	q := c.deliver
	done := c.deliveryDone
	c.deliver = nil
	c.deliveryDone = nil
	c.mu.Unlock()

	// Drain outstanding notifications outside the lock: queued callbacks
	// may re-enter the coordinator.
	if q != nil {
		q.Close()
		<-done
	}

	c.logger.WithField("session", sessionID).Info("Coordinator session stopped")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindSessionStopped, SessionID: sessionID})
	return nil
}

// Pause is a reserved extension point with no defined semantics yet.
func (c *Coordinator) Pause() error {
	return fmt.Errorf("pause: %w", ErrUnsupported)
}

// Resume is a reserved extension point with no defined semantics yet.
func (c *Coordinator) Resume() error {
	return fmt.Errorf("resume: %w", ErrUnsupported)
}

// ReadValue requests a read of the characteristic's value. The value is
// delivered asynchronously to the registered handler as a value-updated
// event.
func (c *Coordinator) ReadValue(ch transport.Characteristic) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if !ch.Properties().CanRead() {
		return fmt.Errorf("characteristic %q is not readable: %w", ch.ID(), ErrUnsupported)
	}
	return c.session.ReadValue(ch)
}

// WriteValue writes data to the characteristic. With withResponse set, the
// confirmation is delivered to the registered handler as a write-confirmed
// event.
func (c *Coordinator) WriteValue(ch transport.Characteristic, data []byte, withResponse bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if !ch.Properties().CanWrite() {
		return fmt.Errorf("characteristic %q is not writable: %w", ch.ID(), ErrUnsupported)
	}
	return c.session.WriteValue(ch, data, withResponse)
}

// SetNotify enables or disables notifications for the characteristic. The
// resulting state change is delivered to the registered handler.
func (c *Coordinator) SetNotify(ch transport.Characteristic, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if !ch.Properties().CanNotify() {
		return fmt.Errorf("characteristic %q does not support notifications: %w", ch.ID(), ErrUnsupported)
	}
	return c.session.SetNotification(ch, enabled)
}

// SessionID returns the identifier of the current session, or "" when no
// session is active.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// IsReady reports the last observed transport readiness.
func (c *Coordinator) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.ready
}

// DeliveryMetrics returns a snapshot of the host delivery queue counters
// for the current session. Zero-valued when no session is active.
func (c *Coordinator) DeliveryMetrics() ringchan.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliver == nil {
		return ringchan.Metrics{}
	}
	return c.deliver.Snapshot()
}
