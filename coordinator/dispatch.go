package coordinator

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/transport"
)

// EventKind identifies the kind of characteristic event routed to a
// handler.
type EventKind int

const (
	EventValueUpdated EventKind = iota
	EventNotificationState
	EventWriteConfirmed
)

func (k EventKind) String() string {
	switch k {
	case EventValueUpdated:
		return "value_updated"
	case EventNotificationState:
		return "notification_state_changed"
	case EventWriteConfirmed:
		return "write_confirmed"
	default:
		return "unknown"
	}
}

// CharacteristicEvent carries one asynchronous characteristic event to its
// registered handler. Data is valid for EventValueUpdated, NotifyEnabled
// for EventNotificationState. Err carries the transport-reported error for
// the underlying operation, if any.
type CharacteristicEvent struct {
	Kind           EventKind
	Characteristic transport.Characteristic
	Data           []byte
	NotifyEnabled  bool
	Err            error
}

// Handler processes characteristic events for one characteristic ID. A
// returned error is logged at the dispatch boundary and never propagated:
// a failing handler cannot interrupt delivery to other characteristics or
// to itself on later events.
type Handler func(ev CharacteristicEvent) error

// RegisterHandlers merges the mapping into the handler table. An existing
// entry for the same characteristic ID is replaced, not merged. The table
// outlives sessions: handlers stay registered across Stop/Start cycles and
// reconnects.
func (c *Coordinator) RegisterHandlers(handlers map[string]Handler) {
	for id, h := range handlers {
		if h == nil {
			c.logger.WithField("characteristic", id).Warn("Ignoring nil handler registration")
			continue
		}
		c.handlers.Set(transport.NormalizeUUID(id), h)
	}
}

// dispatchCharacteristicEvent routes an inbound characteristic event to
// its registered handler via the delivery queue. Events without a handler
// are dropped silently. The lookup normalizes the reported ID, matching
// the normalization applied at registration. Caller holds c.mu.
func (c *Coordinator) dispatchCharacteristicEvent(ev CharacteristicEvent) {
	id := transport.NormalizeUUID(ev.Characteristic.ID())

	// The transport should only emit characteristic events for active
	// connections; verify when the owning device is known rather than
	// trusting that.
	if devID, known := c.serviceOwner[ev.Characteristic.ServiceID()]; known {
		if _, connected := c.connected.Get(devID); !connected {
			c.logger.WithFields(logrus.Fields{
				"device":         devID,
				"characteristic": id,
				"event":          ev.Kind.String(),
			}).Warn("Characteristic event for device outside connected set")
		}
	}

	h, ok := c.handlers.Get(id)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"characteristic": id,
			"event":          ev.Kind.String(),
		}).Debug("No handler registered, dropping event")
		return
	}

	c.enqueue(func() { c.invokeHandler(h, ev) })
}

// invokeHandler runs one handler on the delivery goroutine, containing
// both returned errors and panics so a failing handler never interrupts
// delivery for other characteristics.
func (c *Coordinator) invokeHandler(h Handler, ev CharacteristicEvent) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithFields(logrus.Fields{
				"characteristic": ev.Characteristic.ID(),
				"event":          ev.Kind.String(),
				"panic":          r,
			}).Error("Characteristic handler panicked")
		}
	}()

	if err := h(ev); err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"characteristic": ev.Characteristic.ID(),
			"event":          ev.Kind.String(),
		}).Error("Characteristic handler failed")
	}
}
