// Package transport defines the boundary between the coordinator and the
// underlying radio stack. The coordinator consumes these capabilities and
// never talks to a radio library directly; production code plugs in the
// go-ble backed implementation from transport/goble, tests plug in a mock.
package transport

import "strings"

// Device is an opaque remote endpoint. The transport owns the underlying
// handle; callers hold non-owning references keyed by ID.
type Device interface {
	ID() string
	Name() string // advertised name, may be empty
}

// Service is an identifier-scoped group of characteristics on one device.
// Transports report service UUIDs in normalized form (lowercase, no
// dashes, see NormalizeUUID).
type Service interface {
	ID() string
	DeviceID() string
	KnownName() string
}

// Characteristic is the unit of read/write/subscribe within a service.
// Capability flags are supplied by the transport, not modeled independently.
// IDs follow the same normalized form as Service IDs.
type Characteristic interface {
	ID() string
	ServiceID() string
	KnownName() string
	Properties() Property
}

// Property is a bitmask of characteristic capability flags.
type Property uint8

const (
	PropertyRead Property = 1 << iota
	PropertyWrite
	PropertyWriteWithoutResponse
	PropertyNotify
	PropertyIndicate
)

func (p Property) CanRead() bool   { return p&PropertyRead != 0 }
func (p Property) CanWrite() bool  { return p&(PropertyWrite|PropertyWriteWithoutResponse) != 0 }
func (p Property) CanNotify() bool { return p&(PropertyNotify|PropertyIndicate) != 0 }

func (p Property) String() string {
	var parts []string
	if p&PropertyRead != 0 {
		parts = append(parts, "read")
	}
	if p&PropertyWrite != 0 {
		parts = append(parts, "write")
	}
	if p&PropertyWriteWithoutResponse != 0 {
		parts = append(parts, "write-without-response")
	}
	if p&PropertyNotify != 0 {
		parts = append(parts, "notify")
	}
	if p&PropertyIndicate != 0 {
		parts = append(parts, "indicate")
	}
	return strings.Join(parts, ",")
}

// Advertisement is the pre-connection broadcast payload used for filtering.
type Advertisement interface {
	LocalName() string
	Services() []string // advertised service UUIDs, normalized
	RSSI() int
	Addr() string
}

// Central creates radio sessions. Exactly one Session is held by a
// coordinator at a time; a fresh Session is created on each start.
type Central interface {
	OpenSession(sink EventSink) (Session, error)
}

// Session is the capability surface of one live radio session. All
// multi-step operations are asynchronous: the call issues the request and
// the result arrives through the EventSink registered at OpenSession.
type Session interface {
	// IsReady reports whether the radio is powered on and usable.
	IsReady() bool

	// BeginScan starts advertisement scanning. serviceFilter narrows the
	// radio-level scan when supported; nil scans for everything.
	BeginScan(serviceFilter []string) error
	// EndScan halts an in-flight scan. No-op when not scanning.
	EndScan() error

	// Connect issues an asynchronous connection request for the device.
	Connect(dev Device) error
	// CancelConnection tears down (or aborts) a connection.
	CancelConnection(dev Device) error

	// KnownDevices resolves identifiers to live device handles. Unresolved
	// identifiers are simply absent from the result.
	KnownDevices(ids []string) []Device

	// DiscoverServices requests service enumeration for a connected device.
	DiscoverServices(dev Device, idFilter []string) error
	// DiscoverCharacteristics requests characteristic enumeration for a
	// service on a connected device.
	DiscoverCharacteristics(svc Service, idFilter []string) error

	// SetNotification enables or disables value notifications.
	SetNotification(ch Characteristic, enabled bool) error
	// ReadValue requests a value read; the value arrives as a value-updated
	// event.
	ReadValue(ch Characteristic) error
	// WriteValue writes data; confirmation arrives as a write-confirmed
	// event when withResponse is set.
	WriteValue(ch Characteristic, data []byte, withResponse bool) error

	// Close releases the session. Events stop after Close returns.
	Close() error
}

// EventSink receives the inbound event stream from a Session. The
// transport may invoke these from any goroutine, concurrently across
// devices; implementations must synchronize internally.
type EventSink interface {
	ReadyChanged(ready bool)
	DeviceObserved(dev Device, adv Advertisement)
	Connected(dev Device)
	ConnectFailed(dev Device, err error)
	Disconnected(dev Device, err error)
	ServicesDiscovered(dev Device, services []Service, err error)
	ServicesModified(dev Device, invalidated []Service)
	CharacteristicsDiscovered(svc Service, chars []Characteristic, err error)
	ValueUpdated(ch Characteristic, data []byte, err error)
	NotificationStateChanged(ch Characteristic, enabled bool, err error)
	WriteConfirmed(ch Characteristic, err error)
}
