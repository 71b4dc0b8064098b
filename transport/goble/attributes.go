package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/bleio/internal/bledb"
	"github.com/srg/bleio/transport"
)

// bleDevice is a non-owning view of a remote endpoint.
type bleDevice struct {
	id   string
	name string
}

func (d *bleDevice) ID() string   { return d.id }
func (d *bleDevice) Name() string { return d.name }

// bleService pairs a normalized service UUID with its owning device.
type bleService struct {
	id       string
	deviceID string
}

func (s *bleService) ID() string        { return s.id }
func (s *bleService) DeviceID() string  { return s.deviceID }
func (s *bleService) KnownName() string { return bledb.LookupService(s.id) }

// bleCharacteristic carries identity and capability flags; the live
// ble.Characteristic handle stays inside the session's connection state.
type bleCharacteristic struct {
	id        string
	serviceID string
	deviceID  string
	props     transport.Property
}

func (c *bleCharacteristic) ID() string                    { return c.id }
func (c *bleCharacteristic) ServiceID() string             { return c.serviceID }
func (c *bleCharacteristic) KnownName() string             { return bledb.LookupCharacteristic(c.id) }
func (c *bleCharacteristic) Properties() transport.Property { return c.props }

// bleAdvertisement adapts ble.Advertisement to the transport boundary.
type bleAdvertisement struct {
	adv ble.Advertisement
}

func (a *bleAdvertisement) LocalName() string { return a.adv.LocalName() }
func (a *bleAdvertisement) RSSI() int         { return a.adv.RSSI() }
func (a *bleAdvertisement) Addr() string      { return a.adv.Addr().String() }

func (a *bleAdvertisement) Services() []string {
	uuids := a.adv.Services()
	services := make([]string, 0, len(uuids))
	for _, u := range uuids {
		services = append(services, transport.NormalizeUUID(u.String()))
	}
	return services
}

// convertProperty maps go-ble property bits onto the transport bitmask.
func convertProperty(p ble.Property) transport.Property {
	var out transport.Property
	if p&ble.CharRead != 0 {
		out |= transport.PropertyRead
	}
	if p&ble.CharWrite != 0 {
		out |= transport.PropertyWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= transport.PropertyWriteWithoutResponse
	}
	if p&ble.CharNotify != 0 {
		out |= transport.PropertyNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= transport.PropertyIndicate
	}
	return out
}

// parseUUIDs converts normalized UUID strings to ble.UUID values,
// skipping anything unparsable. Returns nil for an empty filter.
func parseUUIDs(ids []string) []ble.UUID {
	if len(ids) == 0 {
		return nil
	}
	uuids := make([]ble.UUID, 0, len(ids))
	for _, id := range ids {
		if u, err := ble.Parse(id); err == nil {
			uuids = append(uuids, u)
		}
	}
	if len(uuids) == 0 {
		return nil
	}
	return uuids
}
