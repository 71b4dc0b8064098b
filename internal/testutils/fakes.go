// Package testutils provides fakes and builders for exercising the
// coordinator against a scripted transport.
package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/transport"
)

// TestHelper bundles the per-test logger.
type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a helper with a debug-level logger to track
// execution flow.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return &TestHelper{T: t, Logger: logger}
}

// FakeDevice implements transport.Device.
type FakeDevice struct {
	DeviceID   string
	DeviceName string
}

func (d *FakeDevice) ID() string   { return d.DeviceID }
func (d *FakeDevice) Name() string { return d.DeviceName }

// NewFakeDevice creates a device with the given identifier and name.
func NewFakeDevice(id, name string) *FakeDevice {
	return &FakeDevice{DeviceID: id, DeviceName: name}
}

// FakeService implements transport.Service.
type FakeService struct {
	SvcID string
	DevID string
	Name  string
}

func (s *FakeService) ID() string        { return s.SvcID }
func (s *FakeService) DeviceID() string  { return s.DevID }
func (s *FakeService) KnownName() string { return s.Name }

// NewFakeService creates a service scoped to the given device.
func NewFakeService(id, deviceID string) *FakeService {
	return &FakeService{SvcID: id, DevID: deviceID}
}

// FakeCharacteristic implements transport.Characteristic.
type FakeCharacteristic struct {
	CharID string
	SvcID  string
	Name   string
	Props  transport.Property
}

func (c *FakeCharacteristic) ID() string                     { return c.CharID }
func (c *FakeCharacteristic) ServiceID() string              { return c.SvcID }
func (c *FakeCharacteristic) KnownName() string              { return c.Name }
func (c *FakeCharacteristic) Properties() transport.Property { return c.Props }

// NewFakeCharacteristic creates a characteristic scoped to the given
// service, defaulting to read+notify capability.
func NewFakeCharacteristic(id, serviceID string) *FakeCharacteristic {
	return &FakeCharacteristic{
		CharID: id,
		SvcID:  serviceID,
		Props:  transport.PropertyRead | transport.PropertyNotify,
	}
}

// FakeAdvertisement implements transport.Advertisement.
type FakeAdvertisement struct {
	Name       string
	Address    string
	ServiceIDs []string
	Rssi       int
}

func (a *FakeAdvertisement) LocalName() string  { return a.Name }
func (a *FakeAdvertisement) Addr() string       { return a.Address }
func (a *FakeAdvertisement) Services() []string { return a.ServiceIDs }
func (a *FakeAdvertisement) RSSI() int          { return a.Rssi }

// AdvertisementBuilder builds FakeAdvertisement values fluently.
type AdvertisementBuilder struct {
	adv FakeAdvertisement
}

func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{adv: FakeAdvertisement{Rssi: -50}}
}

func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.adv.Name = name
	return b
}

func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.adv.Address = addr
	return b
}

func (b *AdvertisementBuilder) WithServices(ids ...string) *AdvertisementBuilder {
	normalized := make([]string, 0, len(ids))
	for _, id := range ids {
		normalized = append(normalized, transport.NormalizeUUID(id))
	}
	b.adv.ServiceIDs = normalized
	return b
}

func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.adv.Rssi = rssi
	return b
}

func (b *AdvertisementBuilder) Build() *FakeAdvertisement {
	adv := b.adv
	return &adv
}
