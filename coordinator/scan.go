package coordinator

import (
	"fmt"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/bleio/internal/eventbus"
	"github.com/srg/bleio/transport"
)

// Filter selects which observed devices a discovery session accepts.
// An entirely empty filter accepts every device. Otherwise a device is
// accepted when its advertised name equals Name, or when its advertised
// services intersect ServiceIDs. Filter criteria are immutable for the
// lifetime of a discovery session.
type Filter struct {
	// Name accepts devices whose advertised local name matches exactly.
	Name string
	// ServiceIDs accepts devices advertising at least one of these
	// service UUIDs (any textual form; normalized internally).
	ServiceIDs []string
	// MaxDevices stops the scan once this many distinct devices have
	// matched. 0 means unbounded.
	MaxDevices int
}

// matches applies the acceptance rules against an advertisement whose
// service IDs are already normalized.
func (f *Filter) matches(adv transport.Advertisement) bool {
	if f.Name == "" && len(f.ServiceIDs) == 0 {
		return true
	}
	if f.Name != "" && adv.LocalName() == f.Name {
		return true
	}
	if len(f.ServiceIDs) > 0 {
		for _, wanted := range f.ServiceIDs {
			for _, advertised := range adv.Services() {
				if wanted == advertised {
					return true
				}
			}
		}
	}
	return false
}

// DiscoverPeripherals starts a discovery session with the given filter.
// Matched devices are reported through onFound (when non-nil, it replaces
// the registered discovery callback). The matched-device set is reset;
// filter criteria are fixed until the scan stops.
//
// Returns ErrTransportNotReady when the radio is not ready and
// ErrAlreadyScanning when a discovery session is already in flight. The
// transport session is created lazily if Start has not been called.
func (c *Coordinator) DiscoverPeripherals(filter Filter, onFound func(dev transport.Device)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		if err := c.startSessionLocked(); err != nil {
			return err
		}
	}
	if !c.ready {
		return ErrTransportNotReady
	}
	if c.scanning {
		return ErrAlreadyScanning
	}

	filter.ServiceIDs = transport.NormalizeUUIDs(filter.ServiceIDs)
	c.filter = filter
	c.matched = orderedmap.New[string, transport.Device]()
	c.scanStopRequested = false
	if onFound != nil {
		c.onFound = onFound
	}

	if err := c.session.BeginScan(filter.ServiceIDs); err != nil {
		return fmt.Errorf("failed to begin scan: %w", err)
	}
	c.scanning = true

	c.logger.WithFields(logrus.Fields{
		"session":     c.sessionID,
		"name":        filter.Name,
		"services":    filter.ServiceIDs,
		"max_devices": filter.MaxDevices,
	}).Info("Discovery started")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindScanStarted, SessionID: c.sessionID})
	return nil
}

// StopDiscovery halts an in-flight scan. No-op when not scanning.
func (c *Coordinator) StopDiscovery() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || !c.scanning {
		return nil
	}
	if err := c.session.EndScan(); err != nil {
		return fmt.Errorf("failed to end scan: %w", err)
	}
	c.scanning = false
	c.logger.WithField("session", c.sessionID).Info("Discovery stopped")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindScanStopped, SessionID: c.sessionID})
	return nil
}

// handleDeviceObserved applies filter matching and deduplication to an
// advertisement event. Caller holds c.mu.
func (c *Coordinator) handleDeviceObserved(e deviceObservedEvent) {
	if !c.scanning {
		c.logger.WithField("device", e.dev.ID()).Debug("Ignoring advertisement: not scanning")
		return
	}
	if !c.filter.matches(e.adv) {
		return
	}

	id := e.dev.ID()
	if _, seen := c.matched.Get(id); seen {
		return
	}
	c.matched.Set(id, e.dev)

	c.logger.WithFields(logrus.Fields{
		"session": c.sessionID,
		"device":  id,
		"name":    e.adv.LocalName(),
		"rssi":    e.adv.RSSI(),
	}).Info("Discovered matching device")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindDeviceFound, SessionID: c.sessionID, DeviceID: id})

	if cb := c.onFound; cb != nil {
		dev := e.dev
		c.enqueue(func() { cb(dev) })
	}

	if c.filter.MaxDevices > 0 && c.matched.Len() >= c.filter.MaxDevices && !c.scanStopRequested {
		c.scanStopRequested = true
		if err := c.session.EndScan(); err != nil {
			c.logger.WithError(err).Warn("Failed to end scan after reaching device cap")
		}
		c.scanning = false
		c.logger.WithFields(logrus.Fields{
			"session": c.sessionID,
			"matched": c.matched.Len(),
		}).Info("Device cap reached, scan stopped")
		c.bus.Publish(eventbus.Event{Kind: eventbus.KindScanStopped, SessionID: c.sessionID})
	}
}

// MatchedDevices returns the devices accepted by the current discovery
// session, in discovery order.
func (c *Coordinator) MatchedDevices() []transport.Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]transport.Device, 0, c.matched.Len())
	for pair := c.matched.Oldest(); pair != nil; pair = pair.Next() {
		devices = append(devices, pair.Value)
	}
	return devices
}

// IsScanning reports whether a discovery session is in flight.
func (c *Coordinator) IsScanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// SetDiscoveryCallback registers the callback invoked for each newly
// matched device.
func (c *Coordinator) SetDiscoveryCallback(onFound func(dev transport.Device)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFound = onFound
}
