package coordinator

import (
	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/internal/eventbus"
	"github.com/srg/bleio/transport"
)

// ConnectionResult reports the outcome of one connect attempt. Err is nil
// on success and a *ConnectionFailedError on failure.
type ConnectionResult struct {
	Device transport.Device
	Err    error
}

// Disconnection reports that a device left the connected set. Err carries
// the transport's reason when the disconnection was not requested.
type Disconnection struct {
	Device transport.Device
	Err    error
}

// Resolution is the per-identifier outcome of a Reconnect call. Device is
// nil when the identifier could not be resolved to a live handle.
type Resolution struct {
	ID     string
	Device transport.Device
}

// Resolved reports whether the identifier resolved to a device.
func (r Resolution) Resolved() bool {
	return r.Device != nil
}

// Connect issues one asynchronous connect request per device. Outcomes are
// delivered per device through the connection-result callback; onResult,
// when non-nil, replaces the registered callback.
func (c *Coordinator) Connect(devices []transport.Device, onResult func(res ConnectionResult)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if onResult != nil {
		c.onConnection = onResult
	}

	for _, dev := range devices {
		if err := c.session.Connect(dev); err != nil {
			// The request never left: surface it the same way as an
			// asynchronous connect failure.
			c.logger.WithError(err).WithField("device", dev.ID()).Warn("Connect request failed")
			c.emitConnectionResult(dev, &ConnectionFailedError{DeviceID: dev.ID(), Err: err})
		}
	}
	return nil
}

// Reconnect resolves identifiers to live device handles and connects the
// resolved ones. Every identifier is accounted for in the returned
// resolutions, in input order; unresolved identifiers produce a
// Resolution with a nil Device.
func (c *Coordinator) Reconnect(ids []string, onResult func(res ConnectionResult)) ([]Resolution, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil, ErrNoSession
	}
	if onResult != nil {
		c.onConnection = onResult
	}

	byID := make(map[string]transport.Device)
	for _, dev := range c.session.KnownDevices(ids) {
		byID[dev.ID()] = dev
	}

	resolutions := make([]Resolution, 0, len(ids))
	for _, id := range ids {
		dev, ok := byID[id]
		if !ok {
			c.logger.WithField("device", id).Warn("Reconnect identifier did not resolve to a known device")
			resolutions = append(resolutions, Resolution{ID: id})
			continue
		}
		resolutions = append(resolutions, Resolution{ID: id, Device: dev})
		if err := c.session.Connect(dev); err != nil {
			c.logger.WithError(err).WithField("device", id).Warn("Reconnect request failed")
			c.emitConnectionResult(dev, &ConnectionFailedError{DeviceID: id, Err: err})
		}
	}
	return resolutions, nil
}

// Disconnect requests teardown for each device. Active notifications on
// the device's known characteristics are disabled first, so the transport
// stops delivering value events before the disconnection is requested.
func (c *Coordinator) Disconnect(devices []transport.Device) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}

	for _, dev := range devices {
		c.disableNotificationsLocked(dev)
		if err := c.session.CancelConnection(dev); err != nil {
			c.logger.WithError(err).WithField("device", dev.ID()).Warn("Disconnect request failed")
		}
	}
	return nil
}

// disableNotificationsLocked turns off notifications on every cached
// characteristic of the device that supports them. Caller holds c.mu.
func (c *Coordinator) disableNotificationsLocked(dev transport.Device) {
	for _, ch := range c.deviceChars[dev.ID()] {
		if !ch.Properties().CanNotify() {
			continue
		}
		if err := c.session.SetNotification(ch, false); err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"device":         dev.ID(),
				"characteristic": ch.ID(),
			}).Warn("Failed to disable notifications during teardown")
		}
	}
}

func (c *Coordinator) handleConnected(e connectedEvent) {
	id := e.dev.ID()
	c.connected.Set(id, e.dev)

	c.logger.WithFields(logrus.Fields{
		"session": c.sessionID,
		"device":  id,
	}).Info("Device connected")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindDeviceConnected, SessionID: c.sessionID, DeviceID: id})

	c.emitConnectionResult(e.dev, nil)
}

func (c *Coordinator) handleConnectFailed(e connectFailedEvent) {
	c.logger.WithError(e.err).WithFields(logrus.Fields{
		"session": c.sessionID,
		"device":  e.dev.ID(),
	}).Warn("Device connection failed")

	c.emitConnectionResult(e.dev, &ConnectionFailedError{DeviceID: e.dev.ID(), Err: e.err})
}

// handleDisconnected removes the device from the connected set before any
// host notification fires. A duplicate event for the same device is a
// no-op.
func (c *Coordinator) handleDisconnected(e disconnectedEvent) {
	id := e.dev.ID()
	if !c.connected.Del(id) {
		c.logger.WithField("device", id).Debug("Ignoring disconnection for device not in connected set")
		return
	}

	// Cached attribute handles are stale once the connection is gone.
	delete(c.deviceChars, id)
	delete(c.wantedServices, id)
	for svcID, owner := range c.serviceOwner {
		if owner == id {
			delete(c.serviceOwner, svcID)
			delete(c.pendingWantedChars, svcID)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"session": c.sessionID,
		"device":  id,
	}).Info("Device disconnected")
	c.bus.Publish(eventbus.Event{Kind: eventbus.KindDeviceDisconnected, SessionID: c.sessionID, DeviceID: id})

	if cb := c.onDisconnection; cb != nil {
		d := Disconnection{Device: e.dev, Err: e.err}
		c.enqueue(func() { cb(d) })
	}
}

// emitConnectionResult queues a connection outcome for the host. Caller
// holds c.mu.
func (c *Coordinator) emitConnectionResult(dev transport.Device, err error) {
	if cb := c.onConnection; cb != nil {
		res := ConnectionResult{Device: dev, Err: err}
		c.enqueue(func() { cb(res) })
	}
}

// ConnectedDevices returns a snapshot of the connected-device set.
func (c *Coordinator) ConnectedDevices() []transport.Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	devices := make([]transport.Device, 0, c.connected.Len())
	c.connected.Range(func(_ string, dev transport.Device) bool {
		devices = append(devices, dev)
		return true
	})
	return devices
}

// SetConnectionCallback registers the callback receiving per-device
// connect outcomes.
func (c *Coordinator) SetConnectionCallback(onResult func(res ConnectionResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnection = onResult
}

// SetDisconnectionCallback registers the callback receiving device
// disconnections.
func (c *Coordinator) SetDisconnectionCallback(onDisconnect func(d Disconnection)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnection = onDisconnect
}
