package coordinator

import "github.com/srg/bleio/transport"

// The transport drives the coordinator through the transport.EventSink
// capability interface below. Each sink method wraps its arguments into an
// inbound event variant and hands it to the single dispatch function
// (handleEvent); no coordinator state is touched outside that funnel.

type inboundEvent interface {
	name() string
}

type readyChangedEvent struct {
	ready bool
}

type deviceObservedEvent struct {
	dev transport.Device
	adv transport.Advertisement
}

type connectedEvent struct {
	dev transport.Device
}

type connectFailedEvent struct {
	dev transport.Device
	err error
}

type disconnectedEvent struct {
	dev transport.Device
	err error
}

type servicesDiscoveredEvent struct {
	dev      transport.Device
	services []transport.Service
	err      error
}

type servicesModifiedEvent struct {
	dev         transport.Device
	invalidated []transport.Service
}

type characteristicsDiscoveredEvent struct {
	svc   transport.Service
	chars []transport.Characteristic
	err   error
}

type valueUpdatedEvent struct {
	ch   transport.Characteristic
	data []byte
	err  error
}

type notificationStateEvent struct {
	ch      transport.Characteristic
	enabled bool
	err     error
}

type writeConfirmedEvent struct {
	ch  transport.Characteristic
	err error
}

func (readyChangedEvent) name() string              { return "ready_changed" }
func (deviceObservedEvent) name() string            { return "device_observed" }
func (connectedEvent) name() string                 { return "connected" }
func (connectFailedEvent) name() string             { return "connect_failed" }
func (disconnectedEvent) name() string              { return "disconnected" }
func (servicesDiscoveredEvent) name() string        { return "services_discovered" }
func (servicesModifiedEvent) name() string          { return "services_modified" }
func (characteristicsDiscoveredEvent) name() string { return "characteristics_discovered" }
func (valueUpdatedEvent) name() string              { return "value_updated" }
func (notificationStateEvent) name() string         { return "notification_state_changed" }
func (writeConfirmedEvent) name() string            { return "write_confirmed" }

// transport.EventSink implementation.

func (c *Coordinator) ReadyChanged(ready bool) {
	c.handleEvent(readyChangedEvent{ready: ready})
}

func (c *Coordinator) DeviceObserved(dev transport.Device, adv transport.Advertisement) {
	c.handleEvent(deviceObservedEvent{dev: dev, adv: adv})
}

func (c *Coordinator) Connected(dev transport.Device) {
	c.handleEvent(connectedEvent{dev: dev})
}

func (c *Coordinator) ConnectFailed(dev transport.Device, err error) {
	c.handleEvent(connectFailedEvent{dev: dev, err: err})
}

func (c *Coordinator) Disconnected(dev transport.Device, err error) {
	c.handleEvent(disconnectedEvent{dev: dev, err: err})
}

func (c *Coordinator) ServicesDiscovered(dev transport.Device, services []transport.Service, err error) {
	c.handleEvent(servicesDiscoveredEvent{dev: dev, services: services, err: err})
}

func (c *Coordinator) ServicesModified(dev transport.Device, invalidated []transport.Service) {
	c.handleEvent(servicesModifiedEvent{dev: dev, invalidated: invalidated})
}

func (c *Coordinator) CharacteristicsDiscovered(svc transport.Service, chars []transport.Characteristic, err error) {
	c.handleEvent(characteristicsDiscoveredEvent{svc: svc, chars: chars, err: err})
}

func (c *Coordinator) ValueUpdated(ch transport.Characteristic, data []byte, err error) {
	c.handleEvent(valueUpdatedEvent{ch: ch, data: data, err: err})
}

func (c *Coordinator) NotificationStateChanged(ch transport.Characteristic, enabled bool, err error) {
	c.handleEvent(notificationStateEvent{ch: ch, enabled: enabled, err: err})
}

func (c *Coordinator) WriteConfirmed(ch transport.Characteristic, err error) {
	c.handleEvent(writeConfirmedEvent{ch: ch, err: err})
}

// handleEvent is the single entry point for inbound transport events. It
// serializes all state mutation under the coordinator mutex; the transport
// may call it from any goroutine.
func (c *Coordinator) handleEvent(ev inboundEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		c.logger.WithField("event", ev.name()).Debug("Dropping event: no active session")
		return
	}

	switch e := ev.(type) {
	case readyChangedEvent:
		c.handleReadyChanged(e)
	case deviceObservedEvent:
		c.handleDeviceObserved(e)
	case connectedEvent:
		c.handleConnected(e)
	case connectFailedEvent:
		c.handleConnectFailed(e)
	case disconnectedEvent:
		c.handleDisconnected(e)
	case servicesDiscoveredEvent:
		c.handleServicesDiscovered(e)
	case servicesModifiedEvent:
		c.handleServicesModified(e)
	case characteristicsDiscoveredEvent:
		c.handleCharacteristicsDiscovered(e)
	case valueUpdatedEvent:
		c.dispatchCharacteristicEvent(CharacteristicEvent{
			Kind:           EventValueUpdated,
			Characteristic: e.ch,
			Data:           e.data,
			Err:            e.err,
		})
	case notificationStateEvent:
		c.dispatchCharacteristicEvent(CharacteristicEvent{
			Kind:           EventNotificationState,
			Characteristic: e.ch,
			NotifyEnabled:  e.enabled,
			Err:            e.err,
		})
	case writeConfirmedEvent:
		c.dispatchCharacteristicEvent(CharacteristicEvent{
			Kind:           EventWriteConfirmed,
			Characteristic: e.ch,
			Err:            e.err,
		})
	default:
		c.logger.WithField("event", ev.name()).Warn("Unhandled inbound event")
	}
}
