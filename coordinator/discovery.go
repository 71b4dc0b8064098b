package coordinator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/transport"
)

// ServicesResult reports the outcome of a service discovery request.
// Services is empty (never nil) when the device reports no matching
// services; Err is a *DiscoveryError when the transport reported a
// failure.
type ServicesResult struct {
	Device   transport.Device
	Services []transport.Service
	Err      error
}

// CharacteristicsResult reports the outcome of a characteristic discovery
// request for one service.
type CharacteristicsResult struct {
	Service         transport.Service
	Characteristics []transport.Characteristic
	Err             error
}

// DiscoverServices requests service enumeration for a connected device.
// wantedIDs narrows the reported set; nil means "accept all". The filtered
// result is delivered through the services callback; onResult, when
// non-nil, replaces the registered callback.
func (c *Coordinator) DiscoverServices(dev transport.Device, wantedIDs []string, onResult func(res ServicesResult)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if onResult != nil {
		c.onServices = onResult
	}

	wanted := transport.NormalizeUUIDs(wantedIDs)
	c.wantedServices[dev.ID()] = wanted

	if err := c.session.DiscoverServices(dev, wanted); err != nil {
		return fmt.Errorf("failed to request service discovery for device %q: %w", dev.ID(), err)
	}
	return nil
}

// DiscoverCharacteristics requests characteristic enumeration for a
// service. wanted narrows the reported set; nil means "accept all". The
// wanted set is recorded per service and consumed when the response
// arrives.
func (c *Coordinator) DiscoverCharacteristics(svc transport.Service, wanted []string, onResult func(res CharacteristicsResult)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ErrNoSession
	}
	if onResult != nil {
		c.onCharacteristics = onResult
	}

	normalized := transport.NormalizeUUIDs(wanted)
	if normalized != nil {
		c.pendingWantedChars[svc.ID()] = normalized
	} else {
		delete(c.pendingWantedChars, svc.ID())
	}

	if err := c.session.DiscoverCharacteristics(svc, normalized); err != nil {
		delete(c.pendingWantedChars, svc.ID())
		return fmt.Errorf("failed to request characteristic discovery for service %q: %w", svc.ID(), err)
	}
	return nil
}

func (c *Coordinator) handleServicesDiscovered(e servicesDiscoveredEvent) {
	if e.err != nil {
		c.logger.WithError(e.err).WithFields(logrus.Fields{
			"session": c.sessionID,
			"device":  e.dev.ID(),
		}).Error("Service discovery failed")
		c.emitServicesResult(ServicesResult{
			Device: e.dev,
			Err:    &DiscoveryError{Stage: "services", TargetID: e.dev.ID(), Err: e.err},
		})
		return
	}

	wanted := c.wantedServices[e.dev.ID()]
	filtered := filterServices(e.services, wanted)
	for _, svc := range filtered {
		c.serviceOwner[svc.ID()] = e.dev.ID()
	}

	c.logger.WithFields(logrus.Fields{
		"session":  c.sessionID,
		"device":   e.dev.ID(),
		"reported": len(e.services),
		"matched":  len(filtered),
	}).Debug("Services discovered")

	c.emitServicesResult(ServicesResult{Device: e.dev, Services: filtered})
}

func (c *Coordinator) handleCharacteristicsDiscovered(e characteristicsDiscoveredEvent) {
	svcID := e.svc.ID()
	wanted, hasWanted := c.pendingWantedChars[svcID]
	delete(c.pendingWantedChars, svcID)

	if e.err != nil {
		c.logger.WithError(e.err).WithFields(logrus.Fields{
			"session": c.sessionID,
			"service": svcID,
		}).Error("Characteristic discovery failed")
		c.emitCharacteristicsResult(CharacteristicsResult{
			Service: e.svc,
			Err:     &DiscoveryError{Stage: "characteristics", TargetID: svcID, Err: e.err},
		})
		return
	}

	filtered := make([]transport.Characteristic, 0, len(e.chars))
	for _, ch := range e.chars {
		if !hasWanted || containsID(wanted, ch.ID()) {
			filtered = append(filtered, ch)
		}
	}

	// Re-discovery replaces any previously cached handles for this
	// service; stale handles must not linger into teardown.
	if devID, ok := c.serviceOwner[svcID]; ok {
		kept := c.deviceChars[devID][:0]
		for _, ch := range c.deviceChars[devID] {
			if ch.ServiceID() != svcID {
				kept = append(kept, ch)
			}
		}
		c.deviceChars[devID] = append(kept, filtered...)
	}

	c.logger.WithFields(logrus.Fields{
		"session":  c.sessionID,
		"service":  svcID,
		"reported": len(e.chars),
		"matched":  len(filtered),
	}).Debug("Characteristics discovered")

	c.emitCharacteristicsResult(CharacteristicsResult{Service: e.svc, Characteristics: filtered})
}

// handleServicesModified forwards service invalidations, filtered against
// the device's wanted-service set. Cached handles for the invalidated
// services are dropped; they must be re-discovered before further use.
func (c *Coordinator) handleServicesModified(e servicesModifiedEvent) {
	wanted := c.wantedServices[e.dev.ID()]
	filtered := filterServices(e.invalidated, wanted)

	for _, svc := range filtered {
		svcID := svc.ID()
		delete(c.serviceOwner, svcID)
		delete(c.pendingWantedChars, svcID)
		kept := c.deviceChars[e.dev.ID()][:0]
		for _, ch := range c.deviceChars[e.dev.ID()] {
			if ch.ServiceID() != svcID {
				kept = append(kept, ch)
			}
		}
		c.deviceChars[e.dev.ID()] = kept
	}

	c.logger.WithFields(logrus.Fields{
		"session":     c.sessionID,
		"device":      e.dev.ID(),
		"invalidated": len(filtered),
	}).Info("Services modified")

	if cb := c.onServicesModified; cb != nil {
		dev := e.dev
		c.enqueue(func() { cb(dev, filtered) })
	}
}

func (c *Coordinator) emitServicesResult(res ServicesResult) {
	if cb := c.onServices; cb != nil {
		c.enqueue(func() { cb(res) })
	}
}

func (c *Coordinator) emitCharacteristicsResult(res CharacteristicsResult) {
	if cb := c.onCharacteristics; cb != nil {
		c.enqueue(func() { cb(res) })
	}
}

// filterServices keeps services whose ID is in wanted, preserving input
// order. A nil wanted set accepts everything. The result is never nil.
func filterServices(services []transport.Service, wanted []string) []transport.Service {
	filtered := make([]transport.Service, 0, len(services))
	for _, svc := range services {
		if wanted == nil || containsID(wanted, svc.ID()) {
			filtered = append(filtered, svc)
		}
	}
	return filtered
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// SetServicesCallback registers the callback receiving service discovery
// results.
func (c *Coordinator) SetServicesCallback(onResult func(res ServicesResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onServices = onResult
}

// SetCharacteristicsCallback registers the callback receiving
// characteristic discovery results.
func (c *Coordinator) SetCharacteristicsCallback(onResult func(res CharacteristicsResult)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCharacteristics = onResult
}

// SetServicesModifiedCallback registers the callback receiving service
// invalidation notices.
func (c *Coordinator) SetServicesModifiedCallback(onModified func(dev transport.Device, invalidated []transport.Service)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onServicesModified = onModified
}
