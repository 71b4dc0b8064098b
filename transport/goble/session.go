package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/transport"
)

// conn tracks the live state of one connected peripheral: the go-ble
// client plus the attribute handles resolved so far.
type conn struct {
	client   ble.Client
	services map[string]*ble.Service        // normalized service ID -> handle
	chars    map[string]*ble.Characteristic // normalized characteristic ID -> handle
}

// session implements transport.Session over one ble.Device.
type session struct {
	dev            ble.Device
	sink           transport.EventSink
	logger         *logrus.Logger
	connectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	closed     bool
	scanCancel context.CancelFunc
	observed   map[string]*bleDevice // devices seen this session, for reconnect-by-ID
	conns      map[string]*conn
}

func newSession(dev ble.Device, sink transport.EventSink, logger *logrus.Logger, connectTimeout time.Duration) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		dev:            dev,
		sink:           sink,
		logger:         logger,
		connectTimeout: connectTimeout,
		ctx:            ctx,
		cancel:         cancel,
		observed:       make(map[string]*bleDevice),
		conns:          make(map[string]*conn),
	}
}

func (s *session) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.dev != nil
}

// BeginScan starts advertisement scanning. go-ble performs no radio-level
// service filtering, so serviceFilter is accepted for interface symmetry
// and matching happens in the event consumer.
func (s *session) BeginScan(serviceFilter []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("session closed")
	}
	if s.scanCancel != nil {
		return errors.New("scan already running")
	}

	scanCtx, cancel := context.WithCancel(s.ctx)
	s.scanCancel = cancel

	go func() {
		err := s.dev.Scan(scanCtx, false, s.handleAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			s.logger.WithError(err).Warn("BLE scan terminated with error")
		}
	}()

	s.logger.WithField("filter", serviceFilter).Debug("BLE scan started")
	return nil
}

func (s *session) EndScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
		s.logger.Debug("BLE scan stopped")
	}
	return nil
}

func (s *session) handleAdvertisement(adv ble.Advertisement) {
	id := adv.Addr().String()

	s.mu.Lock()
	dev, ok := s.observed[id]
	if !ok {
		dev = &bleDevice{id: id, name: adv.LocalName()}
		s.observed[id] = dev
	} else if dev.name == "" && adv.LocalName() != "" {
		dev.name = adv.LocalName()
	}
	s.mu.Unlock()

	s.sink.DeviceObserved(dev, &bleAdvertisement{adv: adv})
}

// Connect dials the device asynchronously; the outcome arrives as a
// connected or connect-failed event.
func (s *session) Connect(dev transport.Device) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("session closed")
	}
	if _, exists := s.conns[dev.ID()]; exists {
		s.mu.Unlock()
		return fmt.Errorf("device %q already connected", dev.ID())
	}
	s.mu.Unlock()

	go s.dial(dev)
	return nil
}

func (s *session) dial(dev transport.Device) {
	dialCtx, cancel := context.WithTimeout(s.ctx, s.connectTimeout)
	defer cancel()

	s.logger.WithField("device", dev.ID()).Info("Connecting to BLE device...")

	client, err := ble.Dial(dialCtx, ble.NewAddr(dev.ID()))
	if err != nil {
		s.sink.ConnectFailed(dev, fmt.Errorf("failed to connect to device %q: %w", dev.ID(), err))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = client.CancelConnection()
		return
	}
	s.conns[dev.ID()] = &conn{
		client:   client,
		services: make(map[string]*ble.Service),
		chars:    make(map[string]*ble.Characteristic),
	}
	s.mu.Unlock()

	// One watcher per connection turns the client's closed channel into a
	// disconnected event and clears the connection state exactly once.
	go func() {
		<-client.Disconnected()
		s.mu.Lock()
		_, present := s.conns[dev.ID()]
		delete(s.conns, dev.ID())
		closed := s.closed
		s.mu.Unlock()
		if present && !closed {
			s.sink.Disconnected(dev, nil)
		}
	}()

	s.sink.Connected(dev)
}

func (s *session) CancelConnection(dev transport.Device) error {
	s.mu.Lock()
	c, ok := s.conns[dev.ID()]
	s.mu.Unlock()

	if !ok {
		return nil
	}
	return c.client.CancelConnection()
}

func (s *session) KnownDevices(ids []string) []transport.Device {
	s.mu.Lock()
	defer s.mu.Unlock()

	devices := make([]transport.Device, 0, len(ids))
	for _, id := range ids {
		if dev, ok := s.observed[id]; ok {
			devices = append(devices, dev)
		}
	}
	return devices
}

func (s *session) DiscoverServices(dev transport.Device, idFilter []string) error {
	s.mu.Lock()
	c, ok := s.conns[dev.ID()]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("device %q not connected", dev.ID())
	}

	go func() {
		handles, err := c.client.DiscoverServices(parseUUIDs(idFilter))
		if err != nil {
			s.sink.ServicesDiscovered(dev, nil, fmt.Errorf("failed to discover services for device %q: %w", dev.ID(), err))
			return
		}

		services := make([]transport.Service, 0, len(handles))
		s.mu.Lock()
		for _, h := range handles {
			id := transport.NormalizeUUID(h.UUID.String())
			c.services[id] = h
			services = append(services, &bleService{id: id, deviceID: dev.ID()})
		}
		s.mu.Unlock()

		s.sink.ServicesDiscovered(dev, services, nil)
	}()
	return nil
}

func (s *session) DiscoverCharacteristics(svc transport.Service, idFilter []string) error {
	s.mu.Lock()
	c, ok := s.conns[svc.DeviceID()]
	var handle *ble.Service
	if ok {
		handle = c.services[svc.ID()]
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("device %q not connected", svc.DeviceID())
	}
	if handle == nil {
		return fmt.Errorf("service %q not discovered on device %q", svc.ID(), svc.DeviceID())
	}

	go func() {
		handles, err := c.client.DiscoverCharacteristics(parseUUIDs(idFilter), handle)
		if err != nil {
			s.sink.CharacteristicsDiscovered(svc, nil, fmt.Errorf("failed to discover characteristics for service %q: %w", svc.ID(), err))
			return
		}

		chars := make([]transport.Characteristic, 0, len(handles))
		s.mu.Lock()
		for _, h := range handles {
			id := transport.NormalizeUUID(h.UUID.String())
			c.chars[id] = h
			chars = append(chars, &bleCharacteristic{
				id:        id,
				serviceID: svc.ID(),
				deviceID:  svc.DeviceID(),
				props:     convertProperty(h.Property),
			})
		}
		s.mu.Unlock()

		s.sink.CharacteristicsDiscovered(svc, chars, nil)
	}()
	return nil
}

// resolveHandle finds the live characteristic handle and client for a
// boundary characteristic.
func (s *session) resolveHandle(ch transport.Characteristic) (*conn, *ble.Characteristic, error) {
	bc, ok := ch.(*bleCharacteristic)
	if !ok {
		return nil, nil, fmt.Errorf("characteristic %q does not belong to this transport", ch.ID())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[bc.deviceID]
	if !ok {
		return nil, nil, fmt.Errorf("device %q not connected", bc.deviceID)
	}
	handle := c.chars[bc.id]
	if handle == nil {
		return nil, nil, fmt.Errorf("characteristic %q not discovered on device %q", bc.id, bc.deviceID)
	}
	return c, handle, nil
}

func (s *session) SetNotification(ch transport.Characteristic, enabled bool) error {
	c, handle, err := s.resolveHandle(ch)
	if err != nil {
		return err
	}

	go func() {
		var opErr error
		if enabled {
			opErr = c.client.Subscribe(handle, false, func(data []byte) {
				s.sink.ValueUpdated(ch, data, nil)
			})
		} else {
			// Try both notification and indication modes; only failing
			// both counts as an error.
			err1 := c.client.Unsubscribe(handle, false)
			err2 := c.client.Unsubscribe(handle, true)
			if err1 != nil && err2 != nil {
				opErr = fmt.Errorf("notify=%v, indicate=%v", err1, err2)
			}
		}

		if opErr != nil {
			s.logger.WithError(opErr).WithFields(logrus.Fields{
				"characteristic": ch.ID(),
				"enabled":        enabled,
			}).Error("Failed to change notification state")
		}
		s.sink.NotificationStateChanged(ch, enabled, opErr)
	}()
	return nil
}

func (s *session) ReadValue(ch transport.Characteristic) error {
	c, handle, err := s.resolveHandle(ch)
	if err != nil {
		return err
	}

	go func() {
		data, readErr := c.client.ReadCharacteristic(handle)
		if readErr != nil {
			readErr = fmt.Errorf("failed to read characteristic %q: %w", ch.ID(), readErr)
		}
		s.sink.ValueUpdated(ch, data, readErr)
	}()
	return nil
}

func (s *session) WriteValue(ch transport.Characteristic, data []byte, withResponse bool) error {
	c, handle, err := s.resolveHandle(ch)
	if err != nil {
		return err
	}

	payload := make([]byte, len(data))
	copy(payload, data)

	go func() {
		var writeErr error
		for len(payload) > 0 && writeErr == nil {
			n := len(payload)
			if n > defaultWriteChunkSize {
				n = defaultWriteChunkSize
			}
			writeErr = c.client.WriteCharacteristic(handle, payload[:n], !withResponse)
			payload = payload[n:]
			if len(payload) > 0 {
				time.Sleep(defaultWriteDelay)
			}
		}
		if writeErr != nil {
			writeErr = fmt.Errorf("failed to write characteristic %q: %w", ch.ID(), writeErr)
		}
		if withResponse || writeErr != nil {
			s.sink.WriteConfirmed(ch, writeErr)
		}
	}()
	return nil
}

// Close tears down the session: the scan stops, every connection is
// cancelled, and the underlying device is released. Events cease once the
// closed flag is set.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.scanCancel != nil {
		s.scanCancel()
		s.scanCancel = nil
	}
	conns := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[string]*conn)
	s.mu.Unlock()

	s.cancel()

	var firstErr error
	for _, c := range conns {
		if err := c.client.CancelConnection(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := s.dev.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		s.logger.WithError(firstErr).Warn("BLE session closed with errors")
	} else {
		s.logger.Info("BLE session closed")
	}
	return firstErr
}
