// Package goble implements the transport boundary on top of go-ble/ble.
// One Central produces one radio session at a time; every asynchronous
// result is delivered to the coordinator through its EventSink from
// dedicated goroutines, never from within a Session method call.
package goble

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/bleio/transport"
)

const (
	// DefaultConnectTimeout bounds a single dial attempt.
	DefaultConnectTimeout = 30 * time.Second

	// defaultWriteChunkSize is the maximum bytes per write operation.
	// BLE 4.0/4.1 ATT_MTU of 23 bytes leaves 20 bytes of payload;
	// chunking at 20 keeps writes compatible with all BLE versions.
	defaultWriteChunkSize = 20

	// defaultWriteDelay spaces consecutive write chunks so the
	// peripheral's receive buffer is not overwhelmed.
	defaultWriteDelay = 10 * time.Millisecond
)

// DeviceFactory creates ble.Device instances (overridable in tests).
var DeviceFactory = func() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("Bluetooth is turned off - please enable Bluetooth and retry")
			}
			return nil, fmt.Errorf("Bluetooth is not ready - %w", err)
		}
		return nil, err
	}
	return dev, nil
}

// Central creates go-ble backed radio sessions.
type Central struct {
	logger         *logrus.Logger
	connectTimeout time.Duration
}

// NewCentral returns a Central. A zero connectTimeout uses
// DefaultConnectTimeout.
func NewCentral(logger *logrus.Logger, connectTimeout time.Duration) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout == 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Central{logger: logger, connectTimeout: connectTimeout}
}

// OpenSession creates a fresh radio session delivering events to sink.
func (c *Central) OpenSession(sink transport.EventSink) (transport.Session, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	s := newSession(dev, sink, c.logger, c.connectTimeout)

	// go-ble exposes no power-state change stream; a session that opened
	// successfully is ready for its lifetime. Report it off the calling
	// goroutine so the sink never re-enters the coordinator synchronously.
	go sink.ReadyChanged(true)

	return s, nil
}
