package testutils

import (
	"sync"

	"github.com/srg/bleio/transport"
)

// MockCentral implements transport.Central with scripted sessions.
type MockCentral struct {
	mu sync.Mutex

	// Ready is the initial readiness of sessions opened by this central.
	Ready bool
	// OpenErr, when set, fails OpenSession.
	OpenErr error

	sessions []*MockSession
}

// NewMockCentral creates a central whose sessions start ready.
func NewMockCentral() *MockCentral {
	return &MockCentral{Ready: true}
}

func (m *MockCentral) OpenSession(sink transport.EventSink) (transport.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	s := &MockSession{
		Sink:  sink,
		ready: m.Ready,
		Known: make(map[string]transport.Device),
	}
	m.sessions = append(m.sessions, s)
	return s, nil
}

// Session returns the most recently opened session, or nil.
func (m *MockCentral) Session() *MockSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sessions) == 0 {
		return nil
	}
	return m.sessions[len(m.sessions)-1]
}

// SessionCount returns how many sessions have been opened.
func (m *MockCentral) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// NotifyRequest records one SetNotification call.
type NotifyRequest struct {
	CharID  string
	Enabled bool
}

// DiscoverRequest records one service/characteristic discovery call.
type DiscoverRequest struct {
	TargetID string // device ID for services, service ID for characteristics
	Filter   []string
}

// WriteRequest records one WriteValue call.
type WriteRequest struct {
	CharID       string
	Data         []byte
	WithResponse bool
}

// MockSession implements transport.Session, recording every request so
// tests can assert on what the coordinator asked of the radio. Tests
// drive inbound events by calling methods on Sink directly.
type MockSession struct {
	Sink transport.EventSink

	// Scripted failures.
	BeginScanErr error
	EndScanErr   error
	ConnectErr   error

	// Known resolves identifiers for KnownDevices.
	Known map[string]transport.Device

	mu sync.Mutex

	ready  bool
	closed bool

	beginScanCalls int
	endScanCalls   int

	connectRequests  []string
	cancelRequests   []string
	serviceRequests  []DiscoverRequest
	charRequests     []DiscoverRequest
	notifyRequests   []NotifyRequest
	readRequests     []string
	writeRequests    []WriteRequest
	lastScanFilter   []string
}

func (s *MockSession) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready && !s.closed
}

// SetReady changes the scripted readiness without emitting an event.
func (s *MockSession) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *MockSession) BeginScan(serviceFilter []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.BeginScanErr != nil {
		return s.BeginScanErr
	}
	s.beginScanCalls++
	s.lastScanFilter = serviceFilter
	return nil
}

func (s *MockSession) EndScan() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndScanErr != nil {
		return s.EndScanErr
	}
	s.endScanCalls++
	return nil
}

func (s *MockSession) Connect(dev transport.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.connectRequests = append(s.connectRequests, dev.ID())
	return nil
}

func (s *MockSession) CancelConnection(dev transport.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelRequests = append(s.cancelRequests, dev.ID())
	return nil
}

func (s *MockSession) KnownDevices(ids []string) []transport.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	devices := make([]transport.Device, 0, len(ids))
	for _, id := range ids {
		if dev, ok := s.Known[id]; ok {
			devices = append(devices, dev)
		}
	}
	return devices
}

func (s *MockSession) DiscoverServices(dev transport.Device, idFilter []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serviceRequests = append(s.serviceRequests, DiscoverRequest{TargetID: dev.ID(), Filter: idFilter})
	return nil
}

func (s *MockSession) DiscoverCharacteristics(svc transport.Service, idFilter []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.charRequests = append(s.charRequests, DiscoverRequest{TargetID: svc.ID(), Filter: idFilter})
	return nil
}

func (s *MockSession) SetNotification(ch transport.Characteristic, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifyRequests = append(s.notifyRequests, NotifyRequest{CharID: ch.ID(), Enabled: enabled})
	return nil
}

func (s *MockSession) ReadValue(ch transport.Characteristic) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readRequests = append(s.readRequests, ch.ID())
	return nil
}

func (s *MockSession) WriteValue(ch transport.Characteristic, data []byte, withResponse bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	payload := make([]byte, len(data))
	copy(payload, data)
	s.writeRequests = append(s.writeRequests, WriteRequest{CharID: ch.ID(), Data: payload, WithResponse: withResponse})
	return nil
}

func (s *MockSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (s *MockSession) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *MockSession) BeginScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginScanCalls
}

func (s *MockSession) EndScanCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endScanCalls
}

func (s *MockSession) ConnectRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.connectRequests...)
}

func (s *MockSession) CancelRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cancelRequests...)
}

func (s *MockSession) ServiceRequests() []DiscoverRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DiscoverRequest(nil), s.serviceRequests...)
}

func (s *MockSession) CharRequests() []DiscoverRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DiscoverRequest(nil), s.charRequests...)
}

func (s *MockSession) NotifyRequests() []NotifyRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotifyRequest(nil), s.notifyRequests...)
}

func (s *MockSession) ReadRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.readRequests...)
}

func (s *MockSession) WriteRequests() []WriteRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]WriteRequest(nil), s.writeRequests...)
}

func (s *MockSession) LastScanFilter() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lastScanFilter...)
}
