package coordinator

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced synchronously to callers of coordinator actions.
var (
	// ErrTransportNotReady is returned when an action needs the radio in a
	// ready state and it is not.
	ErrTransportNotReady = errors.New("transport not ready")

	// ErrAlreadyScanning is returned when a discovery session is requested
	// while one is already in flight. Stop the current session first.
	ErrAlreadyScanning = errors.New("discovery already in progress")

	// ErrSessionActive is returned by Start when a session already exists.
	ErrSessionActive = errors.New("session already active")

	// ErrNoSession is returned by actions that require Start to have been
	// called (or a lazy session to exist).
	ErrNoSession = errors.New("no active session")

	// ErrUnsupported marks reserved extension points with no defined
	// semantics yet.
	ErrUnsupported = errors.New("unsupported")
)

// ConnectionFailedError is the typed failure delivered through the
// connection-result callback when a connect attempt fails.
type ConnectionFailedError struct {
	DeviceID string
	Err      error
}

func (e *ConnectionFailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connection to device %q failed", e.DeviceID)
	}
	return fmt.Sprintf("connection to device %q failed: %v", e.DeviceID, e.Err)
}

func (e *ConnectionFailedError) Unwrap() error {
	return e.Err
}

// DiscoveryError is the typed failure delivered through a discovery
// callback when the transport reports a service or characteristic
// enumeration error.
type DiscoveryError struct {
	Stage    string // "services" or "characteristics"
	TargetID string // device ID for services, service ID for characteristics
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s discovery for %q failed: %v", e.Stage, e.TargetID, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match DiscoveryError values by stage.
func (e *DiscoveryError) Is(target error) bool {
	t, ok := target.(*DiscoveryError)
	if !ok {
		return false
	}
	return t.Stage == "" || t.Stage == e.Stage
}
