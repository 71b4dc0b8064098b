package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func recvEvent(t *testing.T, ch chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for bus event")
	}
	return Event{}
}

func TestSubscriberReceivesMatchingKind(t *testing.T) {
	bus := New(0)
	defer bus.Shutdown()

	sub := bus.Subscribe(KindDeviceFound)
	bus.Publish(Event{Kind: KindDeviceFound, SessionID: "s1", DeviceID: "dev-1"})

	ev := recvEvent(t, sub)
	assert.Equal(t, KindDeviceFound, ev.Kind)
	assert.Equal(t, "dev-1", ev.DeviceID)
	assert.False(t, ev.At.IsZero(), "publish stamps the event time")
}

func TestSubscriberDoesNotReceiveOtherKinds(t *testing.T) {
	bus := New(0)
	defer bus.Shutdown()

	sub := bus.Subscribe(KindScanStarted)
	bus.Publish(Event{Kind: KindDeviceFound, DeviceID: "dev-1"})
	bus.Publish(Event{Kind: KindScanStarted, SessionID: "s1"})

	ev := recvEvent(t, sub)
	assert.Equal(t, KindScanStarted, ev.Kind)
}

func TestMultipleKindsPerSubscription(t *testing.T) {
	bus := New(0)
	defer bus.Shutdown()

	sub := bus.Subscribe(KindSessionStarted, KindSessionStopped)
	bus.Publish(Event{Kind: KindSessionStarted, SessionID: "s1"})
	bus.Publish(Event{Kind: KindSessionStopped, SessionID: "s1"})

	assert.Equal(t, KindSessionStarted, recvEvent(t, sub).Kind)
	assert.Equal(t, KindSessionStopped, recvEvent(t, sub).Kind)
}

func TestSlowSubscriberDoesNotBlockPublisher(t *testing.T) {
	bus := New(1)
	defer bus.Shutdown()

	sub := bus.Subscribe(KindDeviceFound)

	// Nobody is reading; the publisher must not stall.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Kind: KindDeviceFound})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The buffered event is still deliverable.
	assert.Equal(t, KindDeviceFound, recvEvent(t, sub).Kind)
}

func TestPreservesExplicitTimestamp(t *testing.T) {
	bus := New(0)
	defer bus.Shutdown()

	sub := bus.Subscribe(KindReadiness)
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	bus.Publish(Event{Kind: KindReadiness, Ready: true, At: at})

	ev := recvEvent(t, sub)
	assert.True(t, ev.Ready)
	assert.Equal(t, at, ev.At)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "readiness", KindReadiness.String())
	assert.Equal(t, "device_found", KindDeviceFound.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
