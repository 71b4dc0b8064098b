package coordinator_test

import (
	"testing"
	"time"

	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/bleio/coordinator"
	"github.com/srg/bleio/internal/testutils"
	"github.com/srg/bleio/transport"
)

const callbackTimeout = 2 * time.Second

// CoordinatorSuite wires a coordinator to a scripted transport. Tests
// drive inbound events through the mock session's sink and observe host
// callbacks through channels.
type CoordinatorSuite struct {
	suitelib.Suite

	helper  *testutils.TestHelper
	central *testutils.MockCentral
	coord   *coordinator.Coordinator
}

func (suite *CoordinatorSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.central = testutils.NewMockCentral()
	suite.coord = coordinator.New(suite.central, &coordinator.Options{
		Logger: suite.helper.Logger,
	})
}

func (suite *CoordinatorSuite) TearDownTest() {
	_ = suite.coord.Stop()
}

// session returns the most recently opened mock session.
func (suite *CoordinatorSuite) session() *testutils.MockSession {
	sess := suite.central.Session()
	suite.Require().NotNil(sess, "no transport session has been opened")
	return sess
}

// start opens a session and waits for the initial readiness callback so
// the delivery queue is known to be running.
func (suite *CoordinatorSuite) start() {
	readiness := make(chan bool, 1)
	suite.Require().NoError(suite.coord.Start(func(ready bool) {
		readiness <- ready
	}))
	suite.True(recv(suite.T(), readiness))
}

// recv receives one value from ch or fails the test after a timeout.
func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(callbackTimeout):
		t.Fatal("timed out waiting for host callback")
	}
	var zero T
	return zero
}

// expectNone asserts that no value arrives on ch within a short window.
func expectNone[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case <-ch:
		t.Fatal("received unexpected host callback")
	case <-time.After(100 * time.Millisecond):
	}
}

func advertisement(name string, serviceIDs ...string) *testutils.FakeAdvertisement {
	return testutils.NewAdvertisementBuilder().
		WithName(name).
		WithServices(serviceIDs...).
		Build()
}

// connectedDeviceIDs extracts IDs from a connected-set snapshot.
func connectedDeviceIDs(devices []transport.Device) []string {
	ids := make([]string, 0, len(devices))
	for _, dev := range devices {
		ids = append(ids, dev.ID())
	}
	return ids
}
