package coordinator_test

import (
	"errors"
	"testing"

	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/bleio/coordinator"
	"github.com/srg/bleio/internal/testutils"
	"github.com/srg/bleio/transport"
)

type ScanSuite struct {
	CoordinatorSuite
}

func TestScanSuite(t *testing.T) {
	suitelib.Run(t, new(ScanSuite))
}

// discover starts a discovery session and returns the channel receiving
// matched devices.
func (suite *ScanSuite) discover(filter coordinator.Filter) chan transport.Device {
	found := make(chan transport.Device, 16)
	suite.Require().NoError(suite.coord.DiscoverPeripherals(filter, func(dev transport.Device) {
		found <- dev
	}))
	return found
}

func (suite *ScanSuite) TestLazySessionCreation() {
	suite.Equal(0, suite.central.SessionCount())

	suite.discover(coordinator.Filter{})

	suite.Equal(1, suite.central.SessionCount())
	suite.NotEmpty(suite.coord.SessionID())
	suite.True(suite.coord.IsScanning())
}

func (suite *ScanSuite) TestTransportNotReady() {
	suite.central.Ready = false

	err := suite.coord.DiscoverPeripherals(coordinator.Filter{}, nil)
	suite.ErrorIs(err, coordinator.ErrTransportNotReady)
	suite.False(suite.coord.IsScanning())
}

func (suite *ScanSuite) TestAlreadyScanning() {
	suite.discover(coordinator.Filter{})

	err := suite.coord.DiscoverPeripherals(coordinator.Filter{}, nil)
	suite.ErrorIs(err, coordinator.ErrAlreadyScanning)
}

func (suite *ScanSuite) TestBeginScanFailure() {
	suite.start()
	suite.session().BeginScanErr = errors.New("radio busy")

	err := suite.coord.DiscoverPeripherals(coordinator.Filter{}, nil)
	suite.Error(err)
	suite.False(suite.coord.IsScanning())
}

func (suite *ScanSuite) TestServiceFilterPassedToTransport() {
	suite.discover(coordinator.Filter{ServiceIDs: []string{"180F", "180d"}})

	suite.Equal([]string{"180f", "180d"}, suite.session().LastScanFilter())
}

func (suite *ScanSuite) TestFilterMatching() {
	dev := testutils.NewFakeDevice("dev-1", "Sensor-A")

	tests := []struct {
		name    string
		filter  coordinator.Filter
		adv     *testutils.FakeAdvertisement
		matched bool
	}{
		{
			name:    "empty filter accepts everything",
			filter:  coordinator.Filter{},
			adv:     advertisement("Anything", "180f"),
			matched: true,
		},
		{
			name:    "name match",
			filter:  coordinator.Filter{Name: "Sensor-A"},
			adv:     advertisement("Sensor-A"),
			matched: true,
		},
		{
			name:    "name mismatch",
			filter:  coordinator.Filter{Name: "Sensor-A"},
			adv:     advertisement("Sensor-B"),
			matched: false,
		},
		{
			name:    "service intersection",
			filter:  coordinator.Filter{ServiceIDs: []string{"180F"}},
			adv:     advertisement("Unnamed", "1800", "180f"),
			matched: true,
		},
		{
			name:    "no service intersection",
			filter:  coordinator.Filter{ServiceIDs: []string{"180F"}},
			adv:     advertisement("Unnamed", "1801"),
			matched: false,
		},
		{
			name:    "name match wins even without service overlap",
			filter:  coordinator.Filter{Name: "Sensor-A", ServiceIDs: []string{"180F"}},
			adv:     advertisement("Sensor-A", "1801"),
			matched: true,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_ = suite.coord.Stop()
			suite.SetupTest()
			found := suite.discover(tt.filter)

			suite.session().Sink.DeviceObserved(dev, tt.adv)

			if tt.matched {
				suite.Equal("dev-1", recv(suite.T(), found).ID())
				suite.Len(suite.coord.MatchedDevices(), 1)
			} else {
				expectNone(suite.T(), found)
				suite.Empty(suite.coord.MatchedDevices())
			}
		})
	}
}

func (suite *ScanSuite) TestDuplicateAdvertisementsReportedOnce() {
	found := suite.discover(coordinator.Filter{Name: "Sensor-A"})
	dev := testutils.NewFakeDevice("dev-1", "Sensor-A")
	adv := advertisement("Sensor-A")

	suite.session().Sink.DeviceObserved(dev, adv)
	suite.session().Sink.DeviceObserved(dev, adv)
	suite.session().Sink.DeviceObserved(dev, adv)

	suite.Equal("dev-1", recv(suite.T(), found).ID())
	expectNone(suite.T(), found)
	suite.Len(suite.coord.MatchedDevices(), 1)
}

func (suite *ScanSuite) TestDeviceCapStopsScanOnce() {
	found := suite.discover(coordinator.Filter{MaxDevices: 2})
	sess := suite.session()

	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "A"), advertisement("A"))
	suite.Equal(0, sess.EndScanCalls())
	suite.True(suite.coord.IsScanning())

	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-2", "B"), advertisement("B"))
	suite.Equal(1, sess.EndScanCalls())
	suite.False(suite.coord.IsScanning())

	// Late advertisements after the cap neither match nor stop again.
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-3", "C"), advertisement("C"))
	suite.Equal(1, sess.EndScanCalls())

	suite.Equal("dev-1", recv(suite.T(), found).ID())
	suite.Equal("dev-2", recv(suite.T(), found).ID())
	expectNone(suite.T(), found)
	suite.Len(suite.coord.MatchedDevices(), 2)
}

func (suite *ScanSuite) TestSingleDeviceByName() {
	found := suite.discover(coordinator.Filter{Name: "Sensor-A", MaxDevices: 1})
	sess := suite.session()

	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-2", "Sensor-B"), advertisement("Sensor-B"))
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "Sensor-A"), advertisement("Sensor-A"))
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "Sensor-A"), advertisement("Sensor-A"))
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-3", "Sensor-C"), advertisement("Sensor-C"))

	suite.Equal("dev-1", recv(suite.T(), found).ID())
	expectNone(suite.T(), found)
	suite.Equal(1, sess.EndScanCalls())
	suite.False(suite.coord.IsScanning())
	suite.Len(suite.coord.MatchedDevices(), 1)
}

func (suite *ScanSuite) TestMatchedDevicesPreserveDiscoveryOrder() {
	suite.discover(coordinator.Filter{})
	sess := suite.session()

	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-3", "C"), advertisement("C"))
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "A"), advertisement("A"))
	sess.Sink.DeviceObserved(testutils.NewFakeDevice("dev-2", "B"), advertisement("B"))

	devices := suite.coord.MatchedDevices()
	suite.Require().Len(devices, 3)
	suite.Equal("dev-3", devices[0].ID())
	suite.Equal("dev-1", devices[1].ID())
	suite.Equal("dev-2", devices[2].ID())
}

func (suite *ScanSuite) TestStopDiscovery() {
	suite.discover(coordinator.Filter{})

	suite.Require().NoError(suite.coord.StopDiscovery())
	suite.False(suite.coord.IsScanning())
	suite.Equal(1, suite.session().EndScanCalls())

	// Stopping again is a no-op.
	suite.Require().NoError(suite.coord.StopDiscovery())
	suite.Equal(1, suite.session().EndScanCalls())
}

func (suite *ScanSuite) TestAdvertisementsIgnoredWhenNotScanning() {
	suite.start()

	suite.session().Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "A"), advertisement("A"))
	suite.Empty(suite.coord.MatchedDevices())
}

func (suite *ScanSuite) TestRestartResetsMatchedSet() {
	found := suite.discover(coordinator.Filter{})
	suite.session().Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "A"), advertisement("A"))
	recv(suite.T(), found)

	suite.Require().NoError(suite.coord.StopDiscovery())
	found = suite.discover(coordinator.Filter{})

	suite.Empty(suite.coord.MatchedDevices())

	// The same device matches again in the new discovery session.
	suite.session().Sink.DeviceObserved(testutils.NewFakeDevice("dev-1", "A"), advertisement("A"))
	suite.Equal("dev-1", recv(suite.T(), found).ID())
}
