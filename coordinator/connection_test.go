package coordinator_test

import (
	"errors"
	"testing"

	suitelib "github.com/stretchr/testify/suite"

	"github.com/srg/bleio/coordinator"
	"github.com/srg/bleio/internal/testutils"
	"github.com/srg/bleio/transport"
)

type ConnectionSuite struct {
	CoordinatorSuite

	results        chan coordinator.ConnectionResult
	disconnections chan coordinator.Disconnection
}

func TestConnectionSuite(t *testing.T) {
	suitelib.Run(t, new(ConnectionSuite))
}

func (suite *ConnectionSuite) SetupTest() {
	suite.CoordinatorSuite.SetupTest()

	suite.results = make(chan coordinator.ConnectionResult, 16)
	suite.disconnections = make(chan coordinator.Disconnection, 16)
	suite.coord.SetConnectionCallback(func(res coordinator.ConnectionResult) {
		suite.results <- res
	})
	suite.coord.SetDisconnectionCallback(func(d coordinator.Disconnection) {
		suite.disconnections <- d
	})
}

func (suite *ConnectionSuite) TestConnectRequiresSession() {
	dev := testutils.NewFakeDevice("dev-1", "Sensor")
	suite.ErrorIs(suite.coord.Connect([]transport.Device{dev}, nil), coordinator.ErrNoSession)
}

func (suite *ConnectionSuite) TestConnectRoundTrip() {
	suite.start()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")

	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	suite.Equal([]string{"dev-1"}, suite.session().ConnectRequests())

	suite.session().Sink.Connected(dev)

	res := recv(suite.T(), suite.results)
	suite.NoError(res.Err)
	suite.Equal("dev-1", res.Device.ID())
	suite.Equal([]string{"dev-1"}, connectedDeviceIDs(suite.coord.ConnectedDevices()))
}

func (suite *ConnectionSuite) TestConnectResultsArriveInAnyOrder() {
	suite.start()
	devA := testutils.NewFakeDevice("dev-a", "A")
	devB := testutils.NewFakeDevice("dev-b", "B")

	suite.Require().NoError(suite.coord.Connect([]transport.Device{devA, devB}, nil))

	// The transport resolves B before A.
	suite.session().Sink.Connected(devB)
	suite.session().Sink.Connected(devA)

	suite.Equal("dev-b", recv(suite.T(), suite.results).Device.ID())
	suite.Equal("dev-a", recv(suite.T(), suite.results).Device.ID())
	suite.ElementsMatch([]string{"dev-a", "dev-b"}, connectedDeviceIDs(suite.coord.ConnectedDevices()))
}

func (suite *ConnectionSuite) TestSynchronousConnectErrorReportedAsResult() {
	suite.start()
	suite.session().ConnectErr = errors.New("radio off")
	dev := testutils.NewFakeDevice("dev-1", "Sensor")

	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))

	res := recv(suite.T(), suite.results)
	var cf *coordinator.ConnectionFailedError
	suite.Require().ErrorAs(res.Err, &cf)
	suite.Equal("dev-1", cf.DeviceID)
	suite.Empty(suite.coord.ConnectedDevices())
}

func (suite *ConnectionSuite) TestAsynchronousConnectFailure() {
	suite.start()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")

	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	suite.session().Sink.ConnectFailed(dev, errors.New("connection timed out"))

	res := recv(suite.T(), suite.results)
	var cf *coordinator.ConnectionFailedError
	suite.Require().ErrorAs(res.Err, &cf)
	suite.Equal("dev-1", cf.DeviceID)
	suite.ErrorContains(cf, "connection timed out")
}

func (suite *ConnectionSuite) TestReconnectResolutions() {
	suite.start()
	sess := suite.session()
	known := testutils.NewFakeDevice("dev-1", "Sensor")
	sess.Known["dev-1"] = known

	resolutions, err := suite.coord.Reconnect([]string{"dev-1", "dev-missing"}, nil)
	suite.Require().NoError(err)

	suite.Require().Len(resolutions, 2)
	suite.Equal("dev-1", resolutions[0].ID)
	suite.True(resolutions[0].Resolved())
	suite.Equal("dev-missing", resolutions[1].ID)
	suite.False(resolutions[1].Resolved())

	// Only the resolved identifier produced a connect request.
	suite.Equal([]string{"dev-1"}, sess.ConnectRequests())

	sess.Sink.Connected(known)
	suite.NoError(recv(suite.T(), suite.results).Err)
}

func (suite *ConnectionSuite) TestDisconnectCancelsConnection() {
	suite.start()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")
	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	suite.session().Sink.Connected(dev)
	recv(suite.T(), suite.results)

	suite.Require().NoError(suite.coord.Disconnect([]transport.Device{dev}))
	suite.Equal([]string{"dev-1"}, suite.session().CancelRequests())

	suite.session().Sink.Disconnected(dev, nil)
	d := recv(suite.T(), suite.disconnections)
	suite.Equal("dev-1", d.Device.ID())
	suite.NoError(d.Err)
	suite.Empty(suite.coord.ConnectedDevices())
}

func (suite *ConnectionSuite) TestDisconnectDisablesNotificationsFirst() {
	suite.start()
	sess := suite.session()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")
	svc := testutils.NewFakeService("180f", "dev-1")
	notifying := testutils.NewFakeCharacteristic("2a19", "180f")
	readOnly := testutils.NewFakeCharacteristic("2a20", "180f")
	readOnly.Props = transport.PropertyRead

	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	sess.Sink.Connected(dev)
	recv(suite.T(), suite.results)

	// Populate the characteristic cache through the discovery flow.
	suite.Require().NoError(suite.coord.DiscoverServices(dev, nil, nil))
	sess.Sink.ServicesDiscovered(dev, []transport.Service{svc}, nil)
	suite.Require().NoError(suite.coord.DiscoverCharacteristics(svc, nil, nil))
	sess.Sink.CharacteristicsDiscovered(svc, []transport.Characteristic{notifying, readOnly}, nil)

	suite.Require().NoError(suite.coord.Disconnect([]transport.Device{dev}))

	notifies := sess.NotifyRequests()
	suite.Require().Len(notifies, 1, "only the notify-capable characteristic is unsubscribed")
	suite.Equal("2a19", notifies[0].CharID)
	suite.False(notifies[0].Enabled)
	suite.Equal([]string{"dev-1"}, sess.CancelRequests())
}

func (suite *ConnectionSuite) TestDuplicateDisconnectionIgnored() {
	suite.start()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")
	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	suite.session().Sink.Connected(dev)
	recv(suite.T(), suite.results)

	suite.session().Sink.Disconnected(dev, nil)
	suite.session().Sink.Disconnected(dev, nil)

	recv(suite.T(), suite.disconnections)
	expectNone(suite.T(), suite.disconnections)
}

func (suite *ConnectionSuite) TestDisconnectionForUnknownDeviceIgnored() {
	suite.start()

	suite.session().Sink.Disconnected(testutils.NewFakeDevice("dev-9", "Ghost"), nil)
	expectNone(suite.T(), suite.disconnections)
}

func (suite *ConnectionSuite) TestUnexpectedDisconnectionCarriesReason() {
	suite.start()
	dev := testutils.NewFakeDevice("dev-1", "Sensor")
	suite.Require().NoError(suite.coord.Connect([]transport.Device{dev}, nil))
	suite.session().Sink.Connected(dev)
	recv(suite.T(), suite.results)

	cause := errors.New("link supervision timeout")
	suite.session().Sink.Disconnected(dev, cause)

	d := recv(suite.T(), suite.disconnections)
	suite.ErrorIs(d.Err, cause)
}
