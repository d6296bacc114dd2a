package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/freevia/locator/internal/mocks"
	"github.com/freevia/locator/internal/models"
	"github.com/freevia/locator/internal/services"
	"github.com/freevia/locator/pkg/location"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	requestTopic = "freevia/location/request"
	reportTopic  = "freevia/location/report"
)

// stubProvider answers every Locate call with the same outcome, or blocks
// until ctx is done when block is set.
type stubProvider struct {
	fix   location.Fix
	err   error
	block bool
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Locate(ctx context.Context) (location.Fix, error) {
	if s.block {
		<-ctx.Done()
		return location.Fix{}, ctx.Err()
	}
	return s.fix, s.err
}

type serviceFixture struct {
	service      *services.LocationService
	mqttClient   *mocks.MockMQTTClient
	installation *mocks.MockInstallationInfo
	handler      chan mqttLib.MessageHandler
	published    chan []byte
}

func newServiceFixture(t *testing.T, provider location.Provider, interval time.Duration) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		mqttClient:   new(mocks.MockMQTTClient),
		installation: new(mocks.MockInstallationInfo),
		handler:      make(chan mqttLib.MessageHandler, 1),
		published:    make(chan []byte, 16),
	}

	f.installation.On("GetInstallationID").Return("installation-1").Maybe()
	f.mqttClient.On("Subscribe", requestTopic, byte(1), mock.Anything).
		Run(func(args mock.Arguments) {
			f.handler <- args.Get(2).(mqttLib.MessageHandler)
		}).
		Return(mocks.CompletedToken(nil)).Maybe()
	f.mqttClient.On("Unsubscribe", []string{requestTopic}).Return(mocks.CompletedToken(nil)).Maybe()
	f.mqttClient.On("Publish", reportTopic, byte(1), false, mock.Anything).
		Run(func(args mock.Arguments) {
			f.published <- args.Get(3).([]byte)
		}).
		Return(mocks.CompletedToken(nil)).Maybe()

	resolver := location.NewResolver(location.DetectPlatform("linux"), nil, provider, zerolog.Nop())
	f.service = services.NewLocationService(requestTopic, reportTopic, interval, 1, time.Second,
		f.installation, f.mqttClient, resolver, zerolog.Nop())
	return f
}

func (f *serviceFixture) send(t *testing.T, payload string) {
	t.Helper()
	select {
	case handler := <-f.handler:
		handler(nil, mocks.NewMockMessage(requestTopic, []byte(payload)))
		f.handler <- handler
	case <-time.After(time.Second):
		t.Fatal("service did not subscribe")
	}
}

func (f *serviceFixture) nextReport(t *testing.T) models.LocationReport {
	t.Helper()
	select {
	case payload := <-f.published:
		var report models.LocationReport
		require.NoError(t, json.Unmarshal(payload, &report))
		return report
	case <-time.After(2 * time.Second):
		t.Fatal("no location report published")
		return models.LocationReport{}
	}
}

// TestLocationService_StartStop tests the lifecycle guards of the LocationService.
func TestLocationService_StartStop(t *testing.T) {
	// Setup
	f := newServiceFixture(t, &stubProvider{}, 0)

	// Execute
	err := f.service.Start()

	// Assert
	assert.NoError(t, err)

	// Try to start again (should fail)
	err = f.service.Start()
	assert.EqualError(t, err, "location service is already running")

	assert.NoError(t, f.service.Stop())

	// Try to stop again (should fail)
	err = f.service.Stop()
	assert.EqualError(t, err, "location service is not running")

	f.mqttClient.AssertCalled(t, "Subscribe", requestTopic, byte(1), mock.Anything)
	f.mqttClient.AssertCalled(t, "Unsubscribe", []string{requestTopic})
}

// TestLocationService_Start_SubscribeFailure tests that a failed subscription is reported.
func TestLocationService_Start_SubscribeFailure(t *testing.T) {
	// Setup
	mqttClient := new(mocks.MockMQTTClient)
	mqttClient.On("Subscribe", requestTopic, byte(1), mock.Anything).Return(mocks.CompletedToken(errors.New("not authorized")))
	resolver := location.NewResolver(location.DetectPlatform("linux"), nil, &stubProvider{}, zerolog.Nop())
	s := services.NewLocationService(requestTopic, reportTopic, 0, 1, time.Second,
		new(mocks.MockInstallationInfo), mqttClient, resolver, zerolog.Nop())

	// Execute
	err := s.Start()

	// Assert
	assert.EqualError(t, err, "not authorized")
	assert.EqualError(t, s.Stop(), "location service is not running")
}

// TestLocationService_PublishesFoundReport tests a request answered with a coordinate.
func TestLocationService_PublishesFoundReport(t *testing.T) {
	// Setup
	provider := &stubProvider{fix: location.Fix{
		Coordinate: location.Coordinate{Latitude: 41.0082, Longitude: 28.9784},
		Source:     "ipinfo",
	}}
	f := newServiceFixture(t, provider, 0)
	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute
	f.send(t, `{"request_id":"req-42"}`)
	report := f.nextReport(t)

	// Assert
	assert.Equal(t, "req-42", report.RequestID)
	assert.Equal(t, "installation-1", report.InstallationID)
	assert.True(t, report.Found)
	require.NotNil(t, report.Latitude)
	require.NotNil(t, report.Longitude)
	assert.Equal(t, 41.0082, *report.Latitude)
	assert.Equal(t, 28.9784, *report.Longitude)
	assert.Equal(t, "ipinfo", report.Source)
	assert.Empty(t, report.Reason)
}

// TestLocationService_PublishesUnavailableReport tests a request that cannot be resolved.
func TestLocationService_PublishesUnavailableReport(t *testing.T) {
	// Setup
	provider := &stubProvider{err: errors.Join(location.ErrAllProvidersExhausted, location.ErrProviderTransport)}
	f := newServiceFixture(t, provider, 0)
	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	// Execute
	f.send(t, "")
	report := f.nextReport(t)

	// Assert
	_, err := uuid.Parse(report.RequestID)
	assert.NoError(t, err)
	assert.False(t, report.Found)
	assert.Nil(t, report.Latitude)
	assert.Nil(t, report.Longitude)
	assert.Equal(t, string(location.ReasonAllProvidersExhausted), report.Reason)
}

// TestLocationService_DiscardsMalformedRequest tests that invalid JSON is not answered.
func TestLocationService_DiscardsMalformedRequest(t *testing.T) {
	f := newServiceFixture(t, &stubProvider{}, 0)
	require.NoError(t, f.service.Start())
	defer f.service.Stop()

	f.send(t, `{"request_id":`)

	assert.Never(t, func() bool { return len(f.published) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

// TestLocationService_PeriodicReports tests unsolicited reports on the configured interval.
func TestLocationService_PeriodicReports(t *testing.T) {
	provider := &stubProvider{fix: location.Fix{Coordinate: location.Coordinate{Latitude: 1, Longitude: 2}, Source: "ipapi"}}
	f := newServiceFixture(t, provider, 20*time.Millisecond)
	require.NoError(t, f.service.Start())

	first := f.nextReport(t)
	second := f.nextReport(t)
	require.NoError(t, f.service.Stop())

	assert.True(t, first.Found)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

// TestLocationService_StopCancelsPendingRequests tests that Stop does not wait for slow providers.
func TestLocationService_StopCancelsPendingRequests(t *testing.T) {
	// Setup
	f := newServiceFixture(t, &stubProvider{block: true}, 0)
	require.NoError(t, f.service.Start())
	f.send(t, `{"request_id":"slow"}`)

	// Execute
	done := make(chan error, 1)
	go func() { done <- f.service.Stop() }()

	// Assert
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Empty(t, f.published)
	f.mqttClient.AssertNotCalled(t, "Publish", reportTopic, byte(1), false, mock.Anything)
}
