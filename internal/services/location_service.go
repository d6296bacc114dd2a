package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/freevia/locator/internal/models"
	"github.com/freevia/locator/pkg/identity"
	"github.com/freevia/locator/pkg/location"
	"github.com/freevia/locator/pkg/mqtt"
	mqttLib "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

// LocationResolver starts asynchronous location resolutions.
type LocationResolver interface {
	ResolveResult(ctx context.Context, onResult func(location.Result)) *location.Task
}

// LocationService answers location requests received over MQTT and publishes
// the outcome as a LocationReport.
type LocationService struct {
	// Configuration fields
	requestTopic string
	reportTopic  string
	interval     time.Duration
	qos          int
	ackTimeout   time.Duration

	// Dependencies
	installation identity.InstallationInfoInterface
	mqttClient   mqtt.MQTTClient
	resolver     LocationResolver
	logger       zerolog.Logger

	// Internal state management
	pending cmap.ConcurrentMap[string, time.Time]
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewLocationService creates a new LocationService instance with the provided configuration.
func NewLocationService(requestTopic, reportTopic string, interval time.Duration, qos int, ackTimeout time.Duration,
	installation identity.InstallationInfoInterface, mqttClient mqtt.MQTTClient, resolver LocationResolver,
	logger zerolog.Logger) *LocationService {
	return &LocationService{
		requestTopic: requestTopic,
		reportTopic:  reportTopic,
		interval:     interval,
		qos:          qos,
		ackTimeout:   ackTimeout,
		installation: installation,
		mqttClient:   mqttClient,
		resolver:     resolver,
		logger:       logger,
		pending:      cmap.New[time.Time](),
	}
}

// Start subscribes to the request topic and, with a positive interval,
// begins publishing unsolicited reports.
func (l *LocationService) Start() error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		l.logger.Warn().Msg("LocationService is already running")
		return errors.New("location service is already running")
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	l.running = true
	l.mu.Unlock()

	// Requests may arrive before the subscription is acknowledged, so the
	// lock is not held while waiting
	token := l.mqttClient.Subscribe(l.requestTopic, byte(l.qos), l.handleRequest)
	if err := mqtt.WaitToken(token, l.ackTimeout); err != nil {
		l.logger.Error().Err(err).Str("topic", l.requestTopic).Msg("Failed to subscribe to location requests")
		l.mu.Lock()
		l.running = false
		l.cancel()
		l.mu.Unlock()
		l.wg.Wait()
		return err
	}

	if l.interval > 0 {
		l.mu.Lock()
		if l.running {
			l.wg.Add(1)
			go l.publishPeriodically(l.ctx)
		}
		l.mu.Unlock()
	}

	l.logger.Info().
		Str("request_topic", l.requestTopic).
		Str("report_topic", l.reportTopic).
		Dur("interval", l.interval).
		Int("qos", l.qos).
		Msg("LocationService started")
	return nil
}

// Stop unsubscribes, cancels outstanding resolutions and waits for them to finish.
func (l *LocationService) Stop() error {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		l.logger.Warn().Msg("LocationService is not running")
		return errors.New("location service is not running")
	}
	l.running = false
	l.cancel()
	l.mu.Unlock()

	var stopErr error
	token := l.mqttClient.Unsubscribe(l.requestTopic)
	if err := mqtt.WaitToken(token, l.ackTimeout); err != nil {
		l.logger.Error().Err(err).Str("topic", l.requestTopic).Msg("Failed to unsubscribe from location requests")
		stopErr = err
	}

	if n := l.pending.Count(); n > 0 {
		l.logger.Info().Int("pending", n).Msg("Cancelling outstanding location requests")
	}
	l.wg.Wait()

	l.logger.Info().Msg("LocationService stopped")
	return stopErr
}

// handleRequest is the MQTT handler for the request topic.
func (l *LocationService) handleRequest(_ mqttLib.Client, msg mqttLib.Message) {
	var req models.LocationRequest
	if payload := msg.Payload(); len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			l.logger.Warn().Err(err).Str("topic", msg.Topic()).Msg("Discarding malformed location request")
			return
		}
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	l.request(req.RequestID)
}

func (l *LocationService) publishPeriodically(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.request(uuid.NewString())
		case <-ctx.Done():
			return
		}
	}
}

// request starts one resolution. Duplicate IDs of a pending request are ignored.
func (l *LocationService) request(requestID string) {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	if !l.pending.SetIfAbsent(requestID, time.Now()) {
		l.mu.Unlock()
		l.logger.Debug().Str("request_id", requestID).Msg("Location request already pending")
		return
	}
	l.wg.Add(1)
	ctx := l.ctx
	l.mu.Unlock()

	l.logger.Debug().Str("request_id", requestID).Msg("Resolving location")
	l.resolver.ResolveResult(ctx, func(res location.Result) {
		defer l.wg.Done()

		started, _ := l.pending.Pop(requestID)
		if ctx.Err() != nil {
			l.logger.Debug().Str("request_id", requestID).Msg("Location request cancelled")
			return
		}
		if err := l.publishReport(requestID, res); err != nil {
			return
		}
		l.logger.Info().
			Str("request_id", requestID).
			Bool("found", res.Found).
			Str("source", res.Source).
			Str("reason", string(res.Reason)).
			Dur("elapsed", time.Since(started)).
			Msg("Location report published")
	})
}

// publishReport serializes the result and publishes it to the report topic.
func (l *LocationService) publishReport(requestID string, res location.Result) error {
	report := models.LocationReport{
		RequestID:      requestID,
		InstallationID: l.installation.GetInstallationID(),
		Timestamp:      time.Now().UTC(),
		Found:          res.Found,
		Source:         res.Source,
		Reason:         string(res.Reason),
	}
	if c := res.CoordinateOrNil(); c != nil {
		report.Latitude = &c.Latitude
		report.Longitude = &c.Longitude
	}

	payload, err := json.Marshal(report)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to serialize location report")
		return err
	}

	token := l.mqttClient.Publish(l.reportTopic, byte(l.qos), false, payload)
	if err := mqtt.WaitToken(token, l.ackTimeout); err != nil {
		l.logger.Error().
			Err(err).
			Str("topic", l.reportTopic).
			Msg("Failed to publish location report")
		return err
	}
	return nil
}
