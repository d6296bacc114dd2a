package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"
)

const (
	// DefaultMinInterval is the minimum time between native location updates.
	DefaultMinInterval = 1000 * time.Millisecond

	// DefaultMinDistance is the minimum movement, in meters, between native location updates.
	DefaultMinDistance = 1.0
)

// Native status types
const (
	StatusProviderEnabled  = "provider-enabled"
	StatusProviderDisabled = "provider-disabled"
)

// Reading is a location event from a native service. A field is nil when
// the platform did not report it.
type Reading struct {
	Latitude  *float64
	Longitude *float64
}

// Status is a status event from a native service.
type Status struct {
	Type    string
	Message string
}

// NativeService is the platform location capability consumed by NativeSensorProvider.
type NativeService interface {
	Configure(onLocation func(Reading), onStatus func(Status))
	Start(minInterval time.Duration, minDistance float64) error
	Stop() error
}

type subscriptionState int

const (
	subscriptionIdle subscriptionState = iota
	subscriptionStarting
	subscriptionActive
	subscriptionStopping
)

type nativeOutcome struct {
	coord Coordinate
	err   error
}

// nativeListener receives at most one outcome.
type nativeListener struct {
	id   string
	once sync.Once
	ch   chan nativeOutcome
}

func (l *nativeListener) deliver(out nativeOutcome) {
	l.once.Do(func() {
		l.ch <- out
	})
}

// NativeSensorProvider resolves the location through the device location service.
// It owns at most one native subscription; concurrent Locate calls attach to it
// as listeners and every native event is terminal for all attached listeners.
type NativeSensorProvider struct {
	native      NativeService
	minInterval time.Duration
	minDistance float64
	logger      zerolog.Logger

	listeners cmap.ConcurrentMap[string, *nativeListener]
	mu        sync.Mutex
	state     subscriptionState
}

// NewNativeSensorProvider creates a provider backed by the given native service.
func NewNativeSensorProvider(native NativeService, minInterval time.Duration, minDistance float64, logger zerolog.Logger) *NativeSensorProvider {
	return &NativeSensorProvider{
		native:      native,
		minInterval: minInterval,
		minDistance: minDistance,
		logger:      logger,
		listeners:   cmap.New[*nativeListener](),
	}
}

// Name returns the provider name.
func (p *NativeSensorProvider) Name() string {
	return "native"
}

// Locate waits for the next native event. If the platform never reports
// anything, Locate only returns when ctx is done.
func (p *NativeSensorProvider) Locate(ctx context.Context) (Fix, error) {
	l := &nativeListener{
		id: uuid.NewString(),
		ch: make(chan nativeOutcome, 1),
	}
	p.attach(l)

	select {
	case out := <-l.ch:
		if out.err != nil {
			return Fix{}, out.err
		}
		return Fix{Coordinate: out.coord, Source: p.Name()}, nil
	case <-ctx.Done():
		p.listeners.Remove(l.id)
		p.stopIfIdle()
		return Fix{}, ctx.Err()
	}
}

// attach registers the listener and starts the native subscription if none is running.
// A listener that arrives while a stop is in flight is picked up once Stop returns.
func (p *NativeSensorProvider) attach(l *nativeListener) {
	p.mu.Lock()
	p.listeners.Set(l.id, l)
	if p.state != subscriptionIdle {
		p.mu.Unlock()
		p.logger.Debug().Str("listener", l.id).Msg("Attached to native location subscription")
		return
	}
	p.state = subscriptionStarting
	p.mu.Unlock()

	p.start()
}

// start configures and starts the native service. The caller has moved the
// state to subscriptionStarting.
func (p *NativeSensorProvider) start() {
	p.logger.Info().
		Dur("min_interval", p.minInterval).
		Float64("min_distance_m", p.minDistance).
		Msg("Requesting native location")

	// Start may report events synchronously, so no lock is held here
	p.native.Configure(p.handleLocation, p.handleStatus)
	err := p.native.Start(p.minInterval, p.minDistance)

	p.mu.Lock()
	if err != nil {
		p.state = subscriptionIdle
		pending := p.drain()
		p.mu.Unlock()

		p.logger.Error().Err(err).Msg("Native location unavailable")
		failure := nativeOutcome{err: fmt.Errorf("%w: %w", ErrNativeUnsupported, err)}
		for _, pl := range pending {
			pl.deliver(failure)
		}
		return
	}
	p.state = subscriptionActive
	p.mu.Unlock()

	p.stopIfIdle()
}

// handleLocation is the onLocation callback registered with the native service.
func (p *NativeSensorProvider) handleLocation(r Reading) {
	if r.Latitude == nil || r.Longitude == nil {
		p.logger.Warn().Msg("Native location data incomplete")
		p.complete(nativeOutcome{err: fmt.Errorf("%w: latitude or longitude missing", ErrNativeMalformedPayload)})
		return
	}

	coord := Coordinate{Latitude: *r.Latitude, Longitude: *r.Longitude}
	if !coord.Valid() {
		p.logger.Warn().
			Float64("latitude", coord.Latitude).
			Float64("longitude", coord.Longitude).
			Msg("Native location out of range")
		p.complete(nativeOutcome{err: fmt.Errorf("%w: coordinate out of range", ErrNativeMalformedPayload)})
		return
	}

	p.logger.Info().
		Float64("latitude", coord.Latitude).
		Float64("longitude", coord.Longitude).
		Msg("Native location found")
	p.complete(nativeOutcome{coord: coord})
}

// handleStatus is the onStatus callback registered with the native service.
func (p *NativeSensorProvider) handleStatus(s Status) {
	p.logger.Info().Str("type", s.Type).Str("status", s.Message).Msg("Native location status")
	if s.Type == StatusProviderDisabled {
		p.complete(nativeOutcome{err: fmt.Errorf("%w: %s", ErrNativeDisabled, s.Message)})
	}
}

// complete delivers the outcome to every attached listener.
func (p *NativeSensorProvider) complete(out nativeOutcome) {
	delivered := 0
	for _, id := range p.listeners.Keys() {
		if l, ok := p.listeners.Pop(id); ok {
			l.deliver(out)
			delivered++
		}
	}
	if delivered == 0 {
		p.logger.Debug().Msg("Ignoring native event without listeners")
	}
	p.stopIfIdle()
}

// drain removes and returns all listeners. Callers hold p.mu.
func (p *NativeSensorProvider) drain() []*nativeListener {
	var pending []*nativeListener
	for _, id := range p.listeners.Keys() {
		if l, ok := p.listeners.Pop(id); ok {
			pending = append(pending, l)
		}
	}
	return pending
}

// stopIfIdle stops the native subscription once nobody is listening. The state
// stays subscriptionStopping until Stop returns; listeners that attached in the
// meantime get a fresh subscription.
func (p *NativeSensorProvider) stopIfIdle() {
	p.mu.Lock()
	if p.state != subscriptionActive || !p.listeners.IsEmpty() {
		p.mu.Unlock()
		return
	}
	p.state = subscriptionStopping
	p.mu.Unlock()

	if err := p.native.Stop(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to stop native location updates")
	} else {
		p.logger.Debug().Msg("Native location updates stopped")
	}

	p.mu.Lock()
	if p.listeners.IsEmpty() {
		p.state = subscriptionIdle
		p.mu.Unlock()
		return
	}
	p.state = subscriptionStarting
	p.mu.Unlock()

	p.logger.Debug().Int("listeners", p.listeners.Count()).Msg("Restarting native location for waiting listeners")
	p.start()
}
