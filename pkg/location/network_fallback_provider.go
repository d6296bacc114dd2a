package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultRequestTimeout bounds every single provider request.
	DefaultRequestTimeout = 10 * time.Second

	// DefaultUserAgent identifies the client to geolocation services.
	DefaultUserAgent = "FreeviaApp/1.0"

	maxResponseBytes = 64 << 10
)

// HTTPLookup resolves the caller's location by querying an IP-geolocation endpoint.
type HTTPLookup struct {
	endpoint  Endpoint
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewHTTPLookup creates a lookup for the given endpoint. A nil client gets a
// dedicated one bounded by timeout.
func NewHTTPLookup(endpoint Endpoint, client *http.Client, userAgent string, timeout time.Duration) *HTTPLookup {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPLookup{
		endpoint:  endpoint,
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
	}
}

// Name returns the endpoint name.
func (h *HTTPLookup) Name() string {
	return h.endpoint.Name
}

// Lookup issues a single GET against the endpoint and extracts the coordinate.
func (h *HTTPLookup) Lookup(ctx context.Context) (Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.endpoint.URL, nil)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: create request: %w", ErrProviderTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %w", ErrProviderTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return Coordinate{}, fmt.Errorf("%w: unexpected status %s", ErrProviderTransport, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: read body: %w", ErrProviderTransport, err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Coordinate{}, fmt.Errorf("%w: decode body: %v", ErrProviderMalformedResponse, err)
	}

	coord, err := h.endpoint.Extract(fields)
	if err != nil {
		return Coordinate{}, err
	}
	if !coord.Valid() {
		return Coordinate{}, fmt.Errorf("%w: coordinate out of range (%f, %f)",
			ErrProviderMalformedResponse, coord.Latitude, coord.Longitude)
	}
	return coord, nil
}

// NetworkFallbackProvider walks an ordered list of lookups and returns the
// first coordinate found. Lookups are never tried concurrently.
type NetworkFallbackProvider struct {
	lookups []Lookup
	logger  zerolog.Logger
}

// NewNetworkFallbackProvider creates a provider over the given lookups, tried in order.
func NewNetworkFallbackProvider(lookups []Lookup, logger zerolog.Logger) *NetworkFallbackProvider {
	return &NetworkFallbackProvider{
		lookups: lookups,
		logger:  logger,
	}
}

// NewDefaultNetworkFallbackProvider builds the four-service chain from DefaultEndpoints.
func NewDefaultNetworkFallbackProvider(client *http.Client, userAgent string, timeout time.Duration, logger zerolog.Logger) *NetworkFallbackProvider {
	endpoints := DefaultEndpoints()
	lookups := make([]Lookup, 0, len(endpoints))
	for _, endpoint := range endpoints {
		lookups = append(lookups, NewHTTPLookup(endpoint, client, userAgent, timeout))
	}
	return NewNetworkFallbackProvider(lookups, logger)
}

// Name returns the provider name.
func (n *NetworkFallbackProvider) Name() string {
	return "network"
}

// Locate tries every lookup in order until one yields a valid coordinate.
// A failing lookup never aborts the chain; only a done context does.
func (n *NetworkFallbackProvider) Locate(ctx context.Context) (Fix, error) {
	if len(n.lookups) == 0 {
		return Fix{}, fmt.Errorf("%w: no providers configured", ErrAllProvidersExhausted)
	}

	errs := []error{ErrAllProvidersExhausted}
	for i, lookup := range n.lookups {
		n.logger.Debug().
			Str("provider", lookup.Name()).
			Int("order", i+1).
			Msg("Trying location provider")

		coord, err := lookup.Lookup(ctx)
		if err == nil {
			n.logger.Info().
				Str("provider", lookup.Name()).
				Float64("latitude", coord.Latitude).
				Float64("longitude", coord.Longitude).
				Msg("Location found")
			return Fix{Coordinate: coord, Source: lookup.Name()}, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fix{}, ctxErr
		}

		n.logger.Warn().
			Err(err).
			Str("provider", lookup.Name()).
			Msg("Location provider failed")
		errs = append(errs, fmt.Errorf("%s: %w", lookup.Name(), err))
	}

	n.logger.Error().Int("attempts", len(n.lookups)).Msg("All location providers failed")
	return Fix{}, errors.Join(errs...)
}
