package location

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"googlemaps.github.io/maps"
)

// GoogleGeolocationLookup uses the Google Maps Geolocation API to get location data.
type GoogleGeolocationLookup struct {
	client     *maps.Client // Maps API client for making geolocation requests
	modemIndex int          // ModemManager index for cell tower data, negative to skip
	timeout    time.Duration
	logger     zerolog.Logger

	wifiScanner func(ctx context.Context) ([]maps.WiFiAccessPoint, error)
	cellScanner func(ctx context.Context, modemIndex int) ([]maps.CellTower, error)
}

// NewGoogleGeolocationLookup creates a new GoogleGeolocationLookup instance.
func NewGoogleGeolocationLookup(apiKey string, httpClient *http.Client, modemIndex int,
	timeout time.Duration, logger zerolog.Logger) (*GoogleGeolocationLookup, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if httpClient != nil {
		opts = append(opts, maps.WithHTTPClient(httpClient))
	}

	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &GoogleGeolocationLookup{
		client:      c,
		modemIndex:  modemIndex,
		timeout:     timeout,
		logger:      logger,
		wifiScanner: getWiFiAccessPoints,
		cellScanner: getCellTowers,
	}, nil
}

// Name returns the lookup name.
func (g *GoogleGeolocationLookup) Name() string {
	return "google"
}

// Lookup asks the Geolocation API for the device position. Wi-Fi and cell
// data are optional hints; the request always considers the caller's IP.
func (g *GoogleGeolocationLookup) Lookup(ctx context.Context) (Coordinate, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := &maps.GeolocationRequest{
		ConsiderIP: true,
	}

	wifiAPs, err := g.wifiScanner(ctx)
	if err != nil {
		g.logger.Debug().Err(err).Msg("WiFi access points unavailable")
	} else {
		req.WiFiAccessPoints = wifiAPs
	}

	if g.modemIndex >= 0 {
		cellTowers, err := g.cellScanner(ctx, g.modemIndex)
		if err != nil {
			g.logger.Debug().Err(err).Msg("Cell towers unavailable")
		} else {
			req.CellTowers = cellTowers
		}
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Coordinate{}, fmt.Errorf("%w: %w", ErrProviderTransport, err)
	}

	coord := Coordinate{Latitude: resp.Location.Lat, Longitude: resp.Location.Lng}
	if !coord.Valid() {
		return Coordinate{}, fmt.Errorf("%w: coordinate out of range", ErrProviderMalformedResponse)
	}

	g.logger.Debug().Float64("accuracy_m", resp.Accuracy).Msg("Google geolocation answered")
	return coord, nil
}
