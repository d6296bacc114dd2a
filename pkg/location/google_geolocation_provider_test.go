package location

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"googlemaps.github.io/maps"
)

func newTestGoogleLookup(t *testing.T, handler http.HandlerFunc) (*GoogleGeolocationLookup, chan maps.GeolocationRequest) {
	t.Helper()

	requests := make(chan maps.GeolocationRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req maps.GeolocationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		requests <- req
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	g, err := NewGoogleGeolocationLookup("test-key", srv.Client(), 0, time.Second, zerolog.Nop())
	require.NoError(t, err)

	g.client, err = maps.NewClient(maps.WithAPIKey("test-key"), maps.WithBaseURL(srv.URL), maps.WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	g.wifiScanner = func(context.Context) ([]maps.WiFiAccessPoint, error) {
		return []maps.WiFiAccessPoint{{MACAddress: "AA:BB:CC:DD:EE:FF", SignalStrength: -60}}, nil
	}
	g.cellScanner = func(context.Context, int) ([]maps.CellTower, error) {
		return nil, errors.New("no modem")
	}
	return g, requests
}

func TestGoogleGeolocationLookup_Found(t *testing.T) {
	// Setup
	g, requests := newTestGoogleLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"lat":51.5074,"lng":-0.1278},"accuracy":1200}`))
	})

	// Execute
	coord, err := g.Lookup(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, Coordinate{Latitude: 51.5074, Longitude: -0.1278}, coord)
	assert.Equal(t, "google", g.Name())

	req := <-requests
	assert.True(t, req.ConsiderIP)
	require.Len(t, req.WiFiAccessPoints, 1)
	assert.Empty(t, req.CellTowers)
}

func TestGoogleGeolocationLookup_APIError(t *testing.T) {
	g, _ := newTestGoogleLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"errors":[{"domain":"geolocation","reason":"notFound","message":"Not Found"}],"code":404,"message":"Not Found"}}`))
	})

	_, err := g.Lookup(context.Background())

	assert.ErrorIs(t, err, ErrProviderTransport)
}

func TestGoogleGeolocationLookup_OutOfRange(t *testing.T) {
	g, _ := newTestGoogleLookup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"lat":123.4,"lng":10},"accuracy":10}`))
	})

	_, err := g.Lookup(context.Background())

	assert.ErrorIs(t, err, ErrProviderMalformedResponse)
}
