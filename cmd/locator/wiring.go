package main

import (
	"net/http"

	"github.com/freevia/locator/internal/utils"
	"github.com/freevia/locator/pkg/location"
	"github.com/rs/zerolog"
)

// newResolver wires the native and network providers described by config.
func newResolver(config *utils.Config, logger zerolog.Logger) (*location.Resolver, error) {
	httpClient := &http.Client{}

	lookups := []location.Lookup{}
	for _, endpoint := range location.DefaultEndpoints() {
		lookups = append(lookups, location.NewHTTPLookup(endpoint, httpClient, config.UserAgent(), config.Location.RequestTimeout))
	}
	if config.Location.MapsAPIKey != "" {
		google, err := location.NewGoogleGeolocationLookup(config.Location.MapsAPIKey, httpClient,
			config.Location.ModemIndex, config.Location.RequestTimeout, logger.With().Str("provider", "google").Logger())
		if err != nil {
			return nil, err
		}
		lookups = append(lookups, google)
	}
	network := location.NewNetworkFallbackProvider(lookups, logger.With().Str("provider", "network").Logger())

	gps := location.NewSerialGPSService(
		config.Location.Native.GPSDevicePort,
		config.Location.Native.GPSDeviceBaudRate,
		logger.With().Str("component", "serial_gps").Logger(),
	)
	native := location.NewNativeSensorProvider(
		gps,
		config.Location.Native.MinInterval,
		config.Location.Native.MinDistance,
		logger.With().Str("provider", "native").Logger(),
	)

	return location.NewResolver(config.Platform(), native, network, logger), nil
}
