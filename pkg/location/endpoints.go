package location

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fixed geolocation service URLs, in fallback order.
const (
	IPAPIURL         = "https://ipapi.co/json/"
	IPAPIComURL      = "http://ip-api.com/json/"
	IPInfoURL        = "https://ipinfo.io/json"
	GeolocationDBURL = "https://geolocation-db.com/json/"
)

// Extractor reads a coordinate out of a decoded JSON object.
type Extractor func(fields map[string]json.RawMessage) (Coordinate, error)

// Endpoint describes one IP-geolocation web service and how to read its response.
type Endpoint struct {
	Name    string
	URL     string
	Extract Extractor
}

// DefaultEndpoints returns the four geolocation services in the order they are tried.
func DefaultEndpoints() []Endpoint {
	return []Endpoint{
		{Name: "ipapi", URL: IPAPIURL, Extract: LatLonFields("latitude", "longitude")},
		{Name: "ip-api", URL: IPAPIComURL, Extract: LatLonFields("lat", "lon")},
		{Name: "ipinfo", URL: IPInfoURL, Extract: CommaJoinedField("loc")},
		{Name: "geolocation-db", URL: GeolocationDBURL, Extract: LatLonFields("latitude", "longitude")},
	}
}

// LatLonFields extracts latitude and longitude from two separate fields.
func LatLonFields(latKey, lonKey string) Extractor {
	return func(fields map[string]json.RawMessage) (Coordinate, error) {
		lat, err := floatField(fields, latKey)
		if err != nil {
			return Coordinate{}, err
		}
		lon, err := floatField(fields, lonKey)
		if err != nil {
			return Coordinate{}, err
		}
		return Coordinate{Latitude: lat, Longitude: lon}, nil
	}
}

// CommaJoinedField extracts both values from a single "lat,lon" string field.
func CommaJoinedField(key string) Extractor {
	return func(fields map[string]json.RawMessage) (Coordinate, error) {
		raw, ok := fields[key]
		if !ok {
			return Coordinate{}, fmt.Errorf("%w: missing field %q", ErrProviderMalformedResponse, key)
		}

		var value *string
		if err := json.Unmarshal(raw, &value); err != nil {
			return Coordinate{}, fmt.Errorf("%w: field %q is not a string", ErrProviderMalformedResponse, key)
		}
		if value == nil || strings.TrimSpace(*value) == "" {
			return Coordinate{}, fmt.Errorf("%w: field %q is empty", ErrProviderMalformedResponse, key)
		}

		parts := strings.Split(*value, ",")
		if len(parts) != 2 {
			return Coordinate{}, fmt.Errorf("%w: field %q is not a lat,lon pair", ErrProviderMalformedResponse, key)
		}
		lat, err := parseFloat(key, parts[0])
		if err != nil {
			return Coordinate{}, err
		}
		lon, err := parseFloat(key, parts[1])
		if err != nil {
			return Coordinate{}, err
		}
		return Coordinate{Latitude: lat, Longitude: lon}, nil
	}
}

// floatField reads a number from a JSON number or a numeric string.
func floatField(fields map[string]json.RawMessage, key string) (float64, error) {
	raw, ok := fields[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrProviderMalformedResponse, key)
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrProviderMalformedResponse, key, err)
	}

	switch v := value.(type) {
	case nil:
		return 0, fmt.Errorf("%w: field %q is null", ErrProviderMalformedResponse, key)
	case float64:
		return v, nil
	case string:
		return parseFloat(key, v)
	default:
		return 0, fmt.Errorf("%w: field %q is not a number", ErrProviderMalformedResponse, key)
	}
}

func parseFloat(key, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrProviderMalformedResponse, key, err)
	}
	return f, nil
}
