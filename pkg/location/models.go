package location

import "math"

// Coordinate represents the geographical position of the user.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is a finite point on earth.
// Out-of-range values are rejected, never clamped.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) {
		return false
	}
	if math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// Reason identifies why a resolution ended without a coordinate.
type Reason string

const (
	ReasonNone                      Reason = ""
	ReasonNativeUnsupported         Reason = "native_unsupported"
	ReasonNativeDisabled            Reason = "native_disabled"
	ReasonNativeMalformedPayload    Reason = "native_malformed_payload"
	ReasonProviderTransportError    Reason = "provider_transport_error"
	ReasonProviderMalformedResponse Reason = "provider_malformed_response"
	ReasonAllProvidersExhausted     Reason = "all_providers_exhausted"
	ReasonCanceled                  Reason = "canceled"
)

// Result is the outcome of a single resolve call: either a coordinate or a reason.
type Result struct {
	Found      bool
	Coordinate Coordinate
	Source     string // Provider that produced the coordinate
	Reason     Reason
	Err        error
}

// CoordinateOrNil projects the result onto the plain found / not found view.
func (r Result) CoordinateOrNil() *Coordinate {
	if !r.Found {
		return nil
	}
	c := r.Coordinate
	return &c
}

func found(c Coordinate, source string) Result {
	return Result{Found: true, Coordinate: c, Source: source}
}

func unavailable(err error) Result {
	return Result{Reason: ReasonFromError(err), Err: err}
}
