package location

import (
	"context"
	"errors"
)

var (
	// ErrNativeNotImplemented is returned by a NativeService that has no
	// location capability on this device or build.
	ErrNativeNotImplemented = errors.New("native location is not implemented on this platform")

	ErrNativeUnsupported         = errors.New("native location unsupported")
	ErrNativeDisabled            = errors.New("native location provider disabled")
	ErrNativeMalformedPayload    = errors.New("native location payload incomplete")
	ErrProviderTransport         = errors.New("location provider request failed")
	ErrProviderMalformedResponse = errors.New("location provider returned malformed response")
	ErrAllProvidersExhausted     = errors.New("all location providers failed")
)

// ReasonFromError maps an error returned by a Provider onto its Reason code.
// Aggregates are checked first so a joined chain maps to exhaustion rather than
// to the reason of one of its members.
func ReasonFromError(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrAllProvidersExhausted):
		return ReasonAllProvidersExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	case errors.Is(err, ErrNativeDisabled):
		return ReasonNativeDisabled
	case errors.Is(err, ErrNativeMalformedPayload):
		return ReasonNativeMalformedPayload
	case errors.Is(err, ErrNativeUnsupported), errors.Is(err, ErrNativeNotImplemented):
		return ReasonNativeUnsupported
	case errors.Is(err, ErrProviderMalformedResponse):
		return ReasonProviderMalformedResponse
	default:
		return ReasonProviderTransportError
	}
}
