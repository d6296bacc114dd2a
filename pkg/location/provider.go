package location

import "context"

// Fix is a coordinate together with the provider that produced it.
type Fix struct {
	Coordinate
	Source string
}

// Provider interface defines the methods for location providers
type Provider interface {
	Name() string
	Locate(ctx context.Context) (Fix, error)
}

// Lookup is a single network geolocation service in a fallback chain.
type Lookup interface {
	Name() string
	Lookup(ctx context.Context) (Coordinate, error)
}
