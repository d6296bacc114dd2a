package location

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a handle on a single asynchronous resolve call.
type Task struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result

	mu        sync.Mutex
	abandoned bool
}

// Cancel abandons the call. A result handler that has not started by the time
// Cancel returns is never invoked; Wait and Result still report the outcome.
func (t *Task) Cancel() {
	t.mu.Lock()
	t.abandoned = true
	t.mu.Unlock()
	t.cancel()
}

// claim reports whether the handler may run and blocks Cancel from
// suppressing it once it has.
func (t *Task) claim() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.abandoned
}

// Done is closed once the call has an outcome.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Result returns the outcome and true once the call has completed.
func (t *Task) Result() (Result, bool) {
	select {
	case <-t.done:
		return t.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the call completes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Resolver resolves the user's location through the provider selected at construction.
type Resolver struct {
	provider Provider
	logger   zerolog.Logger
	dispatch func(func())
}

// NewResolver selects the native provider when the platform is native-GPS-capable
// and a native provider is available, and the network provider otherwise.
// Without either, every resolve ends with ReasonAllProvidersExhausted.
func NewResolver(platform Platform, native Provider, network Provider, logger zerolog.Logger) *Resolver {
	provider := network
	if platform.NativeGPS && native != nil {
		provider = native
	}
	if provider == nil {
		logger.Warn().Str("platform", platform.Name).Msg("No location provider available")
		provider = NewNetworkFallbackProvider(nil, logger)
	}

	logger.Info().
		Str("platform", platform.Name).
		Bool("native_gps", platform.NativeGPS).
		Str("provider", provider.Name()).
		Msg("Location resolver configured")

	return &Resolver{
		provider: provider,
		logger:   logger,
	}
}

// SetDispatcher routes result handlers through dispatch, e.g. to run them on a UI thread.
func (r *Resolver) SetDispatcher(dispatch func(func())) {
	r.dispatch = dispatch
}

// Provider returns the name of the selected provider.
func (r *Resolver) Provider() string {
	return r.provider.Name()
}

// Resolve starts a resolution in the background and returns immediately.
// onResult receives the coordinate, or nil when the location is unavailable.
func (r *Resolver) Resolve(onResult func(*Coordinate)) *Task {
	return r.ResolveResult(context.Background(), func(res Result) {
		if onResult != nil {
			onResult(res.CoordinateOrNil())
		}
	})
}

// ResolveResult is Resolve with a parent context and the detailed result.
// onResult is invoked exactly once unless the task is cancelled, or the
// native platform never reports anything and ctx never ends.
func (r *Resolver) ResolveResult(ctx context.Context, onResult func(Result)) *Task {
	ctx, cancel := context.WithCancel(ctx)
	t := &Task{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer cancel()

		res := r.Locate(ctx)
		t.result = res
		close(t.done)

		if onResult == nil {
			return
		}
		deliver := func() {
			if t.claim() {
				onResult(res)
			}
		}
		if r.dispatch != nil {
			r.dispatch(deliver)
			return
		}
		deliver()
	}()

	return t
}

// Locate resolves the location on the calling goroutine.
func (r *Resolver) Locate(ctx context.Context) Result {
	r.logger.Debug().Str("provider", r.provider.Name()).Msg("Resolving location")

	fix, err := r.provider.Locate(ctx)
	if err != nil {
		res := unavailable(err)
		r.logger.Warn().
			Err(err).
			Str("reason", string(res.Reason)).
			Msg("Location unavailable")
		return res
	}

	return found(fix.Coordinate, fix.Source)
}
