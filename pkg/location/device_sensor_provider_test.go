package location

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tarm/serial"
)

const (
	ggaSydney     = "GPGGA,034225.077,3356.4650,S,15124.5567,E,1,03,9.7,-25.0,M,21.0,M,,0000"
	rmcLondon     = "GPRMC,220516,A,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W"
	ggaNoFix      = "GPGGA,034225.077,,,,,0,00,,,M,,M,,"
	rmcVoid       = "GPRMC,220516,V,5133.82,N,00042.24,W,173.8,231.8,130694,004.2,W"
	unrelatedGSA  = "GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"
	garbageString = "not an nmea sentence"
)

// sentence wraps an NMEA body with its leading '$' and checksum.
func sentence(body string) string {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return fmt.Sprintf("$%s*%02X", body, sum)
}

func nmeaStream(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

// recorder collects the events emitted by a NativeService.
type recorder struct {
	mu       sync.Mutex
	readings []Reading
	statuses []Status
	status   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{status: make(chan struct{}, 4)}
}

func (r *recorder) onLocation(reading Reading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.readings = append(r.readings, reading)
}

func (r *recorder) onStatus(s Status) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
	r.status <- struct{}{}
}

func (r *recorder) waitStatus(t *testing.T) {
	t.Helper()
	select {
	case <-r.status:
	case <-time.After(2 * time.Second):
		t.Fatal("no status event")
	}
}

func (r *recorder) snapshot() ([]Reading, []Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reading(nil), r.readings...), append([]Status(nil), r.statuses...)
}

func newTestSerialGPS(stream string, openErr error) *SerialGPSService {
	s := NewSerialGPSService("/dev/ttyTEST0", 9600, zerolog.Nop())
	s.openPort = func(c *serial.Config) (io.ReadCloser, error) {
		if openErr != nil {
			return nil, openErr
		}
		return io.NopCloser(strings.NewReader(stream)), nil
	}
	return s
}

func TestSerialGPSService_EmitsValidFixes(t *testing.T) {
	// Setup
	stream := nmeaStream(
		garbageString,
		sentence(ggaNoFix),
		sentence(unrelatedGSA),
		sentence(ggaSydney),
		sentence(rmcVoid),
		sentence(rmcLondon),
	)
	s := newTestSerialGPS(stream, nil)
	rec := newRecorder()
	s.Configure(rec.onLocation, rec.onStatus)

	// Execute
	require.NoError(t, s.Start(0, 0))
	rec.waitStatus(t)

	// Assert
	readings, statuses := rec.snapshot()
	require.Len(t, readings, 2)
	assert.InDelta(t, -33.94108, *readings[0].Latitude, 1e-4)
	assert.InDelta(t, 151.40928, *readings[0].Longitude, 1e-4)
	assert.InDelta(t, 51.56367, *readings[1].Latitude, 1e-4)
	assert.InDelta(t, -0.704, *readings[1].Longitude, 1e-4)

	require.Len(t, statuses, 1)
	assert.Equal(t, StatusProviderDisabled, statuses[0].Type)
	require.NoError(t, s.Stop())
}

func TestSerialGPSService_DistanceFilter(t *testing.T) {
	stream := nmeaStream(sentence(ggaSydney), sentence(ggaSydney), sentence(rmcLondon))
	s := newTestSerialGPS(stream, nil)
	rec := newRecorder()
	s.Configure(rec.onLocation, rec.onStatus)

	require.NoError(t, s.Start(0, DefaultMinDistance))
	rec.waitStatus(t)

	readings, _ := rec.snapshot()
	assert.Len(t, readings, 2)
}

func TestSerialGPSService_IntervalFilter(t *testing.T) {
	stream := nmeaStream(sentence(ggaSydney), sentence(rmcLondon))
	s := newTestSerialGPS(stream, nil)
	rec := newRecorder()
	s.Configure(rec.onLocation, rec.onStatus)

	require.NoError(t, s.Start(time.Hour, 0))
	rec.waitStatus(t)

	readings, _ := rec.snapshot()
	assert.Len(t, readings, 1)
}

func TestSerialGPSService_StartErrors(t *testing.T) {
	t.Run("no port configured", func(t *testing.T) {
		s := NewSerialGPSService("", 9600, zerolog.Nop())
		s.Configure(func(Reading) {}, func(Status) {})
		assert.ErrorIs(t, s.Start(DefaultMinInterval, DefaultMinDistance), ErrNativeNotImplemented)
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestSerialGPS("", nil)
		assert.Error(t, s.Start(DefaultMinInterval, DefaultMinDistance))
	})

	t.Run("open fails", func(t *testing.T) {
		openErr := errors.New("no such device")
		s := newTestSerialGPS("", openErr)
		s.Configure(func(Reading) {}, func(Status) {})
		assert.ErrorIs(t, s.Start(DefaultMinInterval, DefaultMinDistance), openErr)
	})

	t.Run("already started", func(t *testing.T) {
		s := NewSerialGPSService("/dev/ttyTEST0", 9600, zerolog.Nop())
		block, _ := io.Pipe()
		s.openPort = func(*serial.Config) (io.ReadCloser, error) { return block, nil }
		s.Configure(func(Reading) {}, func(Status) {})

		require.NoError(t, s.Start(DefaultMinInterval, DefaultMinDistance))
		assert.Error(t, s.Start(DefaultMinInterval, DefaultMinDistance))
		require.NoError(t, s.Stop())
	})
}

func TestSerialGPSService_StopIsSilent(t *testing.T) {
	s := NewSerialGPSService("/dev/ttyTEST0", 9600, zerolog.Nop())
	block, _ := io.Pipe()
	s.openPort = func(*serial.Config) (io.ReadCloser, error) { return block, nil }
	rec := newRecorder()
	s.Configure(rec.onLocation, rec.onStatus)

	require.NoError(t, s.Start(DefaultMinInterval, DefaultMinDistance))
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	assert.Never(t, func() bool {
		_, statuses := rec.snapshot()
		return len(statuses) > 0
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSerialGPSService_ThroughNativeSensorProvider(t *testing.T) {
	// Setup
	s := newTestSerialGPS(nmeaStream(sentence(rmcLondon)), nil)
	p := NewNativeSensorProvider(s, DefaultMinInterval, DefaultMinDistance, zerolog.Nop())

	// Execute
	fix, err := p.Locate(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "native", fix.Source)
	assert.InDelta(t, 51.56367, fix.Latitude, 1e-4)
	assert.InDelta(t, -0.704, fix.Longitude, 1e-4)
}

func TestSerialGPSService_NoPortIsUnsupported(t *testing.T) {
	s := NewSerialGPSService("", 9600, zerolog.Nop())
	p := NewNativeSensorProvider(s, DefaultMinInterval, DefaultMinDistance, zerolog.Nop())

	_, err := p.Locate(context.Background())

	assert.ErrorIs(t, err, ErrNativeUnsupported)
}
