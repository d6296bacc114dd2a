package location

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/rs/zerolog"
	"github.com/tarm/serial"
)

// SerialGPSService is a NativeService backed by a GPS receiver connected via serial port.
type SerialGPSService struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	logger   zerolog.Logger

	openPort func(c *serial.Config) (io.ReadCloser, error)

	mu         sync.Mutex
	onLocation func(Reading)
	onStatus   func(Status)
	conn       io.ReadCloser
	stopped    chan struct{}
}

// NewSerialGPSService creates a new instance of SerialGPSService with the specified port and baud rate.
func NewSerialGPSService(port string, baudRate int, logger zerolog.Logger) *SerialGPSService {
	return &SerialGPSService{
		port:     port,
		baudRate: baudRate,
		logger:   logger,
		openPort: func(c *serial.Config) (io.ReadCloser, error) {
			return serial.OpenPort(c)
		},
	}
}

// Configure registers the location and status handlers.
func (s *SerialGPSService) Configure(onLocation func(Reading), onStatus func(Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLocation = onLocation
	s.onStatus = onStatus
}

// Start opens the serial port and streams fixes to the location handler.
func (s *SerialGPSService) Start(minInterval time.Duration, minDistance float64) error {
	if s.port == "" {
		return ErrNativeNotImplemented
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return errors.New("serial gps is already started")
	}
	if s.onLocation == nil || s.onStatus == nil {
		return errors.New("serial gps is not configured")
	}

	conn, err := s.openPort(&serial.Config{Name: s.port, Baud: s.baudRate})
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.port, err)
	}

	s.conn = conn
	s.stopped = make(chan struct{})
	go s.readLoop(conn, s.stopped, s.onLocation, s.onStatus, minInterval, minDistance)

	s.logger.Info().Str("port", s.port).Int("baud_rate", s.baudRate).Msg("Serial GPS started")
	return nil
}

// Stop closes the serial port.
func (s *SerialGPSService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	close(s.stopped)
	err := s.conn.Close()
	s.conn = nil
	return err
}

// readLoop reads NMEA sentences until the port fails or is closed.
func (s *SerialGPSService) readLoop(conn io.Reader, stopped <-chan struct{}, onLocation func(Reading),
	onStatus func(Status), minInterval time.Duration, minDistance float64) {
	var last *Coordinate
	var lastAt time.Time

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		coord, ok := s.parseFix(scanner.Text())
		if !ok {
			continue
		}

		now := time.Now()
		if last != nil {
			if now.Sub(lastAt) < minInterval || Distance(*last, coord) < minDistance {
				continue
			}
		}
		last, lastAt = &coord, now

		lat, lon := coord.Latitude, coord.Longitude
		onLocation(Reading{Latitude: &lat, Longitude: &lon})
	}

	select {
	case <-stopped:
		return
	default:
	}

	msg := "gps device stopped sending data"
	if err := scanner.Err(); err != nil {
		msg = err.Error()
	}
	s.logger.Error().Str("port", s.port).Str("reason", msg).Msg("Serial GPS unavailable")
	onStatus(Status{Type: StatusProviderDisabled, Message: msg})
}

// parseFix extracts a coordinate from a GGA or RMC sentence carrying a valid fix.
func (s *SerialGPSService) parseFix(line string) (Coordinate, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Coordinate{}, false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		s.logger.Debug().Err(err).Str("sentence", line).Msg("Skipping unparsable NMEA sentence")
		return Coordinate{}, false
	}

	switch v := sentence.(type) {
	case nmea.GGA:
		if v.FixQuality == nmea.Invalid {
			return Coordinate{}, false
		}
		return Coordinate{Latitude: v.Latitude, Longitude: v.Longitude}, true
	case nmea.RMC:
		if v.Validity != nmea.ValidRMC {
			return Coordinate{}, false
		}
		return Coordinate{Latitude: v.Latitude, Longitude: v.Longitude}, true
	default:
		return Coordinate{}, false
	}
}
