package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/freevia/locator/pkg/file"
	"github.com/freevia/locator/pkg/location"
)

// Config represents the structure of the configuration file.
type Config struct {
	Client struct {
		Version string `yaml:"version"` // Client version advertised in the User-Agent
	} `yaml:"client"`

	Location struct {
		Platform       string        `yaml:"platform"`        // Overrides the detected GOOS
		ForceNative    bool          `yaml:"force_native"`    // Treat the platform as native-GPS-capable
		RequestTimeout time.Duration `yaml:"request_timeout"` // Per-provider HTTP timeout
		MapsAPIKey     string        `yaml:"maps_api_key"`    // Enables the Google geolocation provider
		ModemIndex     int           `yaml:"modem_index"`     // ModemManager index for cell data, negative to skip

		Native struct {
			MinInterval       time.Duration `yaml:"min_interval"`    // Minimum time between native updates
			MinDistance       float64       `yaml:"min_distance"`    // Minimum movement in meters between native updates
			GPSDevicePort     string        `yaml:"gps_device_port"` // Serial port where the GPS receiver is mounted
			GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // Baud rate for the GPS receiver
		} `yaml:"native"`
	} `yaml:"location"`

	MQTT struct {
		Broker         string        `yaml:"broker"`          // MQTT broker address
		ClientID       string        `yaml:"client_id"`       // MQTT client ID
		CACertificate  string        `yaml:"ca_certificate"`  // Path to the CA certificate, empty for plain TCP
		ConnectTimeout time.Duration `yaml:"connect_timeout"` // Timeout for connecting and acknowledgements
	} `yaml:"mqtt"`

	Identity struct {
		InstallationFile string `yaml:"installation_file"` // Path to the installation identity file
	} `yaml:"identity"`

	Services struct {
		Location struct {
			Enabled      bool          `yaml:"enabled"`       // Enable/disable location service
			RequestTopic string        `yaml:"request_topic"` // MQTT topic for resolve requests
			ReportTopic  string        `yaml:"report_topic"`  // MQTT topic for location reports
			Interval     time.Duration `yaml:"interval"`      // Interval between unsolicited reports, zero to disable
			QOS          int           `yaml:"qos"`           // MQTT QoS level for location messages
		} `yaml:"location_service"`
	} `yaml:"services"`
}

// Environment variables overriding the configuration file.
const (
	EnvClientVersion = "FREEVIA_CLIENT_VERSION"
	EnvPlatform      = "FREEVIA_PLATFORM"
	EnvMapsAPIKey    = "FREEVIA_MAPS_API_KEY"
	EnvGPSPort       = "FREEVIA_GPS_PORT"
	EnvMQTTBroker    = "FREEVIA_MQTT_BROKER"
	EnvMQTTClientID  = "FREEVIA_MQTT_CLIENT_ID"
	EnvForceNative   = "FREEVIA_FORCE_NATIVE"
)

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	var config Config
	config.applyDefaults()
	return &config
}

// LoadConfig loads the YAML configuration from the specified file, fills in
// defaults and applies environment overrides. A missing file yields the defaults.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config

	exists, err := fileClient.IsFileExists(filename)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := fileClient.ReadYamlFile(filename, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", filename, err)
		}
	}

	config.applyDefaults()
	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Location.RequestTimeout <= 0 {
		c.Location.RequestTimeout = location.DefaultRequestTimeout
	}
	if c.Location.Native.MinInterval <= 0 {
		c.Location.Native.MinInterval = location.DefaultMinInterval
	}
	if c.Location.Native.MinDistance <= 0 {
		c.Location.Native.MinDistance = location.DefaultMinDistance
	}
	if c.Location.Native.GPSDeviceBaudRate <= 0 {
		c.Location.Native.GPSDeviceBaudRate = 9600
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "freevia-locator"
	}
	if c.MQTT.ConnectTimeout <= 0 {
		c.MQTT.ConnectTimeout = 10 * time.Second
	}
	if c.Identity.InstallationFile == "" {
		c.Identity.InstallationFile = "installation.json"
	}
	if c.Services.Location.RequestTopic == "" {
		c.Services.Location.RequestTopic = "freevia/location/request"
	}
	if c.Services.Location.ReportTopic == "" {
		c.Services.Location.ReportTopic = "freevia/location/report"
	}
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	overrides := map[string]*string{
		EnvClientVersion: &c.Client.Version,
		EnvPlatform:      &c.Location.Platform,
		EnvMapsAPIKey:    &c.Location.MapsAPIKey,
		EnvGPSPort:       &c.Location.Native.GPSDevicePort,
		EnvMQTTBroker:    &c.MQTT.Broker,
		EnvMQTTClientID:  &c.MQTT.ClientID,
	}
	for key, field := range overrides {
		if v, ok := lookup(key); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup(EnvForceNative); ok && v != "" {
		force, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvForceNative, err)
		}
		c.Location.ForceNative = force
	}
	return nil
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.Client.Version != "" {
		if _, err := semver.NewVersion(c.Client.Version); err != nil {
			errs = append(errs, fmt.Errorf("invalid client version %q: %w", c.Client.Version, err))
		}
	}
	if c.Services.Location.QOS < 0 || c.Services.Location.QOS > 2 {
		errs = append(errs, fmt.Errorf("invalid location service qos %d", c.Services.Location.QOS))
	}
	if c.Services.Location.Interval < 0 {
		errs = append(errs, errors.New("location service interval must not be negative"))
	}
	return errors.Join(errs...)
}

// UserAgent returns the User-Agent sent to the geolocation services,
// "FreeviaApp/<major>.<minor>" of the client version or the 1.0 default.
func (c *Config) UserAgent() string {
	if c.Client.Version == "" {
		return location.DefaultUserAgent
	}
	v, err := semver.NewVersion(c.Client.Version)
	if err != nil {
		return location.DefaultUserAgent
	}
	return fmt.Sprintf("FreeviaApp/%d.%d", v.Major(), v.Minor())
}

// Platform returns the platform capabilities after applying overrides.
func (c *Config) Platform() location.Platform {
	platform := location.CurrentPlatform()
	if c.Location.Platform != "" {
		platform = location.DetectPlatform(c.Location.Platform)
	}
	if c.Location.ForceNative {
		platform.NativeGPS = true
	}
	return platform
}
