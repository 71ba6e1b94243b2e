package cliconfig

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
)

// Defaults.
const (
	DefaultBroker = "tcp://localhost:1883"
	DefaultRealm  = "edgemetrics"

	DefaultCPUInterface         = "com.example.poc.CpuMetrics"
	DefaultCPUEndpoint          = "/loadavg"
	DefaultTemperatureInterface = "com.example.poc.CpuTemp"
	DefaultTemperatureEndpoint  = "/temp"
)

// Config holds CLI configuration for edgemetrics.
type Config struct {
	DeviceHome       string
	DeviceID         string
	CredentialSecret string

	Broker string
	Realm  string
	QoS    int

	CAFile    string
	OTACAFile string

	TLS      bool
	OTARelay bool

	// Duration is how long the agent runs. Zero runs until interrupted.
	Duration         time.Duration
	SamplePeriod     time.Duration
	DevicePollPeriod time.Duration
	SupervisorPeriod time.Duration

	ConnectTimeout  time.Duration
	PollTimeout     time.Duration
	PublishTimeout  time.Duration
	TelemetryPeriod time.Duration

	RelayWaitPeriod     time.Duration
	RelayPublishTimeout time.Duration
	RelayJoinTimeout    time.Duration

	Iface       string
	ProbeTarget string
	LinkTimeout time.Duration

	NTPServer string

	ProcRoot    string
	SysRoot     string
	ThermalZone string

	LogLevel    string
	MetricsAddr string

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string
}

// Features are the optional subsystems enabled by a Config.
type Features struct {
	OTARelay bool
	TLS      bool
	Mirror   bool
	Metrics  bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Broker:              DefaultBroker,
		Realm:               DefaultRealm,
		QoS:                 1,
		OTARelay:            true,
		SamplePeriod:        5 * time.Second,
		DevicePollPeriod:    100 * time.Millisecond,
		SupervisorPeriod:    500 * time.Millisecond,
		ConnectTimeout:      3 * time.Second,
		PollTimeout:         200 * time.Millisecond,
		PublishTimeout:      3 * time.Second,
		TelemetryPeriod:     time.Minute,
		RelayWaitPeriod:     500 * time.Millisecond,
		RelayPublishTimeout: time.Second,
		RelayJoinTimeout:    10 * time.Second,
		LinkTimeout:         30 * time.Second,
		LogLevel:            "info",
		CredentialSecret:    os.Getenv("EDGEMETRICS_CREDENTIAL_SECRET"),
	}
}

// Features evaluates the feature toggles of the configuration.
func (c *Config) Features() Features {
	return Features{
		OTARelay: c.OTARelay,
		TLS:      c.TLS,
		Mirror:   c.InfluxURL != "",
		Metrics:  c.MetricsAddr != "",
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("%w: device-id is required (or device-home)", domain.ErrInvalidConfig)
	}

	if c.Broker == "" {
		c.Broker = DefaultBroker
	}
	if c.Realm == "" {
		c.Realm = DefaultRealm
	}
	if c.QoS < 0 || c.QoS > 2 {
		return fmt.Errorf("%w: qos must be 0, 1 or 2", domain.ErrInvalidConfig)
	}

	if c.TLS && c.CAFile == "" && c.OTACAFile == "" {
		return fmt.Errorf("%w: tls requires ca-file or ota-ca-file", domain.ErrInvalidConfig)
	}

	if c.ProbeTarget == "" {
		target, err := probeTarget(c.Broker)
		if err != nil {
			return fmt.Errorf("%w: broker: %v", domain.ErrInvalidConfig, err)
		}
		c.ProbeTarget = target
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"sample period", c.SamplePeriod},
		{"device poll period", c.DevicePollPeriod},
		{"supervisor period", c.SupervisorPeriod},
		{"connect timeout", c.ConnectTimeout},
		{"poll timeout", c.PollTimeout},
		{"publish timeout", c.PublishTimeout},
		{"relay wait period", c.RelayWaitPeriod},
		{"relay publish timeout", c.RelayPublishTimeout},
		{"relay join timeout", c.RelayJoinTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive", domain.ErrInvalidConfig, p.name)
		}
	}
	if c.Duration < 0 {
		return fmt.Errorf("%w: duration must not be negative", domain.ErrInvalidConfig)
	}

	// The relay checks for termination once per wait period and may be in the
	// middle of a confirmation publish, so the join must outlast both.
	if worst := 2*c.RelayWaitPeriod + c.RelayPublishTimeout; c.RelayJoinTimeout <= worst {
		return fmt.Errorf("%w: relay join timeout %s must exceed %s (2x relay wait period + relay publish timeout)",
			domain.ErrInvalidConfig, c.RelayJoinTimeout, worst)
	}

	if c.InfluxURL != "" && (c.InfluxOrg == "" || c.InfluxBucket == "") {
		return fmt.Errorf("%w: influx-url requires influx-org and influx-bucket", domain.ErrInvalidConfig)
	}

	return nil
}

// probeTarget derives the host:port reachability target from a broker URL.
func probeTarget(broker string) (string, error) {
	u, err := url.Parse(broker)
	if err != nil {
		return "", err
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("no host in %q", broker)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	port := "1883"
	switch u.Scheme {
	case "ssl", "tls", "mqtts":
		port = "8883"
	case "ws":
		port = "80"
	case "wss":
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value from a pointer if not nil and flag not changed.
// QoS 0 is meaningful, so zero is applied.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
// Used for environment variables that come as strings.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
