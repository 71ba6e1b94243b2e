package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	DeviceHome       string `toml:"device_home"`
	DeviceID         string `toml:"device_id"`
	CredentialSecret string `toml:"credential_secret"`

	Broker string `toml:"broker"`
	Realm  string `toml:"realm"`
	QoS    *int   `toml:"qos"`

	CAFile    string `toml:"ca_file"`
	OTACAFile string `toml:"ota_ca_file"`
	TLS       *bool  `toml:"tls"`
	OTARelay  *bool  `toml:"ota_relay"`

	Duration         string `toml:"duration"`
	SamplePeriod     string `toml:"sample_period"`
	DevicePollPeriod string `toml:"device_poll_period"`
	SupervisorPeriod string `toml:"supervisor_period"`

	ConnectTimeout  string `toml:"connect_timeout"`
	PollTimeout     string `toml:"poll_timeout"`
	PublishTimeout  string `toml:"publish_timeout"`
	TelemetryPeriod string `toml:"telemetry_period"`

	RelayWaitPeriod     string `toml:"relay_wait_period"`
	RelayPublishTimeout string `toml:"relay_publish_timeout"`
	RelayJoinTimeout    string `toml:"relay_join_timeout"`

	Iface       string `toml:"iface"`
	ProbeTarget string `toml:"probe_target"`
	LinkTimeout string `toml:"link_timeout"`
	NTPServer   string `toml:"ntp_server"`
	ProcRoot    string `toml:"proc_root"`
	SysRoot     string `toml:"sys_root"`
	ThermalZone string `toml:"thermal_zone"`

	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`

	InfluxURL    string `toml:"influx_url"`
	InfluxToken  string `toml:"influx_token"`
	InfluxOrg    string `toml:"influx_org"`
	InfluxBucket string `toml:"influx_bucket"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.edgemetrics/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".edgemetrics", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("device-home", fc.DeviceHome, &cfg.DeviceHome)
	s.setString("device-id", fc.DeviceID, &cfg.DeviceID)
	s.setString("credential-secret", fc.CredentialSecret, &cfg.CredentialSecret)
	s.setString("broker", fc.Broker, &cfg.Broker)
	s.setString("realm", fc.Realm, &cfg.Realm)
	s.setString("ca-file", fc.CAFile, &cfg.CAFile)
	s.setString("ota-ca-file", fc.OTACAFile, &cfg.OTACAFile)
	s.setString("iface", fc.Iface, &cfg.Iface)
	s.setString("probe-target", fc.ProbeTarget, &cfg.ProbeTarget)
	s.setString("ntp-server", fc.NTPServer, &cfg.NTPServer)
	s.setString("proc-root", fc.ProcRoot, &cfg.ProcRoot)
	s.setString("sys-root", fc.SysRoot, &cfg.SysRoot)
	s.setString("thermal-zone", fc.ThermalZone, &cfg.ThermalZone)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setString("influx-url", fc.InfluxURL, &cfg.InfluxURL)
	s.setString("influx-token", fc.InfluxToken, &cfg.InfluxToken)
	s.setString("influx-org", fc.InfluxOrg, &cfg.InfluxOrg)
	s.setString("influx-bucket", fc.InfluxBucket, &cfg.InfluxBucket)

	s.setInt("qos", fc.QoS, &cfg.QoS)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"duration", fc.Duration, &cfg.Duration},
		{"sample-period", fc.SamplePeriod, &cfg.SamplePeriod},
		{"device-poll-period", fc.DevicePollPeriod, &cfg.DevicePollPeriod},
		{"supervisor-period", fc.SupervisorPeriod, &cfg.SupervisorPeriod},
		{"connect-timeout", fc.ConnectTimeout, &cfg.ConnectTimeout},
		{"poll-timeout", fc.PollTimeout, &cfg.PollTimeout},
		{"publish-timeout", fc.PublishTimeout, &cfg.PublishTimeout},
		{"telemetry-period", fc.TelemetryPeriod, &cfg.TelemetryPeriod},
		{"relay-wait-period", fc.RelayWaitPeriod, &cfg.RelayWaitPeriod},
		{"relay-publish-timeout", fc.RelayPublishTimeout, &cfg.RelayPublishTimeout},
		{"relay-join-timeout", fc.RelayJoinTimeout, &cfg.RelayJoinTimeout},
		{"link-timeout", fc.LinkTimeout, &cfg.LinkTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setBool("tls", fc.TLS, &cfg.TLS)
	s.setBool("ota-relay", fc.OTARelay, &cfg.OTARelay)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
