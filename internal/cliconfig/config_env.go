package cliconfig

import (
	"os"
	"time"
)

// ApplyEnvConfig applies configuration from environment variables (EDGEMETRICS_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("device-home", os.Getenv("EDGEMETRICS_DEVICE_HOME"), &cfg.DeviceHome)
	s.setString("device-id", os.Getenv("EDGEMETRICS_DEVICE_ID"), &cfg.DeviceID)
	s.setString("credential-secret", os.Getenv("EDGEMETRICS_CREDENTIAL_SECRET"), &cfg.CredentialSecret)
	s.setString("broker", os.Getenv("EDGEMETRICS_BROKER"), &cfg.Broker)
	s.setString("realm", os.Getenv("EDGEMETRICS_REALM"), &cfg.Realm)
	s.setString("ca-file", os.Getenv("EDGEMETRICS_CA_FILE"), &cfg.CAFile)
	s.setString("ota-ca-file", os.Getenv("EDGEMETRICS_OTA_CA_FILE"), &cfg.OTACAFile)
	s.setString("iface", os.Getenv("EDGEMETRICS_IFACE"), &cfg.Iface)
	s.setString("probe-target", os.Getenv("EDGEMETRICS_PROBE_TARGET"), &cfg.ProbeTarget)
	s.setString("ntp-server", os.Getenv("EDGEMETRICS_NTP_SERVER"), &cfg.NTPServer)
	s.setString("proc-root", os.Getenv("EDGEMETRICS_PROC_ROOT"), &cfg.ProcRoot)
	s.setString("sys-root", os.Getenv("EDGEMETRICS_SYS_ROOT"), &cfg.SysRoot)
	s.setString("thermal-zone", os.Getenv("EDGEMETRICS_THERMAL_ZONE"), &cfg.ThermalZone)
	s.setString("log-level", os.Getenv("EDGEMETRICS_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", os.Getenv("EDGEMETRICS_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setString("influx-url", os.Getenv("EDGEMETRICS_INFLUX_URL"), &cfg.InfluxURL)
	s.setString("influx-token", os.Getenv("EDGEMETRICS_INFLUX_TOKEN"), &cfg.InfluxToken)
	s.setString("influx-org", os.Getenv("EDGEMETRICS_INFLUX_ORG"), &cfg.InfluxOrg)
	s.setString("influx-bucket", os.Getenv("EDGEMETRICS_INFLUX_BUCKET"), &cfg.InfluxBucket)

	if err := s.setIntFromString("qos", os.Getenv("EDGEMETRICS_QOS"), &cfg.QoS); err != nil {
		return err
	}

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"duration", "EDGEMETRICS_DURATION", &cfg.Duration},
		{"sample-period", "EDGEMETRICS_SAMPLE_PERIOD", &cfg.SamplePeriod},
		{"device-poll-period", "EDGEMETRICS_DEVICE_POLL_PERIOD", &cfg.DevicePollPeriod},
		{"supervisor-period", "EDGEMETRICS_SUPERVISOR_PERIOD", &cfg.SupervisorPeriod},
		{"connect-timeout", "EDGEMETRICS_CONNECT_TIMEOUT", &cfg.ConnectTimeout},
		{"poll-timeout", "EDGEMETRICS_POLL_TIMEOUT", &cfg.PollTimeout},
		{"publish-timeout", "EDGEMETRICS_PUBLISH_TIMEOUT", &cfg.PublishTimeout},
		{"telemetry-period", "EDGEMETRICS_TELEMETRY_PERIOD", &cfg.TelemetryPeriod},
		{"relay-wait-period", "EDGEMETRICS_RELAY_WAIT_PERIOD", &cfg.RelayWaitPeriod},
		{"relay-publish-timeout", "EDGEMETRICS_RELAY_PUBLISH_TIMEOUT", &cfg.RelayPublishTimeout},
		{"relay-join-timeout", "EDGEMETRICS_RELAY_JOIN_TIMEOUT", &cfg.RelayJoinTimeout},
		{"link-timeout", "EDGEMETRICS_LINK_TIMEOUT", &cfg.LinkTimeout},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("tls", os.Getenv("EDGEMETRICS_TLS"), &cfg.TLS)
	s.setBoolFromString("ota-relay", os.Getenv("EDGEMETRICS_OTA_RELAY"), &cfg.OTARelay)

	return nil
}
