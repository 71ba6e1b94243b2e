package cliconfig

import (
	"errors"
	"testing"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.DeviceID = "device-1"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Broker != DefaultBroker {
		t.Errorf("Broker = %v, want %v", cfg.Broker, DefaultBroker)
	}
	if cfg.SamplePeriod != 5*time.Second {
		t.Errorf("SamplePeriod = %v, want 5s", cfg.SamplePeriod)
	}
	if cfg.DevicePollPeriod != 100*time.Millisecond {
		t.Errorf("DevicePollPeriod = %v, want 100ms", cfg.DevicePollPeriod)
	}
	if cfg.RelayWaitPeriod != 500*time.Millisecond {
		t.Errorf("RelayWaitPeriod = %v, want 500ms", cfg.RelayWaitPeriod)
	}
	if cfg.RelayJoinTimeout != 10*time.Second {
		t.Errorf("RelayJoinTimeout = %v, want 10s", cfg.RelayJoinTimeout)
	}
	if !cfg.OTARelay {
		t.Error("OTARelay = false, want true")
	}
	if cfg.TLS {
		t.Error("TLS = true, want false")
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid defaults",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing device id",
			modify:  func(c *Config) { c.DeviceID = "" },
			wantErr: true,
		},
		{
			name:    "qos out of range",
			modify:  func(c *Config) { c.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "qos zero is valid",
			modify:  func(c *Config) { c.QoS = 0 },
			wantErr: false,
		},
		{
			name:    "tls without ca files",
			modify:  func(c *Config) { c.TLS = true },
			wantErr: true,
		},
		{
			name: "tls with ota ca only",
			modify: func(c *Config) {
				c.TLS = true
				c.OTACAFile = "/etc/edgemetrics/ota-ca.pem"
			},
			wantErr: false,
		},
		{
			name:    "broker without host",
			modify:  func(c *Config) { c.Broker = "tcp://" },
			wantErr: true,
		},
		{
			name:    "invalid sample period",
			modify:  func(c *Config) { c.SamplePeriod = 0 },
			wantErr: true,
		},
		{
			name:    "invalid poll timeout",
			modify:  func(c *Config) { c.PollTimeout = -1 },
			wantErr: true,
		},
		{
			name:    "negative duration",
			modify:  func(c *Config) { c.Duration = -time.Second },
			wantErr: true,
		},
		{
			name:    "zero duration runs until interrupted",
			modify:  func(c *Config) { c.Duration = 0 },
			wantErr: false,
		},
		{
			name: "join timeout equal to relay worst case",
			modify: func(c *Config) {
				c.RelayWaitPeriod = 2 * time.Second
				c.RelayPublishTimeout = 6 * time.Second
				c.RelayJoinTimeout = 10 * time.Second
			},
			wantErr: true,
		},
		{
			name: "relay wait period widened past join timeout",
			modify: func(c *Config) {
				c.RelayWaitPeriod = 20 * time.Second
			},
			wantErr: true,
		},
		{
			name: "influx without bucket",
			modify: func(c *Config) {
				c.InfluxURL = "http://localhost:8086"
				c.InfluxOrg = "edge"
			},
			wantErr: true,
		},
		{
			name: "influx complete",
			modify: func(c *Config) {
				c.InfluxURL = "http://localhost:8086"
				c.InfluxOrg = "edge"
				c.InfluxBucket = "samples"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("Validate() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	tests := []struct {
		name       string
		broker     string
		probe      string
		wantBroker string
		wantProbe  string
	}{
		{"tcp default port", "tcp://broker.local", "", "tcp://broker.local", "broker.local:1883"},
		{"ssl default port", "ssl://broker.local", "", "ssl://broker.local", "broker.local:8883"},
		{"explicit port", "tcp://10.0.0.2:2883", "", "tcp://10.0.0.2:2883", "10.0.0.2:2883"},
		{"explicit probe target", "tcp://broker.local", "gw.local:53", "tcp://broker.local", "gw.local:53"},
		{"broker defaults when omitted", "", "", DefaultBroker, "localhost:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Broker = tt.broker
			cfg.ProbeTarget = tt.probe
			cfg.Realm = ""

			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate failed: %v", err)
			}
			if cfg.Broker != tt.wantBroker {
				t.Errorf("Broker = %v, want %v", cfg.Broker, tt.wantBroker)
			}
			if cfg.ProbeTarget != tt.wantProbe {
				t.Errorf("ProbeTarget = %v, want %v", cfg.ProbeTarget, tt.wantProbe)
			}
			if cfg.Realm != DefaultRealm {
				t.Errorf("Realm = %v, want %v", cfg.Realm, DefaultRealm)
			}
		})
	}
}

func TestConfig_Features(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = true
	cfg.OTARelay = false
	cfg.MetricsAddr = ":9100"

	got := cfg.Features()
	want := Features{OTARelay: false, TLS: true, Mirror: false, Metrics: true}
	if got != want {
		t.Errorf("Features() = %+v, want %+v", got, want)
	}

	cfg.InfluxURL = "http://localhost:8086"
	if !cfg.Features().Mirror {
		t.Error("Features().Mirror = false with influx url set")
	}
}
