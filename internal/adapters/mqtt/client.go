package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Config contains the broker settings shared by every device of a client.
type Config struct {
	// Broker is the broker URL, e.g. tcp://localhost:1883 or ssl://broker:8883.
	Broker string

	// Realm is the first topic level of every device topic.
	Realm string

	// QoS used for datapoints and OTA confirmations.
	QoS byte

	KeepAlive time.Duration

	// TLSConfig, when set, is called on every Create to obtain the TLS settings.
	TLSConfig func() *tls.Config
}

// Client creates MQTT-backed devices. It implements ports.DeviceClient.
type Client struct {
	config     Config
	logger     ports.Logger
	newSession sessionFactory
	now        func() time.Time
}

// NewClient creates a new device client.
func NewClient(config Config, logger ports.Logger) *Client {
	return &Client{
		config:     config,
		logger:     logger,
		newSession: newPahoSession,
		now:        time.Now,
	}
}

// Create builds a device from dc. No network activity happens before Start.
func (c *Client) Create(dc ports.DeviceConfig) (ports.Device, error) {
	if dc.DeviceID == "" {
		return nil, fmt.Errorf("%w: device id is required", domain.ErrInvalidConfig)
	}
	if c.config.Broker == "" {
		return nil, fmt.Errorf("%w: broker is required", domain.ErrInvalidConfig)
	}
	if c.config.QoS > 2 {
		return nil, fmt.Errorf("%w: qos %d", domain.ErrInvalidConfig, c.config.QoS)
	}

	d := newDevice(c, dc)

	var tlsConfig *tls.Config
	if c.config.TLSConfig != nil {
		tlsConfig = c.config.TLSConfig()
	}

	d.session = c.newSession(sessionOptions{
		Broker:           c.config.Broker,
		ClientID:         dc.DeviceID,
		Username:         dc.DeviceID,
		Password:         dc.CredentialSecret,
		TLS:              tlsConfig,
		KeepAlive:        c.config.KeepAlive,
		ConnectTimeout:   dc.ConnectTimeout,
		OnConnect:        d.onConnect,
		OnConnectionLost: d.onConnectionLost,
	})

	return d, nil
}

var _ ports.DeviceClient = (*Client)(nil)
