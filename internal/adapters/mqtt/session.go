package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 30 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// session is the broker connection used by a device.
type session interface {
	Connect(timeout time.Duration) error
	Publish(topic string, qos byte, payload []byte, timeout time.Duration) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte), timeout time.Duration) error
	Disconnect(quiesce uint)
}

// sessionOptions configures a session.
type sessionOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TLS            *tls.Config
	KeepAlive      time.Duration
	ConnectTimeout time.Duration

	OnConnect        func()
	OnConnectionLost func(err error)
}

// sessionFactory creates a session; replaced in tests.
type sessionFactory func(opts sessionOptions) session

// pahoSession implements session with paho.mqtt.golang.
type pahoSession struct {
	client pahomqtt.Client
}

func newPahoSession(o sessionOptions) session {
	return &pahoSession{client: pahomqtt.NewClient(buildClientOptions(o))}
}

// buildClientOptions creates paho MQTT options.
// Paho reconnects by itself after a connection loss; the initial connect is not retried.
func buildClientOptions(o sessionOptions) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(o.Broker)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(false)

	keepAlive := o.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)
	if o.ConnectTimeout > 0 {
		opts.SetConnectTimeout(o.ConnectTimeout)
	}

	if o.TLS != nil {
		tlsConfig := o.TLS.Clone()
		if tlsConfig.MinVersion < tlsMinVersion {
			tlsConfig.MinVersion = tlsMinVersion
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		if o.OnConnect != nil {
			o.OnConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		if o.OnConnectionLost != nil {
			o.OnConnectionLost(err)
		}
	})

	return opts
}

func (s *pahoSession) Connect(timeout time.Duration) error {
	return wait(s.client.Connect(), timeout)
}

func (s *pahoSession) Publish(topic string, qos byte, payload []byte, timeout time.Duration) error {
	return wait(s.client.Publish(topic, qos, false, payload), timeout)
}

func (s *pahoSession) Subscribe(topic string, qos byte, handler func(topic string, payload []byte), timeout time.Duration) error {
	token := s.client.Subscribe(topic, qos, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	return wait(token, timeout)
}

func (s *pahoSession) Disconnect(quiesce uint) {
	s.client.Disconnect(quiesce)
}

func wait(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}
