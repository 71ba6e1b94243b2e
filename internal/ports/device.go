package ports

import (
	"context"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/eventbus"
)

// DeviceClient creates managed device handles for the telemetry/management backend.
type DeviceClient interface {
	// Create builds a device handle from the configuration. No network
	// activity happens until Start.
	Create(cfg DeviceConfig) (Device, error)
}

// Device is a managed telemetry device handle.
//
// The handle is exclusively owned by the goroutine that created it. Only
// Transport may be used from other goroutines.
type Device interface {
	// Start connects the device to the backend, bounded by DeviceConfig.ConnectTimeout.
	Start() error

	// Poll performs one bounded unit of device work: dispatching connection
	// events to the ConnectionHandler and running scheduled telemetry.
	// Any error is fatal for the device.
	Poll() error

	// Stop disconnects the device. It waits until ctx is done.
	Stop(ctx context.Context) error

	// Destroy releases the handle. It must be called exactly once.
	Destroy()

	// Transport returns the thread-safe publishing side of the device.
	Transport() Transport
}

// Transport publishes individual telemetry datapoints.
// Implementations must be safe for concurrent use.
type Transport interface {
	// SendIndividual publishes one datapoint on interface/endpoint with an explicit timestamp.
	SendIndividual(ctx context.Context, iface, endpoint string, value float64, ts time.Time) error
}

// ConnectionHandler receives backend connection events.
//
// Methods may be called from any goroutine, concurrently with the device's
// poll loop, and must only touch atomic state.
type ConnectionHandler interface {
	OnConnect()
	OnDisconnect()
}

// Interface identifies a device-owned datastream interface and its single endpoint.
type Interface struct {
	Name         string
	MajorVersion int
	MinorVersion int
	Endpoint     string
}

// DeviceConfig holds everything a DeviceClient needs to create a device.
type DeviceConfig struct {
	DeviceID         string
	CredentialSecret string

	ConnectTimeout time.Duration
	PollTimeout    time.Duration
	PublishTimeout time.Duration

	// TelemetryPeriod is the cadence of the device-management system status telemetry.
	// Zero disables it.
	TelemetryPeriod time.Duration

	Interfaces []Interface
	Handler    ConnectionHandler

	// OTAChannel carries OTA lifecycle notifications between the device and the core.
	// Nil disables OTA handling in the device.
	OTAChannel *eventbus.Channel[domain.OTAEvent]
}
