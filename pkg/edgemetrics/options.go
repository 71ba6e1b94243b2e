package edgemetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/edgemetrics/internal/app"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Re-exported collaborator interfaces.
type (
	Logger            = ports.Logger
	LogField          = ports.Field
	DeviceClient      = ports.DeviceClient
	Connectivity      = ports.Connectivity
	CPUStats          = ports.CPUStats
	TemperatureSensor = ports.TemperatureSensor
	Clock             = ports.Clock
	TimeSync          = ports.TimeSync
	SampleSink        = ports.SampleSink
	Emitter           = app.Emitter
)

// Option configures optional behavior of an Agent.
type Option func(*options)

type options struct {
	logger       ports.Logger
	emitter      app.Emitter
	registry     *prometheus.Registry
	deviceClient ports.DeviceClient
	connectivity ports.Connectivity
	cpu          ports.CPUStats
	temperature  ports.TemperatureSensor
	clock        ports.Clock
	timeSync     ports.TimeSync
	sink         ports.SampleSink
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEmitter receives agent events in addition to the built-in metrics.
// Events are called synchronously from the emitting goroutine.
func WithEmitter(emitter Emitter) Option {
	return func(o *options) {
		o.emitter = emitter
	}
}

// WithRegistry registers the agent metrics on reg. Without it a private
// registry is created when MetricsAddr is set.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(o *options) {
		o.registry = reg
	}
}

// WithDeviceClient replaces the MQTT device client.
func WithDeviceClient(client DeviceClient) Option {
	return func(o *options) {
		o.deviceClient = client
	}
}

// WithConnectivity replaces the host network link checks.
func WithConnectivity(c Connectivity) Option {
	return func(o *options) {
		o.connectivity = c
	}
}

// WithCPUStats replaces the /proc/stat reader.
func WithCPUStats(cpu CPUStats) Option {
	return func(o *options) {
		o.cpu = cpu
	}
}

// WithTemperatureSensor replaces the thermal zone sensor.
func WithTemperatureSensor(sensor TemperatureSensor) Option {
	return func(o *options) {
		o.temperature = sensor
	}
}

// WithClock replaces the NTP-corrected clock used to timestamp samples.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithTimeSync replaces the startup time synchronization.
func WithTimeSync(ts TimeSync) Option {
	return func(o *options) {
		o.timeSync = ts
	}
}

// WithSampleSink replaces the InfluxDB mirror.
func WithSampleSink(sink SampleSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}
