package edgemetrics

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/edgemetrics/internal/adapters/credentials"
	"github.com/bft-labs/edgemetrics/internal/adapters/influx"
	logAdapter "github.com/bft-labs/edgemetrics/internal/adapters/log"
	"github.com/bft-labs/edgemetrics/internal/adapters/mqtt"
	"github.com/bft-labs/edgemetrics/internal/adapters/netlink"
	"github.com/bft-labs/edgemetrics/internal/adapters/prom"
	"github.com/bft-labs/edgemetrics/internal/adapters/sntp"
	"github.com/bft-labs/edgemetrics/internal/adapters/sysfs"
	"github.com/bft-labs/edgemetrics/internal/app"
	"github.com/bft-labs/edgemetrics/internal/cliconfig"
	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Config holds the agent configuration.
type Config = cliconfig.Config

// DefaultConfig returns a Config with default values. DeviceID must be set.
func DefaultConfig() Config {
	return cliconfig.DefaultConfig()
}

// Agent is a device telemetry agent that can be embedded in other applications.
type Agent struct {
	config   Config
	features cliconfig.Features
	opts     options
	logger   ports.Logger

	trust   *credentials.Store
	metrics *prom.Metrics
	emitter app.Emitter
	orch    atomic.Pointer[app.Orchestrator]
}

// New creates an agent. The configuration is validated and every optional
// subsystem is decided here; no I/O happens until Run.
func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logAdapter.NewNoopLogger()
	}
	logger := o.logger

	a := &Agent{
		config:   cfg,
		features: cfg.Features(),
		opts:     o,
		logger:   logger,
	}

	if a.features.TLS {
		a.trust = credentials.NewStore(logger, cfg.CAFile, cfg.OTACAFile)
	}

	if o.deviceClient == nil {
		mc := mqtt.Config{
			Broker: cfg.Broker,
			Realm:  cfg.Realm,
			QoS:    byte(cfg.QoS),
		}
		if a.trust != nil {
			mc.TLSConfig = a.trust.TLSConfig
		}
		o.deviceClient = mqtt.NewClient(mc, logger)
	}
	if o.connectivity == nil {
		o.connectivity = netlink.New(netlink.Config{
			Interface:   cfg.Iface,
			Target:      cfg.ProbeTarget,
			LinkTimeout: cfg.LinkTimeout,
		}, logger)
	}
	if o.cpu == nil {
		cpu, err := sysfs.NewCPUStats(cfg.ProcRoot)
		if err != nil {
			return nil, err
		}
		o.cpu = cpu
	}
	if o.temperature == nil {
		thermal, err := sysfs.NewThermal(cfg.SysRoot, cfg.ThermalZone)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSensorNotReady, err)
		}
		o.temperature = thermal
	}
	if o.clock == nil || o.timeSync == nil {
		clock := sntp.New(sntp.Config{Server: cfg.NTPServer}, logger)
		if o.clock == nil {
			o.clock = clock
		}
		if o.timeSync == nil {
			o.timeSync = clock
		}
	}

	if a.features.Metrics && o.registry == nil {
		o.registry = prometheus.NewRegistry()
	}
	var emitters multiEmitter
	if o.registry != nil {
		a.metrics = prom.NewMetrics(o.registry)
		emitters = append(emitters, a.metrics)
	}
	if o.emitter != nil {
		emitters = append(emitters, o.emitter)
	}
	switch len(emitters) {
	case 0:
		a.emitter = app.NopEmitter{}
	case 1:
		a.emitter = emitters[0]
	default:
		a.emitter = emitters
	}

	a.opts = o
	return a, nil
}

// Features returns the optional subsystems enabled for this agent.
func (a *Agent) Features() cliconfig.Features {
	return a.features
}

// Registry returns the registry holding the agent metrics, or nil when metrics are disabled.
func (a *Agent) Registry() *prometheus.Registry {
	return a.opts.registry
}

// DeviceState returns the lifecycle state of the managed device, or
// StateCreated before Run.
func (a *Agent) DeviceState() app.State {
	orch := a.orch.Load()
	if orch == nil {
		return app.StateCreated
	}
	return orch.DeviceState()
}

// Run starts the optional subsystems and runs the agent until cfg.Duration
// elapses, ctx is done or the device fails. Only startup failures are returned.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	sink := a.opts.sink
	if sink == nil && a.features.Mirror {
		mirror, err := influx.Connect(ctx, influx.Config{
			URL:    a.config.InfluxURL,
			Token:  a.config.InfluxToken,
			Org:    a.config.InfluxOrg,
			Bucket: a.config.InfluxBucket,
		}, a.config.DeviceID, a.logger)
		if err != nil {
			a.logger.Warn("sample mirror disabled", ports.Err(err))
		} else {
			defer func() {
				if err := mirror.Close(); err != nil {
					a.logger.Warn("close sample mirror", ports.Err(err))
				}
			}()
			sink = mirror
		}
	}

	if a.features.Metrics {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := prom.Serve(ctx, a.config.MetricsAddr, a.opts.registry, a.logger); err != nil {
				a.logger.Error("metrics server failed", ports.Err(err))
			}
		}()
	}

	deps := app.Dependencies{
		Connectivity: a.opts.connectivity,
		DeviceClient: a.opts.deviceClient,
		CPU:          a.opts.cpu,
		Temperature:  a.opts.temperature,
		Clock:        a.opts.clock,
		TimeSync:     a.opts.timeSync,
		Sink:         sink,
		Logger:       a.logger,
		Emitter:      a.emitter,
	}
	if a.trust != nil {
		deps.Trust = a.trust
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.trust.Watch(ctx); err != nil {
				a.logger.Warn("CA watcher stopped", ports.Err(err))
			}
		}()
	}

	orch := app.New(a.appConfig(), deps)
	a.orch.Store(orch)
	return orch.Run(ctx)
}

func (a *Agent) appConfig() app.Config {
	cfg := a.config
	return app.Config{
		Device: ports.DeviceConfig{
			DeviceID:         cfg.DeviceID,
			CredentialSecret: cfg.CredentialSecret,
			ConnectTimeout:   cfg.ConnectTimeout,
			PollTimeout:      cfg.PollTimeout,
			PublishTimeout:   cfg.PublishTimeout,
			TelemetryPeriod:  cfg.TelemetryPeriod,
			Interfaces: []ports.Interface{
				{
					Name:         cliconfig.DefaultCPUInterface,
					MinorVersion: 1,
					Endpoint:     cliconfig.DefaultCPUEndpoint,
				},
				{
					Name:         cliconfig.DefaultTemperatureInterface,
					MinorVersion: 1,
					Endpoint:     cliconfig.DefaultTemperatureEndpoint,
				},
			},
		},
		Sampler: app.SamplerConfig{
			Period:               cfg.SamplePeriod,
			PublishTimeout:       cfg.PublishTimeout,
			CPUInterface:         cliconfig.DefaultCPUInterface,
			CPUEndpoint:          cliconfig.DefaultCPUEndpoint,
			TemperatureInterface: cliconfig.DefaultTemperatureInterface,
			TemperatureEndpoint:  cliconfig.DefaultTemperatureEndpoint,
		},
		Relay: app.RelayConfig{
			WaitPeriod:     cfg.RelayWaitPeriod,
			PublishTimeout: cfg.RelayPublishTimeout,
			QueueSize:      app.DefaultRelayQueueSize,
		},
		DevicePollPeriod: cfg.DevicePollPeriod,
		RelayJoinTimeout: cfg.RelayJoinTimeout,
		RunDuration:      cfg.Duration,
		SupervisorPeriod: cfg.SupervisorPeriod,
		Features: app.Features{
			OTARelay: a.features.OTARelay,
			TLS:      a.features.TLS,
		},
	}
}

// multiEmitter forwards every event to each emitter in order.
type multiEmitter []app.Emitter

func (m multiEmitter) OnStateChange(previous, current app.State, reason string) {
	for _, e := range m {
		e.OnStateChange(previous, current, reason)
	}
}

func (m multiEmitter) OnPublishSuccess(iface, endpoint string, value float64) {
	for _, e := range m {
		e.OnPublishSuccess(iface, endpoint, value)
	}
}

func (m multiEmitter) OnPublishError(iface, endpoint string, err error) {
	for _, e := range m {
		e.OnPublishError(iface, endpoint, err)
	}
}

func (m multiEmitter) OnTickSkipped(reason string) {
	for _, e := range m {
		e.OnTickSkipped(reason)
	}
}

func (m multiEmitter) OnOTAEvent(kind domain.OTAKind) {
	for _, e := range m {
		e.OnOTAEvent(kind)
	}
}

func (m multiEmitter) OnRebootConfirmed(id string, err error) {
	for _, e := range m {
		e.OnRebootConfirmed(id, err)
	}
}
