package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/eventbus"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// OTAChannelName is the name of the OTA lifecycle event channel.
const OTAChannelName = "ota_event_chan"

// Features holds the optional behaviours of the agent, evaluated once at startup.
type Features struct {
	OTARelay bool
	TLS      bool
}

// Config contains configuration for the orchestrator.
type Config struct {
	Device  ports.DeviceConfig
	Sampler SamplerConfig
	Relay   RelayConfig

	DevicePollPeriod time.Duration
	RelayJoinTimeout time.Duration

	// RunDuration is how long the supervisory loop runs. Zero runs until ctx is done.
	RunDuration time.Duration

	// SupervisorPeriod is the cadence of the connectivity health check.
	SupervisorPeriod time.Duration

	Features Features
}

// Dependencies are the collaborators consumed by the orchestrator.
// Trust, TimeSync, Sink and Emitter are optional.
type Dependencies struct {
	Connectivity ports.Connectivity
	DeviceClient ports.DeviceClient
	CPU          ports.CPUStats
	Temperature  ports.TemperatureSensor
	Clock        ports.Clock
	TimeSync     ports.TimeSync
	Trust        ports.TrustProvisioner
	Sink         ports.SampleSink
	Logger       ports.Logger
	Emitter      Emitter
}

// Orchestrator brings the agent up, supervises it and tears it down.
type Orchestrator struct {
	config     Config
	deps       Dependencies
	flags      *domain.Flags
	otaChannel *eventbus.Channel[domain.OTAEvent]
	runner     *DeviceRunner
	sampler    *Sampler
}

// New creates a new orchestrator. The OTA channel exists from construction so
// that other components can observe it before Run.
func New(config Config, deps Dependencies) *Orchestrator {
	if deps.Emitter == nil {
		deps.Emitter = NopEmitter{}
	}

	flags := &domain.Flags{}
	otaChannel := eventbus.NewChannel[domain.OTAEvent](OTAChannelName)

	runner := NewDeviceRunner(DeviceRunnerConfig{
		Device:           config.Device,
		PollPeriod:       config.DevicePollPeriod,
		OTARelay:         config.Features.OTARelay,
		Relay:            config.Relay,
		RelayJoinTimeout: config.RelayJoinTimeout,
	}, deps.DeviceClient, flags, otaChannel, deps.Logger, deps.Emitter)

	sampler := NewSampler(config.Sampler, flags, runner, deps.CPU, deps.Temperature,
		deps.Clock, deps.Sink, deps.Logger, deps.Emitter)

	return &Orchestrator{
		config:     config,
		deps:       deps,
		flags:      flags,
		otaChannel: otaChannel,
		runner:     runner,
		sampler:    sampler,
	}
}

// Flags returns the shared lifecycle flags.
func (o *Orchestrator) Flags() *domain.Flags {
	return o.flags
}

// OTAChannel returns the OTA lifecycle event channel.
func (o *Orchestrator) OTAChannel() *eventbus.Channel[domain.OTAEvent] {
	return o.otaChannel
}

// DeviceState returns the lifecycle state of the managed device.
func (o *Orchestrator) DeviceState() State {
	return o.runner.State()
}

// Run executes the startup sequence, supervises connectivity and shuts
// everything down. Only startup failures are returned; a device failure
// during the run is logged and the run still ends cleanly.
func (o *Orchestrator) Run(ctx context.Context) error {
	logger := o.deps.Logger

	if !o.deps.Temperature.Ready() {
		logger.Error("temperature sensor not ready")
		return domain.ErrSensorNotReady
	}

	if err := o.deps.Connectivity.Connect(ctx); err != nil {
		logger.Error("connectivity initialization failed", ports.Err(err))
		return fmt.Errorf("%w: %w", domain.ErrConnectivity, err)
	}

	if o.config.Features.TLS && o.deps.Trust != nil {
		if err := o.deps.Trust.Provision(); err != nil {
			logger.Error("TLS trust provisioning failed", ports.Err(err))
		}
	}

	if o.deps.TimeSync != nil {
		if err := o.deps.TimeSync.Sync(ctx); err != nil {
			logger.Warn("time synchronization failed", ports.Err(err))
		}
	}

	o.sampler.Start(ctx)

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- o.runner.Run()
	}()

	logger.Info("agent started",
		ports.Duration("run_duration", o.config.RunDuration),
		ports.Bool("ota_relay", o.config.Features.OTARelay),
		ports.Bool("tls", o.config.Features.TLS),
	)

	o.supervise(ctx)

	logger.Info("shutting down")
	o.sampler.Stop()
	o.flags.Set(domain.FlagTermination)

	if err := <-runnerDone; err != nil {
		logger.Error("device lifecycle ended with error", ports.Err(err))
	}

	logger.Info("agent stopped", ports.String("flags", o.flags.String()))
	return nil
}

// supervise polls connectivity health until the run duration elapses, ctx is
// done or termination is observed.
func (o *Orchestrator) supervise(ctx context.Context) {
	var deadline <-chan time.Time
	if o.config.RunDuration > 0 {
		timer := time.NewTimer(o.config.RunDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(o.config.SupervisorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				o.deps.Logger.Warn("run context ended", ports.Err(ctx.Err()))
			}
			return
		case <-deadline:
			return
		case <-ticker.C:
			if o.flags.Terminating() {
				return
			}
			o.deps.Connectivity.PollHealth()
		}
	}
}
