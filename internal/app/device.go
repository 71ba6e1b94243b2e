package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/eventbus"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// DeviceRunnerConfig contains configuration for the device lifecycle goroutine.
type DeviceRunnerConfig struct {
	// Device is passed to DeviceClient.Create. Handler and OTAChannel are filled in by the runner.
	Device ports.DeviceConfig

	// PollPeriod is the cadence of Device.Poll while polling.
	PollPeriod time.Duration

	// OTARelay spawns the OTA relay once the device has started.
	OTARelay bool
	Relay    RelayConfig

	// RelayJoinTimeout bounds the wait for the relay on exit.
	RelayJoinTimeout time.Duration
}

// DeviceRunner owns the managed device from creation to destruction.
// It is the ConnectionHandler of the device it creates.
type DeviceRunner struct {
	config     DeviceRunnerConfig
	client     ports.DeviceClient
	flags      *domain.Flags
	lifecycle  *Lifecycle
	otaChannel *eventbus.Channel[domain.OTAEvent]
	logger     ports.Logger
	emitter    Emitter

	transport    atomic.Pointer[transportRef]
	relayStarted bool
}

type transportRef struct {
	ports.Transport
}

// NewDeviceRunner creates a new device runner. otaChannel may be nil when no
// OTA relay is wanted.
func NewDeviceRunner(
	config DeviceRunnerConfig,
	client ports.DeviceClient,
	flags *domain.Flags,
	otaChannel *eventbus.Channel[domain.OTAEvent],
	logger ports.Logger,
	emitter Emitter,
) *DeviceRunner {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &DeviceRunner{
		config:     config,
		client:     client,
		flags:      flags,
		lifecycle:  NewLifecycle(logger, emitter),
		otaChannel: otaChannel,
		logger:     logger,
		emitter:    emitter,
	}
}

// State returns the current lifecycle state of the managed device.
func (r *DeviceRunner) State() State {
	return r.lifecycle.State()
}

// Run drives the device through create, start, poll, stop and destroy.
// It blocks until the device is gone. On every exit path it sets the
// termination flag and waits a bounded time for the OTA relay.
func (r *DeviceRunner) Run() error {
	defer r.finish()

	cfg := r.config.Device
	cfg.Handler = r
	cfg.OTAChannel = r.otaChannel

	device, err := r.client.Create(cfg)
	if err != nil {
		r.logger.Error("unable to create device handle", ports.Err(err))
		_ = r.lifecycle.TransitionTo(StateError, "create failed")
		return fmt.Errorf("%w: %w", domain.ErrDeviceCreate, err)
	}

	if err := device.Start(); err != nil {
		r.logger.Error("unable to start device", ports.Err(err))
		_ = r.lifecycle.TransitionTo(StateError, "start failed")
		r.destroy(device, "cleanup after start failure")
		return fmt.Errorf("%w: %w", domain.ErrDeviceStart, err)
	}
	_ = r.lifecycle.TransitionTo(StateStarted, "device started")
	r.transport.Store(&transportRef{device.Transport()})

	if r.config.OTARelay {
		r.startRelay()
	}

	_ = r.lifecycle.TransitionTo(StatePolling, "entering poll loop")
	runErr := r.poll(device)

	reason := "termination requested"
	if runErr != nil {
		reason = "poll failure"
	}
	_ = r.lifecycle.TransitionTo(StateStopping, reason)

	r.logger.Info("stopping device")
	if err := device.Stop(context.Background()); err != nil {
		r.logger.Error("unable to stop the device", ports.Err(err))
		runErr = errors.Join(runErr, fmt.Errorf("%w: %w", domain.ErrDeviceStop, err))
	}

	r.destroy(device, "device stopped")
	return runErr
}

// poll calls Device.Poll once per PollPeriod until termination is observed.
// A poll failure is not retried.
func (r *DeviceRunner) poll(device ports.Device) error {
	for !r.flags.Terminating() {
		next := time.Now().Add(r.config.PollPeriod)

		if err := device.Poll(); err != nil {
			r.logger.Error("device poll failure", ports.Err(err))
			return fmt.Errorf("%w: %w", domain.ErrDevicePoll, err)
		}

		time.Sleep(time.Until(next))
	}
	return nil
}

func (r *DeviceRunner) destroy(device ports.Device, reason string) {
	r.transport.Store(nil)
	r.logger.Info("device will now be destroyed")
	device.Destroy()
	_ = r.lifecycle.TransitionTo(StateDestroyed, reason)
}

func (r *DeviceRunner) startRelay() {
	if r.otaChannel == nil {
		r.logger.Warn("OTA relay enabled without an OTA channel, not starting it")
		return
	}

	relay := NewOTARelay(r.config.Relay, r.otaChannel, r.flags, r.logger, r.emitter)
	r.relayStarted = true
	r.lifecycle.AddWorker()
	go func() {
		defer r.lifecycle.WorkerDone()
		relay.Run()
	}()
}

func (r *DeviceRunner) finish() {
	r.flags.Set(domain.FlagTermination)

	if !r.relayStarted {
		return
	}
	if err := r.lifecycle.WaitWithTimeout(r.config.RelayJoinTimeout); err != nil {
		r.logger.Error("failed waiting for the OTA relay to terminate", ports.Err(err))
	}
}

// Transport returns the publishing side of the live device.
// Returns ErrNoDevice before start and after destroy.
func (r *DeviceRunner) Transport() (ports.Transport, error) {
	ref := r.transport.Load()
	if ref == nil {
		return nil, domain.ErrNoDevice
	}
	return ref.Transport, nil
}

// OnConnect is called by the device, from any goroutine, when the backend connection is up.
func (r *DeviceRunner) OnConnect() {
	r.logger.Info("device connected")
	r.flags.Set(domain.FlagConnected)
}

// OnDisconnect is called by the device, from any goroutine, when the backend connection is lost.
func (r *DeviceRunner) OnDisconnect() {
	r.logger.Info("device disconnected")
	r.flags.Clear(domain.FlagConnected)
}

var _ ports.ConnectionHandler = (*DeviceRunner)(nil)
