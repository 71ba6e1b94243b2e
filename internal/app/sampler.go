package app

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Tick skip reasons reported to the TelemetryEventEmitter.
const (
	SkipNotConnected = "not_connected"
	SkipNoTransport  = "no_transport"
)

// TransportSource hands out the publishing side of the managed device.
type TransportSource interface {
	Transport() (ports.Transport, error)
}

// SamplerConfig contains configuration for the periodic sampler.
type SamplerConfig struct {
	Period         time.Duration
	PublishTimeout time.Duration

	CPUInterface         string
	CPUEndpoint          string
	TemperatureInterface string
	TemperatureEndpoint  string
}

// Sampler samples CPU utilization and die temperature on a fixed period and
// publishes both while the device is connected.
type Sampler struct {
	config  SamplerConfig
	flags   *domain.Flags
	source  TransportSource
	cpu     ports.CPUStats
	sensor  ports.TemperatureSensor
	clock   ports.Clock
	sink    ports.SampleSink
	logger  ports.Logger
	emitter TelemetryEventEmitter

	// prev is only touched from the ticking goroutine.
	prev domain.CPUCounters

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSampler creates a new sampler with the given dependencies. sink may be nil.
func NewSampler(
	config SamplerConfig,
	flags *domain.Flags,
	source TransportSource,
	cpu ports.CPUStats,
	sensor ports.TemperatureSensor,
	clock ports.Clock,
	sink ports.SampleSink,
	logger ports.Logger,
	emitter TelemetryEventEmitter,
) *Sampler {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Sampler{
		config:  config,
		flags:   flags,
		source:  source,
		cpu:     cpu,
		sensor:  sensor,
		clock:   clock,
		sink:    sink,
		logger:  logger,
		emitter: emitter,
	}
}

// Start begins ticking every config.Period in a background goroutine.
// Ticking ends on Stop, when ctx is done, or once termination is observed.
// Neither Stop nor ctx cancels a tick in flight; its publishes stay bounded
// by config.PublishTimeout.
func (s *Sampler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	tickCtx := context.WithoutCancel(ctx)

	go func(stop <-chan struct{}, done chan struct{}) {
		defer close(done)

		ticker := time.NewTicker(s.config.Period)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case <-stop:
					return
				default:
				}
				if s.flags.Terminating() {
					return
				}
				s.Tick(tickCtx)
			}
		}
	}(s.stop, s.done)
}

// Stop prevents further ticks and waits for an in-flight tick to finish.
func (s *Sampler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Tick performs one sampling round. Every failure is isolated to its own step.
func (s *Sampler) Tick(ctx context.Context) {
	if !s.flags.Test(domain.FlagConnected) {
		s.logger.Warn("skipping stats transmission, device is not connected")
		s.emitter.OnTickSkipped(SkipNotConnected)
		return
	}

	now, err := s.clock.Now()
	if err != nil {
		s.logger.Error("failed getting time", ports.Err(err))
	}

	transport, err := s.source.Transport()
	if err != nil {
		s.logger.Error("no device transport", ports.Err(err))
		s.emitter.OnTickSkipped(SkipNoTransport)
		return
	}

	s.sampleCPU(ctx, transport, now)
	s.sampleTemperature(ctx, transport, now)
}

// sampleCPU computes utilization against the previous counters.
// The first reading, and the first reading after the platform counters went
// backwards, is computed against zero and so covers the whole uptime rather
// than the last period; it is flagged Bootstrap instead of being dropped.
func (s *Sampler) sampleCPU(ctx context.Context, transport ports.Transport, now time.Time) {
	counters, err := s.cpu.CPUCounters()
	if err != nil {
		s.logger.Error("failed reading CPU stats", ports.Err(err))
		return
	}

	if s.prev.ResetBy(counters) {
		s.logger.Warn("CPU counters went backwards, restarting from zero",
			ports.Uint64("prev_busy", s.prev.Busy),
			ports.Uint64("prev_execution", s.prev.Execution),
		)
		s.prev = domain.CPUCounters{}
	}
	bootstrap := s.prev.Zero()

	usage, ok := counters.Usage(s.prev)
	s.prev = counters
	if !ok {
		s.logger.Warn("no CPU cycles elapsed since last sample")
		return
	}

	if bootstrap {
		s.logger.Info("CPU usage computed against absolute counters, reduced confidence",
			ports.Float64("usage", usage))
	} else {
		s.logger.Info("CPU usage", ports.Float64("usage", usage))
	}

	s.publish(ctx, transport, domain.Sample{
		Interface: s.config.CPUInterface,
		Endpoint:  s.config.CPUEndpoint,
		Value:     usage,
		Timestamp: now,
		Bootstrap: bootstrap,
	})
}

func (s *Sampler) sampleTemperature(ctx context.Context, transport ports.Transport, now time.Time) {
	temp, err := s.sensor.DieTemperature()
	if err != nil {
		s.logger.Error("failed to fetch temperature sample", ports.Err(err))
		return
	}

	s.logger.Info("CPU die temperature", ports.Float64("celsius", temp))

	s.publish(ctx, transport, domain.Sample{
		Interface: s.config.TemperatureInterface,
		Endpoint:  s.config.TemperatureEndpoint,
		Value:     temp,
		Timestamp: now,
	})
}

func (s *Sampler) publish(ctx context.Context, transport ports.Transport, sample domain.Sample) {
	if s.sink != nil {
		s.sink.Record(sample)
	}

	publishCtx := ctx
	if s.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, s.config.PublishTimeout)
		defer cancel()
	}

	err := transport.SendIndividual(publishCtx, sample.Interface, sample.Endpoint, sample.Value, sample.Timestamp)
	if err != nil {
		s.logger.Error("device transmission failure",
			ports.Err(err),
			ports.String("interface", sample.Interface),
			ports.String("endpoint", sample.Endpoint),
		)
		s.emitter.OnPublishError(sample.Interface, sample.Endpoint, err)
		return
	}
	s.emitter.OnPublishSuccess(sample.Interface, sample.Endpoint, sample.Value)
}
