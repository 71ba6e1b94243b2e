package app

import (
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/eventbus"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Default OTA relay bounds. The join timeout of the relay must exceed
// 2*WaitPeriod + PublishTimeout: one wait, one read and one publish may be in
// flight when termination is raised.
const (
	DefaultRelayWaitPeriod     = 500 * time.Millisecond
	DefaultRelayPublishTimeout = time.Second
	DefaultRelayQueueSize      = 5
)

// RelayConfig contains the bounds of the OTA relay loop.
type RelayConfig struct {
	// WaitPeriod bounds both the notification wait and the channel read.
	WaitPeriod time.Duration

	// PublishTimeout bounds the publish of a reboot confirmation.
	PublishTimeout time.Duration

	// QueueSize is the notification queue depth of the relay subscription.
	QueueSize int
}

// WorstCaseExit returns the longest time the relay may take to observe termination.
func (c RelayConfig) WorstCaseExit() time.Duration {
	return 2*c.WaitPeriod + c.PublishTimeout
}

// OTARelay relays OTA lifecycle notifications and confirms pending reboots.
type OTARelay struct {
	config  RelayConfig
	channel *eventbus.Channel[domain.OTAEvent]
	sub     *eventbus.Subscriber
	flags   *domain.Flags
	logger  ports.Logger
	emitter OTAEventEmitter
}

// NewOTARelay creates a relay and subscribes it to channel immediately, so no
// notification published after this call is missed.
func NewOTARelay(
	config RelayConfig,
	channel *eventbus.Channel[domain.OTAEvent],
	flags *domain.Flags,
	logger ports.Logger,
	emitter OTAEventEmitter,
) *OTARelay {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultRelayQueueSize
	}
	if emitter == nil {
		emitter = NopEmitter{}
	}

	sub := eventbus.NewSubscriber(config.QueueSize)
	channel.AddObserver(sub)

	return &OTARelay{
		config:  config,
		channel: channel,
		sub:     sub,
		flags:   flags,
		logger:  logger,
		emitter: emitter,
	}
}

// Run listens on the OTA channel until termination is observed.
func (r *OTARelay) Run() {
	defer r.channel.RemoveObserver(r.sub)

	for !r.flags.Terminating() {
		r.listen(r.config.WaitPeriod)
	}
	r.logger.Debug("OTA relay exiting")
}

// listen waits up to timeout for a notification and handles the event it announces.
// The same timeout bounds the read.
func (r *OTARelay) listen(timeout time.Duration) {
	n, ok := r.sub.Wait(timeout)
	if !ok || n != eventbus.Notifier(r.channel) {
		return
	}

	ev, err := r.channel.Read(timeout)
	if err != nil {
		r.logger.Warn("failed reading OTA channel", ports.Err(err))
		return
	}
	r.handle(ev)
}

func (r *OTARelay) handle(ev domain.OTAEvent) {
	r.emitter.OnOTAEvent(ev.Kind)

	switch ev.Kind {
	case domain.OTAInit, domain.OTAConfirmReboot, domain.OTAFailed, domain.OTASuccess:
		r.logger.Warn("OTA event received",
			ports.String("event", ev.Kind.String()),
			ports.String("id", ev.ID),
		)
	case domain.OTAPendingReboot:
		r.logger.Warn("OTA event received, confirming reboot",
			ports.String("event", ev.Kind.String()),
			ports.String("id", ev.ID),
		)
		confirm := domain.OTAEvent{Kind: domain.OTAConfirmReboot, ID: ev.ID}
		err := r.channel.Publish(confirm, r.config.PublishTimeout)
		if err != nil {
			r.logger.Error("failed publishing reboot confirmation", ports.Err(err))
		}
		r.emitter.OnRebootConfirmed(ev.ID, err)
	default:
		r.logger.Warn("invalid OTA event received", ports.String("id", ev.ID))
	}
}
