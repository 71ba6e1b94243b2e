package mqtt

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

const (
	defaultPublishTimeout = time.Second
	confirmQueueSize      = 8
)

const (
	deviceCreated int32 = iota
	deviceStarted
	deviceStopped
	deviceDestroyed
)

// Device is an MQTT-backed managed device. Start, Poll, Stop and Destroy must
// be called from a single owning goroutine; SendIndividual is safe from any
// goroutine.
type Device struct {
	client   *Client
	config   ports.DeviceConfig
	topics   Topics
	session  session
	logger   ports.Logger
	declared map[string]struct{}

	state     atomic.Int32
	connected atomic.Bool

	// Written by paho callbacks, reconciled by Poll.
	linkUp  atomic.Bool
	linkGen atomic.Uint64
	notify  chan struct{}

	confirms       chan domain.OTAEvent
	removeListener func()
	detachOnce     sync.Once

	// Owned by the polling goroutine.
	reported    bool
	reportedGen uint64
	startedAt   time.Time
	lastStatus  time.Time
}

func newDevice(c *Client, dc ports.DeviceConfig) *Device {
	declared := make(map[string]struct{}, len(dc.Interfaces))
	for _, i := range dc.Interfaces {
		declared[i.Name] = struct{}{}
	}
	return &Device{
		client:   c,
		config:   dc,
		topics:   Topics{Realm: c.config.Realm, DeviceID: dc.DeviceID},
		logger:   c.logger,
		declared: declared,
		notify:   make(chan struct{}, 1),
		confirms: make(chan domain.OTAEvent, confirmQueueSize),
	}
}

// Start connects to the broker, bounded by the configured connect timeout,
// and starts relaying OTA confirmations from the OTA channel.
func (d *Device) Start() error {
	if !d.state.CompareAndSwap(deviceCreated, deviceStarted) {
		return ErrAlreadyStarted
	}

	if err := d.session.Connect(d.config.ConnectTimeout); err != nil {
		d.state.Store(deviceStopped)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	d.startedAt = d.client.now()
	if d.config.OTAChannel != nil {
		d.removeListener = d.config.OTAChannel.AddListener(d.onOTAEvent)
	}

	d.logger.Info("device started",
		ports.String("device_id", d.config.DeviceID),
		ports.String("introspection", Introspection(d.config.Interfaces)),
	)
	return nil
}

// Poll processes connection changes, sends pending OTA confirmations and the
// periodic system status. It waits at most PollTimeout for a connection change.
func (d *Device) Poll() error {
	if d.state.Load() != deviceStarted {
		return ErrNotStarted
	}

	d.waitNotify(d.config.PollTimeout)
	d.reconcileConnection()
	d.sendConfirmations()
	d.sendSystemStatus()
	return nil
}

func (d *Device) waitNotify(timeout time.Duration) {
	if timeout <= 0 {
		select {
		case <-d.notify:
		default:
		}
		return
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-d.notify:
	case <-timer.C:
	}
}

// reconcileConnection reports link changes to the connection handler and
// performs the per-connection setup after every (re)connect.
func (d *Device) reconcileConnection() {
	up := d.linkUp.Load()
	gen := d.linkGen.Load()

	if up && gen != d.reportedGen {
		d.reportedGen = gen
		d.setupConnection()
		if !d.reported {
			d.reported = true
			d.connected.Store(true)
			if d.config.Handler != nil {
				d.config.Handler.OnConnect()
			}
		}
		return
	}

	if !up && d.reported {
		d.reported = false
		d.connected.Store(false)
		if d.config.Handler != nil {
			d.config.Handler.OnDisconnect()
		}
	}
}

// setupConnection announces introspection and subscribes to OTA requests.
// Sessions are clean, so both are repeated after every reconnect.
func (d *Device) setupConnection() {
	timeout := d.publishTimeout()

	introspection := Introspection(d.config.Interfaces)
	if err := d.session.Publish(d.topics.Base(), d.client.config.QoS, []byte(introspection), timeout); err != nil {
		d.logger.Error("failed to send introspection", ports.Err(err))
	}

	if d.config.OTAChannel == nil {
		return
	}
	if err := d.session.Subscribe(d.topics.OTARequest(), d.client.config.QoS, d.onOTARequest, timeout); err != nil {
		d.logger.Error("failed to subscribe to OTA requests",
			ports.Err(fmt.Errorf("%w: %w", ErrSubscribeFailed, err)),
			ports.String("topic", d.topics.OTARequest()),
		)
	}
}

func (d *Device) sendConfirmations() {
	for {
		select {
		case ev := <-d.confirms:
			if !d.connected.Load() {
				d.logger.Warn("dropping OTA confirmation, device is not connected", ports.String("id", ev.ID))
				continue
			}
			payload, err := encodeOTAMessage(ev, d.client.now())
			if err != nil {
				d.logger.Error("failed to encode OTA confirmation", ports.Err(err))
				continue
			}
			if err := d.session.Publish(d.topics.OTAConfirm(), d.client.config.QoS, payload, d.publishTimeout()); err != nil {
				d.logger.Error("failed to send OTA confirmation", ports.Err(err), ports.String("id", ev.ID))
				continue
			}
			d.logger.Info("OTA reboot confirmed", ports.String("id", ev.ID))
		default:
			return
		}
	}
}

func (d *Device) sendSystemStatus() {
	if d.config.TelemetryPeriod <= 0 || !d.connected.Load() {
		return
	}
	now := d.client.now()
	if !d.lastStatus.IsZero() && now.Sub(d.lastStatus) < d.config.TelemetryPeriod {
		return
	}
	d.lastStatus = now

	payload, err := encodeDatapoint(systemStatus{
		Goroutines:   runtime.NumGoroutine(),
		UptimeMillis: now.Sub(d.startedAt).Milliseconds(),
	}, now)
	if err != nil {
		d.logger.Error("failed to encode system status", ports.Err(err))
		return
	}
	if err := d.session.Publish(d.topics.SystemStatus(), 0, payload, d.publishTimeout()); err != nil {
		d.logger.Warn("failed to send system status", ports.Err(err))
	}
}

// SendIndividual publishes one datapoint. The publish is bounded by the
// configured publish timeout and by ctx's deadline, whichever is sooner.
func (d *Device) SendIndividual(ctx context.Context, iface, endpoint string, value float64, ts time.Time) error {
	if d.state.Load() != deviceStarted {
		return ErrNotStarted
	}
	if len(d.declared) > 0 {
		if _, ok := d.declared[iface]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownInterface, iface)
		}
	}
	if !d.connected.Load() {
		return domain.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := d.publishTimeout()
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	payload, err := encodeDatapoint(value, ts)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if err := d.session.Publish(d.topics.Datapoint(iface, endpoint), d.client.config.QoS, payload, timeout); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Stop disconnects from the broker and reports the disconnection.
func (d *Device) Stop(ctx context.Context) error {
	if !d.state.CompareAndSwap(deviceStarted, deviceStopped) {
		return ErrNotStarted
	}
	d.detach()

	done := make(chan struct{})
	go func() {
		d.session.Disconnect(defaultDisconnectQuiesce)
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	d.linkUp.Store(false)
	if d.reported {
		d.reported = false
		d.connected.Store(false)
		if d.config.Handler != nil {
			d.config.Handler.OnDisconnect()
		}
	}
	d.logger.Info("device stopped", ports.String("device_id", d.config.DeviceID))
	return nil
}

// Destroy releases the device. It is safe to call in any state.
func (d *Device) Destroy() {
	prev := d.state.Swap(deviceDestroyed)
	d.detach()
	if prev == deviceStarted {
		d.session.Disconnect(0)
	}
	d.connected.Store(false)
}

// Transport returns the device itself.
func (d *Device) Transport() ports.Transport {
	return d
}

func (d *Device) detach() {
	d.detachOnce.Do(func() {
		if d.removeListener != nil {
			d.removeListener()
		}
	})
}

func (d *Device) publishTimeout() time.Duration {
	if d.config.PublishTimeout > 0 {
		return d.config.PublishTimeout
	}
	return defaultPublishTimeout
}

// onConnect runs on a paho goroutine.
func (d *Device) onConnect() {
	d.linkUp.Store(true)
	d.linkGen.Add(1)
	d.signal()
}

// onConnectionLost runs on a paho goroutine.
func (d *Device) onConnectionLost(err error) {
	d.linkUp.Store(false)
	d.logger.Warn("connection lost", ports.Err(err))
	d.signal()
}

func (d *Device) signal() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// onOTARequest runs on a paho goroutine and forwards the request onto the OTA channel.
func (d *Device) onOTARequest(topic string, payload []byte) {
	ev, err := decodeOTAMessage(payload)
	if err != nil {
		d.logger.Warn("discarding malformed OTA request", ports.Err(err), ports.String("topic", topic))
		return
	}
	if ev.Kind == domain.OTAConfirmReboot {
		d.logger.Warn("discarding inbound OTA confirmation", ports.String("id", ev.ID))
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if err := d.config.OTAChannel.Publish(ev, d.publishTimeout()); err != nil {
		d.logger.Error("failed to forward OTA request", ports.Err(err), ports.String("id", ev.ID))
	}
}

// onOTAEvent is an OTA channel listener. It runs on the publisher's goroutine
// and only queues confirmations for Poll.
func (d *Device) onOTAEvent(ev domain.OTAEvent) {
	if ev.Kind != domain.OTAConfirmReboot {
		return
	}
	select {
	case d.confirms <- ev:
	default:
		d.logger.Warn("OTA confirmation queue full, dropping", ports.String("id", ev.ID))
	}
}

var _ ports.Device = (*Device)(nil)
