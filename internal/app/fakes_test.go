package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

var errFake = errors.New("fake failure")

// publishedSample is one datapoint seen by fakeTransport.
type publishedSample struct {
	iface    string
	endpoint string
	value    float64
	ts       time.Time
}

// fakeTransport records every SendIndividual call.
type fakeTransport struct {
	mu    sync.Mutex
	sent  []publishedSample
	err   error
	calls int
}

func (f *fakeTransport) SendIndividual(ctx context.Context, iface, endpoint string, value float64, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, publishedSample{iface, endpoint, value, ts})
	return nil
}

func (f *fakeTransport) Sent() []publishedSample {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedSample{}, f.sent...)
}

func (f *fakeTransport) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// staticSource hands out a fixed transport or error.
type staticSource struct {
	transport ports.Transport
	err       error
}

func (s staticSource) Transport() (ports.Transport, error) {
	return s.transport, s.err
}

// fakeCPU returns queued counter readings; the last reading repeats.
type fakeCPU struct {
	mu       sync.Mutex
	readings []domain.CPUCounters
	err      error
}

func (f *fakeCPU) CPUCounters() (domain.CPUCounters, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.CPUCounters{}, f.err
	}
	if len(f.readings) == 0 {
		return domain.CPUCounters{}, nil
	}
	c := f.readings[0]
	if len(f.readings) > 1 {
		f.readings = f.readings[1:]
	}
	return c, nil
}

// advancingCPU returns counters that grow by a fixed step on every read.
type advancingCPU struct {
	n atomic.Uint64
}

func (a *advancingCPU) CPUCounters() (domain.CPUCounters, error) {
	n := a.n.Add(1)
	return domain.CPUCounters{Busy: n * 25, Execution: n * 100}, nil
}

type fakeSensor struct {
	notReady bool
	temp     float64
	err      error
}

func (f fakeSensor) Ready() bool { return !f.notReady }

func (f fakeSensor) DieTemperature() (float64, error) {
	return f.temp, f.err
}

type fakeClock struct {
	now time.Time
	err error
}

func (f fakeClock) Now() (time.Time, error) {
	return f.now, f.err
}

// recordingSink collects mirrored samples.
type recordingSink struct {
	mu      sync.Mutex
	samples []domain.Sample
}

func (r *recordingSink) Record(s domain.Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

func (r *recordingSink) Samples() []domain.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Sample{}, r.samples...)
}

// recordingEmitter implements Emitter and counts every event.
type recordingEmitter struct {
	mockEmitter

	mu            sync.Mutex
	successes     int
	failures      int
	skips         []string
	otaKinds      []domain.OTAKind
	confirmations []string
}

func (r *recordingEmitter) OnPublishSuccess(iface, endpoint string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.successes++
}

func (r *recordingEmitter) OnPublishError(iface, endpoint string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func (r *recordingEmitter) OnTickSkipped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, reason)
}

func (r *recordingEmitter) OnOTAEvent(kind domain.OTAKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.otaKinds = append(r.otaKinds, kind)
}

func (r *recordingEmitter) OnRebootConfirmed(id string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmations = append(r.confirmations, id)
}

func (r *recordingEmitter) Skips() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.skips...)
}

func (r *recordingEmitter) OTAKinds() []domain.OTAKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.OTAKind{}, r.otaKinds...)
}

func (r *recordingEmitter) Confirmations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.confirmations...)
}

// fakeDevice is a scripted ports.Device.
type fakeDevice struct {
	startErr error
	pollErr  error
	stopErr  error

	// pollFailAfter makes Poll fail once it has been called this many times.
	pollFailAfter int

	// connectOnStart invokes the connection handler from Start.
	connectOnStart bool
	handler        ports.ConnectionHandler

	transport *fakeTransport

	polls     atomic.Int32
	stopped   atomic.Bool
	destroyed atomic.Bool
}

func (d *fakeDevice) Start() error {
	if d.startErr != nil {
		return d.startErr
	}
	if d.connectOnStart && d.handler != nil {
		d.handler.OnConnect()
	}
	return nil
}

func (d *fakeDevice) Poll() error {
	n := d.polls.Add(1)
	if d.pollErr != nil && int(n) > d.pollFailAfter {
		return d.pollErr
	}
	return nil
}

func (d *fakeDevice) Stop(ctx context.Context) error {
	d.stopped.Store(true)
	if d.handler != nil {
		d.handler.OnDisconnect()
	}
	return d.stopErr
}

// connectionLost and connectionRestored report backend link changes the way
// a real device does, through the handler it was created with.
func (d *fakeDevice) connectionLost() {
	d.handler.OnDisconnect()
}

func (d *fakeDevice) connectionRestored() {
	d.handler.OnConnect()
}

func (d *fakeDevice) Destroy() {
	d.destroyed.Store(true)
}

func (d *fakeDevice) Transport() ports.Transport {
	return d.transport
}

// fakeDeviceClient creates the configured fakeDevice and keeps the config it got.
type fakeDeviceClient struct {
	device    *fakeDevice
	createErr error

	mu     sync.Mutex
	config ports.DeviceConfig
}

func (c *fakeDeviceClient) Create(config ports.DeviceConfig) (ports.Device, error) {
	c.mu.Lock()
	c.config = config
	c.mu.Unlock()

	if c.createErr != nil {
		return nil, c.createErr
	}
	c.device.handler = config.Handler
	if c.device.transport == nil {
		c.device.transport = &fakeTransport{}
	}
	return c.device, nil
}

func (c *fakeDeviceClient) Config() ports.DeviceConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// fakeConnectivity records connectivity calls.
type fakeConnectivity struct {
	err   error
	polls atomic.Int32
}

func (f *fakeConnectivity) Connect(ctx context.Context) error {
	return f.err
}

func (f *fakeConnectivity) PollHealth() {
	f.polls.Add(1)
}

type fakeTrust struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTrust) Provision() error {
	f.calls.Add(1)
	return f.err
}

type fakeTimeSync struct {
	err   error
	calls atomic.Int32
}

func (f *fakeTimeSync) Sync(ctx context.Context) error {
	f.calls.Add(1)
	return f.err
}

// waitFor polls cond until it is true or timeout elapses.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
