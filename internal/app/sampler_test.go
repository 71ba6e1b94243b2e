package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testSamplerConfig() SamplerConfig {
	return SamplerConfig{
		Period:               5 * time.Millisecond,
		PublishTimeout:       time.Second,
		CPUInterface:         "com.example.poc.CpuMetrics",
		CPUEndpoint:          "/loadavg",
		TemperatureInterface: "com.example.poc.CpuTemp",
		TemperatureEndpoint:  "/temp",
	}
}

type samplerFixture struct {
	flags     *domain.Flags
	transport *fakeTransport
	cpu       *fakeCPU
	sink      *recordingSink
	emitter   *recordingEmitter
	sampler   *Sampler
}

func newSamplerFixture(readings ...domain.CPUCounters) *samplerFixture {
	f := &samplerFixture{
		flags:     &domain.Flags{},
		transport: &fakeTransport{},
		cpu:       &fakeCPU{readings: readings},
		sink:      &recordingSink{},
		emitter:   &recordingEmitter{},
	}
	f.sampler = NewSampler(testSamplerConfig(), f.flags, staticSource{transport: f.transport},
		f.cpu, fakeSensor{temp: 47.5}, fakeClock{now: testNow}, f.sink, &mockLogger{}, f.emitter)
	return f
}

func TestSampler_Tick_NotConnected(t *testing.T) {
	f := newSamplerFixture(domain.CPUCounters{Busy: 50, Execution: 200})

	f.sampler.Tick(context.Background())

	if got := f.transport.Calls(); got != 0 {
		t.Errorf("publish calls = %d, want 0", got)
	}
	if !f.sampler.prev.Zero() {
		t.Errorf("previous counters updated while disconnected: %+v", f.sampler.prev)
	}
	skips := f.emitter.Skips()
	if len(skips) != 1 || skips[0] != SkipNotConnected {
		t.Errorf("skips = %v, want [%s]", skips, SkipNotConnected)
	}
}

func TestSampler_Tick_PublishesBothMetrics(t *testing.T) {
	f := newSamplerFixture(
		domain.CPUCounters{Busy: 50, Execution: 200},
		domain.CPUCounters{Busy: 150, Execution: 400},
	)
	f.flags.Set(domain.FlagConnected)

	f.sampler.Tick(context.Background())
	f.sampler.Tick(context.Background())

	sent := f.transport.Sent()
	if len(sent) != 4 {
		t.Fatalf("got %d datapoints, want 4", len(sent))
	}

	want := []publishedSample{
		{"com.example.poc.CpuMetrics", "/loadavg", 25, testNow},
		{"com.example.poc.CpuTemp", "/temp", 47.5, testNow},
		{"com.example.poc.CpuMetrics", "/loadavg", 50, testNow},
		{"com.example.poc.CpuTemp", "/temp", 47.5, testNow},
	}
	for i := range want {
		if sent[i] != want[i] {
			t.Errorf("datapoint %d = %+v, want %+v", i, sent[i], want[i])
		}
	}

	samples := f.sink.Samples()
	if len(samples) != 4 {
		t.Fatalf("sink got %d samples, want 4", len(samples))
	}
	if !samples[0].Bootstrap {
		t.Error("first CPU sample should be marked bootstrap")
	}
	if samples[2].Bootstrap {
		t.Error("second CPU sample should not be marked bootstrap")
	}
}

func TestSampler_Tick_CounterReset(t *testing.T) {
	f := newSamplerFixture(
		domain.CPUCounters{Busy: 100, Execution: 400},
		domain.CPUCounters{Busy: 10, Execution: 40},
	)
	f.flags.Set(domain.FlagConnected)

	f.sampler.Tick(context.Background())
	f.sampler.Tick(context.Background())

	samples := f.sink.Samples()
	if len(samples) != 4 {
		t.Fatalf("sink got %d samples, want 4", len(samples))
	}
	cpu := samples[2]
	if !cpu.Bootstrap {
		t.Error("sample after counter reset should be marked bootstrap")
	}
	if cpu.Value != 25 {
		t.Errorf("usage after reset = %v, want 25", cpu.Value)
	}
	if f.sampler.prev != (domain.CPUCounters{Busy: 10, Execution: 40}) {
		t.Errorf("previous counters = %+v, want the post-reset reading", f.sampler.prev)
	}
}

func TestSampler_Tick_NoElapsedCycles(t *testing.T) {
	f := newSamplerFixture(
		domain.CPUCounters{Busy: 100, Execution: 400},
		domain.CPUCounters{Busy: 100, Execution: 400},
	)
	f.flags.Set(domain.FlagConnected)

	f.sampler.Tick(context.Background())
	f.sampler.Tick(context.Background())

	sent := f.transport.Sent()
	if len(sent) != 3 {
		t.Fatalf("got %d datapoints, want 3", len(sent))
	}
	if sent[2].endpoint != "/temp" {
		t.Errorf("second tick published %s, want only /temp", sent[2].endpoint)
	}
}

func TestSampler_Tick_FailureIsolation(t *testing.T) {
	tests := []struct {
		name         string
		cpuErr       error
		tempErr      error
		wantEndpoint []string
	}{
		{"cpu read fails", errFake, nil, []string{"/temp"}},
		{"temperature read fails", nil, errFake, []string{"/loadavg"}},
		{"both fail", errFake, errFake, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := &domain.Flags{}
			flags.Set(domain.FlagConnected)
			transport := &fakeTransport{}
			cpu := &fakeCPU{readings: []domain.CPUCounters{{Busy: 1, Execution: 2}}, err: tt.cpuErr}

			s := NewSampler(testSamplerConfig(), flags, staticSource{transport: transport},
				cpu, fakeSensor{temp: 40, err: tt.tempErr}, fakeClock{now: testNow}, nil, &mockLogger{}, nil)
			s.Tick(context.Background())

			sent := transport.Sent()
			if len(sent) != len(tt.wantEndpoint) {
				t.Fatalf("got %d datapoints, want %d", len(sent), len(tt.wantEndpoint))
			}
			for i, ep := range tt.wantEndpoint {
				if sent[i].endpoint != ep {
					t.Errorf("datapoint %d endpoint = %s, want %s", i, sent[i].endpoint, ep)
				}
			}
		})
	}
}

func TestSampler_Tick_PublishFailureNotRetried(t *testing.T) {
	f := newSamplerFixture(
		domain.CPUCounters{Busy: 50, Execution: 200},
		domain.CPUCounters{Busy: 150, Execution: 400},
	)
	f.transport.err = errFake
	f.flags.Set(domain.FlagConnected)

	f.sampler.Tick(context.Background())

	if got := f.transport.Calls(); got != 2 {
		t.Errorf("publish calls = %d, want 2", got)
	}
	if f.emitter.failures != 2 {
		t.Errorf("publish failures = %d, want 2", f.emitter.failures)
	}
	if f.sampler.prev != (domain.CPUCounters{Busy: 50, Execution: 200}) {
		t.Errorf("previous counters rolled back after failed publish: %+v", f.sampler.prev)
	}
}

func TestSampler_Tick_ClockFailureStillPublishes(t *testing.T) {
	flags := &domain.Flags{}
	flags.Set(domain.FlagConnected)
	transport := &fakeTransport{}

	s := NewSampler(testSamplerConfig(), flags, staticSource{transport: transport},
		&fakeCPU{readings: []domain.CPUCounters{{Busy: 1, Execution: 4}}}, fakeSensor{temp: 40},
		fakeClock{now: testNow, err: errFake}, nil, &mockLogger{}, nil)
	s.Tick(context.Background())

	if got := len(transport.Sent()); got != 2 {
		t.Errorf("got %d datapoints, want 2", got)
	}
}

func TestSampler_Tick_NoTransport(t *testing.T) {
	flags := &domain.Flags{}
	flags.Set(domain.FlagConnected)
	emitter := &recordingEmitter{}
	cpu := &fakeCPU{readings: []domain.CPUCounters{{Busy: 1, Execution: 4}}}

	s := NewSampler(testSamplerConfig(), flags, staticSource{err: domain.ErrNoDevice},
		cpu, fakeSensor{temp: 40}, fakeClock{now: testNow}, nil, &mockLogger{}, emitter)
	s.Tick(context.Background())

	skips := emitter.Skips()
	if len(skips) != 1 || skips[0] != SkipNoTransport {
		t.Errorf("skips = %v, want [%s]", skips, SkipNoTransport)
	}
	if !s.prev.Zero() {
		t.Errorf("previous counters updated without transport: %+v", s.prev)
	}
}

func TestSampler_ConnectDisconnectReconnect(t *testing.T) {
	f := newSamplerFixture(
		domain.CPUCounters{Busy: 10, Execution: 100},
		domain.CPUCounters{Busy: 60, Execution: 200},
		domain.CPUCounters{Busy: 80, Execution: 300},
	)
	ctx := context.Background()

	f.flags.Set(domain.FlagConnected)
	f.sampler.Tick(ctx) // reading 1, bootstrap

	f.flags.Clear(domain.FlagConnected)
	f.sampler.Tick(ctx) // skipped, no reading consumed
	f.sampler.Tick(ctx)

	f.flags.Set(domain.FlagConnected)
	f.sampler.Tick(ctx) // reading 2 against reading 1

	samples := f.sink.Samples()
	if len(samples) != 4 {
		t.Fatalf("sink got %d samples, want 4", len(samples))
	}
	if samples[2].Value != 50 {
		t.Errorf("usage after reconnect = %v, want 50", samples[2].Value)
	}
	if samples[2].Bootstrap {
		t.Error("usage after reconnect should use the counters from before the disconnect")
	}
	if got := len(f.emitter.Skips()); got != 2 {
		t.Errorf("skipped ticks = %d, want 2", got)
	}
}

func TestSampler_StartStop(t *testing.T) {
	flags := &domain.Flags{}
	flags.Set(domain.FlagConnected)
	transport := &fakeTransport{}

	s := NewSampler(testSamplerConfig(), flags, staticSource{transport: transport},
		&advancingCPU{}, fakeSensor{temp: 40}, fakeClock{now: testNow}, nil, &mockLogger{}, nil)
	s.Start(context.Background())

	if !waitFor(time.Second, func() bool { return transport.Calls() >= 4 }) {
		t.Fatal("sampler did not tick")
	}

	s.Stop()
	calls := transport.Calls()
	time.Sleep(20 * time.Millisecond)
	if got := transport.Calls(); got != calls {
		t.Errorf("sampler kept publishing after Stop: %d -> %d", calls, got)
	}

	// Stop is idempotent.
	s.Stop()
}

func TestSampler_StopsOnTermination(t *testing.T) {
	flags := &domain.Flags{}
	flags.Set(domain.FlagConnected)
	transport := &fakeTransport{}

	s := NewSampler(testSamplerConfig(), flags, staticSource{transport: transport},
		&advancingCPU{}, fakeSensor{temp: 40}, fakeClock{now: testNow}, nil, &mockLogger{}, nil)
	s.Start(context.Background())
	defer s.Stop()

	flags.Set(domain.FlagTermination)

	done := make(chan struct{})
	go func() {
		<-s.done
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sampler did not exit after termination")
	}
}

// gatedTransport blocks every publish until release is closed and records
// whether the publish context was still live at that point.
type gatedTransport struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu      sync.Mutex
	ctxErrs []error
}

func (g *gatedTransport) SendIndividual(ctx context.Context, iface, endpoint string, value float64, ts time.Time) error {
	g.once.Do(func() { close(g.entered) })
	<-g.release

	g.mu.Lock()
	defer g.mu.Unlock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	return ctx.Err()
}

func (g *gatedTransport) CtxErrs() []error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]error{}, g.ctxErrs...)
}

func TestSampler_StopLetsInFlightTickFinish(t *testing.T) {
	flags := &domain.Flags{}
	flags.Set(domain.FlagConnected)
	transport := &gatedTransport{entered: make(chan struct{}), release: make(chan struct{})}
	emitter := &recordingEmitter{}

	s := NewSampler(testSamplerConfig(), flags, staticSource{transport: transport},
		&advancingCPU{}, fakeSensor{temp: 40}, fakeClock{now: testNow}, nil, &mockLogger{}, emitter)
	s.Start(context.Background())

	select {
	case <-transport.entered:
	case <-time.After(time.Second):
		t.Fatal("sampler did not publish")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned before the in-flight tick finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(transport.release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after the tick finished")
	}

	errs := transport.CtxErrs()
	if len(errs) != 2 {
		t.Fatalf("publishes = %d, want 2 (one tick)", len(errs))
	}
	for i, err := range errs {
		if err != nil {
			t.Errorf("publish %d context error = %v, want nil", i, err)
		}
	}
	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	if emitter.failures != 0 {
		t.Errorf("publish failures = %d, want 0", emitter.failures)
	}
}
