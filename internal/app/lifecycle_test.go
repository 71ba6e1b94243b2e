package app

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	previous State
	current  State
	reason   string
}

func (m *mockEmitter) OnStateChange(previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func (m *mockEmitter) States() []State {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]State, 0, len(m.events))
	for _, ev := range m.events {
		states = append(states, ev.current)
	}
	return states
}

func TestNewLifecycle(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	if l == nil {
		t.Fatal("NewLifecycle returned nil")
	}
	if l.State() != StateCreated {
		t.Errorf("initial state = %v, want StateCreated", l.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateCreated, "Created"},
		{StateStarted, "Started"},
		{StatePolling, "Polling"},
		{StateStopping, "Stopping"},
		{StateDestroyed, "Destroyed"},
		{StateError, "Error"},
		{State(99), "Unknown"},
	}

	for _, tt := range tests {
		got := tt.state.String()
		if got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}

func TestLifecycle_TransitionTo_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"created to started", StateCreated, StateStarted},
		{"started to polling", StateStarted, StatePolling},
		{"polling to stopping", StatePolling, StateStopping},
		{"stopping to destroyed", StateStopping, StateDestroyed},
		{"created to error", StateCreated, StateError},
		{"started to error", StateStarted, StateError},
		{"polling to error", StatePolling, StateError},
		{"stopping to error", StateStopping, StateError},
		{"error to destroyed", StateError, StateDestroyed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			l.state = tt.from

			if err := l.TransitionTo(tt.to, "test"); err != nil {
				t.Fatalf("TransitionTo() error = %v", err)
			}
			if l.State() != tt.to {
				t.Errorf("state = %v after transition, want %v", l.State(), tt.to)
			}
		})
	}
}

func TestLifecycle_TransitionTo_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
	}{
		{"created to polling", StateCreated, StatePolling},
		{"created to destroyed", StateCreated, StateDestroyed},
		{"started to stopping", StateStarted, StateStopping},
		{"polling to destroyed", StatePolling, StateDestroyed},
		{"stopping to polling", StateStopping, StatePolling},
		{"destroyed to created", StateDestroyed, StateCreated},
		{"destroyed to error", StateDestroyed, StateError},
		{"error to error", StateError, StateError},
		{"error to started", StateError, StateStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLifecycle(&mockLogger{}, nil)
			l.state = tt.from

			err := l.TransitionTo(tt.to, "test")

			if !errors.Is(err, domain.ErrInvalidTransition) {
				t.Errorf("TransitionTo() error = %v, want ErrInvalidTransition", err)
			}
			// State should not change on invalid transition
			if l.State() != tt.from {
				t.Errorf("state changed to %v on invalid transition, want %v", l.State(), tt.from)
			}
		})
	}
}

func TestLifecycle_TransitionTo_EmitsEvents(t *testing.T) {
	emitter := &mockEmitter{}
	l := NewLifecycle(&mockLogger{}, emitter)

	_ = l.TransitionTo(StateStarted, "start test")
	_ = l.TransitionTo(StatePolling, "poll test")

	events := emitter.Events()
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}

	if events[0].previous != StateCreated || events[0].current != StateStarted {
		t.Errorf("event 0: got %v->%v, want Created->Started", events[0].previous, events[0].current)
	}
	if events[1].previous != StateStarted || events[1].current != StatePolling {
		t.Errorf("event 1: got %v->%v, want Started->Polling", events[1].previous, events[1].current)
	}
	if events[1].reason != "poll test" {
		t.Errorf("event 1 reason = %q, want %q", events[1].reason, "poll test")
	}
}

func TestState_Terminal(t *testing.T) {
	for _, s := range []State{StateCreated, StateStarted, StatePolling, StateStopping, StateError} {
		if s.Terminal() {
			t.Errorf("%v.Terminal() = true, want false", s)
		}
	}
	if !StateDestroyed.Terminal() {
		t.Error("StateDestroyed.Terminal() = false, want true")
	}
}

func TestLifecycle_WaitWithTimeout_Success(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	l.AddWorker()

	go func() {
		time.Sleep(10 * time.Millisecond)
		l.WorkerDone()
	}()

	err := l.WaitWithTimeout(time.Second)
	if err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}
}

func TestLifecycle_WaitWithTimeout_NoWorkers(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	if err := l.WaitWithTimeout(10 * time.Millisecond); err != nil {
		t.Errorf("WaitWithTimeout() = %v, want nil", err)
	}
}

func TestLifecycle_WaitWithTimeout_Timeout(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	l.AddWorker()
	// Never call WorkerDone

	err := l.WaitWithTimeout(10 * time.Millisecond)
	if !errors.Is(err, domain.ErrJoinTimeout) {
		t.Errorf("WaitWithTimeout() = %v, want ErrJoinTimeout", err)
	}

	// Clean up
	l.WorkerDone()
}

func TestLifecycle_Concurrency(t *testing.T) {
	l := NewLifecycle(&mockLogger{}, nil)

	var wg sync.WaitGroup

	// Concurrent state reads
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = l.State()
			}
		}()
	}

	// Concurrent transitions (some will fail, which is expected)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.TransitionTo(StateStarted, "test")
			_ = l.TransitionTo(StatePolling, "test")
		}()
	}

	wg.Wait()

	if l.State() != StatePolling {
		t.Errorf("state = %v, want StatePolling", l.State())
	}
}
