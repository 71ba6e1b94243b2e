package app

import (
	"sync"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// RelayJoinTimeout is the default maximum time to wait for the OTA relay to exit.
const RelayJoinTimeout = 10 * time.Second

// State represents the lifecycle state of the managed device.
type State int

const (
	StateCreated State = iota
	StateStarted
	StatePolling
	StateStopping
	StateDestroyed
	StateError
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateStarted:
		return "Started"
	case StatePolling:
		return "Polling"
	case StateStopping:
		return "Stopping"
	case StateDestroyed:
		return "Destroyed"
	case StateError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDestroyed
}

// EventEmitter is called when lifecycle state changes.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle manages the state machine of the managed device and tracks the
// workers spawned while it is alive.
type Lifecycle struct {
	mu           sync.RWMutex
	state        State
	wg           sync.WaitGroup
	logger       ports.Logger
	eventEmitter EventEmitter
}

// NewLifecycle creates a new lifecycle manager in StateCreated.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:        StateCreated,
		logger:       logger,
		eventEmitter: emitter,
	}
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo attempts to transition to a new state.
// Returns an error if the transition is not valid.
func (l *Lifecycle) TransitionTo(newState State, reason string) error {
	l.mu.Lock()
	oldState := l.state

	// Validate transition
	if !validTransition(oldState, newState) {
		l.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	l.state = newState
	l.mu.Unlock()

	// Emit event outside of lock
	if l.eventEmitter != nil {
		l.eventEmitter.OnStateChange(oldState, newState, reason)
	}

	l.logger.Info("device state transition",
		ports.String("from", oldState.String()),
		ports.String("to", newState.String()),
		ports.String("reason", reason),
	)

	return nil
}

// validTransition encodes Created -> Started -> Polling -> Stopping -> Destroyed,
// with Error reachable from every non-terminal state and Error -> Destroyed for cleanup.
func validTransition(from, to State) bool {
	if to == StateError {
		return from != StateDestroyed && from != StateError
	}
	switch from {
	case StateCreated:
		return to == StateStarted
	case StateStarted:
		return to == StatePolling
	case StatePolling:
		return to == StateStopping
	case StateStopping:
		return to == StateDestroyed
	case StateError:
		return to == StateDestroyed
	default:
		return false
	}
}

// AddWorker increments the worker count.
func (l *Lifecycle) AddWorker() {
	l.wg.Add(1)
}

// WorkerDone decrements the worker count.
func (l *Lifecycle) WorkerDone() {
	l.wg.Done()
}

// WaitWithTimeout waits for all workers to finish with a timeout.
// Returns ErrJoinTimeout if the timeout expires.
func (l *Lifecycle) WaitWithTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("worker join timeout",
			ports.Duration("timeout", timeout),
		)
		return domain.ErrJoinTimeout
	}
}
