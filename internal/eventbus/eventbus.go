// Package eventbus provides a typed in-process channel for lifecycle notifications
// exchanged between the device client and the agent core.
//
// A Channel holds the latest published message. Publishing stores the message,
// calls listeners synchronously and queues a notification on every attached
// Subscriber. Subscribers wait for notifications and then read the message from
// the channel that notified them. Every blocking operation takes a bound.
package eventbus

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when the channel could not be acquired within the bound.
	ErrTimeout = errors.New("eventbus: timeout")

	// ErrQueueFull is returned when a subscriber queue stayed full for the whole bound.
	ErrQueueFull = errors.New("eventbus: subscriber queue full")
)

// Notifier identifies the channel a subscriber notification came from.
type Notifier interface {
	Name() string
}

// Channel is a typed message slot with observers.
type Channel[T any] struct {
	name string

	// sem is a one-slot semaphore guarding msg; a channel so that acquisition can be bounded.
	sem chan struct{}
	msg T

	mu          sync.Mutex
	subscribers []*Subscriber
	listeners   map[int]func(T)
	nextID      int
}

// NewChannel creates a channel with the given name.
func NewChannel[T any](name string) *Channel[T] {
	c := &Channel[T]{
		name:      name,
		sem:       make(chan struct{}, 1),
		listeners: make(map[int]func(T)),
	}
	return c
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.name
}

// AddObserver attaches a subscriber. The subscriber is notified of every later publish.
func (c *Channel[T]) AddObserver(s *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, s)
}

// RemoveObserver detaches a subscriber.
func (c *Channel[T]) RemoveObserver(s *Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subscribers {
		if sub == s {
			c.subscribers = append(c.subscribers[:i], c.subscribers[i+1:]...)
			return
		}
	}
}

// AddListener registers fn to be called synchronously on every publish, with
// the published message. The returned function removes the listener.
// Listeners run on the publisher's goroutine and must not block.
func (c *Channel[T]) AddListener(fn func(T)) (remove func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Publish stores msg in the channel, runs listeners and notifies subscribers.
// The whole operation is bounded by timeout. A subscriber whose queue stays
// full is skipped and ErrQueueFull is returned after the others are notified.
func (c *Channel[T]) Publish(msg T, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	if !c.acquire(timeout) {
		return ErrTimeout
	}
	c.msg = msg
	c.release()

	c.mu.Lock()
	listeners := make([]func(T), 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	subscribers := append([]*Subscriber(nil), c.subscribers...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(msg)
	}

	var err error
	for _, s := range subscribers {
		if !s.enqueue(c, time.Until(deadline)) {
			err = ErrQueueFull
		}
	}
	return err
}

// Read returns a copy of the latest message, waiting at most timeout for the channel.
func (c *Channel[T]) Read(timeout time.Duration) (T, error) {
	var zero T
	if !c.acquire(timeout) {
		return zero, ErrTimeout
	}
	msg := c.msg
	c.release()
	return msg, nil
}

func (c *Channel[T]) acquire(timeout time.Duration) bool {
	select {
	case c.sem <- struct{}{}:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case c.sem <- struct{}{}:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Channel[T]) release() {
	<-c.sem
}
