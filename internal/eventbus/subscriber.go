package eventbus

import "time"

// Subscriber queues notifications from the channels it observes.
type Subscriber struct {
	queue chan Notifier
}

// NewSubscriber creates a subscriber whose queue holds up to size notifications.
func NewSubscriber(size int) *Subscriber {
	if size <= 0 {
		size = 1
	}
	return &Subscriber{queue: make(chan Notifier, size)}
}

// Wait returns the next notifying channel, or false if none arrived within timeout.
func (s *Subscriber) Wait(timeout time.Duration) (Notifier, bool) {
	select {
	case n := <-s.queue:
		return n, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case n := <-s.queue:
		return n, true
	case <-timer.C:
		return nil, false
	}
}

// Pending returns the number of queued notifications.
func (s *Subscriber) Pending() int {
	return len(s.queue)
}

func (s *Subscriber) enqueue(n Notifier, timeout time.Duration) bool {
	select {
	case s.queue <- n:
		return true
	default:
	}
	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s.queue <- n:
		return true
	case <-timer.C:
		return false
	}
}
