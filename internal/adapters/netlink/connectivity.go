// Package netlink brings up and supervises network connectivity.
package netlink

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Defaults.
const (
	DefaultLinkTimeout = 30 * time.Second
	DefaultDialTimeout = 3 * time.Second
)

var (
	// ErrNoLink is returned when no matching interface is up.
	ErrNoLink = errors.New("netlink: no interface up")

	// ErrUnreachable is returned when the probe target cannot be reached.
	ErrUnreachable = errors.New("netlink: target unreachable")
)

// Config contains configuration for connectivity checks.
type Config struct {
	// Interface is the name of the interface to wait for.
	// Empty means any non-loopback interface.
	Interface string

	// Target is an optional host:port that must accept a TCP connection.
	Target string

	LinkTimeout    time.Duration
	DialTimeout    time.Duration
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Connectivity implements ports.Connectivity on top of the host network stack.
type Connectivity struct {
	config Config
	logger ports.Logger

	interfaces func() ([]net.Interface, error)
	dial       func(ctx context.Context, network, address string) (net.Conn, error)

	// up is only touched from the orchestrator goroutine.
	up bool
}

// New creates a connectivity service. Zero durations take their defaults.
func New(config Config, logger ports.Logger) *Connectivity {
	if config.LinkTimeout <= 0 {
		config.LinkTimeout = DefaultLinkTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}

	dialer := &net.Dialer{}
	return &Connectivity{
		config:     config,
		logger:     logger,
		interfaces: net.Interfaces,
		dial:       dialer.DialContext,
	}
}

// Connect waits until the link is up and the target is reachable, retrying
// with jittered exponential backoff for at most LinkTimeout.
func (c *Connectivity) Connect(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.LinkTimeout)
	defer cancel()

	b := newBackoff(c.config.BackoffInitial, c.config.BackoffMax)
	for attempt := 1; ; attempt++ {
		err := c.check(ctx)
		if err == nil {
			c.up = true
			c.logger.Info("network ready",
				ports.String("interface", c.config.Interface),
				ports.Int("attempts", attempt),
			)
			return nil
		}

		c.logger.Debug("network not ready",
			ports.Err(err),
			ports.Int("attempt", attempt),
			ports.Duration("retry_in", b.Current()),
		)
		if sleepErr := b.Sleep(ctx); sleepErr != nil {
			return fmt.Errorf("network not ready after %d attempts: %w", attempt, err)
		}
	}
}

// PollHealth re-checks the link and logs up/down transitions.
func (c *Connectivity) PollHealth() {
	err := c.linkUp()
	up := err == nil
	if up == c.up {
		return
	}
	c.up = up

	if up {
		c.logger.Info("network link restored", ports.String("interface", c.config.Interface))
	} else {
		c.logger.Warn("network link lost", ports.String("interface", c.config.Interface), ports.Err(err))
	}
}

func (c *Connectivity) check(ctx context.Context) error {
	if err := c.linkUp(); err != nil {
		return err
	}
	if c.config.Target == "" {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()
	conn, err := c.dial(dialCtx, "tcp", c.config.Target)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, c.config.Target, err)
	}
	return conn.Close()
}

func (c *Connectivity) linkUp() error {
	ifaces, err := c.interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}
	for _, i := range ifaces {
		if c.config.Interface != "" && i.Name != c.config.Interface {
			continue
		}
		if i.Flags&net.FlagLoopback != 0 && c.config.Interface == "" {
			continue
		}
		if i.Flags&net.FlagUp != 0 {
			return nil
		}
	}
	if c.config.Interface != "" {
		return fmt.Errorf("%w: %s", ErrNoLink, c.config.Interface)
	}
	return ErrNoLink
}

var _ ports.Connectivity = (*Connectivity)(nil)
