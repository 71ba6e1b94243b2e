// Package sntp keeps a wall clock corrected by an NTP offset.
//
// The system clock is never set; Now returns time.Now() plus the last offset
// measured by Sync.
package sntp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/beevik/ntp"

	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Defaults.
const (
	DefaultServer  = "pool.ntp.org"
	DefaultTimeout = 3 * time.Second
)

// ErrNotSynced is returned by Now before the first successful Sync.
var ErrNotSynced = errors.New("sntp: clock not synchronized")

// Config contains configuration for the clock.
type Config struct {
	Server  string
	Timeout time.Duration

	// Strict makes Now return ErrNotSynced, along with the uncorrected time,
	// until the first successful Sync.
	Strict bool
}

// Clock implements ports.Clock and ports.TimeSync.
type Clock struct {
	config Config
	logger ports.Logger
	query  func(host string, opt ntp.QueryOptions) (*ntp.Response, error)

	offset atomic.Int64
	synced atomic.Bool
}

// New creates a clock. Zero values take their defaults.
func New(config Config, logger ports.Logger) *Clock {
	if config.Server == "" {
		config.Server = DefaultServer
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Clock{
		config: config,
		logger: logger,
		query:  ntp.QueryWithOptions,
	}
}

// Sync queries the server and stores the measured clock offset.
func (c *Clock) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.config.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	resp, err := c.query(c.config.Server, ntp.QueryOptions{Timeout: timeout})
	if err != nil {
		return fmt.Errorf("query %s: %w", c.config.Server, err)
	}
	if err := resp.Validate(); err != nil {
		return fmt.Errorf("invalid response from %s: %w", c.config.Server, err)
	}

	c.offset.Store(int64(resp.ClockOffset))
	c.synced.Store(true)

	c.logger.Info("clock synchronized",
		ports.String("server", c.config.Server),
		ports.Duration("offset", resp.ClockOffset),
		ports.Duration("rtt", resp.RTT),
	)
	return nil
}

// Now returns the corrected wall clock time.
func (c *Clock) Now() (time.Time, error) {
	now := time.Now().Add(c.Offset())
	if c.config.Strict && !c.synced.Load() {
		return now, ErrNotSynced
	}
	return now, nil
}

// Offset returns the last measured clock offset.
func (c *Clock) Offset() time.Duration {
	return time.Duration(c.offset.Load())
}

var (
	_ ports.Clock    = (*Clock)(nil)
	_ ports.TimeSync = (*Clock)(nil)
)
