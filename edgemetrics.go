// Package edgemetrics runs a device telemetry agent that publishes CPU
// utilization and die temperature over MQTT and relays OTA lifecycle events.
//
// Example usage:
//
//	cfg := edgemetrics.DefaultConfig()
//	cfg.DeviceID = "my-device"
//	cfg.Duration = time.Hour
//	if err := edgemetrics.Run(context.Background(), cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// See pkg/edgemetrics for the embeddable Agent and its options.
package edgemetrics

import (
	"context"

	"github.com/bft-labs/edgemetrics/pkg/edgemetrics"
)

// Config holds the configuration for the telemetry agent.
// Use DefaultConfig() to get a Config with sensible defaults.
type Config = edgemetrics.Config

// Option configures optional behavior of the agent.
type Option = edgemetrics.Option

// Run creates an agent from cfg and runs it. It blocks until cfg.Duration
// elapses, the context is cancelled or the device fails.
func Run(ctx context.Context, cfg Config, opts ...Option) error {
	agent, err := edgemetrics.New(cfg, opts...)
	if err != nil {
		return err
	}
	return agent.Run(ctx)
}

// DefaultConfig returns a Config with sensible default values.
// At minimum, you must set DeviceID before calling Run.
func DefaultConfig() Config {
	return edgemetrics.DefaultConfig()
}
