package ports

import (
	"context"
	"time"

	"github.com/bft-labs/edgemetrics/internal/domain"
)

// Connectivity brings up and supervises the network link.
type Connectivity interface {
	// Connect blocks until the link is usable or fails.
	Connect(ctx context.Context) error

	// PollHealth re-checks the link. Problems are logged by the implementation.
	PollHealth()
}

// CPUStats reads the platform's cumulative CPU cycle counters.
type CPUStats interface {
	CPUCounters() (domain.CPUCounters, error)
}

// TemperatureSensor samples the die temperature in degrees Celsius.
type TemperatureSensor interface {
	// Ready reports whether the sensor device is present and usable.
	Ready() bool

	DieTemperature() (float64, error)
}

// Clock returns the wall-clock time. On error the returned time is a best-effort value.
type Clock interface {
	Now() (time.Time, error)
}

// TimeSync synchronizes the agent's wall clock with a time source.
type TimeSync interface {
	Sync(ctx context.Context) error
}

// TrustProvisioner installs the TLS trust material used by the backends.
type TrustProvisioner interface {
	Provision() error
}

// SampleSink records samples locally. Record must not block.
type SampleSink interface {
	Record(s domain.Sample)
}
