package app

import "github.com/bft-labs/edgemetrics/internal/domain"

// TelemetryEventEmitter is called by the sampler on every publish outcome and skipped tick.
type TelemetryEventEmitter interface {
	OnPublishSuccess(iface, endpoint string, value float64)
	OnPublishError(iface, endpoint string, err error)
	OnTickSkipped(reason string)
}

// OTAEventEmitter is called by the OTA relay for every event read and every confirmation sent.
type OTAEventEmitter interface {
	OnOTAEvent(kind domain.OTAKind)
	OnRebootConfirmed(id string, err error)
}

// Emitter combines every event hook of the agent.
// Events are called synchronously from the emitting goroutine.
type Emitter interface {
	EventEmitter
	TelemetryEventEmitter
	OTAEventEmitter
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) OnStateChange(previous, current State, reason string)   {}
func (NopEmitter) OnPublishSuccess(iface, endpoint string, value float64) {}
func (NopEmitter) OnPublishError(iface, endpoint string, err error)       {}
func (NopEmitter) OnTickSkipped(reason string)                            {}
func (NopEmitter) OnOTAEvent(kind domain.OTAKind)                         {}
func (NopEmitter) OnRebootConfirmed(id string, err error)                 {}
