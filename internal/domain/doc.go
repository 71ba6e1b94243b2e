// Package domain contains the core domain entities and value objects for edgemetrics.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (MQTT, file system, logging) and
// contains only the shared state and values the agent's goroutines exchange.
//
// # Entities
//
//   - [Flags]: Process-wide atomic bit-set for termination and connectivity gating
//   - [Sample]: A single timestamped telemetry datapoint (interface, endpoint, value)
//   - [CPUCounters]: Monotonic busy/execution cycle counters used for utilization deltas
//   - [OTAEvent]: An over-the-air update lifecycle notification
//
// # Design Principles
//
// Domain entities are:
//   - Immutable after construction (where practical)
//   - Free of infrastructure dependencies
//   - Safe to share only through the documented atomic accessors
//   - Testable without mocks or external systems
package domain
