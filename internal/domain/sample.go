package domain

import "time"

// Sample is a single individually-addressed telemetry datapoint.
// It is produced once per sampler tick and consumed immediately by the publish call.
type Sample struct {
	Interface string
	Endpoint  string
	Value     float64
	Timestamp time.Time

	// Bootstrap marks a value computed without a valid previous reading
	// (first tick, or first tick after a counter reset). Such values have
	// reduced confidence.
	Bootstrap bool
}

// TimestampMillis returns the sample timestamp as milliseconds since the Unix epoch.
func (s Sample) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// CPUCounters holds the cumulative CPU cycle counters reported by the platform.
// Both counters are monotonically non-decreasing while the platform is up.
type CPUCounters struct {
	// Busy is the total number of non-idle cycles.
	Busy uint64

	// Execution is the total number of cycles (idle + non-idle).
	Execution uint64
}

// Zero reports whether no reading has been recorded yet.
func (c CPUCounters) Zero() bool {
	return c.Busy == 0 && c.Execution == 0
}

// ResetBy reports whether either counter of next is lower than the corresponding
// counter of c, i.e. next cannot follow c without a platform reset in between.
func (c CPUCounters) ResetBy(next CPUCounters) bool {
	return next.Busy < c.Busy || next.Execution < c.Execution
}

// Usage computes the CPU utilization percentage between prev and c.
// ok is false when no execution cycles elapsed, in which case no usage is defined.
func (c CPUCounters) Usage(prev CPUCounters) (usage float64, ok bool) {
	execution := c.Execution - prev.Execution
	if execution == 0 {
		return 0, false
	}
	busy := c.Busy - prev.Busy
	return 100.0 * float64(busy) / float64(execution), true
}
