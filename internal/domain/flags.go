package domain

import (
	"strings"
	"sync/atomic"
)

// Flag is a single bit in the lifecycle flag set.
type Flag uint32

const (
	// FlagTermination requests every loop to unwind. Once set it is never cleared.
	FlagTermination Flag = 1 << iota

	// FlagConnected is set while the telemetry device is connected to the backend.
	FlagConnected
)

// String returns the flag name.
func (f Flag) String() string {
	switch f {
	case FlagTermination:
		return "termination"
	case FlagConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Flags is an atomic bit-set shared by all agent goroutines.
//
// The zero value is ready to use. Every operation is a single wait-free atomic
// instruction; no combined multi-bit consistency is provided.
type Flags struct {
	bits atomic.Uint32
}

// Set sets the given bit.
func (f *Flags) Set(flag Flag) {
	f.bits.Or(uint32(flag))
}

// Clear clears the given bit. Clearing FlagTermination is a no-op.
func (f *Flags) Clear(flag Flag) {
	flag &^= FlagTermination
	if flag == 0 {
		return
	}
	f.bits.And(^uint32(flag))
}

// Test reports whether the given bit is set.
func (f *Flags) Test(flag Flag) bool {
	return f.bits.Load()&uint32(flag) != 0
}

// Terminating is shorthand for Test(FlagTermination).
func (f *Flags) Terminating() bool {
	return f.Test(FlagTermination)
}

// String renders the set bits for logging, e.g. "connected|termination".
func (f *Flags) String() string {
	v := f.bits.Load()
	var names []string
	for _, flag := range []Flag{FlagConnected, FlagTermination} {
		if v&uint32(flag) != 0 {
			names = append(names, flag.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}
