// Package sysfs reads CPU counters and die temperature through procfs and sysfs.
package sysfs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/prometheus/procfs"
	psys "github.com/prometheus/procfs/sysfs"

	"github.com/bft-labs/edgemetrics/internal/domain"
	"github.com/bft-labs/edgemetrics/internal/ports"
)

// Default mount points.
const (
	DefaultProcRoot = procfs.DefaultMountPoint
	DefaultSysRoot  = psys.DefaultMountPoint
)

// ticksPerSecond converts procfs CPU seconds back to USER_HZ ticks.
const ticksPerSecond = 100

var (
	// ErrMalformedStat is returned when the stat file has no aggregate cpu line.
	ErrMalformedStat = errors.New("sysfs: malformed cpu line")

	// ErrNoThermalZone is returned when no thermal zone exposes a temperature.
	ErrNoThermalZone = errors.New("sysfs: no thermal zone")
)

// CPUStats reads cumulative CPU counters from the aggregate cpu line of /proc/stat.
type CPUStats struct {
	fs procfs.FS
}

// NewCPUStats creates a reader for the procfs mounted at root. Empty means /proc.
func NewCPUStats(root string) (*CPUStats, error) {
	if root == "" {
		root = DefaultProcRoot
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open procfs: %w", err)
	}
	return &CPUStats{fs: fs}, nil
}

// CPUCounters returns busy and total ticks.
// Busy is user+nice+system+irq+softirq+steal; execution adds idle and iowait.
func (s *CPUStats) CPUCounters() (domain.CPUCounters, error) {
	stat, err := s.fs.Stat()
	if err != nil {
		return domain.CPUCounters{}, fmt.Errorf("read cpu stat: %w", err)
	}
	return countersFrom(stat.CPUTotal)
}

func countersFrom(c procfs.CPUStat) (domain.CPUCounters, error) {
	busy := ticks(c.User) + ticks(c.Nice) + ticks(c.System) +
		ticks(c.IRQ) + ticks(c.SoftIRQ) + ticks(c.Steal)
	exec := busy + ticks(c.Idle) + ticks(c.Iowait)
	if exec == 0 {
		return domain.CPUCounters{}, fmt.Errorf("%w: no aggregate cpu time", ErrMalformedStat)
	}
	return domain.CPUCounters{Busy: busy, Execution: exec}, nil
}

func ticks(seconds float64) uint64 {
	return uint64(math.Round(seconds * ticksPerSecond))
}

// Thermal reads the die temperature of a thermal zone.
type Thermal struct {
	fs   psys.FS
	zone string
}

// NewThermal creates a sensor for the sysfs mounted at root (empty means /sys).
// When zone is empty the lowest-numbered zone is used.
func NewThermal(root, zone string) (*Thermal, error) {
	if root == "" {
		root = DefaultSysRoot
	}
	fs, err := psys.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open sysfs: %w", err)
	}

	t := &Thermal{fs: fs, zone: zone}
	if zone == "" {
		stats, err := fs.ClassThermalZoneStats()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoThermalZone, err)
		}
		first, ok := lowestZone(stats)
		if !ok {
			return nil, fmt.Errorf("%w under %s", ErrNoThermalZone, root)
		}
		t.zone = first
	}
	return t, nil
}

// lowestZone returns the name of the numerically lowest zone.
func lowestZone(stats []psys.ClassThermalZoneStats) (string, bool) {
	if len(stats) == 0 {
		return "", false
	}
	names := make([]string, 0, len(stats))
	for _, s := range stats {
		names = append(names, s.Name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, errA := strconv.Atoi(names[i])
		b, errB := strconv.Atoi(names[j])
		if errA != nil || errB != nil {
			return names[i] < names[j]
		}
		return a < b
	})
	return names[0], true
}

// Zone returns the thermal zone read by the sensor.
func (t *Thermal) Zone() string {
	return t.zone
}

// Ready reports whether the zone temperature is readable.
func (t *Thermal) Ready() bool {
	_, err := t.DieTemperature()
	return err == nil
}

// DieTemperature returns the zone temperature in degrees Celsius.
func (t *Thermal) DieTemperature() (float64, error) {
	stats, err := t.fs.ClassThermalZoneStats()
	if err != nil {
		return 0, fmt.Errorf("read thermal zones: %w", err)
	}
	for _, s := range stats {
		if s.Name == t.zone {
			return float64(s.Temp) / 1000.0, nil
		}
	}
	return 0, fmt.Errorf("%w: zone %s", ErrNoThermalZone, t.zone)
}

var (
	_ ports.CPUStats          = (*CPUStats)(nil)
	_ ports.TemperatureSensor = (*Thermal)(nil)
)
