// Package throttle rejects new work while the host is short on CPU, memory
// or disk space.
package throttle

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"mediaconv/logging"
)

// ErrBusy is returned when the host does not have enough free resources.
var ErrBusy = errors.New("insufficient system resources")

// Limits are the minimum free resources required to admit a job.
// A zero field disables that check.
type Limits struct {
	IdleCPU  float64 // percent
	FreeMem  int64   // bytes
	FreeDisk int64   // bytes on Dir
	Dir      string
}

// Sampler reads host usage. The default implementation uses gopsutil.
type Sampler interface {
	CPUPercent() (float64, error)
	AvailableMemory() (uint64, error)
	FreeDisk(path string) (uint64, error)
}

// Guard checks Limits against a Sampler.
type Guard struct {
	limits  Limits
	sampler Sampler
	log     zerolog.Logger
}

// NewGuard returns a Guard using gopsutil for measurements.
func NewGuard(limits Limits) *Guard {
	return NewGuardWithSampler(limits, hostSampler{})
}

// NewGuardWithSampler is NewGuard with an explicit Sampler.
func NewGuardWithSampler(limits Limits, s Sampler) *Guard {
	return &Guard{limits: limits, sampler: s, log: logging.WithComponent("throttle")}
}

// Check returns an error wrapping ErrBusy when any enabled limit is not met.
// Measurement errors are logged and ignored.
func (g *Guard) Check() error {
	if g.limits.IdleCPU > 0 {
		p, err := g.sampler.CPUPercent()
		if err != nil {
			g.log.Warn().Err(err).Msg("could not get CPU usage")
		} else if p > 100.0-g.limits.IdleCPU {
			return fmt.Errorf("%w: not enough idle CPU, usage %.2f%%, idle threshold %.2f%%", ErrBusy, p, g.limits.IdleCPU)
		}
	}

	if g.limits.FreeMem > 0 {
		avail, err := g.sampler.AvailableMemory()
		if err != nil {
			g.log.Warn().Err(err).Msg("could not get memory usage")
		} else if avail < uint64(g.limits.FreeMem) {
			return fmt.Errorf("%w: not enough free memory, available %d, required %d", ErrBusy, avail, g.limits.FreeMem)
		}
	}

	if g.limits.FreeDisk > 0 {
		free, err := g.sampler.FreeDisk(g.limits.Dir)
		if err != nil {
			g.log.Warn().Err(err).Str("dir", g.limits.Dir).Msg("could not get disk usage")
		} else if free < uint64(g.limits.FreeDisk) {
			return fmt.Errorf("%w: not enough free disk space, available %d, required %d", ErrBusy, free, g.limits.FreeDisk)
		}
	}
	return nil
}

type hostSampler struct{}

// CPUPercent is measured since the previous call so admission never blocks.
func (hostSampler) CPUPercent() (float64, error) {
	p, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, errors.New("no cpu samples")
	}
	return p[0], nil
}

func (hostSampler) AvailableMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

func (hostSampler) FreeDisk(path string) (uint64, error) {
	d, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return d.Free, nil
}
