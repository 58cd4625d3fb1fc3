// Package monitor periodically samples resource usage of registry-known
// processes and routes ceiling violators into the reaper's escalation path.
package monitor

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/reaper"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/pkg/models"
)

const (
	// DefaultSampleInterval is used when the limits leave it unset.
	DefaultSampleInterval = 10 * time.Second
	// DefaultGracePeriod protects legitimate startup bursts from the
	// ceilings: a process younger than this is never terminated.
	DefaultGracePeriod = 5 * time.Second
)

// Monitor runs the sampling loop. Ticks never overlap: the next tick is
// armed only after the previous one finishes.
type Monitor struct {
	limits models.ResourceLimits
	reg    *registry.Registry
	table  proctab.Table
	reaper *reaper.Reaper

	// killOpts is passed to the reaper for violators; overridable in tests
	// to shorten the escalation window.
	killOpts reaper.Options

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// New wires a monitor from its collaborators. Zero interval and grace
// period fall back to defaults.
func New(reg *registry.Registry, table proctab.Table, rpr *reaper.Reaper, limits models.ResourceLimits) *Monitor {
	if limits.SampleInterval <= 0 {
		limits.SampleInterval = DefaultSampleInterval
	}
	if limits.GracePeriod <= 0 {
		limits.GracePeriod = DefaultGracePeriod
	}
	return &Monitor{
		limits:   limits,
		reg:      reg,
		table:    table,
		reaper:   rpr,
		killOpts: reaper.Options{Force: true},
	}
}

// Start launches the sampling loop. A no-op when the limits are disabled
// or the monitor is already running.
func (m *Monitor) Start() {
	if !m.limits.Enabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(m.stop, m.done)
}

// Stop terminates the loop and waits for the in-flight tick to finish.
// Safe to call multiple times and on a never-started monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
}

func (m *Monitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(m.limits.SampleInterval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			m.tick()
			timer.Reset(m.limits.SampleInterval)
		}
	}
}

// tick samples every registered process once and terminates violators that
// are past the grace period.
func (m *Monitor) tick() {
	for _, rec := range m.reg.List() {
		usage, err := m.table.Usage(rec.PID)
		if err != nil {
			// Sampling failure degrades to no data; the process may have
			// just exited, and the detector will reconcile that.
			continue
		}

		reason, violated := m.violation(usage)
		if !violated {
			continue
		}

		if age := time.Since(rec.StartTime); age < m.limits.GracePeriod {
			log.Printf("[monitor] pid %d over limits but inside grace period (%s old): %s", rec.PID, age.Round(time.Millisecond), reason)
			continue
		}

		// Stale read: the pid may have been reclaimed since List.
		if _, ok := m.reg.Get(rec.PID); !ok {
			continue
		}

		log.Printf("[monitor] terminating pid %d: %s", rec.PID, reason)
		outcome := m.reaper.Kill([]models.OrphanCandidate{{
			PID:                 rec.PID,
			Command:             rec.Command,
			ResidentMemoryBytes: usage.RSSBytes,
			Classification:      models.Confirmed,
			Reason:              reason,
		}}, m.killOpts)

		for _, f := range outcome.Failed {
			log.Printf("[monitor] failed to terminate pid %d: %s", f.PID, f.Err)
		}
	}
}

// violation checks a sample against the configured ceilings. A zero
// ceiling disables that dimension.
func (m *Monitor) violation(u proctab.Usage) (string, bool) {
	if m.limits.CPUPercentCeiling > 0 && u.CPUPercent > m.limits.CPUPercentCeiling {
		return fmt.Sprintf("cpu %.1f%% over ceiling %.1f%%", u.CPUPercent, m.limits.CPUPercentCeiling), true
	}
	if m.limits.MemoryMBCeiling > 0 {
		ceilingBytes := m.limits.MemoryMBCeiling * 1024 * 1024
		if u.RSSBytes > ceilingBytes {
			return fmt.Sprintf("memory %dMB over ceiling %dMB", u.RSSBytes/(1024*1024), m.limits.MemoryMBCeiling), true
		}
	}
	return "", false
}
