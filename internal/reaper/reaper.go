// Package reaper executes the staged termination protocol against orphan
// candidates: SIGTERM, a bounded graceful wait, then SIGKILL. It is the
// only component that sends kill signals, and it enforces the safety floor
// unconditionally.
package reaper

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/pkg/models"
)

// MinKillablePID is the safety floor: no signal is ever sent to a pid at or
// below it, regardless of classification or force flags. System and kernel
// processes live down there.
const MinKillablePID = 100

const (
	// DefaultTimeout is the graceful wait after SIGTERM before escalation.
	DefaultTimeout = 5 * time.Second
	// defaultPollInterval is how often liveness is re-checked while waiting.
	defaultPollInterval = 100 * time.Millisecond
	// confirmWait bounds the post-SIGKILL confirmation poll.
	confirmWait = time.Second
)

// Options controls a kill batch.
type Options struct {
	// Force permits terminating suspected candidates. Confirmed candidates
	// never need it.
	Force bool
	// DryRun reports intended actions without sending any signal.
	DryRun bool
	// Timeout is the graceful wait before SIGKILL; DefaultTimeout when zero.
	Timeout time.Duration
	// PollInterval overrides the liveness poll cadence; mainly for tests.
	PollInterval time.Duration
}

// Reaper terminates candidates and keeps the registry consistent with what
// it confirms dead.
type Reaper struct {
	reg   *registry.Registry
	table proctab.Table
}

// New wires a reaper from its collaborators.
func New(reg *registry.Registry, table proctab.Table) *Reaper {
	return &Reaper{reg: reg, table: table}
}

// Kill runs the termination protocol against every candidate. Candidates
// are handled independently and concurrently; one failure never aborts the
// batch. Once SIGTERM has gone out for a candidate the escalation runs to
// completion, bounded by the timeout.
func (r *Reaper) Kill(candidates []models.OrphanCandidate, opts Options) models.KillOutcome {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}

	var mu sync.Mutex
	var outcome models.KillOutcome
	var wg sync.WaitGroup

	for _, c := range candidates {
		wg.Add(1)
		go func(c models.OrphanCandidate) {
			defer wg.Done()
			res, err := r.killOne(c, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				outcome.Failed = append(outcome.Failed, models.KillFailure{PID: c.PID, Err: err.Error()})
			case res == resultSkipped:
				outcome.Skipped = append(outcome.Skipped, c.PID)
			default:
				outcome.Killed = append(outcome.Killed, c.PID)
			}
		}(c)
	}
	wg.Wait()

	sort.Ints(outcome.Killed)
	sort.Ints(outcome.Skipped)
	sort.Slice(outcome.Failed, func(i, j int) bool { return outcome.Failed[i].PID < outcome.Failed[j].PID })
	return outcome
}

type killResult int

const (
	resultKilled killResult = iota
	resultSkipped
)

// killOne runs the per-candidate state machine: eligibility, liveness,
// dry-run, SIGTERM, graceful wait, SIGKILL, confirmation.
func (r *Reaper) killOne(c models.OrphanCandidate, opts Options) (killResult, error) {
	// Eligibility gate. The pid floor holds no matter what.
	if c.PID <= MinKillablePID {
		log.Printf("[reaper] refusing pid %d: at or below safety floor", c.PID)
		return resultSkipped, nil
	}
	if c.Classification == models.Suspected && !opts.Force {
		return resultSkipped, nil
	}

	// A candidate that vanished between classification and now is a benign
	// race: already cleaned.
	if !r.table.Alive(c.PID) {
		r.reg.Remove(c.PID)
		return resultKilled, nil
	}

	if opts.DryRun {
		return resultKilled, nil
	}

	if err := r.table.Signal(c.PID, syscall.SIGTERM); err != nil {
		if isGone(err) {
			r.reg.Remove(c.PID)
			return resultKilled, nil
		}
		return 0, fmt.Errorf("SIGTERM: %w", err)
	}

	if r.waitExit(c.PID, opts.Timeout, opts.PollInterval) {
		r.reg.Remove(c.PID)
		return resultKilled, nil
	}

	log.Printf("[reaper] pid %d survived SIGTERM for %s, escalating to SIGKILL", c.PID, opts.Timeout)
	if err := r.table.Signal(c.PID, syscall.SIGKILL); err != nil {
		if isGone(err) {
			r.reg.Remove(c.PID)
			return resultKilled, nil
		}
		return 0, fmt.Errorf("SIGKILL: %w", err)
	}

	if r.waitExit(c.PID, confirmWait, opts.PollInterval) {
		r.reg.Remove(c.PID)
		return resultKilled, nil
	}
	return 0, errors.New("process still exists after SIGKILL")
}

// waitExit polls liveness until the process exits or the wait elapses.
func (r *Reaper) waitExit(pid int, wait, poll time.Duration) bool {
	deadline := time.Now().Add(wait)
	for {
		if !r.table.Alive(pid) {
			return true
		}
		if !time.Now().Before(deadline) {
			return false
		}
		time.Sleep(poll)
	}
}

// isGone reports whether a signal error means the process already exited.
func isGone(err error) bool {
	return errors.Is(err, syscall.ESRCH)
}
