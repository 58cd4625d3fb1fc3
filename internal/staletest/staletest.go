// Package staletest sweeps runaway test-runner processes. It composes the
// orphan detector with a narrow test-runner allowlist and force-kills
// everything past the age threshold: a harness that old is hung, not working.
package staletest

import (
	"fmt"
	"time"

	"github.com/drover-dev/drover/internal/orphan"
	"github.com/drover-dev/drover/internal/patterns"
	"github.com/drover-dev/drover/internal/reaper"
	"github.com/drover-dev/drover/pkg/models"
)

// DefaultMaxAge is the minimum runtime before a test runner counts as stale.
const DefaultMaxAge = 10 * time.Minute

// Sweeper finds and kills stale test runners.
type Sweeper struct {
	detector *orphan.Detector
	reaper   *reaper.Reaper
}

// New builds a sweeper from a detector constructor and a reaper. The
// detector must be constructed with the test-runner allowlist; use
// NewMatcher for that.
func New(detector *orphan.Detector, rpr *reaper.Reaper) *Sweeper {
	return &Sweeper{detector: detector, reaper: rpr}
}

// NewMatcher returns the narrow matcher the sweeper's detector must use.
func NewMatcher() *patterns.Matcher {
	return patterns.NewForSubstrings(patterns.TestRunnerSubstrings)
}

// Sweep scans for test runners older than maxAge and force-kills every
// match. A zero maxAge uses DefaultMaxAge.
func (s *Sweeper) Sweep(maxAge time.Duration) ([]models.OrphanCandidate, models.KillOutcome, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	candidates, err := s.detector.Scan(orphan.ScanOptions{MinAge: maxAge})
	if err != nil {
		return nil, models.KillOutcome{}, fmt.Errorf("stale test scan: %w", err)
	}

	outcome := s.reaper.Kill(candidates, reaper.Options{Force: true})
	return candidates, outcome, nil
}
