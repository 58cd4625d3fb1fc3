// Package orphan cross-references the registry, the tracked-pid store, and
// the live OS process table to find processes whose owning orchestrator can
// no longer be confirmed alive.
package orphan

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/drover-dev/drover/internal/patterns"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/tracker"
	"github.com/drover-dev/drover/pkg/models"
)

// ScanOptions controls one detection pass.
type ScanOptions struct {
	// RootPath is the project root; a working directory inside it is a
	// supporting ownership signal.
	RootPath string
	// ExtraPatterns are additional command substrings to match this scan.
	ExtraPatterns []string
	// MinAge discards heuristic matches younger than this. Tracked pids are
	// exempt: they are ours at any age.
	MinAge time.Duration
}

// Detector produces classified orphan candidates. Scans are cheap and
// idempotent apart from one deliberate side effect: dead pids are pruned
// from the tracked store.
type Detector struct {
	reg     *registry.Registry
	tracked *tracker.Store
	table   proctab.Table
	matcher *patterns.Matcher
	selfPID int
}

// NewDetector wires a detector from its collaborators.
func NewDetector(reg *registry.Registry, tracked *tracker.Store, table proctab.Table, matcher *patterns.Matcher) *Detector {
	return &Detector{
		reg:     reg,
		tracked: tracked,
		table:   table,
		matcher: matcher,
		selfPID: os.Getpid(),
	}
}

// Scan merges three detection channels into a classified candidate list:
// registry records with broken lineage, live tracked pids, and heuristic
// process-table matches.
func (d *Detector) Scan(opts ScanOptions) ([]models.OrphanCandidate, error) {
	procs, err := d.table.List()
	if err != nil {
		return nil, fmt.Errorf("scan process table: %w", err)
	}

	byPID := make(map[int]proctab.ProcessInfo, len(procs))
	for _, p := range procs {
		byPID[p.PID] = p
	}

	// Self-healing: drop tracked entries whose process has exited.
	if dropped := d.tracked.Prune(func(pid int) bool {
		_, ok := byPID[pid]
		return ok
	}); dropped > 0 {
		log.Printf("[orphan] pruned %d dead tracked pid(s)", dropped)
	}

	var candidates []models.OrphanCandidate
	seen := make(map[int]bool)

	// Channel 1a: registry records whose owning orchestrator is gone.
	for _, rec := range d.reg.List() {
		info, alive := byPID[rec.PID]
		if !alive {
			continue
		}
		if d.ownerAlive(rec.OwnerPID, byPID) {
			// Lineage intact: keep the heuristic channel away from it too.
			seen[rec.PID] = true
			continue
		}
		d.reg.UpdateStatus(rec.PID, models.ProcessOrphaned)
		candidates = append(candidates, d.candidate(info, models.Confirmed,
			fmt.Sprintf("lineage broken: owner pid %d is dead", rec.OwnerPID)))
		seen[rec.PID] = true
	}

	// Channel 1b: tracked pids. Still alive means confirmed, regardless of
	// working directory or ancestry; they were registered as ours at spawn.
	for _, tp := range d.tracked.List() {
		if seen[tp.PID] {
			continue
		}
		info, alive := byPID[tp.PID]
		if !alive {
			continue
		}
		candidates = append(candidates, d.candidate(info, models.Confirmed,
			"tracked: pid was registered at spawn time"))
		seen[tp.PID] = true
	}

	// Channel 2: heuristic sweep of the full process table.
	var extra *patterns.Matcher
	if len(opts.ExtraPatterns) > 0 {
		extra = patterns.NewForSubstrings(opts.ExtraPatterns)
	}

	owners := d.reg.OwnerPIDs()
	owners[d.selfPID] = true

	for _, info := range procs {
		if seen[info.PID] || info.PID == d.selfPID {
			continue
		}

		matched, reason := d.matcher.Match(info.Command)
		if !matched && extra != nil {
			matched, reason = extra.Match(info.Command)
		}
		if !matched {
			continue
		}
		if info.Elapsed < opts.MinAge {
			continue
		}
		if !d.table.Alive(info.PID) {
			// Exited between enumeration and classification.
			continue
		}

		c := d.candidate(info, models.Suspected, reason)

		if ancestor, ok := d.ancestryReachesOwner(info.PID, byPID, owners); ok {
			c.Classification = models.Confirmed
			c.Reason = fmt.Sprintf("descends from drover instance (pid %d); %s", ancestor, reason)
		} else if opts.RootPath != "" && c.WorkingDir != "" && insideRoot(c.WorkingDir, opts.RootPath) {
			c.Reason = reason + "; working directory inside project root"
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

// candidate builds an OrphanCandidate from a process-table row, resolving
// the working directory best-effort.
func (d *Detector) candidate(info proctab.ProcessInfo, class models.Classification, reason string) models.OrphanCandidate {
	wd, err := d.table.WorkingDirectory(info.PID)
	if err != nil {
		// Unknown, not fatal.
		wd = ""
	}
	return models.OrphanCandidate{
		PID:                 info.PID,
		Command:             info.Command,
		Age:                 info.Elapsed,
		ResidentMemoryBytes: info.RSSBytes,
		WorkingDir:          wd,
		Classification:      class,
		Reason:              reason,
	}
}

// ownerAlive reports whether an orchestrator pid is still running. Our own
// pid counts as alive: processes we spawned this run are not orphans.
func (d *Detector) ownerAlive(ownerPID int, byPID map[int]proctab.ProcessInfo) bool {
	if ownerPID <= 0 {
		return false
	}
	if ownerPID == d.selfPID {
		return true
	}
	_, ok := byPID[ownerPID]
	return ok
}

// ancestryReachesOwner walks the parent-pid chain upward looking for a
// drover-owned process. The walk is bounded by a visited set (pid tables
// can contain cycles when pids are recycled mid-scan) and stops at pid 1.
func (d *Detector) ancestryReachesOwner(pid int, byPID map[int]proctab.ProcessInfo, owners map[int]bool) (int, bool) {
	visited := make(map[int]bool)
	cur := pid

	for {
		if visited[cur] {
			return 0, false
		}
		visited[cur] = true

		info, ok := byPID[cur]
		if !ok || info.PPID <= 1 {
			return 0, false
		}
		parent := info.PPID
		if d.isOrchestrator(parent, byPID, owners) {
			return parent, true
		}
		cur = parent
	}
}

// isOrchestrator decides whether a pid is a drover instance: registered as
// an owner, stamped with the lineage marker, or (fallback) running a binary
// named drover.
func (d *Detector) isOrchestrator(pid int, byPID map[int]proctab.ProcessInfo, owners map[int]bool) bool {
	if owners[pid] {
		return true
	}
	for _, kv := range d.table.Environ(pid) {
		if strings.HasPrefix(kv, models.LineageMarkerEnv+"=") {
			return true
		}
	}
	if info, ok := byPID[pid]; ok {
		fields := strings.Fields(info.Command)
		if len(fields) > 0 && strings.HasSuffix(fields[0], "drover") {
			return true
		}
	}
	return false
}

// insideRoot reports whether path is root or a descendant of it.
func insideRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}
