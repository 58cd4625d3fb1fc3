package orphan

import (
	"testing"
	"time"

	"github.com/drover-dev/drover/internal/patterns"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/reaper"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/tracker"
	"github.com/drover-dev/drover/pkg/models"
)

// TestCrashReclaimLifecycle walks the full supervision story: an instance
// registers three agents and dies, a second instance reloads the snapshot,
// finds nothing wrong while the owner lives, then finds all three once the
// owner is gone, and reclaims them down to an empty registry.
func TestCrashReclaimLifecycle(t *testing.T) {
	dir := t.TempDir()
	table := proctab.NewFakeTable()

	const ownerPID = 500
	agentPIDs := []int{501, 502, 503}

	addProc(table, ownerPID, 1, "/usr/local/bin/drover run", time.Minute)
	for _, pid := range agentPIDs {
		addProc(table, pid, ownerPID, "claude --print do the task", time.Minute)
	}

	// First instance: register the agents and persist.
	reg := registry.New(dir)
	for _, pid := range agentPIDs {
		err := reg.Add(models.ProcessRecord{
			PID:       pid,
			Command:   "claude",
			Namespace: "sess1",
			StartTime: time.Now(),
			Status:    models.ProcessRunning,
			OwnerPID:  ownerPID,
		})
		if err != nil {
			t.Fatalf("Add(%d): %v", pid, err)
		}
	}
	if err := reg.Persist(); err != nil {
		t.Fatalf("Persist: %v", err)
	}

	// Second instance: fresh registry from the same snapshot.
	reg2 := registry.New(dir)
	if err := reg2.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(reg2.List()); got != 3 {
		t.Fatalf("reloaded registry has %d records, want 3", got)
	}

	d := NewDetector(reg2, tracker.New(dir), table, patterns.New())

	// Owner still alive: nothing to reclaim even though the agent command
	// lines match the heuristics.
	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 0 {
		t.Fatalf("scan with live owner found %d candidates, want 0: %+v", len(cands), cands)
	}

	// Sever the lineage.
	table.RemoveProcess(ownerPID)

	cands, err = d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan after owner death: %v", err)
	}
	if len(cands) != 3 {
		t.Fatalf("scan after owner death found %d candidates, want 3", len(cands))
	}
	for _, c := range cands {
		if c.Classification != models.Confirmed {
			t.Errorf("pid %d classified %q, want confirmed", c.PID, c.Classification)
		}
	}

	outcome := reaper.New(reg2, table).Kill(cands, reaper.Options{
		Timeout:      200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	if len(outcome.Killed) != 3 {
		t.Fatalf("killed %d, want 3 (failed: %+v)", len(outcome.Killed), outcome.Failed)
	}
	for _, pid := range agentPIDs {
		if table.Alive(pid) {
			t.Errorf("pid %d still alive after reclaim", pid)
		}
	}
	if got := len(reg2.List()); got != 0 {
		t.Errorf("registry has %d records after reclaim, want 0", got)
	}
}
