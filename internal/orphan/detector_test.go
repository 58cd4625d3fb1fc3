package orphan

import (
	"os"
	"testing"
	"time"

	"github.com/drover-dev/drover/internal/patterns"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/tracker"
	"github.com/drover-dev/drover/pkg/models"
)

func newFixture(t *testing.T) (*Detector, *registry.Registry, *tracker.Store, *proctab.FakeTable) {
	t.Helper()
	dir := t.TempDir()
	reg := registry.New(dir)
	tracked := tracker.New(dir)
	table := proctab.NewFakeTable()
	d := NewDetector(reg, tracked, table, patterns.New())
	return d, reg, tracked, table
}

func addProc(table *proctab.FakeTable, pid, ppid int, command string, elapsed time.Duration) {
	table.AddProcess(proctab.FakeProcess{Info: proctab.ProcessInfo{
		PID:     pid,
		PPID:    ppid,
		Command: command,
		Elapsed: elapsed,
	}})
}

func findCandidate(cands []models.OrphanCandidate, pid int) (models.OrphanCandidate, bool) {
	for _, c := range cands {
		if c.PID == pid {
			return c, true
		}
	}
	return models.OrphanCandidate{}, false
}

func TestScan_TrackedPidAlwaysConfirmed(t *testing.T) {
	d, _, tracked, table := newFixture(t)

	// Working directory far outside any project root.
	table.AddProcess(proctab.FakeProcess{
		Info:       proctab.ProcessInfo{PID: 900, PPID: 1, Command: "something-unmatched", Elapsed: time.Second},
		WorkingDir: "/nowhere/else",
	})
	if err := tracked.Track(900, "something-unmatched", "/nowhere/else"); err != nil {
		t.Fatal(err)
	}

	cands, err := d.Scan(ScanOptions{RootPath: "/work/project", MinAge: time.Hour})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	c, ok := findCandidate(cands, 900)
	if !ok {
		t.Fatal("tracked live pid missing from candidates")
	}
	if c.Classification != models.Confirmed {
		t.Errorf("tracked pid classification = %q, want confirmed", c.Classification)
	}
}

func TestScan_DeadTrackedPidPruned(t *testing.T) {
	d, _, tracked, _ := newFixture(t)

	if err := tracked.Track(901, "gone", ""); err != nil {
		t.Fatal(err)
	}

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := findCandidate(cands, 901); ok {
		t.Error("dead tracked pid should not be a candidate")
	}
	if tracked.Contains(901) {
		t.Error("dead tracked pid should be pruned by the scan")
	}
}

func TestScan_RegistryLineageBroken(t *testing.T) {
	d, reg, _, table := newFixture(t)

	deadOwner := 999999
	addProc(table, 910, 1, "claude --print task", time.Minute)
	if err := reg.Add(models.ProcessRecord{
		PID: 910, Command: "claude", Namespace: "ns1",
		StartTime: time.Now(), Status: models.ProcessRunning, OwnerPID: deadOwner,
	}); err != nil {
		t.Fatal(err)
	}

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	c, ok := findCandidate(cands, 910)
	if !ok {
		t.Fatal("registry record with dead owner missing from candidates")
	}
	if c.Classification != models.Confirmed {
		t.Errorf("classification = %q, want confirmed", c.Classification)
	}

	rec, _ := reg.Get(910)
	if rec.Status != models.ProcessOrphaned {
		t.Errorf("registry status = %q, want orphaned", rec.Status)
	}
}

func TestScan_LiveOwnerIsNotOrphaned(t *testing.T) {
	d, reg, _, table := newFixture(t)

	// Owned by this very process: lineage intact.
	addProc(table, 911, os.Getpid(), "claude --print task", time.Minute)
	if err := reg.Add(models.ProcessRecord{
		PID: 911, Command: "claude", Namespace: "ns1",
		StartTime: time.Now(), Status: models.ProcessRunning, OwnerPID: os.Getpid(),
	}); err != nil {
		t.Fatal(err)
	}

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("expected 0 candidates for intact lineage, got %+v", cands)
	}
}

func TestScan_HeuristicSuspectedWithoutAncestry(t *testing.T) {
	d, _, _, table := newFixture(t)

	addProc(table, 920, 1, "claude --print orphaned work", 10*time.Minute)

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	c, ok := findCandidate(cands, 920)
	if !ok {
		t.Fatal("heuristic match missing from candidates")
	}
	if c.Classification != models.Suspected {
		t.Errorf("classification = %q, want suspected", c.Classification)
	}
}

func TestScan_HeuristicConfirmedByAncestry(t *testing.T) {
	d, reg, _, table := newFixture(t)

	// 930 (drover owner, registered) -> 931 (shell) -> 932 (claude).
	addProc(table, 930, 1, "/usr/local/bin/drover run", time.Hour)
	addProc(table, 931, 930, "/bin/sh -c agent", time.Hour)
	addProc(table, 932, 931, "claude --print leaked", 10*time.Minute)

	if err := reg.Add(models.ProcessRecord{
		PID: 940, Command: "claude", Namespace: "ns1",
		StartTime: time.Now(), Status: models.ProcessRunning, OwnerPID: 930,
	}); err != nil {
		t.Fatal(err)
	}

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	c, ok := findCandidate(cands, 932)
	if !ok {
		t.Fatal("descendant of drover owner missing from candidates")
	}
	if c.Classification != models.Confirmed {
		t.Errorf("classification = %q, want confirmed (ancestry reaches owner)", c.Classification)
	}
}

func TestScan_LineageMarkerConfirms(t *testing.T) {
	d, _, _, table := newFixture(t)

	// Parent carries the lineage marker but is not registered anywhere.
	table.AddProcess(proctab.FakeProcess{
		Info: proctab.ProcessInfo{PID: 950, PPID: 1, Command: "renamed-binary serve", Elapsed: time.Hour},
		Env:  []string{"PATH=/usr/bin", "DROVER_SESSION=abc12345"},
	})
	addProc(table, 951, 950, "claude --print marked child", 10*time.Minute)

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	c, ok := findCandidate(cands, 951)
	if !ok {
		t.Fatal("marked child missing from candidates")
	}
	if c.Classification != models.Confirmed {
		t.Errorf("classification = %q, want confirmed via lineage marker", c.Classification)
	}
}

func TestScan_MinAgeFiltersHeuristicChannel(t *testing.T) {
	d, _, _, table := newFixture(t)

	addProc(table, 960, 1, "claude --print young", 5*time.Second)
	addProc(table, 961, 1, "claude --print old", time.Hour)

	cands, err := d.Scan(ScanOptions{MinAge: time.Minute})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	if _, ok := findCandidate(cands, 960); ok {
		t.Error("young process should be filtered by MinAge")
	}
	if _, ok := findCandidate(cands, 961); !ok {
		t.Error("old process should survive MinAge filter")
	}
}

func TestScan_ExtraPatterns(t *testing.T) {
	d, _, _, table := newFixture(t)

	addProc(table, 970, 1, "legacy-agent --loop", time.Hour)

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findCandidate(cands, 970); ok {
		t.Fatal("unexpected match without extra pattern")
	}

	cands, err = d.Scan(ScanOptions{ExtraPatterns: []string{"legacy-agent"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findCandidate(cands, 970); !ok {
		t.Error("extra pattern should match")
	}
}

func TestScan_SelfIsNeverACandidate(t *testing.T) {
	d, _, _, table := newFixture(t)

	addProc(table, os.Getpid(), 1, "claude --print impostor", time.Hour)

	cands, err := d.Scan(ScanOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := findCandidate(cands, os.Getpid()); ok {
		t.Error("the scanning process must never flag itself")
	}
}
