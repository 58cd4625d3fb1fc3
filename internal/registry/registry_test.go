package registry

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/drover-dev/drover/pkg/models"
)

func record(pid int, ns string) models.ProcessRecord {
	return models.ProcessRecord{
		PID:       pid,
		Command:   "claude",
		Args:      []string{"--print", "do the thing"},
		Namespace: ns,
		StartTime: time.Now(),
		Status:    models.ProcessRunning,
		OwnerPID:  os.Getpid(),
	}
}

func TestRegistry_AddGetList(t *testing.T) {
	r := New(t.TempDir())

	if err := r.Add(record(1234, "alpha")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := r.Add(record(1235, "beta")); err != nil {
		t.Fatalf("Add: %v", err)
	}

	rec, ok := r.Get(1234)
	if !ok {
		t.Fatal("Get(1234) not found")
	}
	if rec.Namespace != "alpha" {
		t.Errorf("namespace = %q, want alpha", rec.Namespace)
	}

	if got := len(r.List()); got != 2 {
		t.Errorf("List() = %d records, want 2", got)
	}
	if got := len(r.ListByNamespace("beta")); got != 1 {
		t.Errorf("ListByNamespace(beta) = %d records, want 1", got)
	}
	if got := len(r.ListByNamespace("missing")); got != 0 {
		t.Errorf("ListByNamespace(missing) = %d records, want 0", got)
	}
}

func TestRegistry_AddRejectsInvalidPid(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Add(models.ProcessRecord{PID: 0}); err == nil {
		t.Error("Add with pid 0 should fail")
	}
	if err := r.Add(models.ProcessRecord{PID: -5}); err == nil {
		t.Error("Add with negative pid should fail")
	}
}

func TestRegistry_PidUniquePerRegistry(t *testing.T) {
	r := New(t.TempDir())

	first := record(42, "alpha")
	second := record(42, "beta")
	if err := r.Add(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(second); err != nil {
		t.Fatal(err)
	}

	if got := len(r.List()); got != 1 {
		t.Fatalf("List() = %d records, want 1 (pid is unique)", got)
	}
	rec, _ := r.Get(42)
	if rec.Namespace != "beta" {
		t.Errorf("re-added pid should keep the newer record, got namespace %q", rec.Namespace)
	}
}

func TestRegistry_RemoveIdempotent(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Add(record(99, "alpha")); err != nil {
		t.Fatal(err)
	}

	r.Remove(99)
	r.Remove(99) // second remove must not panic or change state

	if _, ok := r.Get(99); ok {
		t.Error("record should be gone after Remove")
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("List() = %d records after double remove, want 0", got)
	}
}

func TestRegistry_UpdateStatus(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Add(record(7, "alpha")); err != nil {
		t.Fatal(err)
	}

	r.UpdateStatus(7, models.ProcessOrphaned)

	rec, _ := r.Get(7)
	if rec.Status != models.ProcessOrphaned {
		t.Errorf("status = %q, want orphaned", rec.Status)
	}

	// Unknown pid is ignored.
	r.UpdateStatus(1000000, models.ProcessTerminated)
}

func TestRegistry_PersistAndReload(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	if err := r.Add(record(11, "alpha")); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(record(12, "alpha")); err != nil {
		t.Fatal(err)
	}

	fresh := New(dir)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(fresh.List()); got != 2 {
		t.Fatalf("reloaded registry has %d records, want 2", got)
	}
	rec, ok := fresh.Get(11)
	if !ok || rec.Command != "claude" {
		t.Errorf("reloaded record mismatch: %+v", rec)
	}
}

func TestRegistry_LoadMissingSnapshotIsEmpty(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Load(); err != nil {
		t.Fatalf("Load on fresh dir: %v", err)
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("fresh registry has %d records, want 0", got)
	}
}

func TestRegistry_SnapshotShapeOnDisk(t *testing.T) {
	dir := t.TempDir()
	r := New(dir)
	if err := r.Add(record(21, "alpha")); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(r.Path())
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}

	var s struct {
		SchemaVersion int                    `json:"schema_version"`
		WriterPID     int                    `json:"writer_pid"`
		Processes     []models.ProcessRecord `json:"processes"`
	}
	if err := json.Unmarshal(data, &s); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if s.SchemaVersion != 1 {
		t.Errorf("schema_version = %d, want 1", s.SchemaVersion)
	}
	if s.WriterPID != os.Getpid() {
		t.Errorf("writer_pid = %d, want %d", s.WriterPID, os.Getpid())
	}
	if len(s.Processes) != 1 || s.Processes[0].PID != 21 {
		t.Errorf("unexpected processes in snapshot: %+v", s.Processes)
	}
}

func TestRegistry_OwnerPIDs(t *testing.T) {
	r := New(t.TempDir())
	rec := record(31, "alpha")
	rec.OwnerPID = 777
	if err := r.Add(rec); err != nil {
		t.Fatal(err)
	}

	owners := r.OwnerPIDs()
	if !owners[777] {
		t.Error("owner pid 777 missing from OwnerPIDs")
	}
	if len(owners) != 1 {
		t.Errorf("OwnerPIDs() = %v, want exactly one owner", owners)
	}
}
