// Package registry is the durable, lock-protected store of process records.
// It is the single source of truth about what drover has spawned: every
// instance of the tool on the host coordinates through one snapshot file
// guarded by a sentinel lock.
package registry

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/drover-dev/drover/pkg/models"
)

// SnapshotFile is the registry snapshot filename inside the data directory.
const SnapshotFile = "registry.json"

// LockFile is the sentinel lock filename inside the data directory.
const LockFile = "registry.lock"

// Registry holds the in-memory process table and persists it to disk on
// every mutation. In-memory state stays authoritative for this process's
// lifetime: a persist failure is logged and retried on the next mutation,
// never surfaced as a mutation failure.
//
// Registry is an explicit component: construct one with New and pass it to
// consumers. There is deliberately no package-level instance.
type Registry struct {
	mu    sync.Mutex
	path  string
	lock  *FileLock
	procs map[int]models.ProcessRecord
}

// New creates a registry persisting under dir. The snapshot is not read
// until Load is called.
func New(dir string) *Registry {
	return &Registry{
		path:  filepath.Join(dir, SnapshotFile),
		lock:  NewFileLock(filepath.Join(dir, LockFile)),
		procs: make(map[int]models.ProcessRecord),
	}
}

// Load reads the snapshot from disk, replacing in-memory state. A missing
// snapshot file is empty state, not an error.
func (r *Registry) Load() error {
	s, err := readSnapshot(r.path)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs = make(map[int]models.ProcessRecord, len(s.Processes))
	for _, p := range s.Processes {
		r.procs[p.PID] = p
	}
	return nil
}

// Add registers a spawned process. An existing record for the same pid is
// replaced: pids are unique per registry and a reused OS pid always refers
// to the newer process.
func (r *Registry) Add(rec models.ProcessRecord) error {
	if rec.PID <= 0 {
		return fmt.Errorf("add process: invalid pid %d", rec.PID)
	}
	if rec.Status == "" {
		rec.Status = models.ProcessRunning
	}

	r.mu.Lock()
	r.procs[rec.PID] = rec
	r.mu.Unlock()

	r.persistBestEffort()
	return nil
}

// Remove deletes a pid from the registry. Removing an unknown pid is a
// no-op: callers routinely race with the terminator.
func (r *Registry) Remove(pid int) {
	r.mu.Lock()
	_, existed := r.procs[pid]
	delete(r.procs, pid)
	r.mu.Unlock()

	if existed {
		r.persistBestEffort()
	}
}

// UpdateStatus transitions the lifecycle state of a registered pid.
// Unknown pids are ignored.
func (r *Registry) UpdateStatus(pid int, status models.ProcessStatus) {
	r.mu.Lock()
	rec, ok := r.procs[pid]
	if ok {
		rec.Status = status
		r.procs[pid] = rec
	}
	r.mu.Unlock()

	if ok {
		r.persistBestEffort()
	}
}

// Get returns the record for a pid, or false if not registered.
func (r *Registry) Get(pid int) (models.ProcessRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.procs[pid]
	return rec, ok
}

// List returns all records sorted by pid.
func (r *Registry) List() []models.ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.ProcessRecord, 0, len(r.procs))
	for _, rec := range r.procs {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// ListByNamespace returns records belonging to one namespace, sorted by pid.
func (r *Registry) ListByNamespace(ns string) []models.ProcessRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProcessRecord
	for _, rec := range r.procs {
		if rec.Namespace == ns {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// OwnerPIDs returns the set of orchestrator pids that own registered
// processes. The orphan detector uses this to decide whether an ancestry
// walk reached a drover instance.
func (r *Registry) OwnerPIDs() map[int]bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	owners := make(map[int]bool)
	for _, rec := range r.procs {
		if rec.OwnerPID > 0 {
			owners[rec.OwnerPID] = true
		}
	}
	return owners
}

// Persist writes the current state to disk under the file lock.
func (r *Registry) Persist() error {
	r.mu.Lock()
	s := &snapshot{
		SchemaVersion: schemaVersion,
		WriterPID:     os.Getpid(),
		Processes:     make([]models.ProcessRecord, 0, len(r.procs)),
		LastUpdated:   time.Now(),
	}
	for _, rec := range r.procs {
		s.Processes = append(s.Processes, rec)
	}
	r.mu.Unlock()

	sort.Slice(s.Processes, func(i, j int) bool { return s.Processes[i].PID < s.Processes[j].PID })

	if err := r.lock.Acquire(); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	defer func() {
		if err := r.lock.Release(); err != nil {
			log.Printf("[registry] %v", err)
		}
	}()

	if err := writeSnapshot(r.path, s); err != nil {
		return fmt.Errorf("persist registry: %w", err)
	}
	return nil
}

// Path returns the snapshot file location.
func (r *Registry) Path() string {
	return r.path
}

// persistBestEffort persists after a mutation. Disk failures are logged,
// not returned: the in-memory state bridges transient I/O trouble and the
// next mutation retries the write.
func (r *Registry) persistBestEffort() {
	if err := r.Persist(); err != nil {
		log.Printf("[registry] persist failed (continuing from memory): %v", err)
	}
}
