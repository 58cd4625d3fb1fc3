// Package tracker keeps the narrow "did we spawn this pid" store. It is a
// fast lookup table next to the registry: any live tracked pid is ours by
// definition, so the orphan detector can classify it without heuristics.
package tracker

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/drover-dev/drover/pkg/models"
)

// StoreFile is the tracked-pid filename inside the data directory.
const StoreFile = "tracked_pids.json"

// storeVersion identifies the on-disk format.
const storeVersion = 1

type storeFile struct {
	Version int                 `json:"version"`
	Pids    []models.TrackedPid `json:"pids"`
}

// Store persists tracked pids with owner-only permissions. Entries for dead
// pids are pruned on every detection scan, keeping the file bounded.
type Store struct {
	mu   sync.Mutex
	path string
	pids map[int]models.TrackedPid
}

// New creates a store persisting under dir and loads any existing state.
// A missing or unreadable store file starts empty.
func New(dir string) *Store {
	s := &Store{
		path: filepath.Join(dir, StoreFile),
		pids: make(map[int]models.TrackedPid),
	}
	s.load()
	return s
}

// Track records a spawned pid. Tracking an already-tracked pid replaces the
// entry.
func (s *Store) Track(pid int, command, workingDir string) error {
	if pid <= 0 {
		return fmt.Errorf("track pid: invalid pid %d", pid)
	}

	s.mu.Lock()
	s.pids[pid] = models.TrackedPid{
		PID:        pid,
		Command:    command,
		SpawnedAt:  time.Now(),
		WorkingDir: workingDir,
	}
	s.mu.Unlock()

	s.saveBestEffort()
	return nil
}

// Untrack removes a pid. Untracking an unknown pid is a no-op.
func (s *Store) Untrack(pid int) {
	s.mu.Lock()
	_, existed := s.pids[pid]
	delete(s.pids, pid)
	s.mu.Unlock()

	if existed {
		s.saveBestEffort()
	}
}

// Contains reports whether the pid is tracked.
func (s *Store) Contains(pid int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.pids[pid]
	return ok
}

// List returns all tracked pids sorted by pid.
func (s *Store) List() []models.TrackedPid {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TrackedPid, 0, len(s.pids))
	for _, tp := range s.pids {
		out = append(out, tp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Prune removes entries whose pid is no longer alive and returns how many
// were dropped. The detector calls this on every scan so the store heals
// itself instead of growing without bound.
func (s *Store) Prune(alive func(pid int) bool) int {
	s.mu.Lock()
	var dropped int
	for pid := range s.pids {
		if !alive(pid) {
			delete(s.pids, pid)
			dropped++
		}
	}
	s.mu.Unlock()

	if dropped > 0 {
		s.saveBestEffort()
	}
	return dropped
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[tracker] read %s: %v (starting empty)", s.path, err)
		}
		return
	}

	var f storeFile
	if err := json.Unmarshal(data, &f); err != nil {
		log.Printf("[tracker] parse %s: %v (starting empty)", s.path, err)
		return
	}
	for _, tp := range f.Pids {
		s.pids[tp.PID] = tp
	}
}

// saveBestEffort writes the store with owner-only permissions. Failures are
// logged, not returned, matching the registry's persistence policy.
func (s *Store) saveBestEffort() {
	s.mu.Lock()
	f := storeFile{Version: storeVersion, Pids: make([]models.TrackedPid, 0, len(s.pids))}
	for _, tp := range s.pids {
		f.Pids = append(f.Pids, tp)
	}
	s.mu.Unlock()

	sort.Slice(f.Pids, func(i, j int) bool { return f.Pids[i].PID < f.Pids[j].PID })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		log.Printf("[tracker] marshal store: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		log.Printf("[tracker] create data directory: %v", err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		log.Printf("[tracker] write store: %v", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		log.Printf("[tracker] replace store: %v", err)
	}
}
