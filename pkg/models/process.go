package models

import "time"

// ProcessStatus represents the lifecycle state of a registered process.
type ProcessStatus string

const (
	// ProcessRunning indicates the process was alive at last observation.
	ProcessRunning ProcessStatus = "running"
	// ProcessOrphaned indicates lineage to a live orchestrator could not be established.
	ProcessOrphaned ProcessStatus = "orphaned"
	// ProcessTerminated indicates the process has been confirmed dead.
	ProcessTerminated ProcessStatus = "terminated"
)

// Valid returns true if the status is a known value.
func (s ProcessStatus) Valid() bool {
	switch s {
	case ProcessRunning, ProcessOrphaned, ProcessTerminated:
		return true
	default:
		return false
	}
}

// ProcessRecord is the registry's authoritative record of a spawned process.
// A pid occupies at most one record per registry.
type ProcessRecord struct {
	// PID is the OS process ID.
	PID int `json:"pid"`
	// Command is the executable that was spawned.
	Command string `json:"command"`
	// Args are the arguments the process was started with, in order.
	Args []string `json:"args,omitempty"`
	// Namespace groups processes belonging to one task-runner session.
	Namespace string `json:"namespace"`
	// StartTime is when the orchestrator spawned the process.
	StartTime time.Time `json:"start_time"`
	// Status is the current lifecycle state.
	Status ProcessStatus `json:"status"`
	// OwnerPID is the pid of the orchestrator instance that spawned it.
	OwnerPID int `json:"owner_pid"`
}

// TrackedPid is the narrow fast-lookup record kept alongside the registry.
// Any live tracked pid is ours by definition.
type TrackedPid struct {
	// PID is the OS process ID.
	PID int `json:"pid"`
	// Command is the executable that was spawned.
	Command string `json:"command"`
	// SpawnedAt is when the pid was recorded.
	SpawnedAt time.Time `json:"spawned_at"`
	// WorkingDir is the directory the process was started in.
	WorkingDir string `json:"working_dir,omitempty"`
}
