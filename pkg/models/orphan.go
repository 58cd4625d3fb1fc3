package models

import "time"

// Classification is the two-tier confidence level assigned to an orphan
// candidate. It gates default-safe versus opt-in-risky termination.
type Classification string

const (
	// Confirmed means the process is known to be ours: it is tracked, or its
	// ancestry and working directory tie it to a task-runner instance.
	Confirmed Classification = "confirmed"
	// Suspected means the process merely matches heuristic patterns.
	// Suspected candidates are never terminated without --force.
	Suspected Classification = "suspected"
)

// Valid returns true if the classification is a known value.
func (c Classification) Valid() bool {
	return c == Confirmed || c == Suspected
}

// OrphanCandidate describes a process the detector believes should be reclaimed.
type OrphanCandidate struct {
	// PID is the OS process ID.
	PID int `json:"pid"`
	// Command is the full command line reported by the OS.
	Command string `json:"command"`
	// Age is how long the process has been running.
	Age time.Duration `json:"age_ms"`
	// ResidentMemoryBytes is the resident set size, when known.
	ResidentMemoryBytes int64 `json:"resident_memory_bytes,omitempty"`
	// WorkingDir is the process's working directory, empty when unreadable.
	WorkingDir string `json:"working_dir,omitempty"`
	// Classification is the confidence level of the match.
	Classification Classification `json:"classification"`
	// Reason is a human-readable explanation of why the process was flagged.
	Reason string `json:"reason"`
}

// KillFailure records a per-pid hard failure during a kill batch.
type KillFailure struct {
	// PID is the process that could not be terminated.
	PID int `json:"pid"`
	// Err is the failure description.
	Err string `json:"error"`
}

// KillOutcome aggregates the result of a kill batch. A batch always attempts
// every candidate, so all three sets can be populated at once.
type KillOutcome struct {
	// Killed lists pids confirmed dead (including already-gone and dry-run).
	Killed []int `json:"killed"`
	// Skipped lists pids rejected by the eligibility gate.
	Skipped []int `json:"skipped"`
	// Failed lists pids that survived or could not be signaled.
	Failed []KillFailure `json:"failed"`
}

// ResourceLimits configures the resource monitor.
type ResourceLimits struct {
	// CPUPercentCeiling is the CPU usage ceiling; 0 disables CPU checks.
	CPUPercentCeiling float64 `json:"cpu_percent_ceiling,omitempty" mapstructure:"cpu_percent_ceiling"`
	// MemoryMBCeiling is the resident memory ceiling in MB; 0 disables memory checks.
	MemoryMBCeiling int64 `json:"memory_mb_ceiling,omitempty" mapstructure:"memory_mb_ceiling"`
	// SampleInterval is how often registered processes are sampled.
	SampleInterval time.Duration `json:"sample_interval" mapstructure:"sample_interval"`
	// GracePeriod is the minimum process age before a violation may terminate.
	GracePeriod time.Duration `json:"grace_period" mapstructure:"grace_period"`
	// Enabled toggles the monitor; when false Start is a no-op.
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}
