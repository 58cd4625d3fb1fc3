// Package proctab abstracts OS process-table inspection behind a small
// capability interface so the supervision components can be tested against
// an in-memory fake instead of the live host.
package proctab

import (
	"syscall"
	"time"
)

// ProcessInfo is one row of the OS process table.
type ProcessInfo struct {
	// PID is the process ID.
	PID int
	// PPID is the parent process ID.
	PPID int
	// Command is the full command line (executable plus arguments).
	Command string
	// Elapsed is how long the process has been running.
	Elapsed time.Duration
	// RSSBytes is the resident set size in bytes.
	RSSBytes int64
}

// Usage is a point-in-time resource sample for one process.
type Usage struct {
	// CPUPercent is the CPU usage; 0 when sampling is unsupported.
	CPUPercent float64
	// RSSBytes is the resident set size in bytes.
	RSSBytes int64
}

// Table is the process-table capability surface. The system backend shells
// out to ps and reads /proc; the fake backend is fully in-memory.
type Table interface {
	// List enumerates the full process table.
	List() ([]ProcessInfo, error)
	// Usage samples CPU and memory for one pid.
	Usage(pid int) (Usage, error)
	// WorkingDirectory resolves a process's cwd. Returns "" without error
	// when the directory is unreadable (permissions), which callers treat
	// as unknown.
	WorkingDirectory(pid int) (string, error)
	// Environ returns the process environment when readable, nil otherwise.
	Environ(pid int) []string
	// Alive reports whether the pid refers to a live process.
	Alive(pid int) bool
	// Signal delivers a signal to the pid.
	Signal(pid int, sig syscall.Signal) error
}
