package proctab

import (
	"sync"
	"syscall"
)

// FakeProcess is one entry in the fake process table.
type FakeProcess struct {
	Info       ProcessInfo
	WorkingDir string
	Env        []string
	Usage      Usage
	// IgnoreSigterm makes the process survive SIGTERM (requires escalation).
	IgnoreSigterm bool
	// Unkillable makes the process survive SIGKILL as well.
	Unkillable bool
	// SignalErr, when set, is returned for every signal delivery attempt.
	SignalErr error
}

// SignalRecord is one observed signal delivery.
type SignalRecord struct {
	PID int
	Sig syscall.Signal
}

// FakeTable is an in-memory Table for tests. It records every signal it is
// asked to deliver, which lets tests assert that certain pids are never
// signaled at all.
type FakeTable struct {
	mu      sync.Mutex
	procs   map[int]*FakeProcess
	signals []SignalRecord
}

// NewFakeTable returns an empty fake process table.
func NewFakeTable() *FakeTable {
	return &FakeTable{procs: make(map[int]*FakeProcess)}
}

// AddProcess installs a process into the table, replacing any existing entry
// for the same pid.
func (f *FakeTable) AddProcess(p FakeProcess) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := p
	f.procs[p.Info.PID] = &cp
}

// RemoveProcess deletes a pid from the table, simulating process exit.
func (f *FakeTable) RemoveProcess(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.procs, pid)
}

// Signals returns a copy of every signal delivered so far.
func (f *FakeTable) Signals() []SignalRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SignalRecord, len(f.signals))
	copy(out, f.signals)
	return out
}

// SignalsTo returns the signals delivered to one pid, in order.
func (f *FakeTable) SignalsTo(pid int) []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sigs []syscall.Signal
	for _, r := range f.signals {
		if r.PID == pid {
			sigs = append(sigs, r.Sig)
		}
	}
	return sigs
}

// List enumerates the fake table.
func (f *FakeTable) List() ([]ProcessInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	procs := make([]ProcessInfo, 0, len(f.procs))
	for _, p := range f.procs {
		procs = append(procs, p.Info)
	}
	return procs, nil
}

// Usage returns the configured sample for the pid.
func (f *FakeTable) Usage(pid int) (Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return Usage{}, syscall.ESRCH
	}
	return p.Usage, nil
}

// WorkingDirectory returns the configured working directory.
func (f *FakeTable) WorkingDirectory(pid int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return "", nil
	}
	return p.WorkingDir, nil
}

// Environ returns the configured environment.
func (f *FakeTable) Environ(pid int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.procs[pid]
	if !ok {
		return nil
	}
	return p.Env
}

// Alive reports whether the pid is present in the table.
func (f *FakeTable) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.procs[pid]
	return ok
}

// Signal records the delivery and applies fake kill semantics: SIGTERM
// removes the process unless it ignores it, SIGKILL removes it unless it is
// marked unkillable.
func (f *FakeTable) Signal(pid int, sig syscall.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.signals = append(f.signals, SignalRecord{PID: pid, Sig: sig})

	p, ok := f.procs[pid]
	if !ok {
		return syscall.ESRCH
	}
	if p.SignalErr != nil {
		return p.SignalErr
	}

	switch sig {
	case syscall.SIGTERM:
		if !p.IgnoreSigterm {
			delete(f.procs, pid)
		}
	case syscall.SIGKILL:
		if !p.Unkillable {
			delete(f.procs, pid)
		}
	}
	return nil
}
