//go:build windows

package proctab

import (
	"fmt"
	"syscall"
)

// SystemTable is not implemented on Windows.
type SystemTable struct{}

// NewSystemTable returns the platform process-table backend.
func NewSystemTable() *SystemTable {
	return &SystemTable{}
}

func (t *SystemTable) List() ([]ProcessInfo, error) {
	return nil, fmt.Errorf("process table inspection is not supported on windows")
}

func (t *SystemTable) Usage(pid int) (Usage, error) {
	return Usage{}, fmt.Errorf("resource sampling is not supported on windows")
}

func (t *SystemTable) WorkingDirectory(pid int) (string, error) {
	return "", nil
}

func (t *SystemTable) Environ(pid int) []string {
	return nil
}

func (t *SystemTable) Alive(pid int) bool {
	return false
}

func (t *SystemTable) Signal(pid int, sig syscall.Signal) error {
	return fmt.Errorf("signal delivery is not supported on windows")
}
