//go:build !windows

package agent

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// Stop terminates the agent and its process group: SIGTERM first, then
// SIGKILL when the graceful window elapses. Stopping a never-started or
// already-exited agent is a no-op.
func (r *Runner) Stop(graceful time.Duration) error {
	r.mu.Lock()
	cmd := r.cmd
	r.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-r.done:
		return nil
	default:
	}

	// Negative pid signals the whole process group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal agent process group: %w", err)
	}

	select {
	case <-r.done:
		return nil
	case <-time.After(graceful):
	}

	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill agent process group: %w", err)
	}
	<-r.done
	return nil
}
