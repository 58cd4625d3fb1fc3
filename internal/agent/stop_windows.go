//go:build windows

package agent

import (
	"os/exec"
	"time"
)

func setProcessGroup(cmd *exec.Cmd) {}

// Stop terminates the agent. Windows has no process groups or SIGTERM, so
// this kills immediately.
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

	if err := cmd.Process.Kill(); err != nil {
		return err
	}
	<-r.done
	return nil
}
