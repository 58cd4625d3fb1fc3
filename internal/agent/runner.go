// Package agent spawns and supervises AI-CLI subprocesses. Prompt
// construction and response interpretation belong to the caller; the runner
// owns process lifecycle only.
package agent

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"github.com/drover-dev/drover/pkg/models"
)

// RunOptions configures one agent subprocess.
type RunOptions struct {
	// CLI is the coding-assistant binary to invoke (default "claude").
	CLI string
	// Args are passed before the prompt (e.g. --print).
	Args []string
	// WorkDir is the directory the agent runs in.
	WorkDir string
	// Namespace is stamped into the child's environment as the lineage
	// marker so the orphan detector can identify descendants even after
	// this process dies.
	Namespace string
	// LogPath receives the agent's combined output. Empty discards it.
	LogPath string
}

// Runner manages a single agent subprocess.
type Runner struct {
	opts RunOptions

	mu      sync.Mutex
	cmd     *exec.Cmd
	logFile *os.File
	started bool
	waitErr error
	done    chan struct{}
}

// NewRunner creates a runner for the given options.
func NewRunner(opts RunOptions) *Runner {
	if opts.CLI == "" {
		opts.CLI = "claude"
	}
	return &Runner{opts: opts, done: make(chan struct{})}
}

// CheckCLI verifies the configured coding-assistant binary is on PATH.
func CheckCLI(cli string) error {
	if cli == "" {
		cli = "claude"
	}
	if _, err := exec.LookPath(cli); err != nil {
		return fmt.Errorf("%s CLI not found in PATH\n\n"+
			"drover drives an external AI coding assistant CLI.\n"+
			"Install one and make sure it is on your PATH, or point\n"+
			"agent.cli in your config at a compatible binary", cli)
	}
	return nil
}

// Start launches the subprocess with the prompt appended to the configured
// arguments. The child runs in its own process group so the whole agent
// tree can be signaled together.
func (r *Runner) Start(ctx context.Context, prompt string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("agent already started")
	}

	args := append(append([]string{}, r.opts.Args...), prompt)
	cmd := exec.CommandContext(ctx, r.opts.CLI, args...)
	cmd.Dir = r.opts.WorkDir
	cmd.Env = append(os.Environ(), models.LineageMarkerEnv+"="+r.opts.Namespace)
	setProcessGroup(cmd)

	var sink io.Writer = io.Discard
	if r.opts.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(r.opts.LogPath), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(r.opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open agent log: %w", err)
		}
		r.logFile = f
		sink = f
	}
	cmd.Stdout = sink
	cmd.Stderr = sink

	if err := cmd.Start(); err != nil {
		if r.logFile != nil {
			_ = r.logFile.Close()
			r.logFile = nil
		}
		return fmt.Errorf("start agent %s: %w", r.opts.CLI, err)
	}

	r.cmd = cmd
	r.started = true

	go func() {
		err := cmd.Wait()
		r.mu.Lock()
		r.waitErr = err
		if r.logFile != nil {
			_ = r.logFile.Close()
		}
		r.mu.Unlock()
		close(r.done)
	}()

	return nil
}

// PID returns the subprocess pid, or 0 before Start.
func (r *Runner) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd == nil || r.cmd.Process == nil {
		return 0
	}
	return r.cmd.Process.Pid
}

// Wait blocks until the subprocess exits and returns its exit error.
func (r *Runner) Wait() error {
	<-r.done
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waitErr
}

// Done is closed when the subprocess has exited.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}
