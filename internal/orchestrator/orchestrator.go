// Package orchestrator runs a batch of tasks by spawning one agent CLI
// process per task, bounded by a parallelism limit. Every spawned process is
// registered durably before it can do any work, so a crash of this process
// leaves enough on disk for a later `drover reclaim` to find the children.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/drover-dev/drover/internal/agent"
	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/monitor"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/reaper"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/internal/tracker"
	"github.com/drover-dev/drover/pkg/models"
)

// Options contains the collaborators an Orchestrator needs.
type Options struct {
	Config   *config.Config
	Registry *registry.Registry
	Tracker  *tracker.Store
	Table    proctab.Table
	// History is the optional session-history database. Nil disables history;
	// write failures are logged and never abort a run.
	History *state.DB
	// LogDir receives one log file per spawned agent. Empty discards output.
	LogDir string
	// WorkDir is where agents run. Empty means the current directory.
	WorkDir string
	// Namespace overrides the generated session namespace.
	Namespace string
}

// Orchestrator runs one session of tasks.
type Orchestrator struct {
	opts      Options
	namespace string

	mu      sync.Mutex
	runners map[int]*agent.Runner

	events  chan Event
	dropped atomic.Uint64
}

// New creates an orchestrator with a fresh session namespace.
func New(opts Options) *Orchestrator {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	ns := opts.Namespace
	if ns == "" {
		ns = uuid.New().String()[:8]
	}
	return &Orchestrator{
		opts:      opts,
		namespace: ns,
		runners:   make(map[int]*agent.Runner),
		events:    make(chan Event, 100),
	}
}

// Namespace returns the session namespace shared by all spawned agents.
func (o *Orchestrator) Namespace() string {
	return o.namespace
}

// Events returns the channel for receiving session events. It is closed
// when Run returns.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// DroppedEventCount returns how many events were dropped because the event
// channel was full.
func (o *Orchestrator) DroppedEventCount() uint64 {
	return o.dropped.Load()
}

// Run executes all tasks, at most Agent.MaxParallel at a time, and blocks
// until every agent has exited. The registry entry for each agent is written
// before the task result is consumed, and removed once the agent exits.
func (o *Orchestrator) Run(ctx context.Context, tasks []string) error {
	cfg := o.opts.Config

	if err := agent.CheckCLI(cfg.Agent.CLI); err != nil {
		return err
	}

	if o.opts.History != nil {
		if err := o.opts.History.CreateSession(o.namespace, len(tasks)); err != nil {
			log.Printf("[orchestrator] history unavailable: %v", err)
		}
	}

	var mon *monitor.Monitor
	if cfg.Limits.Enabled {
		rpr := reaper.New(o.opts.Registry, o.opts.Table)
		mon = monitor.New(o.opts.Registry, o.opts.Table, rpr, cfg.Limits)
		mon.Start()
		defer mon.Stop()
	}

	maxParallel := cfg.Agent.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}
	sem := make(chan struct{}, maxParallel)

	var wg sync.WaitGroup
	var done atomic.Int64

	for i, task := range tasks {
		select {
		case <-ctx.Done():
			wg.Wait()
			o.finish(int(done.Load()), state.SessionAborted)
			return ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, task string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := o.runTask(ctx, idx, task); err != nil {
				log.Printf("[orchestrator] task %d failed: %v", idx, err)
			} else {
				done.Add(1)
			}
		}(i, task)
	}

	wg.Wait()

	status := state.SessionCompleted
	if ctx.Err() != nil {
		status = state.SessionAborted
	}
	o.finish(int(done.Load()), status)
	return ctx.Err()
}

// runTask spawns one agent for a task and supervises it to exit.
func (o *Orchestrator) runTask(ctx context.Context, idx int, task string) error {
	cfg := o.opts.Config

	runner := agent.NewRunner(agent.RunOptions{
		CLI:       cfg.Agent.CLI,
		Args:      cfg.Agent.Args,
		WorkDir:   o.opts.WorkDir,
		Namespace: o.namespace,
		LogPath:   o.taskLogPath(idx),
	})

	taskCtx := ctx
	if cfg.Agent.TaskTimeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, cfg.Agent.TaskTimeout)
		defer cancel()
	}

	if err := runner.Start(taskCtx, task); err != nil {
		o.emit(Event{Type: EventTaskFailed, Task: task, Err: err})
		return fmt.Errorf("start agent: %w", err)
	}
	pid := runner.PID()

	// Registered before any result is consumed, so a crash of this process
	// can never leave an untracked child behind.
	o.register(pid, cfg.Agent.CLI, task)

	o.mu.Lock()
	o.runners[pid] = runner
	o.mu.Unlock()

	o.emit(Event{Type: EventTaskStarted, Task: task, PID: pid})
	log.Printf("[orchestrator] spawned pid %d for task %d", pid, idx)

	waitErr := runner.Wait()

	o.mu.Lock()
	delete(o.runners, pid)
	o.mu.Unlock()

	o.unregister(pid)

	if waitErr != nil {
		o.emit(Event{Type: EventTaskFailed, Task: task, PID: pid, Err: waitErr})
		return fmt.Errorf("agent exited: %w", waitErr)
	}
	o.emit(Event{Type: EventTaskFinished, Task: task, PID: pid})
	return nil
}

// register records a spawned agent in the registry, the tracked-pid store,
// and the history database. Registry persistence failures are logged; the
// in-memory record still protects the rest of this run.
func (o *Orchestrator) register(pid int, cli, task string) {
	rec := models.ProcessRecord{
		PID:       pid,
		Command:   cli,
		Args:      []string{task},
		Namespace: o.namespace,
		StartTime: time.Now(),
		Status:    models.ProcessRunning,
		OwnerPID:  os.Getpid(),
	}
	if err := o.opts.Registry.Add(rec); err != nil {
		log.Printf("[orchestrator] register pid %d: %v", pid, err)
	}
	if err := o.opts.Registry.Persist(); err != nil {
		log.Printf("[orchestrator] persist registry: %v", err)
	}
	if err := o.opts.Tracker.Track(pid, cli, o.opts.WorkDir); err != nil {
		log.Printf("[orchestrator] track pid %d: %v", pid, err)
	}
	if o.opts.History != nil {
		if err := o.opts.History.RecordSpawn(pid, o.namespace, cli); err != nil {
			log.Printf("[orchestrator] record spawn: %v", err)
		}
	}
}

// unregister drops a finished agent from the registry and tracked-pid store.
func (o *Orchestrator) unregister(pid int) {
	o.opts.Registry.Remove(pid)
	if err := o.opts.Registry.Persist(); err != nil {
		log.Printf("[orchestrator] persist registry: %v", err)
	}
	o.opts.Tracker.Untrack(pid)
	if o.opts.History != nil {
		if err := o.opts.History.RecordExit(pid); err != nil {
			log.Printf("[orchestrator] record exit: %v", err)
		}
	}
}

// Stop gracefully stops all running agents and waits for them to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	runners := make([]*agent.Runner, 0, len(o.runners))
	for _, r := range o.runners {
		runners = append(runners, r)
	}
	o.mu.Unlock()

	graceful := o.opts.Config.Reclaim.GracefulTimeout
	if graceful <= 0 {
		graceful = 5 * time.Second
	}
	for _, r := range runners {
		if err := r.Stop(graceful); err != nil {
			log.Printf("[orchestrator] stop pid %d: %v", r.PID(), err)
		}
	}
}

func (o *Orchestrator) finish(tasksDone int, status string) {
	if o.opts.History != nil {
		if err := o.opts.History.EndSession(o.namespace, status, tasksDone); err != nil {
			log.Printf("[orchestrator] end session: %v", err)
		}
	}
	o.emit(Event{Type: EventSessionDone})
	close(o.events)
}

func (o *Orchestrator) taskLogPath(idx int) string {
	if o.opts.LogDir == "" {
		return ""
	}
	return filepath.Join(o.opts.LogDir, fmt.Sprintf("%s-task%d.log", o.namespace, idx))
}

// emit sends an event without blocking; a full channel drops the event.
func (o *Orchestrator) emit(ev Event) {
	ev.Namespace = o.namespace
	ev.Timestamp = time.Now()
	select {
	case o.events <- ev:
	default:
		o.dropped.Add(1)
	}
}
