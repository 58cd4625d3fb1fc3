package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/orchestrator"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/internal/tracker"
)

var (
	runNamespace string
	runMaxAgents int
	runMonitor   bool
)

var runCmd = &cobra.Command{
	Use:   "run [task...]",
	Short: "Run tasks through agent subprocesses",
	Long: `Run one or more tasks, spawning an agent CLI process per task.

Tasks are given as arguments, or read one-per-line from stdin when no
arguments are present. Every spawned agent is recorded in the on-disk
registry before it does any work, so a crash never leaves an invisible
process behind.

Examples:
  drover run "fix the failing auth test"
  drover run "task one" "task two" "task three"
  cat tasks.txt | drover run
  drover run --monitor --max-agents 5 "big refactor"`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runNamespace, "namespace", "", "Override the generated session namespace")
	runCmd.Flags().IntVar(&runMaxAgents, "max-agents", 0, "Maximum concurrent agents (overrides config)")
	runCmd.Flags().BoolVar(&runMonitor, "monitor", false, "Enable the resource monitor for this session")
}

func runRun(cmd *cobra.Command, args []string) error {
	tasks := args
	if len(tasks) == 0 {
		var err error
		tasks, err = readTasksFromStdin()
		if err != nil {
			return err
		}
	}
	if len(tasks) == 0 {
		return fmt.Errorf("no tasks given (pass as arguments or via stdin)")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runMaxAgents > 0 {
		cfg.Agent.MaxParallel = runMaxAgents
	}
	if runMonitor {
		cfg.Limits.Enabled = true
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	reg := registry.New(cfg.DataDir)
	if err := reg.Load(); err != nil {
		log.Printf("[run] loading registry: %v (starting empty)", err)
	}

	var history *state.DB
	history, err = state.Open(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		log.Printf("[run] history unavailable: %v", err)
		history = nil
	} else {
		defer history.Close()
	}

	logDir := filepath.Join(cfg.DataDir, "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Printf("[run] create log dir: %v (discarding agent output)", err)
		logDir = ""
	}

	orch := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Registry:  reg,
		Tracker:   tracker.New(cfg.DataDir),
		Table:     proctab.NewSystemTable(),
		History:   history,
		LogDir:    logDir,
		WorkDir:   cwd,
		Namespace: runNamespace,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nstopping agents...")
		cancel()
		orch.Stop()
	}()

	go func() {
		for ev := range orch.Events() {
			switch ev.Type {
			case orchestrator.EventTaskStarted:
				fmt.Printf("[%s] started pid %d: %s\n", ev.Namespace, ev.PID, truncate(ev.Task, 60))
			case orchestrator.EventTaskFinished:
				fmt.Printf("[%s] finished pid %d\n", ev.Namespace, ev.PID)
			case orchestrator.EventTaskFailed:
				fmt.Printf("[%s] failed pid %d: %v\n", ev.Namespace, ev.PID, ev.Err)
			}
		}
	}()

	fmt.Printf("Session %s: running %d task(s) with up to %d agent(s)\n",
		orch.Namespace(), len(tasks), cfg.Agent.MaxParallel)

	if err := orch.Run(ctx, tasks); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// readTasksFromStdin reads one task per non-empty line.
func readTasksFromStdin() ([]string, error) {
	var tasks []string
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			tasks = append(tasks, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return tasks, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
