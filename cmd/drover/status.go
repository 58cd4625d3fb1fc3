package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/state"
	"github.com/drover-dev/drover/pkg/models"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show registered processes and recent sessions",
	Long: `Display every process currently recorded in the drover registry,
with whether it is still alive, plus recent session history.

With --watch, keeps running and reprints whenever the registry snapshot
changes on disk.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVarP(&statusWatch, "watch", "w", false, "Reprint when the registry changes")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := printStatus(cfg); err != nil {
		return err
	}
	if !statusWatch {
		return nil
	}
	return watchStatus(cfg)
}

func printStatus(cfg *config.Config) error {
	reg := registry.New(cfg.DataDir)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	table := proctab.NewSystemTable()
	records := reg.List()

	if len(records) == 0 {
		fmt.Println("No registered processes. Run 'drover run <task>' to start.")
	} else {
		fmt.Printf("Registered processes (%d):\n\n", len(records))
		fmt.Printf("  %-8s %-10s %-10s %-8s %s\n", "PID", "NAMESPACE", "STATUS", "ALIVE", "COMMAND")
		for _, rec := range records {
			printRecord(rec, table.Alive(rec.PID))
		}
		fmt.Println()
	}

	return printRecentSessions(cfg)
}

func printRecord(rec models.ProcessRecord, alive bool) {
	aliveStr := color.GreenString("yes")
	if !alive {
		aliveStr = color.RedString("no")
	}
	statusColor := color.New(color.FgGreen)
	switch rec.Status {
	case models.ProcessOrphaned:
		statusColor = color.New(color.FgRed)
	case models.ProcessTerminated:
		statusColor = color.New(color.Faint)
	}
	fmt.Printf("  %-8d %-10s %s %-8s %s\n",
		rec.PID,
		rec.Namespace,
		statusColor.Sprintf("%-10s", rec.Status),
		aliveStr,
		truncate(rec.Command, 50))
}

func printRecentSessions(cfg *config.Config) error {
	dbPath := filepath.Join(cfg.DataDir, "history.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		// History is advisory; status still works without it.
		fmt.Fprintf(os.Stderr, "Warning: open history: %v\n", err)
		return nil
	}
	defer db.Close()

	sessions, err := db.ListSessions(5)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	if len(sessions) == 0 {
		return nil
	}

	fmt.Println("Recent sessions:")
	for _, s := range sessions {
		duration := "running"
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("  %s  %-10s %d/%d tasks  %s\n",
			s.StartedAt.Local().Format("2006-01-02 15:04"),
			s.Status, s.TasksDone, s.TasksTotal, duration)
	}
	return nil
}

// watchStatus reprints the status whenever the registry snapshot is rewritten.
// The registry persists via rename, so watch the directory rather than the
// file itself.
func watchStatus(cfg *config.Config) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := watcher.Add(cfg.DataDir); err != nil {
		return fmt.Errorf("watch %s: %w", cfg.DataDir, err)
	}

	fmt.Println("Watching for registry changes (ctrl-c to stop)...")

	// Debounce: a persist is a write plus a rename in quick succession.
	var pending <-chan time.Time
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) == registry.SnapshotFile {
				pending = time.After(200 * time.Millisecond)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Warning: watch error: %v\n", err)
		case <-pending:
			pending = nil
			fmt.Println()
			if err := printStatus(cfg); err != nil {
				return err
			}
		}
	}
}
