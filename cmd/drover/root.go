package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "drover",
	Short: "Autonomous task-runner with hardened process supervision",
	Long: `drover feeds a queue of tasks to an external AI coding assistant,
spawning one agent subprocess per task, and never loses track of what it
spawned: every agent is registered durably before it can do any work.

If a drover instance crashes, a later 'drover reclaim' finds the survivors
through the on-disk registry and lineage markers, and terminates them with a
staged SIGTERM/SIGKILL sequence.

Core capabilities:
- Runs tasks in parallel through an agent CLI (claude or compatible)
- Durable cross-instance process registry with sentinel-file locking
- Orphan detection via registry lineage and command-line heuristics
- Resource monitor that terminates runaway agents past a grace period
- Stale test-runner sweeping`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reclaimCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
