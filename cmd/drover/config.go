package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration drover will actually use, after merging
built-in defaults, the user config (~/.config/drover/config.yaml), the
project config (.drover.yaml), and DROVER_* environment variables.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		displayConfig(cfg)
	},
}

func displayConfig(cfg *config.Config) {
	fmt.Printf("agent.cli: %s\n", cfg.Agent.CLI)
	fmt.Printf("agent.args: %v\n", cfg.Agent.Args)
	fmt.Printf("agent.task_timeout: %s\n", cfg.Agent.TaskTimeout)
	fmt.Printf("agent.max_parallel: %d\n", cfg.Agent.MaxParallel)
	fmt.Printf("reclaim.graceful_timeout: %s\n", cfg.Reclaim.GracefulTimeout)
	fmt.Printf("reclaim.min_age: %s\n", cfg.Reclaim.MinAge)
	fmt.Printf("reclaim.stale_test_max_age: %s\n", cfg.Reclaim.StaleTestMaxAge)
	fmt.Printf("limits.enabled: %t\n", cfg.Limits.Enabled)
	fmt.Printf("limits.cpu_percent_ceiling: %.1f\n", cfg.Limits.CPUPercentCeiling)
	fmt.Printf("limits.memory_mb_ceiling: %d\n", cfg.Limits.MemoryMBCeiling)
	fmt.Printf("limits.sample_interval: %s\n", cfg.Limits.SampleInterval)
	fmt.Printf("limits.grace_period: %s\n", cfg.Limits.GracePeriod)
	fmt.Printf("data_dir: %s\n", cfg.DataDir)

	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("\nproject config: %s\n", project)
	}
	fmt.Printf("user config: %s\n", config.GetUserConfigPath())
}
