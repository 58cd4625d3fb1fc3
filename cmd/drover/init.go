package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/agent"
	"github.com/drover-dev/drover/internal/config"
)

var (
	initForce        bool
	initSkipCLICheck bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a project for drover",
	Long: `Write a default .drover.yaml into a project directory.

The project file holds reclaim pattern extensions and per-project overrides
of the user config. The directory argument defaults to the current directory.

Examples:
  drover init              # Initialize current directory
  drover init ./myproject  # Initialize specific directory
  drover init --force      # Overwrite an existing .drover.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing .drover.yaml")
	initCmd.Flags().BoolVar(&initSkipCLICheck, "skip-cli-check", false, "Skip agent CLI availability check")
}

const defaultProjectConfig = `# drover project configuration
#
# Values here override the user config (~/.config/drover/config.yaml).

agent:
  cli: claude
  max_parallel: 3

# Extra patterns for 'drover reclaim'. Substrings match case-insensitively
# against full command lines; exclusions always win.
reclaim_patterns:
  substrings: []
  regexes: []
  exclusions: []

# Resource monitor (off unless enabled).
limits:
  enabled: false
  cpu_percent_ceiling: 0
  memory_mb_ceiling: 0
  sample_interval: 10s
  grace_period: 5s
`

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}
	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	if !initSkipCLICheck {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := agent.CheckCLI(cfg.Agent.CLI); err != nil {
			color.Yellow("Warning: %v", err)
			fmt.Println()
		}
	}

	configPath := filepath.Join(absPath, ".drover.yaml")
	if _, err := os.Stat(configPath); err == nil && !initForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
	}

	if err := os.WriteFile(configPath, []byte(defaultProjectConfig), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", configPath, err)
	}

	color.Green("Wrote %s", configPath)
	fmt.Printf("\nData directory: %s\n", config.DefaultDataDir())
	fmt.Println("Run 'drover run <task>' to start.")
	return nil
}
