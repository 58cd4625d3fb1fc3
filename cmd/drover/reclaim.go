package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/drover-dev/drover/internal/config"
	"github.com/drover-dev/drover/internal/orphan"
	"github.com/drover-dev/drover/internal/patterns"
	"github.com/drover-dev/drover/internal/proctab"
	"github.com/drover-dev/drover/internal/reaper"
	"github.com/drover-dev/drover/internal/registry"
	"github.com/drover-dev/drover/internal/staletest"
	"github.com/drover-dev/drover/internal/tracker"
	"github.com/drover-dev/drover/pkg/models"
)

var (
	reclaimForce    bool
	reclaimDryRun   bool
	reclaimJSON     bool
	reclaimMinAge   time.Duration
	reclaimRoot     string
	reclaimPatterns []string

	reclaimTestsMaxAge time.Duration
)

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Find and terminate orphaned agent processes",
	Long: `Scan the process table for agent processes that drover spawned but
no longer supervises, and terminate them with a staged SIGTERM/SIGKILL
sequence.

Confirmed orphans (registered, tracked, or provably descended from a drover
instance) are terminated by default. Suspected orphans (heuristic command-line
matches only) are listed but require --force.

System processes (pid <= 100) are never signaled.

Examples:
  drover reclaim                 # Kill confirmed orphans, list suspected
  drover reclaim --dry-run       # Show what would be killed
  drover reclaim --force         # Also kill suspected matches
  drover reclaim --min-age 5m    # Ignore processes younger than 5 minutes
  drover reclaim --json          # Machine-readable candidates and outcome`,
	RunE: runReclaim,
}

var reclaimTestsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Kill test runners that have been running too long",
	Long: `Sweep for stale test-runner processes (go test, jest, vitest,
pytest) older than --max-age and terminate them.

Stale runners are killed without requiring --force; a test harness that has
been running for this long is hung, not working.`,
	RunE: runReclaimTests,
}

func init() {
	reclaimCmd.Flags().BoolVarP(&reclaimForce, "force", "f", false, "Also terminate suspected (heuristic-only) matches")
	reclaimCmd.Flags().BoolVar(&reclaimDryRun, "dry-run", false, "Report candidates without sending any signal")
	reclaimCmd.Flags().BoolVar(&reclaimJSON, "json", false, "Emit candidates and outcome as JSON")
	reclaimCmd.Flags().DurationVar(&reclaimMinAge, "min-age", 0, "Only consider processes at least this old")
	reclaimCmd.Flags().StringVar(&reclaimRoot, "root", "", "Project root for working-directory checks (default cwd)")
	reclaimCmd.Flags().StringArrayVar(&reclaimPatterns, "pattern", nil, "Extra command substrings to match (repeatable)")

	reclaimTestsCmd.Flags().DurationVar(&reclaimTestsMaxAge, "max-age", staletest.DefaultMaxAge, "Age beyond which a test runner is stale")

	reclaimCmd.AddCommand(reclaimTestsCmd)
}

func runReclaim(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	root := reclaimRoot
	if root == "" {
		root, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	reg := registry.New(cfg.DataDir)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	matcher := patterns.New()
	if projectCfg := config.GetProjectConfigPath(); projectCfg != "" {
		if err := matcher.LoadConfig(projectCfg); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	table := proctab.NewSystemTable()
	detector := orphan.NewDetector(reg, tracker.New(cfg.DataDir), table, matcher)

	minAge := reclaimMinAge
	if minAge == 0 {
		minAge = cfg.Reclaim.MinAge
	}

	candidates, err := detector.Scan(orphan.ScanOptions{
		RootPath:      root,
		ExtraPatterns: reclaimPatterns,
		MinAge:        minAge,
	})
	if err != nil {
		return fmt.Errorf("scan for orphans: %w", err)
	}

	rpr := reaper.New(reg, table)
	outcome := rpr.Kill(candidates, reaper.Options{
		Force:   reclaimForce,
		DryRun:  reclaimDryRun,
		Timeout: cfg.Reclaim.GracefulTimeout,
	})

	if err := reg.Persist(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: persist registry: %v\n", err)
	}

	if reclaimJSON {
		return printReclaimJSON(candidates, outcome)
	}
	printReclaimTable(candidates, outcome, reclaimDryRun)
	return nil
}

func runReclaimTests(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg := registry.New(cfg.DataDir)
	if err := reg.Load(); err != nil {
		return fmt.Errorf("load registry: %w", err)
	}

	table := proctab.NewSystemTable()
	detector := orphan.NewDetector(reg, tracker.New(cfg.DataDir), table, staletest.NewMatcher())
	sweeper := staletest.New(detector, reaper.New(reg, table))

	candidates, outcome, err := sweeper.Sweep(reclaimTestsMaxAge)
	if err != nil {
		return fmt.Errorf("sweep stale test runners: %w", err)
	}

	if err := reg.Persist(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: persist registry: %v\n", err)
	}

	if len(candidates) == 0 {
		fmt.Printf("No test runners older than %s found.\n", reclaimTestsMaxAge)
		return nil
	}
	printReclaimTable(candidates, outcome, false)
	return nil
}

// reclaimReport is the JSON shape for --json output.
type reclaimReport struct {
	Candidates []models.OrphanCandidate `json:"candidates"`
	Outcome    models.KillOutcome       `json:"outcome"`
}

func printReclaimJSON(candidates []models.OrphanCandidate, outcome models.KillOutcome) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(reclaimReport{Candidates: candidates, Outcome: outcome})
}

func printReclaimTable(candidates []models.OrphanCandidate, outcome models.KillOutcome, dryRun bool) {
	if len(candidates) == 0 {
		fmt.Println("No orphaned processes found.")
		return
	}

	confirmed := color.New(color.FgRed, color.Bold)
	suspected := color.New(color.FgYellow)
	dim := color.New(color.Faint)

	fmt.Printf("Found %d orphan candidate(s):\n\n", len(candidates))
	fmt.Printf("  %-8s %-10s %-8s %-10s %s\n", "PID", "CLASS", "AGE", "MEMORY", "COMMAND")
	for _, c := range candidates {
		class := suspected
		if c.Classification == models.Confirmed {
			class = confirmed
		}
		fmt.Printf("  %-8d %s %-8s %-10s %s\n",
			c.PID,
			class.Sprintf("%-10s", c.Classification),
			formatAge(c.Age),
			formatMemory(c.ResidentMemoryBytes),
			truncate(c.Command, 60))
		dim.Printf("           %s\n", c.Reason)
	}
	fmt.Println()

	if dryRun {
		fmt.Printf("Dry run: would terminate %d process(es).\n", len(outcome.Killed))
		return
	}

	if len(outcome.Killed) > 0 {
		fmt.Printf("Terminated %d process(es).\n", len(outcome.Killed))
	}
	if len(outcome.Skipped) > 0 {
		fmt.Printf("Skipped %d suspected process(es); rerun with --force to terminate them.\n", len(outcome.Skipped))
	}
	for _, f := range outcome.Failed {
		color.Red("Failed to terminate pid %d: %s", f.PID, f.Err)
	}
}

func formatAge(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

func formatMemory(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1fGB", float64(bytes)/(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%dMB", bytes/(1<<20))
	case bytes > 0:
		return fmt.Sprintf("%dKB", bytes/(1<<10))
	default:
		return "-"
	}
}
