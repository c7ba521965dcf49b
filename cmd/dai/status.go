package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/daicraft/dai/internal/state"
	"github.com/daicraft/dai/pkg/models"
)

var (
	statusLimit int
	statusPurge string
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show recent runs, or the details of one run",
	Long: `Without arguments, list the most recent runs from the run database.
With a run id, show the per-agent outcomes of that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 10, "How many runs to list")
	statusCmd.Flags().StringVar(&statusPurge, "purge", "", "Delete runs older than this duration (e.g. 720h)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := state.DefaultDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No runs recorded yet. Run 'dai run <crew-file>' to start one.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open run database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run database: %w", err)
	}

	if statusPurge != "" {
		olderThan, err := time.ParseDuration(statusPurge)
		if err != nil {
			return fmt.Errorf("invalid --purge duration %q: %w", statusPurge, err)
		}
		purged, err := db.PurgeOldRuns(olderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d run(s) older than %s.\n", purged, olderThan)
		return nil
	}

	if len(args) == 1 {
		return showRun(db, args[0])
	}
	return listRuns(db)
}

func listRuns(db *state.DB) error {
	runs, err := db.ListRuns(statusLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	fmt.Printf("%-10s %-20s %-18s %-10s %s\n", "RUN", "CREW", "STATUS", "AGENTS", "STARTED")
	for _, r := range runs {
		started := r.StartedAt
		if t, err := time.Parse(time.RFC3339, r.StartedAt); err == nil {
			started = t.Local().Format("2006-01-02 15:04")
		}
		statusColorFor(r.Status).Printf("%-10s %-20s %-18s %-10s %s\n",
			r.ID, truncate(r.Crew, 20), r.Status,
			fmt.Sprintf("%d/%d", r.Succeeded, r.Total), started)
	}
	return nil
}

func showRun(db *state.DB, id string) error {
	report, err := db.LoadRun(id)
	if err != nil {
		return err
	}

	statusColorFor(report.Status).Printf("Run %s: %s\n", report.RunID, report.Status)
	fmt.Printf("Started:  %s\n", report.StartedAt.Local().Format(time.RFC1123))
	fmt.Printf("Duration: %s\n", report.Duration().Round(time.Second))
	if report.InputTokens > 0 || report.OutputTokens > 0 {
		fmt.Printf("Tokens:   %d in, %d out\n", report.InputTokens, report.OutputTokens)
	}
	if cfg, err := db.RunConfigFor(id); err == nil {
		fmt.Printf("Config:   concurrency=%d retries=%d policy=%s\n",
			cfg.MaxConcurrency, cfg.MaxRetries, cfg.FailurePolicy)
	}
	fmt.Println()

	for _, t := range report.Tasks {
		c := taskStatusColorFor(t.Status)
		c.Printf("  %-20s %-10s", t.ID, t.Status)
		if t.Attempts > 1 {
			fmt.Printf(" (%d attempts)", t.Attempts)
		}
		if t.Failure != nil {
			fmt.Printf("  %s: %s", t.Failure.Kind, t.Failure.Message)
		}
		fmt.Println()
	}
	return nil
}

func statusColorFor(s models.RunStatus) *color.Color {
	switch s {
	case models.RunStatusCompleted:
		return okColor
	case models.RunStatusAborted:
		return failColor
	default:
		return retryColor
	}
}

func taskStatusColorFor(s models.TaskStatus) *color.Color {
	switch s {
	case models.TaskStatusSucceeded:
		return okColor
	case models.TaskStatusFailed:
		return failColor
	case models.TaskStatusSkipped:
		return skippedColor
	default:
		return retryColor
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
