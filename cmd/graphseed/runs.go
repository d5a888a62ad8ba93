package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/graphseed/internal/journal"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

var (
	runsLimit     int
	runsOlderThan time.Duration
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run journal",
	Long: `List recent workflow runs recorded in the journal.

Examples:
  graphseed runs                        # 20 most recent runs
  graphseed runs show 3f2c9a1e-...      # One run with its stages
  graphseed runs purge --older-than 720h`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.ListRuns(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			printRunLine(cmd.OutOrStdout(), r)
		}
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and its stage trace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		run, err := db.GetRun(cmd.Context(), args[0])
		if errors.Is(err, journal.ErrNotFound) {
			return fmt.Errorf("no run with id %s", args[0])
		}
		if err != nil {
			return err
		}
		printRunDetail(cmd.OutOrStdout(), run)
		return nil
	},
}

var runsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete runs older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runsOlderThan <= 0 {
			return errors.New("--older-than must be positive")
		}
		db, err := openJournal()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PurgeOldRuns(cmd.Context(), runsOlderThan)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Purged %d run(s).\n", n)
		return nil
	},
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
	runsPurgeCmd.Flags().DurationVar(&runsOlderThan, "older-than", 30*24*time.Hour, "Age threshold")
	runsCmd.AddCommand(runsShowCmd, runsPurgeCmd)
}

func openJournal() (*journal.DB, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return journal.OpenDefault(cfg.Journal.Path)
}

func statusColor(s models.RunStatus) *color.Color {
	switch s {
	case models.RunStatusDone:
		return color.New(color.FgGreen)
	case models.RunStatusFailed, models.RunStatusCleanupFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func printRunLine(w io.Writer, r *models.RunRecord) {
	usecase := r.Usecase
	if usecase == "" {
		usecase = "-"
	}
	fmt.Fprintf(w, "%s  %s  %-24s %-14s %6.1fs  %s\n",
		shortID(r.ID),
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		r.Workflow,
		statusColor(r.Status).Sprint(r.Status),
		r.Duration.Seconds(),
		usecase,
	)
}

func printRunDetail(w io.Writer, r *models.RunRecord) {
	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Workflow:  %s\n", r.Workflow)
	if r.Usecase != "" {
		fmt.Fprintf(w, "Usecase:   %s\n", r.Usecase)
	}
	fmt.Fprintf(w, "Status:    %s\n", statusColor(r.Status).Sprint(r.Status))
	fmt.Fprintf(w, "Started:   %s\n", r.StartedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %.2fs\n", r.Duration.Seconds())
	if r.NodesRemoved >= 0 {
		fmt.Fprintf(w, "Cleanup:   removed %d isolated node(s)\n", r.NodesRemoved)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}

	if len(r.Stages) > 0 {
		fmt.Fprintln(w, "\nStages:")
		for _, s := range r.Stages {
			line := fmt.Sprintf("  %d. %-28s %-8s %.1fs", s.Index+1, s.Name, s.Status, s.Duration.Seconds())
			if s.Error != "" {
				line += "  " + s.Error
			}
			fmt.Fprintln(w, line)
		}
	}
	if r.Output != "" {
		fmt.Fprintln(w, "\nOutput:")
		fmt.Fprintln(w, r.Output)
	}
}
