package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/store"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage stored runs",
	Long:  `List, inspect and clean the run audit trails stored under <data-dir>/runs/.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all stored runs with run ID, timestamp, status, iterations, final objective value and size on disk.`,
	Args:  cobra.NoArgs,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the summary and trace of a run",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the N most recent runs or delete runs older than N days.`,
	Args: cobra.NoArgs,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().String("data-dir", "./data", "Base directory for run audit data")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openRunStore() (*store.FSStore, error) {
	runs, err := store.NewFSStore(settings.Output.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create run store: %w", err)
	}
	return runs, nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	runs, err := openRunStore()
	if err != nil {
		return err
	}

	infos, err := runs.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tSTATUS\tITERATIONS\tF\tSIZE")
	fmt.Fprintln(w, "------\t---------\t------\t----------\t-\t----")

	for _, info := range infos {
		size, err := getDirSize(runs.RunDir(info.RunID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.10f\t%s\n",
			displayRunID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Status,
			info.Iterations,
			info.FOptimal,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

func runShowRun(cmd *cobra.Command, args []string) error {
	runs, err := openRunStore()
	if err != nil {
		return err
	}

	record, err := runs.LoadRun(args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", record.RunID)
	fmt.Fprintf(out, "Finished:   %s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(out, "Status:     %s (%s)\n", record.Status, record.Reason)
	fmt.Fprintf(out, "Start:      (%g, %g)\n", record.Config.X0, record.Config.Y0)
	fmt.Fprintf(out, "Optimum:    (%.10f, %.10f)\n", record.OptimalX, record.OptimalY)
	fmt.Fprintf(out, "f:          %.10f\n", record.FOptimal)
	fmt.Fprintf(out, "Iterations: %d of %d\n", record.Iterations, record.Config.Solver.MaxIterations)
	fmt.Fprintf(out, "Residual:   %.3e\n", record.Residual)
	fmt.Fprintf(out, "Damping:    %.3e\n", record.Damping)
	fmt.Fprintf(out, "Elapsed:    %s\n", record.Elapsed)

	entries, err := store.LoadTrace(runs.BaseDir(), record.RunID)
	if err != nil {
		slog.Warn("Trace unavailable", "run_id", record.RunID, "error", err)
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ITER\tX\tY\tRESIDUAL\tDAMPING\tSTATUS")
	for _, e := range entries {
		fmt.Fprintf(w, "%d\t%.10f\t%.10f\t%.3e\t%.3e\t%s\n", e.Iteration, e.X, e.Y, e.Residual, e.Damping, e.Status)
	}
	return w.Flush()
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	runs, err := openRunStore()
	if err != nil {
		return err
	}

	infos, err := runs.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n",
			displayRunID(info.RunID),
			info.Status,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	// Ask for confirmation unless --force is set
	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := runs.DeleteRun(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion determines which runs should be deleted based on retention policy
func selectRunsForDeletion(infos []store.RunInfo, keepLast int, olderThanDays int) []store.RunInfo {
	var toDelete []store.RunInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RunInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		// Delete oldest runs beyond keepLast
		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}

// displayRunID truncates long run IDs for tables
func displayRunID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
