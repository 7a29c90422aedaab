package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/server"
)

var (
	serverURL string
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Query server status or specific run",
	Long: `Queries the server for run status information.
If no run-id is provided, lists all runs.
If run-id is provided, shows detailed status for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listServerRuns(out, fmt.Sprintf("%s/api/v1/runs", serverURL))
	}
	runID := args[0]
	return getRunStatus(out, fmt.Sprintf("%s/api/v1/runs/%s", serverURL, runID), runID)
}

func fetchJSON(url string, v any) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errRunNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned error: %s", string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var errRunNotFound = errors.New("run not found")

func listServerRuns(out io.Writer, url string) error {
	var jobs []server.Job
	if err := fetchJSON(url, &jobs); err != nil {
		return err
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No runs found")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s):\n\n", len(jobs))
	for _, job := range jobs {
		fmt.Fprintf(out, "Run ID: %s\n", job.ID)
		fmt.Fprintf(out, "  State: %s\n", job.State)
		fmt.Fprintf(out, "  Start: (%g, %g)\n", job.Config.X0, job.Config.Y0)
		if job.Summary != nil {
			fmt.Fprintf(out, "  Result: %s after %d iterations, f = %.10f\n",
				job.Summary.Status, job.Summary.Iterations, job.Summary.FOptimal)
		} else {
			fmt.Fprintf(out, "  Iteration: %d (%s)\n", job.Last.Iteration, job.Last.Status)
		}
		fmt.Fprintln(out)
	}

	return nil
}

func getRunStatus(out io.Writer, url, runID string) error {
	var job server.Job
	if err := fetchJSON(url, &job); err != nil {
		if errors.Is(err, errRunNotFound) {
			return fmt.Errorf("run not found: %s", runID)
		}
		return err
	}

	fmt.Fprintf(out, "Run: %s\n", job.ID)
	fmt.Fprintf(out, "State: %s\n", job.State)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Start: (%g, %g)\n", job.Config.X0, job.Config.Y0)
	fmt.Fprintf(out, "  Damping: %g (up %g, down %g, ceiling %g)\n",
		job.Config.Damping, job.Config.DampingUp, job.Config.DampingDown, job.Config.MaxDamping)
	fmt.Fprintf(out, "  Max iterations: %d\n", job.Config.MaxIters)
	fmt.Fprintf(out, "  Tolerance: %g\n", job.Config.Tolerance)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Progress:")
	fmt.Fprintf(out, "  Iteration: %d\n", job.Last.Iteration)
	fmt.Fprintf(out, "  Position: (%.10f, %.10f)\n", job.Last.X, job.Last.Y)
	fmt.Fprintf(out, "  Residual: %.3e\n", job.Last.Residual)
	fmt.Fprintf(out, "  Damping: %.3e\n", job.Last.Damping)

	if job.Summary != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Result:")
		fmt.Fprintf(out, "  Status: %s (%s)\n", job.Summary.Status, job.Summary.Reason)
		fmt.Fprintf(out, "  f: %.10f\n", job.Summary.FOptimal)
		fmt.Fprintf(out, "  Elapsed: %s\n", job.Summary.Elapsed)
	}

	if job.Error != "" {
		fmt.Fprintf(out, "\nError: %s\n", job.Error)
	}

	return nil
}
