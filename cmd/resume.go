package main

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/objective"
	"github.com/cwbudde/odts/internal/store"
)

var resumeRunID string

var resumeCmd = &cobra.Command{
	Use:   "resume <run-id>",
	Short: "Continue a stored run that stopped without converging",
	Long: `Starts a new run from the final position and damping of a stored run,
with the stored solver settings and a fresh iteration budget (--max-iters, or
the configured solver.max_iterations). The new run is recorded under its own
run ID.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	addOutputFlags(resumeCmd)
	resumeCmd.Flags().Int("max-iters", lm.DefaultConfig().MaxIterations, "Iteration budget of the resumed run")
	resumeCmd.Flags().StringVar(&resumeRunID, "run-id", "", "Run ID of the new run (default: random UUID)")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	runs, err := store.NewFSStore(settings.Output.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}

	record, err := runs.LoadRun(args[0])
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("run not found: %s", args[0])
	}
	if err != nil {
		return fmt.Errorf("failed to load run: %w", err)
	}

	rc, err := resumeConfig(record, settings.Solver.MaxIterations)
	if err != nil {
		return err
	}

	id := resumeRunID
	if id == "" {
		id = uuid.New().String()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Resuming run %s after %d iterations (%s)\n\n", record.RunID, record.Iterations, record.Status)
	return executeRun(cmd, objective.NewStressSurface(), id, rc)
}

// resumeConfig builds the configuration that continues record from its final
// state with a fresh budget of maxIterations steps. Converged runs are not
// resumed.
func resumeConfig(record *store.RunRecord, maxIterations int) (store.RunConfig, error) {
	if record.Converged {
		return store.RunConfig{}, fmt.Errorf("run %s already converged", record.RunID)
	}

	solver := record.Config.Solver
	solver.InitialDamping = record.Damping
	solver.MaxIterations = maxIterations

	// An overdamped run would stop again at iteration 0.
	if solver.InitialDamping > solver.MaxDamping {
		solver.InitialDamping = solver.MaxDamping
	}

	return store.RunConfig{
		X0:     record.OptimalX,
		Y0:     record.OptimalY,
		Solver: solver,
	}, nil
}
