package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/lm"
	"github.com/cwbudde/odts/internal/objective"
	"github.com/cwbudde/odts/internal/opt"
	"github.com/cwbudde/odts/internal/store"
)

var (
	runID string
	seed  int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the damped Newton minimizer",
	Long: `Runs the damped Newton iteration from a start point, prints one line per
iteration and a final summary, and records the trace and summary under
<data-dir>/runs/<run-id>/.

Exit code is 0 when the run converged, 2 when it stopped without converging
(damping ceiling or iteration budget) and 1 on errors.`,
	Args: cobra.NoArgs,
	RunE: runOptimization,
}

func init() {
	d := lm.DefaultConfig()

	runCmd.Flags().Float64("x0", 0.3, "Start x")
	runCmd.Flags().Float64("y0", 0.8, "Start y")
	addSolverFlags(runCmd, d)
	addOutputFlags(runCmd)
	runCmd.Flags().Bool("search-start", false, "Pick the start point with a mayfly search instead of --x0/--y0")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for --search-start")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run ID (default: random UUID)")

	rootCmd.AddCommand(runCmd)
}

// addSolverFlags registers the engine settings shared by run and resume.
func addSolverFlags(cmd *cobra.Command, d lm.Config) {
	cmd.Flags().Float64("damping", d.InitialDamping, "Initial damping")
	cmd.Flags().Float64("damping-up", d.DampingUp, "Damping factor after a singular system or a rejected step")
	cmd.Flags().Float64("damping-down", d.DampingDown, "Damping factor after an improving step")
	cmd.Flags().Float64("max-damping", d.MaxDamping, "Damping ceiling; exceeding it ends the run as OVERDAMPED")
	cmd.Flags().Int("max-iters", d.MaxIterations, "Iteration budget")
	cmd.Flags().Float64("tol", d.Tolerance, "Convergence tolerance on the gradient norm")
}

// addOutputFlags registers the audit destinations shared by run and resume.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().String("data-dir", "./data", "Base directory for run audit data")
	cmd.Flags().Bool("csv", false, "Also write trace.csv")
	cmd.Flags().String("sqlite", "", "Also record the run in this SQLite database")
}

func runOptimization(cmd *cobra.Command, args []string) error {
	obj := objective.NewStressSurface()
	start := objective.Vec2{settings.Start.X, settings.Start.Y}

	if settings.Start.Search {
		found, value, err := opt.NewStartSearch(seed).Find(obj)
		if err != nil {
			return fmt.Errorf("start search failed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Start search: (%.10f, %.10f) f = %.10f\n", found[0], found[1], value)
		start = found
	}

	id := runID
	if id == "" {
		id = uuid.New().String()
	}

	rc := store.RunConfig{
		X0:          start[0],
		Y0:          start[1],
		Solver:      settings.LMConfig(),
		StartSearch: settings.Start.Search,
	}
	return executeRun(cmd, obj, id, rc)
}

// executeRun runs the engine with the console, file, and optional SQLite
// observers attached and prints the outcome.
func executeRun(cmd *cobra.Command, obj objective.Objective, id string, rc store.RunConfig) error {
	out := cmd.OutOrStdout()

	engine, err := lm.NewEngine(obj, rc.Solver)
	if err != nil {
		return err
	}
	state, err := engine.NewState(objective.Vec2{rc.X0, rc.Y0})
	if err != nil {
		return err
	}

	runs, err := store.NewFSStore(settings.Output.DataDir)
	if err != nil {
		return fmt.Errorf("failed to create run store: %w", err)
	}
	sink, err := store.NewRunSink(runs, id, rc, store.SinkOptions{CSV: settings.Output.CSV})
	if err != nil {
		return fmt.Errorf("failed to open run audit: %w", err)
	}
	defer sink.Close()

	observers := []lm.Observer{&consoleObserver{w: out}, sink}
	if settings.Output.SQLite != "" {
		db, err := store.NewSQLStore(settings.Output.SQLite)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		defer db.Close()
		observers = append(observers, db.Sink(id, rc))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printRunHeader(out, id, rc)
	summary, err := engine.Run(ctx, state, lm.Observers(observers...))
	printRunSummary(out, id, runs.RunDir(id), summary)

	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("run interrupted: %w", err)
	}
	if err != nil {
		return err
	}
	if !summary.Converged {
		return errNotConverged
	}
	return nil
}

// consoleObserver prints one line per iteration.
type consoleObserver struct {
	w io.Writer
}

func (c *consoleObserver) Observe(snap lm.Snapshot) error {
	_, err := fmt.Fprintf(c.w, "%4d  %16.10f  %16.10f  %-10s\n", snap.Iteration, snap.X, snap.Y, snap.Status)
	return err
}

func (c *consoleObserver) Finish(lm.Summary) error {
	return nil
}

func printRunHeader(w io.Writer, id string, rc store.RunConfig) {
	fmt.Fprintln(w, "Damped Newton (Levenberg-Marquardt) minimizer")
	fmt.Fprintln(w, "f(x,y) = (x-1)^2 + (y-2)^2 + 0.1*sin(10xy)")
	fmt.Fprintf(w, "Run %s\n", id)
	fmt.Fprintf(w, "Start (%g, %g), damping %g, max iterations %d, tolerance %g\n\n",
		rc.X0, rc.Y0, rc.Solver.InitialDamping, rc.Solver.MaxIterations, rc.Solver.Tolerance)
	fmt.Fprintf(w, "%4s  %16s  %16s  %-10s\n", "iter", "x", "y", "status")
}

func printRunSummary(w io.Writer, id, dir string, s lm.Summary) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final status:  %s (%s)\n", s.Status, s.Reason)
	fmt.Fprintf(w, "Optimum:       x = %.10f, y = %.10f\n", s.OptimalX, s.OptimalY)
	fmt.Fprintf(w, "f(x, y):       %.10f\n", s.FOptimal)
	fmt.Fprintf(w, "Iterations:    %d\n", s.Iterations)
	fmt.Fprintf(w, "Residual:      %.3e\n", s.Residual)
	fmt.Fprintf(w, "Damping:       %.3e\n", s.Damping)
	fmt.Fprintf(w, "Audit:         %s\n", dir)
}
