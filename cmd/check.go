package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/objective"
)

var (
	checkX     float64
	checkY     float64
	checkJSON  bool
	checkSteps = objective.DefaultCheckSettings()
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the analytic derivatives with finite differences",
	Long: `Evaluates the analytic gradient and Hessian of the objective at a point and
compares them with central finite differences. Fails if either error exceeds
its tolerance or the Hessian is not symmetric.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().Float64Var(&checkX, "x", 0.3, "Point x")
	checkCmd.Flags().Float64Var(&checkY, "y", 0.8, "Point y")
	checkCmd.Flags().Float64Var(&checkSteps.GradientTol, "grad-tol", checkSteps.GradientTol, "Gradient error tolerance (max norm)")
	checkCmd.Flags().Float64Var(&checkSteps.HessianTol, "hess-tol", checkSteps.HessianTol, "Hessian error tolerance (max norm)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Print the report as JSON")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	report, err := objective.CheckDerivatives(objective.NewStressSurface(), objective.Vec2{checkX, checkY}, checkSteps)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if checkJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
	} else {
		fmt.Fprintf(out, "Point:             (%g, %g)\n", report.Point[0], report.Point[1])
		fmt.Fprintf(out, "Gradient analytic: (%.10f, %.10f)\n", report.Analytic[0], report.Analytic[1])
		fmt.Fprintf(out, "Gradient numeric:  (%.10f, %.10f)\n", report.Numeric[0], report.Numeric[1])
		fmt.Fprintf(out, "Gradient error:    %.3e (tol %.1e)\n", report.GradientError, checkSteps.GradientTol)
		fmt.Fprintf(out, "Hessian analytic:  [[%.8f, %.8f], [%.8f, %.8f]]\n",
			report.AnalyticHessian[0][0], report.AnalyticHessian[0][1],
			report.AnalyticHessian[1][0], report.AnalyticHessian[1][1])
		fmt.Fprintf(out, "Hessian numeric:   [[%.8f, %.8f], [%.8f, %.8f]]\n",
			report.NumericHessian[0][0], report.NumericHessian[0][1],
			report.NumericHessian[1][0], report.NumericHessian[1][1])
		fmt.Fprintf(out, "Hessian error:     %.3e (tol %.1e)\n", report.HessianError, checkSteps.HessianTol)
		fmt.Fprintf(out, "Hessian symmetric: %v\n", report.HessianSymmetric)
	}

	if !report.OK {
		return fmt.Errorf("derivative check failed at (%g, %g)", checkX, checkY)
	}
	if !checkJSON {
		fmt.Fprintln(out, "OK")
	}
	return nil
}
