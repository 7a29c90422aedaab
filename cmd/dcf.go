package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwbudde/odts/internal/dcf"
)

var (
	dcfInput = dcf.DefaultInput()
	dcfJSON  bool
)

var dcfCmd = &cobra.Command{
	Use:   "dcf",
	Short: "Discounted cash flow valuation",
	Long: `Values a company from forecast free cash flows: the cash flows and a
Gordon-growth terminal value are discounted at the WACC to an enterprise value;
net debt is subtracted to get the equity value and the implied share price.`,
	Args: cobra.NoArgs,
	RunE: runDCF,
}

func init() {
	dcfCmd.Flags().Float64SliceVar(&dcfInput.CashFlows, "cash-flows", dcfInput.CashFlows, "Forecast free cash flows, first year first")
	dcfCmd.Flags().Float64Var(&dcfInput.Growth, "growth", dcfInput.Growth, "Terminal growth rate")
	dcfCmd.Flags().Float64Var(&dcfInput.WACC, "wacc", dcfInput.WACC, "Discount rate (WACC)")
	dcfCmd.Flags().Float64Var(&dcfInput.NetDebt, "net-debt", dcfInput.NetDebt, "Net debt")
	dcfCmd.Flags().Float64Var(&dcfInput.Shares, "shares", dcfInput.Shares, "Shares outstanding")
	dcfCmd.Flags().BoolVar(&dcfJSON, "json", false, "Print the valuation as JSON")
	rootCmd.AddCommand(dcfCmd)
}

func runDCF(cmd *cobra.Command, args []string) error {
	v, err := dcf.Value(dcfInput)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if dcfJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	fmt.Fprintln(out, "=== DCF VALUATION ===")
	fmt.Fprintf(out, "PV of cash flows:     %.1f\n", v.PresentValue)
	fmt.Fprintf(out, "PV of terminal value: %.1f\n", v.DiscountedTerminal)
	fmt.Fprintf(out, "Enterprise Value:     %.1f\n", v.EnterpriseValue)
	fmt.Fprintf(out, "Net Debt:             %.1f\n", v.NetDebt)
	fmt.Fprintf(out, "Equity Value:         %.1f\n", v.EquityValue)
	fmt.Fprintf(out, "Implied Share Price (@ %g shares): %.2f\n", dcfInput.Shares, v.SharePrice)
	return nil
}
