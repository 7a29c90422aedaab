// Package dcf values a company by discounted cash flow: an explicit forecast
// of free cash flows plus a Gordon-growth terminal value.
package dcf

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Input is the forecast and market data of one valuation.
type Input struct {
	// CashFlows are the forecast free cash flows, one per year, first year first
	CashFlows []float64 `json:"cashFlows"`
	Growth    float64   `json:"growth"`
	WACC      float64   `json:"wacc"`
	NetDebt   float64   `json:"netDebt"`
	Shares    float64   `json:"shares"`
}

// DefaultInput returns the reference five-year case (amounts in millions).
func DefaultInput() Input {
	return Input{
		CashFlows: []float64{120.5, 138.0, 158.7, 180.2, 200.0},
		Growth:    0.025,
		WACC:      0.085,
		NetDebt:   450,
		Shares:    85,
	}
}

// Valuation is the result of Value.
type Valuation struct {
	PresentValue       float64 `json:"presentValue"`
	TerminalValue      float64 `json:"terminalValue"`
	DiscountedTerminal float64 `json:"discountedTerminal"`
	EnterpriseValue    float64 `json:"enterpriseValue"`
	NetDebt            float64 `json:"netDebt"`
	EquityValue        float64 `json:"equityValue"`
	SharePrice         float64 `json:"sharePrice"`
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validate checks that the input describes a finite valuation.
func (in Input) Validate() error {
	if len(in.CashFlows) == 0 {
		return &ValidationError{Field: "CashFlows", Reason: "at least one cash flow is required"}
	}
	for i, cf := range in.CashFlows {
		if !finite(cf) {
			return &ValidationError{Field: "CashFlows", Reason: fmt.Sprintf("year %d is not finite", i+1)}
		}
	}
	if !finite(in.Growth) || !finite(in.WACC) || !finite(in.NetDebt) || !finite(in.Shares) {
		return &ValidationError{Field: "Input", Reason: "rates and amounts must be finite"}
	}
	if in.WACC <= -1 {
		return &ValidationError{Field: "WACC", Reason: "must be greater than -1"}
	}
	if in.WACC <= in.Growth {
		return &ValidationError{Field: "WACC", Reason: fmt.Sprintf("must exceed growth (%g <= %g)", in.WACC, in.Growth)}
	}
	if in.Shares <= 0 {
		return &ValidationError{Field: "Shares", Reason: "must be positive"}
	}
	return nil
}

// TerminalValue is the Gordon-growth value, at the end of the forecast, of
// a cash flow that grows at g forever after last, discounted at r.
func TerminalValue(last, g, r float64) float64 {
	return last * (1 + g) / (r - g)
}

// DiscountFactors returns 1/(1+r)^t for t = 1..n.
func DiscountFactors(r float64, n int) []float64 {
	factors := make([]float64, n)
	for t := range factors {
		factors[t] = 1 / math.Pow(1+r, float64(t+1))
	}
	return factors
}

// Value computes the enterprise, equity and per-share values of in.
func Value(in Input) (Valuation, error) {
	if err := in.Validate(); err != nil {
		return Valuation{}, err
	}

	n := len(in.CashFlows)
	factors := DiscountFactors(in.WACC, n)

	v := Valuation{
		PresentValue:  floats.Dot(in.CashFlows, factors),
		TerminalValue: TerminalValue(in.CashFlows[n-1], in.Growth, in.WACC),
		NetDebt:       in.NetDebt,
	}
	v.DiscountedTerminal = v.TerminalValue * factors[n-1]
	v.EnterpriseValue = v.PresentValue + v.DiscountedTerminal
	v.EquityValue = v.EnterpriseValue - in.NetDebt
	v.SharePrice = v.EquityValue / in.Shares

	return v, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
