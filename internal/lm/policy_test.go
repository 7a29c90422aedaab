package lm

import "testing"

func TestPolicyCheck(t *testing.T) {
	policy := NewPolicy(DefaultConfig())

	tests := []struct {
		name       string
		state      State
		wantReason Reason
		wantStatus Status
	}{
		{
			name:       "continue",
			state:      State{Residual: 1, Damping: 1, Iteration: 3, Status: StatusRunning},
			wantReason: ReasonNone,
			wantStatus: StatusRunning,
		},
		{
			name:       "converged",
			state:      State{Residual: 1e-13, Damping: 1, Iteration: 3, Status: StatusRunning},
			wantReason: ReasonConverged,
			wantStatus: StatusConverged,
		},
		{
			name:       "convergence wins over damping ceiling",
			state:      State{Residual: 0, Damping: 1e9, Iteration: 3, Status: StatusDampingUp},
			wantReason: ReasonConverged,
			wantStatus: StatusConverged,
		},
		{
			name:       "overdamped",
			state:      State{Residual: 1, Damping: 1e9, Iteration: 3, Status: StatusRunning},
			wantReason: ReasonOverdamped,
			wantStatus: StatusOverdamped,
		},
		{
			name:       "ceiling is exclusive",
			state:      State{Residual: 1, Damping: 1e8, Iteration: 3, Status: StatusRunning},
			wantReason: ReasonNone,
			wantStatus: StatusRunning,
		},
		{
			name:       "budget keeps last status",
			state:      State{Residual: 1, Damping: 1, Iteration: 50, Status: StatusDampingUp},
			wantReason: ReasonBudgetExhausted,
			wantStatus: StatusDampingUp,
		},
		{
			name:       "residual equal to tolerance does not converge",
			state:      State{Residual: 1e-12, Damping: 1, Iteration: 1, Status: StatusRunning},
			wantReason: ReasonNone,
			wantStatus: StatusRunning,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.state
			got := policy.Check(&s)
			if got != tt.wantReason {
				t.Errorf("Check() reason = %q, want %q", got, tt.wantReason)
			}
			if s.Status != tt.wantStatus {
				t.Errorf("Check() status = %s, want %s", s.Status, tt.wantStatus)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusRunning:    false,
		StatusDampingUp:  false,
		StatusConverged:  true,
		StatusOverdamped: true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}
