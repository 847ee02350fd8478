package sim

import (
	"fmt"
	"math"
)

// Solver selections. Only the fixed-step solver is implemented; the
// variable-step name is reserved and rejected at validation.
const (
	SolverFixed    = "fixed"
	SolverVariable = "variable"
)

// Clock selections. With the internal clock Run drives time on the
// DT grid; with the external clock the caller advances time through
// StepExternal and Run refuses to start.
const (
	ClockInternal = "internal"
	ClockExternal = "external"
)

// Config is the simulation setup.
type Config struct {
	// DT is the base step of the simulation. Every block sample time
	// must be an integer multiple of it.
	DT float64

	// T0 is the initial time. Zero by default.
	T0 float64

	// Horizon is the end boundary of the run, exclusive: the last tick
	// lands at the largest T0 + k*DT strictly below it.
	Horizon float64

	// Solver is SolverFixed or SolverVariable.
	Solver string

	// Clock is ClockInternal or ClockExternal.
	Clock string

	// Logging lists the signal paths to record, each of the form
	// "block.outputs.port" or "block.state.key".
	Logging []string
}

// ApplyDefaults fills the zero-value selections.
func (c *Config) ApplyDefaults() {
	if c.Solver == "" {
		c.Solver = SolverFixed
	}
	if c.Clock == "" {
		c.Clock = ClockInternal
	}
}

// Validate checks the configuration. Defaults must be applied first.
func (c *Config) Validate() error {
	if c.DT <= 0 {
		return fmt.Errorf("simulation step 'dt' must be > 0, got %v", c.DT)
	}
	switch c.Solver {
	case SolverFixed:
	case SolverVariable:
		return fmt.Errorf("solver 'variable' is not implemented, use 'fixed'")
	default:
		return fmt.Errorf("unknown solver '%s', use 'fixed'", c.Solver)
	}
	switch c.Clock {
	case ClockInternal:
		if c.Horizon <= c.T0 {
			return fmt.Errorf("horizon %v must be greater than initial time %v", c.Horizon, c.T0)
		}
	case ClockExternal:
	default:
		return fmt.Errorf("unknown clock '%s', use 'internal' or 'external'", c.Clock)
	}
	return nil
}

// Ticks returns the number of ticks an internal-clock run executes:
// round((Horizon-T0)/DT), the final boundary excluded. dt=0.01 over
// [0,1) is exactly 100 ticks, the last at t=0.99.
func (c Config) Ticks() int {
	return int(math.Round((c.Horizon - c.T0) / c.DT))
}
