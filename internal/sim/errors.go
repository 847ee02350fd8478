package sim

import (
	"errors"
	"fmt"
)

// Execution phases named in runtime errors.
const (
	PhaseInitialize = "initialize"
	PhaseOutput     = "output update"
	PhaseState      = "state update"
	PhaseRecord     = "record"
	PhaseFinalize   = "finalize"
)

// RuntimeError reports a block failure during execution, located by
// tick, time and phase. It aborts the run: the tick it occurred in is
// never committed.
type RuntimeError struct {
	Tick  int
	Time  float64
	Block string
	Phase string
	Err   error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("RUNTIME: block '%s' failed during %s at tick %d (t=%g): %v",
		e.Block, e.Phase, e.Tick, e.Time, e.Err)
}

// Unwrap returns the underlying block error.
func (e *RuntimeError) Unwrap() error { return e.Err }

// IsRuntime reports whether err is a runtime execution error.
// Uses errors.As to handle wrapped errors.
func IsRuntime(err error) bool {
	var re *RuntimeError
	return errors.As(err, &re)
}
