package blocks

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// QP status codes reported on the 'status' output.
const (
	QPStatusOptimal     = 0
	QPStatusInfeasible  = 1
	QPStatusSolverError = 2
	QPStatusInputError  = 3
)

// QPProblem is one instance of min ½xᵀPx + qᵀx subject to Gx <= h,
// Ax = b, and lb <= x <= ub. Constraint fields are nil when absent.
type QPProblem struct {
	P, Q   *mat.Dense
	G, H   *mat.Dense
	A, B   *mat.Dense
	Lb, Ub *mat.Dense
}

// QPSolver solves one problem instance. Implementations report
// infeasibility through the error; the block maps error kinds to
// status codes.
type QPSolver interface {
	Solve(p QPProblem) (*mat.Dense, error)
}

// ErrQPInfeasible marks a well-posed but infeasible problem.
var ErrQPInfeasible = errors.New("quadratic program is infeasible")

// unconstrainedSolver handles the equality-and-inequality-free case by
// solving the stationarity system Px = -q directly. Any constraint
// makes it bail out so the block reports a solver error instead of a
// silently wrong answer.
type unconstrainedSolver struct{}

func (unconstrainedSolver) Solve(p QPProblem) (*mat.Dense, error) {
	if p.G != nil || p.A != nil || p.Lb != nil || p.Ub != nil {
		return nil, fmt.Errorf("built-in solver handles unconstrained problems only")
	}
	n, _ := p.P.Dims()
	negq := mat.NewDense(n, 1, nil)
	negq.Scale(-1, p.Q)
	x := mat.NewDense(n, 1, nil)
	if err := x.Solve(p.P, negq); err != nil {
		return nil, fmt.Errorf("stationarity system is singular: %w", err)
	}
	return x, nil
}

// QuadraticProgram solves a QP every tick from its matrix inputs.
// Inputs 'P' and 'q' are required; 'G'/'h', 'A'/'b' come in pairs and
// 'lb'/'ub' bound the variables. Outputs the minimizer, the objective
// value, and a status code. Solver failures never abort the
// simulation: the block reports them through 'status' and falls back
// to a zero vector with a NaN cost.
type QuadraticProgram struct {
	*model.Base
	solver QPSolver
	n      int
}

// NewQuadraticProgram builds a QP block. A nil solver selects the
// built-in unconstrained one.
func NewQuadraticProgram(name string, solver QPSolver, sampleTime float64) (*QuadraticProgram, error) {
	if solver == nil {
		solver = unconstrainedSolver{}
	}
	b := &QuadraticProgram{Base: model.NewBase(name, "quadratic_program", sampleTime), solver: solver}
	b.AddInput("P")
	b.AddInput("q")
	b.AddOptionalInput("G")
	b.AddOptionalInput("h")
	b.AddOptionalInput("A")
	b.AddOptionalInput("b")
	b.AddOptionalInput("lb")
	b.AddOptionalInput("ub")
	b.AddOutput("x")
	b.AddOutput("cost")
	b.AddOutput("status")
	b.FeedthroughAll()
	return b, nil
}

func (b *QuadraticProgram) Initialize(t0 float64) error {
	if b.Input("P") == nil || b.Input("q") == nil {
		// placeholders keep loops alive until the producers fire
		b.fail(QPStatusInputError)
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *QuadraticProgram) OutputUpdate(t, dt float64) error {
	prob, status := b.gather()
	if status != QPStatusOptimal {
		b.fail(status)
		return nil
	}

	x, err := b.solver.Solve(prob)
	switch {
	case err == nil && x != nil:
		n, _ := prob.P.Dims()
		if xr, xc := x.Dims(); xr != n || xc != 1 {
			b.fail(QPStatusSolverError)
			return nil
		}
		b.SetOutput("x", signal.Clone(x))
		b.SetOutput("cost", signal.FromScalar(objective(prob, x)))
		b.SetOutput("status", signal.FromScalar(QPStatusOptimal))
	case errors.Is(err, ErrQPInfeasible):
		b.fail(QPStatusInfeasible)
	default:
		b.fail(QPStatusSolverError)
	}
	return nil
}

func (b *QuadraticProgram) StateUpdate(t, dt float64) error { return nil }

// gather validates the inputs and assembles the problem. Dimension
// mistakes produce an input-error status, not a failed tick.
func (b *QuadraticProgram) gather() (QPProblem, int) {
	var prob QPProblem

	prob.P = b.Input("P")
	prob.Q = b.Input("q")
	if prob.P == nil || prob.Q == nil {
		return prob, QPStatusInputError
	}
	n, pc := prob.P.Dims()
	if n != pc {
		return prob, QPStatusInputError
	}
	if qr, qc := prob.Q.Dims(); qr != n || qc != 1 {
		return prob, QPStatusInputError
	}
	b.n = n

	prob.G, prob.H = b.Input("G"), b.Input("h")
	if (prob.G == nil) != (prob.H == nil) {
		return prob, QPStatusInputError
	}
	if prob.G != nil {
		gr, gc := prob.G.Dims()
		hr, hc := prob.H.Dims()
		if gc != n || hr != gr || hc != 1 {
			return prob, QPStatusInputError
		}
	}

	prob.A, prob.B = b.Input("A"), b.Input("b")
	if (prob.A == nil) != (prob.B == nil) {
		return prob, QPStatusInputError
	}
	if prob.A != nil {
		ar, ac := prob.A.Dims()
		br, bc := prob.B.Dims()
		if ac != n || br != ar || bc != 1 {
			return prob, QPStatusInputError
		}
	}

	for _, bound := range []*mat.Dense{b.Input("lb"), b.Input("ub")} {
		if bound == nil {
			continue
		}
		if br, bc := bound.Dims(); br != n || bc != 1 {
			return prob, QPStatusInputError
		}
	}
	prob.Lb, prob.Ub = b.Input("lb"), b.Input("ub")

	return prob, QPStatusOptimal
}

// fail publishes the failure outputs. The minimizer falls back to
// zeros sized to the last known dimension, (1,1) before any solve.
func (b *QuadraticProgram) fail(status int) {
	n := b.n
	if n < 1 {
		n = 1
	}
	b.SetOutput("x", mat.NewDense(n, 1, nil))
	b.SetOutput("cost", signal.FromScalar(math.NaN()))
	b.SetOutput("status", signal.FromScalar(float64(status)))
}

func objective(p QPProblem, x *mat.Dense) float64 {
	n, _ := x.Dims()
	px := mat.NewDense(n, 1, nil)
	px.Mul(p.P, x)
	cost := 0.0
	for i := 0; i < n; i++ {
		cost += 0.5*x.At(i, 0)*px.At(i, 0) + p.Q.At(i, 0)*x.At(i, 0)
	}
	return cost
}
