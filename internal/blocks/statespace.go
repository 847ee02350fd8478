package blocks

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

func checkColumn(block, port string, v *mat.Dense, rows int) error {
	r, c := v.Dims()
	if r != rows || c != 1 {
		return fmt.Errorf("[%s] input '%s' must be (%d,1), got %s", block, port, rows, signal.Shape{Rows: r, Cols: c})
	}
	return nil
}

// checkVector is checkColumn relaxed for single-row systems, where a
// scalar (1,1) is the same thing as a (1,1) column.
func checkVector(block, port string, v *mat.Dense, rows int) error {
	if rows == 1 && signal.IsScalar(v) {
		return nil
	}
	return checkColumn(block, port, v, rows)
}

// LinearStateSpace simulates a strictly proper discrete LTI system:
//
//	x[k+1] = A x[k] + B u[k]
//	y[k]   = C x[k]
//
// No D term, so the block has no feedthrough and can close loops. The
// full state is exposed on a second output port.
type LinearStateSpace struct {
	*model.Base
	a, b, c *mat.Dense
	x0      *mat.Dense
	nx, nu  int
	ny      int
}

// NewLinearStateSpace builds an LTI block from its A, B, C matrices.
// The initial state defaults to zeros.
func NewLinearStateSpace(name string, a, bm, c, x0 *mat.Dense, sampleTime float64) (*LinearStateSpace, error) {
	if a == nil || bm == nil || c == nil {
		return nil, fmt.Errorf("[%s] parameters 'A', 'B' and 'C' are required", name)
	}
	nx, ac := a.Dims()
	if nx != ac {
		return nil, fmt.Errorf("[%s] 'A' must be square, got %s", name, signal.Of(a))
	}
	br, nu := bm.Dims()
	if br != nx {
		return nil, fmt.Errorf("[%s] 'B' must have %d rows to match A, got %s", name, nx, signal.Of(bm))
	}
	ny, cc := c.Dims()
	if cc != nx {
		return nil, fmt.Errorf("[%s] 'C' must have %d columns to match A, got %s", name, nx, signal.Of(c))
	}
	if x0 == nil {
		x0 = mat.NewDense(nx, 1, nil)
	} else if xr, xc := x0.Dims(); xr != nx || xc != 1 {
		return nil, fmt.Errorf("[%s] 'x0' must be (%d,1), got %s", name, nx, signal.Of(x0))
	}

	blk := &LinearStateSpace{
		Base: model.NewBase(name, "linear_state_space", sampleTime),
		a:    signal.Clone(a), b: signal.Clone(bm), c: signal.Clone(c),
		x0: signal.Clone(x0),
		nx: nx, nu: nu, ny: ny,
	}
	blk.AddInput("u")
	blk.AddOutput("y")
	blk.AddOutput("x")
	blk.DeclareShape("u", signal.Shape{Rows: nu, Cols: 1})
	blk.DeclareShape("y", signal.Shape{Rows: ny, Cols: 1})
	blk.DeclareShape("x", signal.Shape{Rows: nx, Cols: 1})
	blk.SetState("x", signal.Clone(x0))
	return blk, nil
}

func (b *LinearStateSpace) Initialize(t0 float64) error {
	b.SetState("x", signal.Clone(b.x0))
	b.emit()
	return nil
}

func (b *LinearStateSpace) emit() {
	x := b.State("x")
	y := mat.NewDense(b.ny, 1, nil)
	y.Mul(b.c, x)
	b.SetOutput("y", y)
	b.SetOutput("x", signal.Clone(x))
}

func (b *LinearStateSpace) OutputUpdate(t, dt float64) error {
	b.emit()
	return nil
}

func (b *LinearStateSpace) StateUpdate(t, dt float64) error {
	u, err := b.RequireInput("u")
	if err != nil {
		return err
	}
	u, err = b.coerceInput(u)
	if err != nil {
		return err
	}
	x := b.State("x")
	ax := mat.NewDense(b.nx, 1, nil)
	ax.Mul(b.a, x)
	bu := mat.NewDense(b.nx, 1, nil)
	bu.Mul(b.b, u)
	next := mat.NewDense(b.nx, 1, nil)
	next.Add(ax, bu)
	b.SetNextState("x", next)
	return nil
}

func (b *LinearStateSpace) coerceInput(u *mat.Dense) (*mat.Dense, error) {
	if err := checkVector(b.Name(), "u", u, b.nu); err != nil {
		return nil, err
	}
	return u, nil
}

// Luenberger reconstructs the state of a linear system from its input
// and measured output:
//
//	x_hat[k+1] = A x_hat[k] + B u[k] + L (y[k] - C x_hat[k])
//
// Outputs the state estimate and the predicted measurement. No
// feedthrough, so the observer can sit inside a feedback loop.
type Luenberger struct {
	*model.Base
	a, b, c, l *mat.Dense
	x0         *mat.Dense
	nx, nu, ny int
}

// NewLuenberger builds an observer. L must be (n,p) for an (n,n) A and
// a (p,n) C; the initial estimate defaults to zeros.
func NewLuenberger(name string, a, bm, c, l, x0 *mat.Dense, sampleTime float64) (*Luenberger, error) {
	if a == nil || bm == nil || c == nil || l == nil {
		return nil, fmt.Errorf("[%s] parameters 'A', 'B', 'C' and 'L' are required", name)
	}
	nx, ac := a.Dims()
	if nx != ac {
		return nil, fmt.Errorf("[%s] 'A' must be square, got %s", name, signal.Of(a))
	}
	br, nu := bm.Dims()
	if br != nx {
		return nil, fmt.Errorf("[%s] 'B' must have %d rows to match A, got %s", name, nx, signal.Of(bm))
	}
	ny, cc := c.Dims()
	if cc != nx {
		return nil, fmt.Errorf("[%s] 'C' must have %d columns to match A, got %s", name, nx, signal.Of(c))
	}
	if lr, lc := l.Dims(); lr != nx || lc != ny {
		return nil, fmt.Errorf("[%s] 'L' must be (%d,%d), got %s", name, nx, ny, signal.Of(l))
	}
	if x0 == nil {
		x0 = mat.NewDense(nx, 1, nil)
	} else if xr, xc := x0.Dims(); xr != nx || xc != 1 {
		return nil, fmt.Errorf("[%s] 'x0' must be (%d,1), got %s", name, nx, signal.Of(x0))
	}

	blk := &Luenberger{
		Base: model.NewBase(name, "luenberger_observer", sampleTime),
		a:    signal.Clone(a), b: signal.Clone(bm), c: signal.Clone(c), l: signal.Clone(l),
		x0: signal.Clone(x0),
		nx: nx, nu: nu, ny: ny,
	}
	blk.AddInput("u")
	blk.AddInput("y")
	blk.AddOutput("x_hat")
	blk.AddOutput("y_hat")
	blk.DeclareShape("u", signal.Shape{Rows: nu, Cols: 1})
	blk.DeclareShape("y", signal.Shape{Rows: ny, Cols: 1})
	blk.DeclareShape("x_hat", signal.Shape{Rows: nx, Cols: 1})
	blk.DeclareShape("y_hat", signal.Shape{Rows: ny, Cols: 1})
	blk.SetState("x_hat", signal.Clone(x0))
	return blk, nil
}

func (b *Luenberger) Initialize(t0 float64) error {
	b.SetState("x_hat", signal.Clone(b.x0))
	b.emit()
	return nil
}

func (b *Luenberger) emit() {
	xh := b.State("x_hat")
	yh := mat.NewDense(b.ny, 1, nil)
	yh.Mul(b.c, xh)
	b.SetOutput("x_hat", signal.Clone(xh))
	b.SetOutput("y_hat", yh)
}

func (b *Luenberger) OutputUpdate(t, dt float64) error {
	b.emit()
	return nil
}

func (b *Luenberger) StateUpdate(t, dt float64) error {
	u, err := b.RequireInput("u")
	if err != nil {
		return err
	}
	y, err := b.RequireInput("y")
	if err != nil {
		return err
	}
	if err := checkVector(b.Name(), "u", u, b.nu); err != nil {
		return err
	}
	if err := checkVector(b.Name(), "y", y, b.ny); err != nil {
		return err
	}

	xh := b.State("x_hat")
	pred := mat.NewDense(b.ny, 1, nil)
	pred.Mul(b.c, xh)
	innov := mat.NewDense(b.ny, 1, nil)
	innov.Sub(y, pred)

	next := mat.NewDense(b.nx, 1, nil)
	next.Mul(b.a, xh)
	bu := mat.NewDense(b.nx, 1, nil)
	bu.Mul(b.b, u)
	next.Add(next, bu)
	li := mat.NewDense(b.nx, 1, nil)
	li.Mul(b.l, innov)
	next.Add(next, li)
	b.SetNextState("x_hat", next)
	return nil
}

const weightSumTol = 1e-9

// PolytopicStateSpace simulates a system whose dynamics blend r
// vertices of a polytope with time-varying weights w:
//
//	x[k+1] = A (w ⊗ x[k]) + B (w ⊗ u[k])
//	y[k]   = C x[k]
//
// A stacks the r vertex matrices horizontally as (nx, r*nx) and B as
// (nx, r*nu); the weights must sum to one.
type PolytopicStateSpace struct {
	*model.Base
	a, b, c    *mat.Dense
	x0         *mat.Dense
	nx, nu, ny int
	vertices   int
}

// NewPolytopicStateSpace builds a polytopic LPV block.
func NewPolytopicStateSpace(name string, a, bm, c, x0 *mat.Dense, vertices int, sampleTime float64) (*PolytopicStateSpace, error) {
	if a == nil || bm == nil || c == nil {
		return nil, fmt.Errorf("[%s] parameters 'A', 'B' and 'C' are required", name)
	}
	if vertices < 1 {
		return nil, fmt.Errorf("[%s] 'vertices' must be a positive integer", name)
	}
	nx, ac := a.Dims()
	if ac != vertices*nx {
		return nil, fmt.Errorf("[%s] 'A' must be (%d,%d) for %d vertices, got %s",
			name, nx, vertices*nx, vertices, signal.Of(a))
	}
	br, bc := bm.Dims()
	if br != nx || bc%vertices != 0 {
		return nil, fmt.Errorf("[%s] 'B' must be (%d, %d*nu), got %s", name, nx, vertices, signal.Of(bm))
	}
	nu := bc / vertices
	ny, cc := c.Dims()
	if cc != nx {
		return nil, fmt.Errorf("[%s] 'C' must have %d columns to match A, got %s", name, nx, signal.Of(c))
	}
	if x0 == nil {
		x0 = mat.NewDense(nx, 1, nil)
	} else if xr, xc := x0.Dims(); xr != nx || xc != 1 {
		return nil, fmt.Errorf("[%s] 'x0' must be (%d,1), got %s", name, nx, signal.Of(x0))
	}

	blk := &PolytopicStateSpace{
		Base: model.NewBase(name, "polytopic_state_space", sampleTime),
		a:    signal.Clone(a), b: signal.Clone(bm), c: signal.Clone(c),
		x0: signal.Clone(x0),
		nx: nx, nu: nu, ny: ny,
		vertices: vertices,
	}
	blk.AddInput("u")
	blk.AddInput("w")
	blk.AddOutput("y")
	blk.AddOutput("x")
	blk.DeclareShape("u", signal.Shape{Rows: nu, Cols: 1})
	blk.DeclareShape("w", signal.Shape{Rows: vertices, Cols: 1})
	blk.DeclareShape("y", signal.Shape{Rows: ny, Cols: 1})
	blk.DeclareShape("x", signal.Shape{Rows: nx, Cols: 1})
	blk.SetState("x", signal.Clone(x0))
	return blk, nil
}

func (b *PolytopicStateSpace) Initialize(t0 float64) error {
	b.SetState("x", signal.Clone(b.x0))
	b.emit()
	return nil
}

func (b *PolytopicStateSpace) emit() {
	x := b.State("x")
	y := mat.NewDense(b.ny, 1, nil)
	y.Mul(b.c, x)
	b.SetOutput("y", y)
	b.SetOutput("x", signal.Clone(x))
}

func (b *PolytopicStateSpace) OutputUpdate(t, dt float64) error {
	b.emit()
	return nil
}

func (b *PolytopicStateSpace) StateUpdate(t, dt float64) error {
	u, err := b.RequireInput("u")
	if err != nil {
		return err
	}
	w, err := b.RequireInput("w")
	if err != nil {
		return err
	}
	if err := checkColumn(b.Name(), "w", w, b.vertices); err != nil {
		return err
	}
	if err := checkVector(b.Name(), "u", u, b.nu); err != nil {
		return err
	}

	sum := 0.0
	for i := 0; i < b.vertices; i++ {
		sum += w.At(i, 0)
	}
	if sum < 1-weightSumTol || sum > 1+weightSumTol {
		return fmt.Errorf("[%s] scheduling weights 'w' must sum to 1, got %g", b.Name(), sum)
	}

	// kron(w, v) stacks w_i * v vertically, so A*kron(w,x) is the
	// weighted sum of the vertex products
	x := b.State("x")
	next := mat.NewDense(b.nx, 1, nil)
	next.Mul(b.a, kronColumn(w, x))
	bu := mat.NewDense(b.nx, 1, nil)
	bu.Mul(b.b, kronColumn(w, u))
	next.Add(next, bu)
	b.SetNextState("x", next)
	return nil
}

func kronColumn(w, v *mat.Dense) *mat.Dense {
	wr, _ := w.Dims()
	vr, _ := v.Dims()
	out := mat.NewDense(wr*vr, 1, nil)
	for i := 0; i < wr; i++ {
		for j := 0; j < vr; j++ {
			out.Set(i*vr+j, 0, w.At(i, 0)*v.At(j, 0))
		}
	}
	return out
}

// StateFunc computes the next state of a nonlinear system from the
// current time, step, state, and named inputs. It must return a column
// vector of the same length as the state.
type StateFunc func(t, dt float64, x *mat.Dense, inputs map[string]*mat.Dense) (*mat.Dense, error)

// OutputFunc computes the named outputs of a nonlinear system from the
// current time, step, and state.
type OutputFunc func(t, dt float64, x *mat.Dense) (map[string]*mat.Dense, error)

// NonLinearStateSpace simulates x[k+1] = f(t, dt, x, u...) with
// outputs y = g(t, dt, x). Outputs depend only on the state, so the
// block has no feedthrough. Only constructible in Go code; the YAML
// loader cannot express function parameters.
type NonLinearStateSpace struct {
	*model.Base
	f  StateFunc
	g  OutputFunc
	x0 *mat.Dense
}

// NewNonLinearStateSpace builds a nonlinear block with explicit input
// and output port lists.
func NewNonLinearStateSpace(name string, inputs, outputs []string, f StateFunc, g OutputFunc, x0 *mat.Dense, sampleTime float64) (*NonLinearStateSpace, error) {
	if f == nil || g == nil {
		return nil, fmt.Errorf("[%s] state and output functions are required", name)
	}
	if x0 == nil {
		return nil, fmt.Errorf("[%s] initial state 'x0' is required", name)
	}
	if _, c := x0.Dims(); c != 1 {
		return nil, fmt.Errorf("[%s] 'x0' must be a column vector (n,1), got %s", name, signal.Of(x0))
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("[%s] at least one output port is required", name)
	}
	b := &NonLinearStateSpace{
		Base: model.NewBase(name, "non_linear_state_space", sampleTime),
		f:    f, g: g,
		x0: signal.Clone(x0),
	}
	for _, port := range inputs {
		b.AddInput(port)
	}
	for _, port := range outputs {
		b.AddOutput(port)
	}
	b.SetState("x", signal.Clone(x0))
	return b, nil
}

func (b *NonLinearStateSpace) Initialize(t0 float64) error {
	b.SetState("x", signal.Clone(b.x0))
	return b.emit(t0, 0)
}

func (b *NonLinearStateSpace) emit(t, dt float64) error {
	out, err := b.g(t, dt, b.State("x"))
	if err != nil {
		return fmt.Errorf("[%s] output function: %w", b.Name(), err)
	}
	for _, port := range b.OutputNames() {
		v, ok := out[port]
		if !ok || v == nil {
			return fmt.Errorf("[%s] output function did not produce port '%s'", b.Name(), port)
		}
		b.SetOutput(port, signal.Clone(v))
	}
	return nil
}

func (b *NonLinearStateSpace) OutputUpdate(t, dt float64) error {
	return b.emit(t, dt)
}

func (b *NonLinearStateSpace) StateUpdate(t, dt float64) error {
	inputs := make(map[string]*mat.Dense, len(b.InputNames()))
	for _, port := range b.InputNames() {
		u, err := b.RequireInput(port)
		if err != nil {
			return err
		}
		inputs[port] = u
	}
	x := b.State("x")
	next, err := b.f(t, dt, x, inputs)
	if err != nil {
		return fmt.Errorf("[%s] state function: %w", b.Name(), err)
	}
	if next == nil {
		return fmt.Errorf("[%s] state function returned no next state", b.Name())
	}
	xr, _ := x.Dims()
	if nr, nc := next.Dims(); nr != xr || nc != 1 {
		return fmt.Errorf("[%s] state function must return (%d,1), got %s", b.Name(), xr, signal.Of(next))
	}
	b.SetNextState("x", signal.Clone(next))
	return nil
}
