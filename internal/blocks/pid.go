package blocks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// PID is a discrete SISO PID controller with output saturation and
// integral anti-windup. The error input and the command output are
// both (1,1).
type PID struct {
	*model.Base
	kp, ki, kd float64
	method     string
	uMin, uMax float64
}

// NewPID builds a PID controller. Saturation bounds default to
// -Inf/+Inf; the integral term uses the requested Euler method.
func NewPID(name string, kp, ki, kd float64, method string, uMin, uMax float64, sampleTime float64) (*PID, error) {
	parsed, err := parseIntegrationMethod(name, method)
	if err != nil {
		return nil, err
	}
	if uMin > uMax {
		return nil, fmt.Errorf("[%s] u_min must be <= u_max", name)
	}
	b := &PID{
		Base:   model.NewBase(name, "pid", sampleTime),
		kp:     kp,
		ki:     ki,
		kd:     kd,
		method: parsed,
		uMin:   uMin,
		uMax:   uMax,
	}
	b.AddInput("e")
	b.AddOutput("u")
	b.SetFeedthrough("u", "e")
	b.DeclareShape("e", signal.Shape{Rows: 1, Cols: 1})
	b.DeclareShape("u", signal.Shape{Rows: 1, Cols: 1})
	b.SetState("x_i", signal.FromScalar(0))
	b.SetState("e_prev", signal.FromScalar(0))
	return b, nil
}

func (b *PID) Initialize(t0 float64) error {
	b.SetState("x_i", signal.FromScalar(0))
	b.SetState("e_prev", signal.FromScalar(0))
	b.SetOutput("u", signal.FromScalar(0))
	return nil
}

func (b *PID) errorInput() (float64, error) {
	e, err := b.RequireInput("e")
	if err != nil {
		return 0, err
	}
	if !signal.IsScalar(e) {
		return 0, fmt.Errorf("[%s] error input 'e' must be a scalar (1,1), got %s", b.Name(), signal.Of(e))
	}
	return e.At(0, 0), nil
}

func (b *PID) OutputUpdate(t, dt float64) error {
	e, err := b.errorInput()
	if err != nil {
		return err
	}
	u := b.saturate(b.command(e, dt))
	b.SetOutput("u", signal.FromScalar(u))
	return nil
}

func (b *PID) StateUpdate(t, dt float64) error {
	e, err := b.errorInput()
	if err != nil {
		return err
	}
	xi := b.State("x_i").At(0, 0)

	var xiNext float64
	if b.method == EulerForward {
		xiNext = xi + b.ki*e*dt
	} else {
		// backward: recover the integral from the saturated command so
		// the state stays consistent with what was actually applied
		u := b.saturate(b.command(e, dt))
		xiNext = u - b.kp*e - b.derivative(e, dt)
	}
	// anti-windup: keep the integral within the actuator range
	xiNext = math.Min(math.Max(xiNext, b.uMin), b.uMax)

	b.SetNextState("x_i", signal.FromScalar(xiNext))
	b.SetNextState("e_prev", signal.FromScalar(e))
	return nil
}

func (b *PID) command(e, dt float64) float64 {
	xi := b.State("x_i").At(0, 0)
	integral := xi
	if b.method == EulerBackward {
		integral += b.ki * e * dt
	}
	return b.kp*e + integral + b.derivative(e, dt)
}

func (b *PID) derivative(e, dt float64) float64 {
	if b.kd == 0 || dt == 0 {
		return 0
	}
	ePrev := b.State("e_prev").At(0, 0)
	return b.kd * (e - ePrev) / dt
}

func (b *PID) saturate(u float64) float64 {
	return math.Min(math.Max(u, b.uMin), b.uMax)
}

// StateFeedback computes the control law u = G*r - K*x for a
// reference r and a measured state x. Stateless, pure feedthrough.
type StateFeedback struct {
	*model.Base
	k *mat.Dense
	g *mat.Dense
}

// NewStateFeedback builds a state-feedback block. K must be (p,n); G
// defaults to the (p,p) identity and must be square with p rows.
func NewStateFeedback(name string, k, g *mat.Dense, sampleTime float64) (*StateFeedback, error) {
	if k == nil {
		return nil, fmt.Errorf("[%s] parameter 'K' is required", name)
	}
	p, n := k.Dims()
	if g == nil {
		g = identity(p)
	}
	gr, gc := g.Dims()
	if gr != p || gc != p {
		return nil, fmt.Errorf("[%s] 'G' must be (%d,%d) to match K's %d rows, got %s",
			name, p, p, p, signal.Shape{Rows: gr, Cols: gc})
	}
	b := &StateFeedback{
		Base: model.NewBase(name, "state_feedback", sampleTime),
		k:    signal.Clone(k),
		g:    signal.Clone(g),
	}
	b.AddInput("r")
	b.AddInput("x")
	b.AddOutput("u")
	b.FeedthroughAll()
	b.DeclareShape("r", signal.Shape{Rows: p, Cols: 1})
	b.DeclareShape("x", signal.Shape{Rows: n, Cols: 1})
	b.DeclareShape("u", signal.Shape{Rows: p, Cols: 1})
	return b, nil
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

func (b *StateFeedback) Initialize(t0 float64) error {
	if b.Input("r") == nil || b.Input("x") == nil {
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *StateFeedback) OutputUpdate(t, dt float64) error {
	r, err := b.RequireInput("r")
	if err != nil {
		return err
	}
	x, err := b.RequireInput("x")
	if err != nil {
		return err
	}
	p, n := b.k.Dims()
	if rr, rc := r.Dims(); rr != p || rc != 1 {
		return fmt.Errorf("[%s] reference 'r' must be (%d,1), got %s", b.Name(), p, signal.Of(r))
	}
	if xr, xc := x.Dims(); xr != n || xc != 1 {
		return fmt.Errorf("[%s] state 'x' must be (%d,1), got %s", b.Name(), n, signal.Of(x))
	}

	gr := mat.NewDense(p, 1, nil)
	gr.Mul(b.g, r)
	kx := mat.NewDense(p, 1, nil)
	kx.Mul(b.k, x)
	u := mat.NewDense(p, 1, nil)
	u.Sub(gr, kx)
	b.SetOutput("u", u)
	return nil
}

func (b *StateFeedback) StateUpdate(t, dt float64) error { return nil }
