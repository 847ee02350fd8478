package blocks

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// broadcastBound expands a bound or slope parameter to the input
// shape: scalar (1,1) fills the whole matrix, a column (m,1) repeats
// across columns, a full (m,n) matrix must match exactly.
func broadcastBound(block, param string, b *mat.Dense, target signal.Shape) (*mat.Dense, error) {
	if signal.IsScalar(b) {
		return signal.Full(target, b.At(0, 0)), nil
	}
	r, c := b.Dims()
	if c == 1 && r == target.Rows {
		out := signal.Zeros(target)
		for i := 0; i < target.Rows; i++ {
			for j := 0; j < target.Cols; j++ {
				out.Set(i, j, b.At(i, 0))
			}
		}
		return out, nil
	}
	if r == target.Rows && c == target.Cols {
		return signal.Clone(b), nil
	}
	return nil, fmt.Errorf("[%s] %s has incompatible shape %s for input shape %s: allowed scalar (1,1), column (m,1), or matrix (m,n)",
		block, param, signal.Shape{Rows: r, Cols: c}, target)
}

// Saturation clamps its input element-wise between lower and upper
// bounds.
type Saturation struct {
	*model.Base
	minRaw *mat.Dense
	maxRaw *mat.Dense

	uMin     *mat.Dense
	uMax     *mat.Dense
	resolved *signal.Shape
}

// NewSaturation builds a saturation block. Bounds default to -Inf/+Inf.
func NewSaturation(name string, uMin, uMax *mat.Dense, sampleTime float64) (*Saturation, error) {
	if uMin == nil {
		uMin = signal.FromScalar(math.Inf(-1))
	}
	if uMax == nil {
		uMax = signal.FromScalar(math.Inf(1))
	}
	b := &Saturation{
		Base:   model.NewBase(name, "saturation", sampleTime),
		minRaw: signal.Clone(uMin),
		maxRaw: signal.Clone(uMax),
	}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func (b *Saturation) resolve(u *mat.Dense) error {
	s := signal.Of(u)
	if b.resolved != nil {
		if s != *b.resolved {
			return fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
		}
		return nil
	}
	var err error
	if b.uMin, err = broadcastBound(b.Name(), "u_min", b.minRaw, s); err != nil {
		return err
	}
	if b.uMax, err = broadcastBound(b.Name(), "u_max", b.maxRaw, s); err != nil {
		return err
	}
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			if b.uMin.At(i, j) > b.uMax.At(i, j) {
				return fmt.Errorf("[%s] u_min must be <= u_max for all components", b.Name())
			}
		}
	}
	b.resolved = &s
	return nil
}

func (b *Saturation) Initialize(t0 float64) error {
	if b.Input("in") == nil {
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Saturation) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.resolve(u); err != nil {
		return err
	}
	s := signal.Of(u)
	out := signal.Zeros(s)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			out.Set(i, j, math.Min(math.Max(u.At(i, j), b.uMin.At(i, j)), b.uMax.At(i, j)))
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *Saturation) StateUpdate(t, dt float64) error { return nil }

// DeadZone suppresses the input inside a band around zero and shifts
// it outside: y = u - upper above the band, u - lower below it, zero
// inside.
type DeadZone struct {
	*model.Base
	lowerRaw *mat.Dense
	upperRaw *mat.Dense

	lower    *mat.Dense
	upper    *mat.Dense
	resolved *signal.Shape
}

// NewDeadZone builds a dead-zone block. The band must contain zero
// component-wise.
func NewDeadZone(name string, lower, upper *mat.Dense, sampleTime float64) (*DeadZone, error) {
	if lower == nil {
		lower = signal.FromScalar(0)
	}
	if upper == nil {
		upper = signal.FromScalar(0)
	}
	b := &DeadZone{
		Base:     model.NewBase(name, "dead_zone", sampleTime),
		lowerRaw: signal.Clone(lower),
		upperRaw: signal.Clone(upper),
	}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func (b *DeadZone) resolve(u *mat.Dense) error {
	s := signal.Of(u)
	if b.resolved != nil {
		if s != *b.resolved {
			return fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
		}
		return nil
	}
	var err error
	if b.lower, err = broadcastBound(b.Name(), "lower_bound", b.lowerRaw, s); err != nil {
		return err
	}
	if b.upper, err = broadcastBound(b.Name(), "upper_bound", b.upperRaw, s); err != nil {
		return err
	}
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			lo, hi := b.lower.At(i, j), b.upper.At(i, j)
			if lo > hi {
				return fmt.Errorf("[%s] lower_bound must be <= upper_bound (component-wise)", b.Name())
			}
			if lo > 0 || hi < 0 {
				return fmt.Errorf("[%s] dead zone must contain zero: lower_bound <= 0 <= upper_bound", b.Name())
			}
		}
	}
	b.resolved = &s
	return nil
}

func (b *DeadZone) Initialize(t0 float64) error {
	if b.Input("in") == nil {
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *DeadZone) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.resolve(u); err != nil {
		return err
	}
	s := signal.Of(u)
	out := signal.Zeros(s)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			v := u.At(i, j)
			switch {
			case v > b.upper.At(i, j):
				out.Set(i, j, v-b.upper.At(i, j))
			case v < b.lower.At(i, j):
				out.Set(i, j, v-b.lower.At(i, j))
			}
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *DeadZone) StateUpdate(t, dt float64) error { return nil }

// RateLimiter bounds the change of its output per step:
// y[k] = y[k-1] + clip(u[k] - y[k-1], falling*dt, rising*dt).
type RateLimiter struct {
	*model.Base
	risingRaw  *mat.Dense
	fallingRaw *mat.Dense
	y0Raw      *mat.Dense

	rising   *mat.Dense
	falling  *mat.Dense
	resolved *signal.Shape
}

// NewRateLimiter builds a rate limiter. Rising slope must be >= 0,
// falling slope <= 0; when y0 is nil the first input seeds the state.
func NewRateLimiter(name string, rising, falling, y0 *mat.Dense, sampleTime float64) (*RateLimiter, error) {
	if rising == nil {
		rising = signal.FromScalar(math.Inf(1))
	}
	if falling == nil {
		falling = signal.FromScalar(math.Inf(-1))
	}
	if err := checkSign(name, "rising_slope", rising, +1); err != nil {
		return nil, err
	}
	if err := checkSign(name, "falling_slope", falling, -1); err != nil {
		return nil, err
	}
	b := &RateLimiter{
		Base:       model.NewBase(name, "rate_limiter", sampleTime),
		risingRaw:  signal.Clone(rising),
		fallingRaw: signal.Clone(falling),
		y0Raw:      signal.Clone(y0),
	}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func checkSign(block, param string, v *mat.Dense, sign float64) error {
	r, c := v.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v.At(i, j)*sign < 0 {
				if sign > 0 {
					return fmt.Errorf("[%s] %s must be >= 0", block, param)
				}
				return fmt.Errorf("[%s] %s must be <= 0", block, param)
			}
		}
	}
	return nil
}

func (b *RateLimiter) resolve(u *mat.Dense) error {
	s := signal.Of(u)
	if b.resolved != nil {
		if s != *b.resolved {
			return fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
		}
		return nil
	}
	var err error
	if b.rising, err = broadcastBound(b.Name(), "rising_slope", b.risingRaw, s); err != nil {
		return err
	}
	if b.falling, err = broadcastBound(b.Name(), "falling_slope", b.fallingRaw, s); err != nil {
		return err
	}
	b.resolved = &s
	return nil
}

func (b *RateLimiter) Initialize(t0 float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.resolve(u); err != nil {
		return err
	}
	var y0 *mat.Dense
	if b.y0Raw != nil {
		if y0, err = broadcastBound(b.Name(), "initial_output", b.y0Raw, signal.Of(u)); err != nil {
			return err
		}
	} else {
		y0 = signal.Clone(u)
	}
	b.SetState("y", y0)
	b.SetOutput("out", signal.Clone(y0))
	return nil
}

func (b *RateLimiter) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.resolve(u); err != nil {
		return err
	}
	yPrev := b.State("y")
	if yPrev == nil {
		return fmt.Errorf("[%s] not initialized", b.Name())
	}
	s := signal.Of(u)
	if signal.Of(yPrev) != s {
		return fmt.Errorf("[%s] internal state shape mismatch: y %s, input %s", b.Name(), signal.Of(yPrev), s)
	}

	out := signal.Zeros(s)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			du := u.At(i, j) - yPrev.At(i, j)
			duMin := b.falling.At(i, j) * dt
			duMax := b.rising.At(i, j) * dt
			du = math.Min(math.Max(du, duMin), duMax)
			out.Set(i, j, yPrev.At(i, j)+du)
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *RateLimiter) StateUpdate(t, dt float64) error {
	b.SetNextState("y", signal.Clone(b.Output("out")))
	return nil
}
