package blocks

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// Delay outputs its input shifted by a fixed number of ticks. The
// buffer slots live in state keys z1..zN, z1 being the oldest sample
// and the next output. An optional reset input refills the buffer with
// the initial value.
type Delay struct {
	*model.Base
	numDelays int
	initial   *mat.Dense

	shapeFixed bool
}

// NewDelay builds an N-step delay. A non-scalar initial value fixes
// the signal shape immediately; a scalar one is broadcast once to the
// first input's shape.
func NewDelay(name string, numDelays int, initial *mat.Dense, sampleTime float64) (*Delay, error) {
	if numDelays < 1 {
		return nil, fmt.Errorf("[%s] num_delays must be >= 1", name)
	}
	b := &Delay{
		Base:      model.NewBase(name, "delay", sampleTime),
		numDelays: numDelays,
		initial:   signal.Clone(initial),
	}
	b.AddInput("in")
	b.AddOptionalInput("reset")
	b.AddOutput("out")

	fill := signal.FromScalar(0)
	if b.initial != nil {
		fill = b.initial
		if !signal.IsScalar(b.initial) {
			b.shapeFixed = true
		}
	}
	for i := 1; i <= numDelays; i++ {
		b.SetState(b.slot(i), signal.Clone(fill))
	}
	return b, nil
}

func (b *Delay) slot(i int) string { return fmt.Sprintf("z%d", i) }

func (b *Delay) Initialize(t0 float64) error {
	b.SetOutput("out", signal.Clone(b.State(b.slot(1))))
	if u := b.Input("in"); u != nil {
		return b.ensureShape(u)
	}
	return nil
}

func (b *Delay) OutputUpdate(t, dt float64) error {
	if u := b.Input("in"); u != nil {
		if err := b.ensureShape(u); err != nil {
			return err
		}
	}
	b.SetOutput("out", signal.Clone(b.State(b.slot(1))))
	return nil
}

func (b *Delay) StateUpdate(t, dt float64) error {
	reset, err := b.resetActive()
	if err != nil {
		return err
	}
	if reset {
		b.applyReset()
		return nil
	}

	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.ensureShape(u); err != nil {
		return err
	}
	for i := 1; i < b.numDelays; i++ {
		b.SetNextState(b.slot(i), signal.Clone(b.State(b.slot(i+1))))
	}
	b.SetNextState(b.slot(b.numDelays), signal.Clone(u))
	return nil
}

// ensureShape freezes the buffer shape on the first input, broadcasting
// a scalar placeholder buffer once.
func (b *Delay) ensureShape(u *mat.Dense) error {
	s := signal.Of(u)
	buf0 := b.State(b.slot(1))
	if b.shapeFixed {
		if signal.Of(buf0) != s {
			return fmt.Errorf("[%s] input 'in' shape mismatch: expected %s, got %s", b.Name(), signal.Of(buf0), s)
		}
		return nil
	}
	if signal.IsScalar(buf0) && !s.IsScalar() {
		fill := buf0.At(0, 0)
		for i := 1; i <= b.numDelays; i++ {
			b.SetState(b.slot(i), signal.Full(s, fill))
		}
	} else if signal.Of(buf0) != s {
		return fmt.Errorf("[%s] cannot infer a consistent delay shape: buffer %s, first input %s",
			b.Name(), signal.Of(buf0), s)
	}
	b.shapeFixed = true
	return nil
}

func (b *Delay) resetActive() (bool, error) {
	r := b.Input("reset")
	if r == nil {
		return false, nil
	}
	if !signal.IsScalar(r) {
		return false, fmt.Errorf("[%s] reset signal must be a scalar (1,1), got %s", b.Name(), signal.Of(r))
	}
	return r.At(0, 0) != 0, nil
}

func (b *Delay) applyReset() {
	shape := signal.Of(b.State(b.slot(1)))
	var fill *mat.Dense
	switch {
	case b.initial != nil && signal.IsScalar(b.initial) && !shape.IsScalar():
		fill = signal.Full(shape, b.initial.At(0, 0))
	case b.initial != nil:
		fill = b.initial
	default:
		fill = signal.Zeros(shape)
	}
	for i := 1; i <= b.numDelays; i++ {
		b.SetNextState(b.slot(i), signal.Clone(fill))
	}
}

// Integration methods shared by the integrator and the PID.
const (
	EulerForward  = "euler forward"
	EulerBackward = "euler backward"
)

func parseIntegrationMethod(block, method string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case "", EulerForward, "forward":
		return EulerForward, nil
	case EulerBackward, "backward":
		return EulerBackward, nil
	default:
		return "", fmt.Errorf("[%s] unsupported method '%s': allowed '%s', '%s'", block, method, EulerForward, EulerBackward)
	}
}

// DiscreteIntegrator accumulates its input: x[k+1] = x[k] + dt*u[k].
// Forward Euler outputs x[k] (no feedthrough, usable to break loops);
// backward Euler outputs x[k] + dt*u[k] (feedthrough).
type DiscreteIntegrator struct {
	*model.Base
	method   string
	x0       *mat.Dense
	resolved *signal.Shape
}

// NewDiscreteIntegrator builds an integrator. A non-scalar initial
// state fixes the shape immediately; otherwise the first non-scalar
// input freezes it, upgrading the scalar placeholder by broadcast.
func NewDiscreteIntegrator(name string, initialState *mat.Dense, method string, sampleTime float64) (*DiscreteIntegrator, error) {
	parsed, err := parseIntegrationMethod(name, method)
	if err != nil {
		return nil, err
	}
	b := &DiscreteIntegrator{
		Base:   model.NewBase(name, "discrete_integrator", sampleTime),
		method: parsed,
		x0:     signal.Clone(initialState),
	}
	b.AddInput("in")
	b.AddOutput("out")
	if parsed == EulerBackward {
		b.SetFeedthrough("out", "in")
	}
	if b.x0 == nil {
		b.x0 = signal.FromScalar(0)
	} else if !signal.IsScalar(b.x0) {
		s := signal.Of(b.x0)
		b.resolved = &s
	}
	b.SetState("x", signal.Clone(b.x0))
	return b, nil
}

func (b *DiscreteIntegrator) Initialize(t0 float64) error {
	b.SetState("x", signal.Clone(b.x0))
	b.SetOutput("out", signal.Clone(b.x0))
	return nil
}

func (b *DiscreteIntegrator) OutputUpdate(t, dt float64) error {
	x, err := b.normalizeState()
	if err != nil {
		return err
	}
	if b.method == EulerForward {
		b.SetOutput("out", signal.Clone(x))
		return nil
	}
	u, err := b.normalizeInput()
	if err != nil {
		return err
	}
	out := signal.Clone(x)
	s := signal.Of(x)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			out.Set(i, j, x.At(i, j)+dt*u.At(i, j))
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *DiscreteIntegrator) StateUpdate(t, dt float64) error {
	u, err := b.normalizeInput()
	if err != nil {
		return err
	}
	x, err := b.normalizeState()
	if err != nil {
		return err
	}
	if signal.Of(x) != signal.Of(u) {
		return fmt.Errorf("[%s] shape mismatch between state and input: x %s, u %s",
			b.Name(), signal.Of(x), signal.Of(u))
	}
	next := signal.Clone(x)
	s := signal.Of(x)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			next.Set(i, j, x.At(i, j)+dt*u.At(i, j))
		}
	}
	b.SetNextState("x", next)
	return nil
}

// normalizeInput applies the freeze-and-broadcast policy. A missing
// input (possible in feedback loops before the producer fires) reads
// as zeros rather than failing the tick.
func (b *DiscreteIntegrator) normalizeInput() (*mat.Dense, error) {
	u := b.Input("in")
	if u == nil {
		if b.resolved != nil {
			return signal.Zeros(*b.resolved), nil
		}
		return signal.FromScalar(0), nil
	}
	s := signal.Of(u)
	if b.resolved == nil && !s.IsScalar() {
		b.resolved = &s
		b.upgradePlaceholders(s)
	}
	if b.resolved != nil {
		if s.IsScalar() && !b.resolved.IsScalar() {
			return signal.Full(*b.resolved, u.At(0, 0)), nil
		}
		if s != *b.resolved {
			return nil, fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
		}
	}
	return u, nil
}

func (b *DiscreteIntegrator) normalizeState() (*mat.Dense, error) {
	x := b.State("x")
	if b.resolved != nil && !b.resolved.IsScalar() {
		if signal.IsScalar(x) {
			x = signal.Full(*b.resolved, x.At(0, 0))
			b.SetState("x", signal.Clone(x))
		}
		if signal.Of(x) != *b.resolved {
			return nil, fmt.Errorf("[%s] state shape mismatch: expected %s, got %s", b.Name(), *b.resolved, signal.Of(x))
		}
	}
	return x, nil
}

func (b *DiscreteIntegrator) upgradePlaceholders(s signal.Shape) {
	if x := b.State("x"); signal.IsScalar(x) {
		b.SetState("x", signal.Full(s, x.At(0, 0)))
	}
	if y := b.Output("out"); y != nil && signal.IsScalar(y) {
		b.SetOutput("out", signal.Full(s, y.At(0, 0)))
	}
}

// DiscreteDerivator estimates y[k] = (u[k] - u[k-1]) / dt with a
// backward difference. The first activation emits the configured
// initial output (zero by default) instead of a bogus spike.
type DiscreteDerivator struct {
	*model.Base
	y0       *mat.Dense
	resolved *signal.Shape
	first    bool
}

// NewDiscreteDerivator builds a differentiator. A provided initial
// output fixes the signal shape immediately.
func NewDiscreteDerivator(name string, initialOutput *mat.Dense, sampleTime float64) (*DiscreteDerivator, error) {
	b := &DiscreteDerivator{
		Base:  model.NewBase(name, "discrete_derivator", sampleTime),
		y0:    signal.Clone(initialOutput),
		first: true,
	}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	if b.y0 != nil {
		s := signal.Of(b.y0)
		b.resolved = &s
	}
	return b, nil
}

func (b *DiscreteDerivator) Initialize(t0 float64) error {
	b.first = true
	if b.y0 != nil {
		b.SetOutput("out", signal.Clone(b.y0))
	} else {
		b.SetOutput("out", signal.FromScalar(0))
	}
	if u := b.Input("in"); u != nil {
		norm, err := b.normalizeInput(u)
		if err != nil {
			return err
		}
		b.SetState("u_prev", signal.Clone(norm))
	} else {
		// still stateful: register the key so the scheduler keeps the
		// block in the state phase
		b.SetState("u_prev", nil)
	}
	return nil
}

func (b *DiscreteDerivator) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	norm, err := b.normalizeInput(u)
	if err != nil {
		return err
	}
	if b.first {
		b.first = false
		return nil
	}
	prev := b.State("u_prev")
	if prev == nil {
		b.SetOutput("out", signal.Zeros(signal.Of(norm)))
		return nil
	}
	if signal.IsScalar(prev) && !signal.IsScalar(norm) {
		prev = signal.Full(signal.Of(norm), prev.At(0, 0))
	}
	if signal.Of(prev) != signal.Of(norm) {
		return fmt.Errorf("[%s] previous input shape mismatch: u_prev %s, u %s",
			b.Name(), signal.Of(prev), signal.Of(norm))
	}
	s := signal.Of(norm)
	out := signal.Zeros(s)
	for i := 0; i < s.Rows; i++ {
		for j := 0; j < s.Cols; j++ {
			out.Set(i, j, (norm.At(i, j)-prev.At(i, j))/dt)
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *DiscreteDerivator) StateUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	norm, err := b.normalizeInput(u)
	if err != nil {
		return err
	}
	b.SetNextState("u_prev", signal.Clone(norm))
	return nil
}

func (b *DiscreteDerivator) normalizeInput(u *mat.Dense) (*mat.Dense, error) {
	s := signal.Of(u)
	if b.resolved == nil && !s.IsScalar() {
		b.resolved = &s
		if y := b.Output("out"); y != nil && signal.IsScalar(y) {
			b.SetOutput("out", signal.Full(s, y.At(0, 0)))
		}
		// seed u_prev so the first real derivative is not a spike
		if b.State("u_prev") == nil {
			b.SetState("u_prev", signal.Clone(u))
		}
	}
	if b.resolved != nil {
		if s.IsScalar() && !b.resolved.IsScalar() {
			return signal.Full(*b.resolved, u.At(0, 0)), nil
		}
		if s != *b.resolved {
			return nil, fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
		}
	}
	return u, nil
}

// ZeroOrderHold samples its input every period and holds the sample
// between instants. The period is also the block's sample time, so
// consumers see a stairstep even at the base rate.
type ZeroOrderHold struct {
	*model.Base
	period   float64
	resolved *signal.Shape
}

const zohEps = 1e-12

// NewZeroOrderHold builds a ZOH with the given sampling period.
func NewZeroOrderHold(name string, period float64) (*ZeroOrderHold, error) {
	if period <= 0 {
		return nil, fmt.Errorf("[%s] sample_time must be > 0", name)
	}
	b := &ZeroOrderHold{Base: model.NewBase(name, "zero_order_hold", period), period: period}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func (b *ZeroOrderHold) Initialize(t0 float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.ensureShape(u); err != nil {
		return err
	}
	b.SetState("y", signal.Clone(u))
	b.SetState("t_last", signal.FromScalar(t0))
	b.SetOutput("out", signal.Clone(u))
	return nil
}

func (b *ZeroOrderHold) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	if err := b.ensureShape(u); err != nil {
		return err
	}
	tLast := b.State("t_last")
	if tLast == nil {
		return fmt.Errorf("[%s] not initialized", b.Name())
	}
	if t-tLast.At(0, 0) >= b.period-zohEps {
		b.SetOutput("out", signal.Clone(u))
	} else {
		b.SetOutput("out", signal.Clone(b.State("y")))
	}
	return nil
}

func (b *ZeroOrderHold) StateUpdate(t, dt float64) error {
	tLast := b.State("t_last")
	if tLast == nil {
		return fmt.Errorf("[%s] not initialized", b.Name())
	}
	if t-tLast.At(0, 0) >= b.period-zohEps {
		b.SetNextState("y", signal.Clone(b.Output("out")))
		b.SetNextState("t_last", signal.FromScalar(t))
	}
	return nil
}

func (b *ZeroOrderHold) ensureShape(u *mat.Dense) error {
	s := signal.Of(u)
	if b.resolved == nil {
		b.resolved = &s
		return nil
	}
	if s != *b.resolved {
		return fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
	}
	return nil
}
