package blocks

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// AlgebraicFunc maps the named inputs to the named outputs of a
// stateless block at one instant.
type AlgebraicFunc func(t, dt float64, inputs map[string]*mat.Dense) (map[string]*mat.Dense, error)

// AlgebraicFunction evaluates a user function y = g(t, dt, u...) every
// tick. Pure feedthrough, no state. Only constructible in Go code; the
// YAML loader cannot express function parameters.
type AlgebraicFunction struct {
	*model.Base
	g      AlgebraicFunc
	frozen map[string]signal.Shape
}

// NewAlgebraicFunction builds a stateless function block with explicit
// input and output port lists.
func NewAlgebraicFunction(name string, inputs, outputs []string, g AlgebraicFunc, sampleTime float64) (*AlgebraicFunction, error) {
	if g == nil {
		return nil, fmt.Errorf("[%s] an output function is required", name)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("[%s] at least one output port is required", name)
	}
	b := &AlgebraicFunction{
		Base:   model.NewBase(name, "algebraic_function", sampleTime),
		g:      g,
		frozen: make(map[string]signal.Shape),
	}
	for _, port := range inputs {
		b.AddInput(port)
	}
	for _, port := range outputs {
		b.AddOutput(port)
	}
	b.FeedthroughAll()
	return b, nil
}

func (b *AlgebraicFunction) Initialize(t0 float64) error {
	for _, port := range b.InputNames() {
		if b.Input(port) == nil {
			return nil
		}
	}
	return b.OutputUpdate(t0, 0)
}

func (b *AlgebraicFunction) OutputUpdate(t, dt float64) error {
	inputs := make(map[string]*mat.Dense, len(b.InputNames()))
	for _, port := range b.InputNames() {
		u, err := b.RequireInput(port)
		if err != nil {
			return err
		}
		inputs[port] = u
	}
	out, err := b.g(t, dt, inputs)
	if err != nil {
		return fmt.Errorf("[%s] function: %w", b.Name(), err)
	}
	for _, port := range b.OutputNames() {
		v, ok := out[port]
		if !ok || v == nil {
			return fmt.Errorf("[%s] function did not produce output '%s'", b.Name(), port)
		}
		s := signal.Of(v)
		if prev, ok := b.frozen[port]; ok && prev != s {
			return fmt.Errorf("[%s] output '%s' shape changed: expected %s, got %s", b.Name(), port, prev, s)
		}
		b.frozen[port] = s
		b.SetOutput(port, signal.Clone(v))
	}
	return nil
}

func (b *AlgebraicFunction) StateUpdate(t, dt float64) error { return nil }
