package blocks

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// ExternalInput injects a value set by the host program into the
// model. With an external clock the host writes the value between
// steps; the block republishes it as a column vector each tick.
type ExternalInput struct {
	*model.Base
	value *mat.Dense
}

// NewExternalInput builds an external input port.
func NewExternalInput(name string, sampleTime float64) (*ExternalInput, error) {
	b := &ExternalInput{Base: model.NewBase(name, "external_input", sampleTime)}
	b.AddOutput("out")
	return b, nil
}

// Set stores the value the block will emit on its next update. The
// value is normalized to a column vector.
func (b *ExternalInput) Set(v *mat.Dense) error {
	col, err := signal.AsColumn("out", v)
	if err != nil {
		return fmt.Errorf("[%s] %w", b.Name(), err)
	}
	b.value = col
	return nil
}

func (b *ExternalInput) Initialize(t0 float64) error {
	b.emit()
	return nil
}

func (b *ExternalInput) emit() {
	if b.value == nil {
		b.SetOutput("out", signal.FromScalar(0))
		return
	}
	b.SetOutput("out", signal.Clone(b.value))
}

func (b *ExternalInput) OutputUpdate(t, dt float64) error {
	b.emit()
	return nil
}

func (b *ExternalInput) StateUpdate(t, dt float64) error { return nil }

// ExternalOutput exposes a model signal to the host program. The shape
// freezes on first use.
type ExternalOutput struct {
	*model.Base
	resolved *signal.Shape
}

// NewExternalOutput builds an external output port.
func NewExternalOutput(name string, sampleTime float64) (*ExternalOutput, error) {
	b := &ExternalOutput{Base: model.NewBase(name, "external_output", sampleTime)}
	b.AddInput("in")
	b.AddOutput("out")
	b.SetFeedthrough("out", "in")
	return b, nil
}

func (b *ExternalOutput) Initialize(t0 float64) error {
	if b.Input("in") == nil {
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *ExternalOutput) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	col, err := signal.AsColumn("in", u)
	if err != nil {
		return fmt.Errorf("[%s] %w", b.Name(), err)
	}
	s := signal.Of(col)
	if b.resolved == nil {
		b.resolved = &s
	} else if s != *b.resolved {
		return fmt.Errorf("[%s] input 'in' shape changed: expected %s, got %s", b.Name(), *b.resolved, s)
	}
	b.SetOutput("out", col)
	return nil
}

func (b *ExternalOutput) StateUpdate(t, dt float64) error { return nil }

// Value returns the last value seen on the output, for host-side
// reads after a step.
func (b *ExternalOutput) Value() *mat.Dense { return signal.Clone(b.Output("out")) }
