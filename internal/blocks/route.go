package blocks

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/model"
	"github.com/blockstep/blockstep/internal/signal"
)

// Mux concatenates column-vector inputs vertically into one column.
type Mux struct {
	*model.Base
	numInputs int
}

// NewMux builds a mux block with numInputs input ports.
func NewMux(name string, numInputs int, sampleTime float64) (*Mux, error) {
	if numInputs < 1 {
		return nil, fmt.Errorf("[%s] num_inputs must be a positive integer", name)
	}
	b := &Mux{Base: model.NewBase(name, "mux", sampleTime), numInputs: numInputs}
	for i := 0; i < numInputs; i++ {
		b.AddInput(fmt.Sprintf("in%d", i+1))
	}
	b.AddOutput("out")
	b.FeedthroughAll()
	return b, nil
}

func (b *Mux) Initialize(t0 float64) error {
	for _, port := range b.InputNames() {
		if b.Input(port) == nil {
			return nil
		}
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Mux) OutputUpdate(t, dt float64) error {
	var parts []*mat.Dense
	total := 0
	for _, port := range b.InputNames() {
		u, err := b.RequireInput(port)
		if err != nil {
			return err
		}
		col, err := signal.AsColumn(port, u)
		if err != nil {
			return fmt.Errorf("[%s] %w", b.Name(), err)
		}
		parts = append(parts, col)
		r, _ := col.Dims()
		total += r
	}

	out := mat.NewDense(total, 1, nil)
	row := 0
	for _, part := range parts {
		r, _ := part.Dims()
		for i := 0; i < r; i++ {
			out.Set(row, 0, part.At(i, 0))
			row++
		}
	}
	b.SetOutput("out", out)
	return nil
}

func (b *Mux) StateUpdate(t, dt float64) error { return nil }

// Demux splits a column vector into consecutive segments, one per
// output port. With n input rows and p outputs, the first n%p segments
// get one extra row.
type Demux struct {
	*model.Base
	numOutputs int
}

// NewDemux builds a demux block with numOutputs output ports.
func NewDemux(name string, numOutputs int, sampleTime float64) (*Demux, error) {
	if numOutputs < 1 {
		return nil, fmt.Errorf("[%s] num_outputs must be a positive integer", name)
	}
	b := &Demux{Base: model.NewBase(name, "demux", sampleTime), numOutputs: numOutputs}
	b.AddInput("in")
	for i := 0; i < numOutputs; i++ {
		b.AddOutput(fmt.Sprintf("out%d", i+1))
	}
	b.FeedthroughAll()
	return b, nil
}

func (b *Demux) Initialize(t0 float64) error {
	if b.Input("in") == nil {
		// Loops may read before the source fires; emit placeholders.
		for _, port := range b.OutputNames() {
			b.SetOutput(port, signal.FromScalar(0))
		}
		return nil
	}
	return b.OutputUpdate(t0, 0)
}

func (b *Demux) OutputUpdate(t, dt float64) error {
	u, err := b.RequireInput("in")
	if err != nil {
		return err
	}
	r, c := u.Dims()
	if c != 1 {
		return fmt.Errorf("[%s] input 'in' must be a column vector (n,1), got %s", b.Name(), signal.Shape{Rows: r, Cols: c})
	}
	if b.numOutputs > r {
		return fmt.Errorf("[%s] num_outputs (%d) must be <= input vector length (%d)", b.Name(), b.numOutputs, r)
	}

	q := r / b.numOutputs
	m := r % b.numOutputs
	start := 0
	for i, port := range b.OutputNames() {
		segLen := q
		if i < m {
			segLen++
		}
		seg := mat.NewDense(segLen, 1, nil)
		for k := 0; k < segLen; k++ {
			seg.Set(k, 0, u.At(start+k, 0))
		}
		b.SetOutput(port, seg)
		start += segLen
	}
	return nil
}

func (b *Demux) StateUpdate(t, dt float64) error { return nil }
