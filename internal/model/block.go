package model

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/blockstep/blockstep/internal/signal"
)

// Block is the uniform contract every computational block satisfies.
//
// Blocks follow two-phase discrete-time execution:
//
//  1. OutputUpdate(t, dt) computes outputs y[k] from the committed
//     state x[k] and the current-tick inputs u[k].
//  2. StateUpdate(t, dt) computes the next state x[k+1] from the same
//     x[k] and u[k], writing it to the pending-state area.
//
// CommitState finalizes the tick by promoting x[k+1] to x[k]. The
// simulator calls it only after every active block finished both
// phases, so outputs at tick k can never observe a state mutation made
// during tick k.
type Block interface {
	// Name returns the unique block name within its model.
	Name() string

	// TypeTag returns the registry type tag of the block.
	TypeTag() string

	// InputNames returns the declared input ports in declaration order.
	InputNames() []string

	// OutputNames returns the declared output ports in declaration order.
	OutputNames() []string

	// OptionalInput reports whether the named input may be left
	// unconnected.
	OptionalInput(port string) bool

	// Feedthrough maps each output port to the set of input ports it
	// combinationally depends on. Outputs absent from the map (or
	// mapped to an empty set) depend only on internal state.
	Feedthrough() map[string][]string

	// SampleTime returns the block's execution period, or 0 to inherit
	// the simulation base step.
	SampleTime() float64

	// PortShape returns the statically declared shape of a port, if
	// the block declares one. Ports without a static shape resolve
	// lazily from the first signal.
	PortShape(port string) (signal.Shape, bool)

	// Initialize sets up x[0] and the initial outputs.
	Initialize(t0 float64) error

	// OutputUpdate computes y[k] from x[k] and u[k].
	OutputUpdate(t, dt float64) error

	// StateUpdate computes x[k+1] from x[k] and u[k].
	StateUpdate(t, dt float64) error

	// CommitState promotes the pending state to the committed state.
	CommitState()

	// HasState reports whether the block carries internal state.
	HasState() bool

	// SetInput stores the value arriving on an input port. Called only
	// by the simulator when propagating connections.
	SetInput(port string, v *mat.Dense)

	// Input returns the current value on an input port (nil if none
	// has arrived yet).
	Input(port string) *mat.Dense

	// Output returns the current value on an output port (nil before
	// first computation).
	Output(port string) *mat.Dense

	// State returns a committed state entry by key (nil if absent).
	State(key string) *mat.Dense

	// Finalize releases any external resources at the end of a run.
	Finalize() error
}

// Base carries the port and state plumbing shared by all block
// implementations. Embed it by pointer and drive it from the concrete
// block's constructor:
//
//	b := model.NewBase(name, "gain", sampleTime)
//	b.AddInput("in")
//	b.AddOutput("out")
//	b.SetFeedthrough("out", "in")
//
// The zero Base is not usable.
type Base struct {
	name       string
	typeTag    string
	sampleTime float64

	inputOrder  []string
	outputOrder []string
	optional    map[string]bool

	inputs  map[string]*mat.Dense
	outputs map[string]*mat.Dense

	// state is x[k]; nextState is x[k+1], promoted by CommitState.
	state     map[string]*mat.Dense
	nextState map[string]*mat.Dense

	feedthrough map[string][]string
	portShapes  map[string]signal.Shape
}

// NewBase builds the shared plumbing for a block. A sampleTime of 0
// inherits the simulation base step; negative sample times are a
// construction error surfaced by the concrete block's factory.
func NewBase(name, typeTag string, sampleTime float64) *Base {
	return &Base{
		name:        name,
		typeTag:     typeTag,
		sampleTime:  sampleTime,
		optional:    make(map[string]bool),
		inputs:      make(map[string]*mat.Dense),
		outputs:     make(map[string]*mat.Dense),
		state:       make(map[string]*mat.Dense),
		nextState:   make(map[string]*mat.Dense),
		feedthrough: make(map[string][]string),
		portShapes:  make(map[string]signal.Shape),
	}
}

// Name returns the block name.
func (b *Base) Name() string { return b.name }

// TypeTag returns the registry type tag.
func (b *Base) TypeTag() string { return b.typeTag }

// SampleTime returns the declared period (0 = inherit base step).
func (b *Base) SampleTime() float64 { return b.sampleTime }

// AddInput declares a required input port.
func (b *Base) AddInput(port string) {
	b.inputOrder = append(b.inputOrder, port)
	b.inputs[port] = nil
}

// AddOptionalInput declares an input port that may stay unconnected.
func (b *Base) AddOptionalInput(port string) {
	b.AddInput(port)
	b.optional[port] = true
}

// AddOutput declares an output port.
func (b *Base) AddOutput(port string) {
	b.outputOrder = append(b.outputOrder, port)
	b.outputs[port] = nil
}

// SetFeedthrough records that an output combinationally depends on the
// given inputs.
func (b *Base) SetFeedthrough(output string, inputs ...string) {
	b.feedthrough[output] = append([]string(nil), inputs...)
}

// FeedthroughAll marks every output as combinationally dependent on
// every input. Convenience for purely algebraic blocks.
func (b *Base) FeedthroughAll() {
	for _, out := range b.outputOrder {
		b.feedthrough[out] = append([]string(nil), b.inputOrder...)
	}
}

// ClearFeedthrough removes all feedthrough declarations, marking the
// block state-driven.
func (b *Base) ClearFeedthrough() {
	b.feedthrough = make(map[string][]string)
}

// DeclareShape records a static shape for a port. Shapes left
// undeclared resolve lazily from the first signal seen at run time.
func (b *Base) DeclareShape(port string, s signal.Shape) {
	b.portShapes[port] = s
}

// InputNames returns the input ports in declaration order.
func (b *Base) InputNames() []string { return append([]string(nil), b.inputOrder...) }

// OutputNames returns the output ports in declaration order.
func (b *Base) OutputNames() []string { return append([]string(nil), b.outputOrder...) }

// OptionalInput reports whether the input may stay unconnected.
func (b *Base) OptionalInput(port string) bool { return b.optional[port] }

// Feedthrough returns the output -> inputs combinational dependency map.
func (b *Base) Feedthrough() map[string][]string {
	out := make(map[string][]string, len(b.feedthrough))
	for k, v := range b.feedthrough {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// PortShape returns the statically declared shape of a port, if any.
func (b *Base) PortShape(port string) (signal.Shape, bool) {
	s, ok := b.portShapes[port]
	return s, ok
}

// SetInput stores a value on an input port.
func (b *Base) SetInput(port string, v *mat.Dense) { b.inputs[port] = v }

// Input returns the value currently on an input port.
func (b *Base) Input(port string) *mat.Dense { return b.inputs[port] }

// RequireInput returns the value on an input port, or an error naming
// the block and port if nothing has arrived.
func (b *Base) RequireInput(port string) (*mat.Dense, error) {
	v := b.inputs[port]
	if v == nil {
		return nil, fmt.Errorf("[%s] input '%s' is not connected or not set", b.name, port)
	}
	return v, nil
}

// SetOutput stores a value on an output port.
func (b *Base) SetOutput(port string, v *mat.Dense) { b.outputs[port] = v }

// Output returns the value currently on an output port.
func (b *Base) Output(port string) *mat.Dense { return b.outputs[port] }

// SetState writes a committed state entry. Intended for constructors
// and Initialize; during a tick only SetNextState should be used.
func (b *Base) SetState(key string, v *mat.Dense) { b.state[key] = v }

// State returns a committed state entry.
func (b *Base) State(key string) *mat.Dense { return b.state[key] }

// SetNextState writes the pending x[k+1] entry.
func (b *Base) SetNextState(key string, v *mat.Dense) { b.nextState[key] = v }

// NextState returns the pending x[k+1] entry.
func (b *Base) NextState(key string) *mat.Dense { return b.nextState[key] }

// HasState reports whether any state entry exists.
func (b *Base) HasState() bool { return len(b.state) > 0 || len(b.nextState) > 0 }

// CommitState copies every pending state entry into the committed
// state. Entries never written by StateUpdate keep their prior value.
func (b *Base) CommitState() {
	for key, v := range b.nextState {
		if v != nil {
			b.state[key] = signal.Clone(v)
		}
	}
}

// Finalize is a no-op for blocks without external resources.
func (b *Base) Finalize() error { return nil }
