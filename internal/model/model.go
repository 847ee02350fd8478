// Package model holds the signal graph of a block diagram: the typed
// blocks, the directed connections between their ports, and the
// structural validation that must pass before the graph can be
// scheduled. The model is purely structural - no numeric computation
// happens here.
//
// Connection rules: an output port may fan out to any number of
// inputs, but each input port is bound to at most one output. Cycles
// through the full graph are allowed (they resolve through state);
// only the feedthrough-restricted subgraph must be acyclic, which the
// scheduler enforces separately.
package model

import (
	"slices"
)

// Connection is a directed edge from a source output port to a
// destination input port.
type Connection struct {
	SrcBlock string
	SrcPort  string
	DstBlock string
	DstPort  string
}

// Model is the block/connection graph of a diagram.
//
// Block insertion order is retained: it is the deterministic
// tie-breaker used when scheduling, so two builds of the same diagram
// always execute identically.
type Model struct {
	name        string
	blocks      map[string]Block
	order       []string
	connections []Connection
	bound       map[Connection]bool
	boundInput  map[[2]string]bool
}

// New creates an empty model.
func New(name string) *Model {
	return &Model{
		name:       name,
		blocks:     make(map[string]Block),
		bound:      make(map[Connection]bool),
		boundInput: make(map[[2]string]bool),
	}
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// AddBlock registers a block. Fails with a DUPLICATE_NAME structural
// error if the name is already taken.
func (m *Model) AddBlock(b Block) error {
	if _, ok := m.blocks[b.Name()]; ok {
		return NewDuplicateNameError(b.Name())
	}
	m.blocks[b.Name()] = b
	m.order = append(m.order, b.Name())
	return nil
}

// Connect wires srcBlock.srcPort to dstBlock.dstPort.
//
// Checks, in order: both blocks exist, the source port is an output of
// its block, the destination port is an input of its block, the input
// is not already bound (fan-in is forbidden), and statically declared
// shapes on both ends are identical. Shape checks are skipped when
// either end resolves its shape dynamically.
func (m *Model) Connect(srcBlock, srcPort, dstBlock, dstPort string) error {
	src, ok := m.blocks[srcBlock]
	if !ok {
		return NewUnknownBlockError(srcBlock)
	}
	dst, ok := m.blocks[dstBlock]
	if !ok {
		return NewUnknownBlockError(dstBlock)
	}
	if !slices.Contains(src.OutputNames(), srcPort) {
		return NewUnknownPortError(srcBlock, srcPort, "output")
	}
	if !slices.Contains(dst.InputNames(), dstPort) {
		return NewUnknownPortError(dstBlock, dstPort, "input")
	}
	key := [2]string{dstBlock, dstPort}
	if m.boundInput[key] {
		return NewPortAlreadyConnectedError(dstBlock, dstPort)
	}
	if ss, ok := src.PortShape(srcPort); ok {
		if ds, ok := dst.PortShape(dstPort); ok && ss != ds {
			return NewTypeMismatchError(dstBlock, dstPort,
				"declared shapes differ: source "+srcBlock+"."+srcPort+" is "+ss.String()+
					", destination expects "+ds.String())
		}
	}
	m.connections = append(m.connections, Connection{srcBlock, srcPort, dstBlock, dstPort})
	m.boundInput[key] = true
	return nil
}

// Validate checks that every required input has a source. Shape
// consistency for dynamically shaped ports is deferred to the first
// activation at run time.
func (m *Model) Validate() error {
	for _, name := range m.order {
		b := m.blocks[name]
		for _, port := range b.InputNames() {
			if b.OptionalInput(port) {
				continue
			}
			if !m.boundInput[[2]string{name, port}] {
				return NewUnconnectedPortError(name, port)
			}
		}
	}
	return nil
}

// Block returns a block by name.
func (m *Model) Block(name string) (Block, bool) {
	b, ok := m.blocks[name]
	return b, ok
}

// Blocks returns all blocks in insertion order.
func (m *Model) Blocks() []Block {
	out := make([]Block, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.blocks[name])
	}
	return out
}

// BlockNames returns the block names in insertion order.
func (m *Model) BlockNames() []string {
	return append([]string(nil), m.order...)
}

// Connections returns every connection in wiring order.
func (m *Model) Connections() []Connection {
	return append([]Connection(nil), m.connections...)
}

// DownstreamOf returns the connections whose source is the named block.
func (m *Model) DownstreamOf(block string) []Connection {
	var out []Connection
	for _, c := range m.connections {
		if c.SrcBlock == block {
			out = append(out, c)
		}
	}
	return out
}

// InputBound reports whether the named input already has a source.
func (m *Model) InputBound(block, port string) bool {
	return m.boundInput[[2]string{block, port}]
}
