package ir

import (
	"github.com/gomlx/exceptions"
)

// NodeID is the stable identity of a node within its Graph: its index in the
// graph's arena, assigned in construction order and never reused.
type NodeID int

// Graph owns a set of nodes connected by directed value edges.
//
// Nodes live in an arena addressed by NodeID: removing a node marks its slot
// dead, it is never compacted. Nodes are created only after their inputs, so
// NodeID order is a natural DAG order at construction time; rewrites preserve
// acyclicity but not the topological ordering of IDs.
type Graph struct {
	name  string
	nodes []*Node
}

// New creates an empty graph with the given name.
func New(name string) *Graph {
	return &Graph{name: name}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// NumNodes returns the size of the node arena, dead slots included.
// Together with NodeByID it allows iteration that observes nodes appended
// during the iteration itself.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NodeByID returns the node at the given arena slot, which may be dead.
func (g *Graph) NodeByID(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.nodes) {
		exceptions.Panicf("graph %q: NodeByID(%d) out of range (%d nodes)", g.name, id, len(g.nodes))
	}
	return g.nodes[id]
}

// Nodes returns the live nodes in construction order.
func (g *Graph) Nodes() []*Node {
	live := make([]*Node, 0, len(g.nodes))
	for _, n := range g.nodes {
		if !n.dead {
			live = append(live, n)
		}
	}
	return live
}

// checkNewInputs validates the inputs of a node being added.
func (g *Graph) checkNewInputs(opType OpType, inputs []*Node) {
	for i, input := range inputs {
		if input == nil {
			exceptions.Panicf("graph %q: %s input #%d is nil", g.name, opType, i)
		}
		if input.graph != g {
			exceptions.Panicf("graph %q: %s input #%d belongs to graph %q", g.name, opType, i, input.graph.name)
		}
		if input.dead {
			exceptions.Panicf("graph %q: %s input #%d (%s) was removed from the graph", g.name, opType, i, input.Name())
		}
		if input.IsMultiOutput() {
			exceptions.Panicf("graph %q: %s input #%d (%s) is a multi-output node, use Out(i) to select one output",
				g.name, opType, i, input.Name())
		}
	}
}

// AddNode appends a single-output node to the graph and wires its
// producer/consumer edges. The output shape is given by the caller: the
// engine consumes fully annotated graphs and infers shapes only for the
// nodes it creates itself.
func (g *Graph) AddNode(opType OpType, shape Shape, data any, inputs ...*Node) *Node {
	g.checkNewInputs(opType, inputs)
	n := &Node{
		graph:  g,
		id:     NodeID(len(g.nodes)),
		opType: opType,
		shape:  shape,
		inputs: append([]*Node(nil), inputs...),
		data:   data,
	}
	g.nodes = append(g.nodes, n)
	for _, input := range inputs {
		input.consumers = append(input.consumers, n)
	}
	return n
}

// AddMultiOutputNode appends a node with one output value per given shape.
// The returned parent node carries an invalid shape and cannot be consumed
// directly; each output is a select node reachable with Node.Out.
func (g *Graph) AddMultiOutputNode(opType OpType, outputShapes []Shape, data any, inputs ...*Node) *Node {
	if len(outputShapes) < 2 {
		exceptions.Panicf("graph %q: AddMultiOutputNode(%s) needs at least 2 outputs, got %d",
			g.name, opType, len(outputShapes))
	}
	parent := g.AddNode(opType, Invalid(), data, inputs...)
	outs := make([]*Node, len(outputShapes))
	for idx, shape := range outputShapes {
		out := g.AddNode(opType, shape, nil, parent)
		out.isSelect = true
		out.selectIdx = idx
		outs[idx] = out
	}
	// Only now does the parent become multi-output: the select nodes above
	// must still pass checkNewInputs when consuming it.
	parent.outs = outs
	return parent
}

// Parameter adds a named graph input with the given shape.
func (g *Graph) Parameter(name string, shape Shape) *Node {
	n := g.AddNode(OpTypeParameter, shape, nil)
	n.name = name
	return n
}
