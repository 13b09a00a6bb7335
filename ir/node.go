package ir

import (
	"fmt"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Node is a typed operator instance in a Graph: an OpType tag, an ordered
// input list, one output shape and a per-kind attribute payload.
//
// There is no operator class hierarchy: narrowing a node to a concrete kind
// is a tag check plus a payload projection, see DataOf.
type Node struct {
	graph  *Graph
	id     NodeID
	opType OpType
	shape  Shape
	inputs []*Node
	data   any

	// consumers holds one entry per input edge that reads this node's output,
	// so a node consuming the same value twice appears twice.
	consumers []*Node

	// name is the friendly name, transferred to replacement nodes on splice.
	name string

	// origins accumulates the friendly names of nodes this node replaced.
	origins []string

	// Multi-output bookkeeping: the parent keeps its select nodes in outs;
	// each select node points back through inputs[0].
	outs      []*Node
	isSelect  bool
	selectIdx int

	dead bool
}

// Graph that owns this node.
func (n *Node) Graph() *Graph { return n.graph }

// ID is the node's stable identity within its graph.
func (n *Node) ID() NodeID { return n.id }

// Type returns the node's operator kind.
func (n *Node) Type() OpType {
	if n == nil {
		return OpTypeInvalid
	}
	return n.opType
}

// Shape of the node's output value.
func (n *Node) Shape() Shape { return n.shape }

// DType of the node's output value.
func (n *Node) DType() dtypes.DType { return n.shape.DType }

// Rank of the node's output value.
func (n *Node) Rank() int { return n.shape.Rank() }

// SetShape replaces the node's output shape. Used together with SetData
// when a rule reconfigures a node in place and its output changes.
func (n *Node) SetShape(shape Shape) { n.shape = shape }

// Data returns the per-kind attribute payload, or nil.
func (n *Node) Data() any { return n.data }

// SetData replaces the attribute payload in place. Used by rules that
// reconfigure an already-fused node instead of rebuilding it.
func (n *Node) SetData(data any) { n.data = data }

// Inputs returns the node's ordered input list. The returned slice is owned
// by the node and must not be mutated directly; use SetInput.
func (n *Node) Inputs() []*Node { return n.inputs }

// NumInputs returns the number of inputs.
func (n *Node) NumInputs() int { return len(n.inputs) }

// Input returns the i-th input node.
func (n *Node) Input(i int) *Node {
	if i < 0 || i >= len(n.inputs) {
		exceptions.Panicf("node %s: Input(%d) out of range (%d inputs)", n.Name(), i, len(n.inputs))
	}
	return n.inputs[i]
}

// Consumers returns the nodes reading this node's output, one entry per
// consuming edge.
func (n *Node) Consumers() []*Node { return n.consumers }

// NumConsumers returns the number of edges reading this node's output.
func (n *Node) NumConsumers() int { return len(n.consumers) }

// IsDead reports whether the node was removed from the graph.
func (n *Node) IsDead() bool { return n == nil || n.dead }

// AssertValid panics if the node is nil or was removed from its graph.
func (n *Node) AssertValid() {
	if n == nil {
		exceptions.Panicf("Node is nil")
	}
	if n.dead {
		exceptions.Panicf("node %s was removed from graph %q and must not be used", n.Name(), n.graph.name)
	}
}

// IsMultiOutput reports whether this is the parent of a multi-output op.
func (n *Node) IsMultiOutput() bool { return len(n.outs) > 0 }

// Out returns the idx-th output of a multi-output node.
func (n *Node) Out(idx int) *Node {
	if idx < 0 || idx >= len(n.outs) {
		exceptions.Panicf("node %s: Out(%d) out of range (%d outputs)", n.Name(), idx, len(n.outs))
	}
	return n.outs[idx]
}

// NumOutputs returns 1 for ordinary nodes and the output count for
// multi-output parents.
func (n *Node) NumOutputs() int {
	if len(n.outs) == 0 {
		return 1
	}
	return len(n.outs)
}

// IsSelectOutput reports whether this node selects one output of a
// multi-output parent.
func (n *Node) IsSelectOutput() bool { return n.isSelect }

// SelectIndex returns which parent output a select node carries.
func (n *Node) SelectIndex() int { return n.selectIdx }

// SelectParent returns the multi-output parent of a select node.
func (n *Node) SelectParent() *Node {
	if !n.isSelect {
		exceptions.Panicf("node %s is not a select-output node", n.Name())
	}
	return n.inputs[0]
}

// SetInput rewires the i-th input edge to a new producer, keeping the
// consumer bookkeeping of both producers consistent.
func (n *Node) SetInput(i int, producer *Node) {
	n.AssertValid()
	producer.AssertValid()
	if producer.graph != n.graph {
		exceptions.Panicf("node %s: SetInput(%d) with node from graph %q", n.Name(), i, producer.graph.name)
	}
	if producer.IsMultiOutput() {
		exceptions.Panicf("node %s: SetInput(%d) with multi-output node %s, use Out(i)", n.Name(), i, producer.Name())
	}
	old := n.Input(i)
	if old == producer {
		return
	}
	old.removeConsumer(n)
	n.inputs[i] = producer
	producer.consumers = append(producer.consumers, n)
}

// AppendInput adds a new trailing input edge. Used by rules that attach an
// extra operand (e.g. gathered positions) to an already-fused node.
func (n *Node) AppendInput(producer *Node) {
	n.AssertValid()
	producer.AssertValid()
	if producer.IsMultiOutput() {
		exceptions.Panicf("node %s: AppendInput with multi-output node %s, use Out(i)", n.Name(), producer.Name())
	}
	n.inputs = append(n.inputs, producer)
	producer.consumers = append(producer.consumers, n)
}

// removeConsumer drops one occurrence of consumer from the consumer list.
func (n *Node) removeConsumer(consumer *Node) {
	for i, c := range n.consumers {
		if c == consumer {
			n.consumers = append(n.consumers[:i], n.consumers[i+1:]...)
			return
		}
	}
	exceptions.Panicf("node %s: consumer %s not registered, consumer bookkeeping is corrupted",
		n.Name(), consumer.Name())
}

// Name returns the friendly name, defaulting to "<OpType>_<id>".
func (n *Node) Name() string {
	if n == nil {
		return "<nil>"
	}
	if n.name != "" {
		return n.name
	}
	return fmt.Sprintf("%s_%d", n.opType, n.id)
}

// SetName sets the friendly name.
func (n *Node) SetName(name string) { n.name = name }

// Origins returns the friendly names of the nodes this node replaced, in
// first-merged order. Debug metadata only.
func (n *Node) Origins() []string { return n.origins }

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n == nil {
		return "Node(nil)"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s#%d", n.opType, n.id)
	if n.isSelect {
		fmt.Fprintf(&b, ".out%d", n.selectIdx)
	}
	if n.dead {
		b.WriteString(" [dead]")
	}
	fmt.Fprintf(&b, " -> %s", n.shape)
	return b.String()
}

// DataOf narrows a node's attribute payload to the concrete kind T.
// It returns the zero T and false if the node carries another kind.
func DataOf[T any](n *Node) (T, bool) {
	if n == nil || n.data == nil {
		var zero T
		return zero, false
	}
	v, ok := n.data.(T)
	return v, ok
}
