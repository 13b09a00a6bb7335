package ir

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types"
	"github.com/pkg/errors"
)

// ReplaceAllUses retargets every consumer of old to read from replacement.
// old keeps its own inputs and stays in the graph; use ReplaceNode for the
// full splice.
func (g *Graph) ReplaceAllUses(old, replacement *Node) {
	old.AssertValid()
	replacement.AssertValid()
	if old == replacement {
		return
	}
	// The consumer list mutates while retargeting, iterate over a snapshot.
	consumers := append([]*Node(nil), old.consumers...)
	for _, consumer := range consumers {
		for i, input := range consumer.inputs {
			if input == old {
				consumer.SetInput(i, replacement)
			}
		}
	}
}

// ReplaceNode atomically splices replacement in place of old: all of old's
// consumers are retargeted first, old's friendly name moves to replacement,
// and then old's now-unreferenced subgraph is pruned. Parameters and nodes
// still referenced elsewhere survive pruning.
func (g *Graph) ReplaceNode(old, replacement *Node) {
	g.ReplaceAllUses(old, replacement)
	if replacement.name == "" {
		replacement.name = old.Name()
	}
	g.Prune(old)
}

// Prune removes n if nothing consumes it, releasing its input edges and
// recursively pruning producers that become consumer-less. Parameters are
// never pruned.
func (g *Graph) Prune(n *Node) {
	if n.dead || len(n.consumers) > 0 || n.opType == OpTypeParameter {
		return
	}
	// A multi-output parent's consumers are its select nodes, so it reaches
	// here only after every output died.
	n.dead = true
	inputs := n.inputs
	n.inputs = nil
	for _, input := range inputs {
		input.removeConsumer(n)
		g.Prune(input)
	}
}

// CopyOrigins merges provenance from the given source nodes onto target: the
// friendly name and accumulated origins of every source, deduplicated, in
// encounter order. This is how fused nodes stay traceable to the motif they
// replaced.
func CopyOrigins(from []*Node, target *Node) {
	seen := types.MakeSet[string](len(from) + len(target.origins))
	seen.Insert(target.origins...)
	for _, src := range from {
		if src == nil || src == target {
			continue
		}
		for _, name := range append([]string{src.Name()}, src.origins...) {
			if !seen.Has(name) {
				seen.Insert(name)
				target.origins = append(target.origins, name)
			}
		}
	}
}

// Validate checks the graph's structural invariants: edge symmetry between
// producers and consumers, no references to dead nodes, select-output
// consistency and acyclicity. Rules never break these if they follow the
// splice contract; a failure here is a programming defect.
func (g *Graph) Validate() error {
	for _, n := range g.nodes {
		if n.dead {
			if len(n.consumers) != 0 {
				return errors.Errorf("dead node %s still has %d consumers", n, len(n.consumers))
			}
			continue
		}
		for i, input := range n.inputs {
			if input == nil {
				return errors.Errorf("node %s input #%d is nil", n, i)
			}
			if input.dead {
				return errors.Errorf("node %s input #%d references dead node %s", n, i, input)
			}
			if input.graph != g {
				return errors.Errorf("node %s input #%d belongs to another graph", n, i)
			}
			if countEdges(input.consumers, n) != countEdges(n.inputs, input) {
				return errors.Errorf("edge bookkeeping between %s and consumer %s is asymmetric", input, n)
			}
		}
		for _, consumer := range n.consumers {
			if consumer.dead {
				return errors.Errorf("node %s lists dead consumer %s", n, consumer)
			}
			if countEdges(consumer.inputs, n) == 0 {
				return errors.Errorf("node %s lists consumer %s that does not read it", n, consumer)
			}
		}
		if n.isSelect {
			parent := n.inputs[0]
			if !parent.IsMultiOutput() || parent.outs[n.selectIdx] != n {
				return errors.Errorf("select node %s is inconsistent with its parent", n)
			}
		}
	}
	return g.checkAcyclic()
}

func countEdges(nodes []*Node, target *Node) int {
	count := 0
	for _, n := range nodes {
		if n == target {
			count++
		}
	}
	return count
}

// checkAcyclic runs a DFS over producer edges looking for a cycle.
func (g *Graph) checkAcyclic() error {
	const (
		unvisited = 0
		onStack   = 1
		done      = 2
	)
	state := make(map[*Node]int, len(g.nodes))
	var visit func(n *Node) error
	visit = func(n *Node) error {
		switch state[n] {
		case done:
			return nil
		case onStack:
			return errors.Errorf("cycle through node %s", n)
		}
		state[n] = onStack
		for _, input := range n.inputs {
			if err := visit(input); err != nil {
				return err
			}
		}
		state[n] = done
		return nil
	}
	for _, n := range g.nodes {
		if n.dead {
			continue
		}
		if err := visit(n); err != nil {
			return err
		}
	}
	return nil
}

// MustValidate panics on an invalid graph. Test helper.
func (g *Graph) MustValidate() {
	if err := g.Validate(); err != nil {
		exceptions.Panicf("invalid graph %q: %+v", g.name, err)
	}
}
