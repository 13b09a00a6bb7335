package pattern

import (
	"github.com/gomlx/rewriter/ir"
)

// Match is the result of a successful match: the mapping from pattern
// positions to bound graph nodes plus the resolved symbol table. It is
// consumed immediately by the owning rewrite rule and not persisted.
type Match struct {
	Root    *ir.Node
	Symbols *Bindings
	nodes   map[*Pattern]*ir.Node
}

// Node returns the graph node bound to a pattern position, or nil if the
// position was not reached (skipped alternative or absent optional).
func (m *Match) Node(p *Pattern) *ir.Node { return m.nodes[p] }

// Has reports whether a pattern position was bound.
func (m *Match) Has(p *Pattern) bool { return m.nodes[p] != nil }

// matchState carries the in-progress bindings of one match attempt.
// Alternation and optionality branches run on clones, so a failed branch
// leaves no partial bindings behind.
type matchState struct {
	nodes map[*Pattern]*ir.Node
	syms  *Bindings
}

func newMatchState() *matchState {
	return &matchState{nodes: make(map[*Pattern]*ir.Node), syms: NewBindings()}
}

func (st *matchState) clone() *matchState {
	nodes := make(map[*Pattern]*ir.Node, len(st.nodes))
	for k, v := range st.nodes {
		nodes[k] = v
	}
	return &matchState{nodes: nodes, syms: st.syms.Clone()}
}

// MatchNode binds the pattern against the graph rooted (pattern-wise) at
// root, traversing producer edges outward. It is side-effect free: the
// graph is never mutated, and on failure no bindings escape.
func MatchNode(p *Pattern, root *ir.Node) (*Match, bool) {
	if root.IsDead() {
		return nil, false
	}
	st := newMatchState()
	if !matchPattern(p, root, st) {
		return nil, false
	}
	if !st.syms.Finalize() {
		return nil, false
	}
	return &Match{Root: root, Symbols: st.syms, nodes: st.nodes}, true
}

func matchPattern(p *Pattern, n *ir.Node, st *matchState) bool {
	if n == nil || n.IsDead() {
		return false
	}
	// A pattern position reached along two paths must bind the same node.
	if prev, bound := st.nodes[p]; bound {
		return prev == n
	}

	switch p.kind {
	case kindOr:
		for _, alt := range p.alts {
			branch := st.clone()
			if matchPattern(alt, n, branch) {
				*st = *branch
				st.nodes[p] = n
				return true
			}
		}
		return false

	case kindOutput:
		if !n.IsSelectOutput() || n.SelectIndex() != p.outIdx {
			return false
		}
		if !matchPattern(p.inner, n.SelectParent(), st) {
			return false
		}
		st.nodes[p] = n
		return true

	case kindOptional:
		if n.Type() == p.opType && !n.IsSelectOutput() && !n.IsMultiOutput() &&
			n.NumInputs() == len(p.inputs) {
			branch := st.clone()
			if matchNodeChecks(p, n, branch) && matchInputs(p, n, branch) {
				*st = *branch
				st.nodes[p] = n
				return true
			}
		}
		// Absent: the position transparently matches the passthrough input.
		return matchPattern(p.inputs[0], n, st)

	case kindConst:
		if n.Type() != ir.OpTypeConstant || !matchConst(p.constSpec, n, st) {
			return false
		}
		if !matchNodeChecks(p, n, st) {
			return false
		}
		st.nodes[p] = n
		return true

	case kindAny:
		if n.IsMultiOutput() {
			return false
		}
		if !matchNodeChecks(p, n, st) {
			return false
		}
		st.nodes[p] = n
		return true

	default: // kindOp
		if n.Type() != p.opType {
			return false
		}
		if p.numOutputs > 1 {
			if !n.IsMultiOutput() || n.NumOutputs() != p.numOutputs {
				return false
			}
		} else if n.IsMultiOutput() || n.IsSelectOutput() {
			return false
		}
		if len(p.inputs) > 0 && n.NumInputs() != len(p.inputs) {
			return false
		}
		if !matchNodeChecks(p, n, st) {
			return false
		}
		if !matchInputs(p, n, st) {
			return false
		}
		st.nodes[p] = n
		return true
	}
}

// matchNodeChecks runs the position's predicates, attribute predicate and
// symbolic shape template against the bound node.
func matchNodeChecks(p *Pattern, n *ir.Node, st *matchState) bool {
	for _, pred := range p.preds {
		if !pred(n) {
			return false
		}
	}
	if p.attrPred != nil && !p.attrPred(n.Data()) {
		return false
	}
	if p.hasShape && !matchShape(p.shape, n.Shape(), st) {
		return false
	}
	return true
}

func matchInputs(p *Pattern, n *ir.Node, st *matchState) bool {
	for i, inputPattern := range p.inputs {
		if !matchPattern(inputPattern, n.Input(i), st) {
			return false
		}
	}
	return true
}

func matchConst(spec *constSpec, n *ir.Node, st *matchState) bool {
	if spec.pred != nil {
		return spec.pred(n)
	}
	if spec.floats != nil {
		values, ok := ir.ConstFloatValues(n)
		if !ok || len(values) != len(spec.floats) {
			return false
		}
		for i, want := range spec.floats {
			if values[i] != float64(float32(want)) && values[i] != want {
				return false
			}
		}
		return true
	}
	values, ok := ir.ConstIntValues(n)
	if !ok || len(values) != len(spec.elems) {
		return false
	}
	for i, sym := range spec.elems {
		if !st.syms.Bind(sym, values[i]) {
			return false
		}
	}
	return true
}

// matchShape binds a symbolic dims template against a concrete shape.
// Symbols never bind to dynamic dimensions; any-dims and ellipsis groups
// accept them.
func matchShape(template []dimMatcher, shape ir.Shape, st *matchState) bool {
	groupIdx := -1
	for i, dm := range template {
		if dm.group != "" {
			groupIdx = i
		}
	}
	dims := shape.Dimensions
	if groupIdx < 0 {
		if len(dims) != len(template) {
			return false
		}
		for i, dm := range template {
			if !matchDim(dm, dims[i], st) {
				return false
			}
		}
		return true
	}
	fixed := len(template) - 1
	if len(dims) < fixed {
		return false
	}
	for i := 0; i < groupIdx; i++ {
		if !matchDim(template[i], dims[i], st) {
			return false
		}
	}
	tail := len(template) - groupIdx - 1
	for i := 0; i < tail; i++ {
		if !matchDim(template[groupIdx+1+i], dims[len(dims)-tail+i], st) {
			return false
		}
	}
	return st.syms.BindGroup(template[groupIdx].group, dims[groupIdx:len(dims)-tail])
}

func matchDim(dm dimMatcher, dim int, st *matchState) bool {
	if dm.any {
		return true
	}
	if dim == ir.DynamicDim {
		return false
	}
	return st.syms.Bind(dm.sym, dim)
}
