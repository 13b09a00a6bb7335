package pattern

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/types/xslices"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rewriter/ir"
)

type patternKind int

const (
	kindAny patternKind = iota
	kindOp
	kindOr
	kindOptional
	kindConst
	kindOutput
)

// Predicate is a per-node condition attached to a pattern position.
type Predicate func(n *ir.Node) bool

// Pattern is one node of a pattern tree. Build patterns with Any, Op,
// AnyOf, Optional and the Const constructors, then refine with the With*
// chainable methods.
//
// Pattern identity matters: the same *Pattern value appearing at two places
// in a tree must bind the same graph node, which is how patterns express
// "this operand is that same value over there".
type Pattern struct {
	kind   patternKind
	opType ir.OpType // kindOp, kindOptional

	inputs []*Pattern // kindOp, kindOptional (inputs[0] is the passthrough)
	alts   []*Pattern // kindOr, tried in order

	inner  *Pattern // kindOutput
	outIdx int      // kindOutput

	numOutputs int // kindOp: >1 requires a multi-output node

	preds     []Predicate
	shape     []dimMatcher
	hasShape  bool
	attrPred  func(data any) bool
	constSpec *constSpec

	name string
}

// Any matches any single-output value, optionally constrained by
// predicates and the With* methods.
func Any(preds ...Predicate) *Pattern {
	return &Pattern{kind: kindAny, preds: preds}
}

// Op matches a node of the given operator kind. Each input may be a
// *Pattern, or constant shorthand: an int, float64, *Symbol or string
// becomes a scalar constant pattern, and []int, []*Symbol, []any become
// vector constant patterns. With no inputs given, the node's inputs are
// unconstrained.
func Op(opType ir.OpType, inputs ...any) *Pattern {
	p := &Pattern{kind: kindOp, opType: opType}
	p.inputs = coerceInputs(opType, inputs)
	return p
}

// Optional matches a node of the given kind whose first input matches
// inputs[0], or — when no such node is present — transparently matches
// inputs[0] itself. Used for normalization ops that may or may not appear
// depending on prior passes.
func Optional(opType ir.OpType, inputs ...any) *Pattern {
	if len(inputs) == 0 {
		exceptions.Panicf("pattern.Optional(%s): needs at least the passthrough input", opType)
	}
	p := &Pattern{kind: kindOptional, opType: opType}
	p.inputs = coerceInputs(opType, inputs)
	return p
}

// AnyOf is alternation: alternatives are attempted in order against the
// same graph position and the first that matches wins. All alternatives
// should bind shared symbols consistently or downstream matching will
// reject the candidate.
func AnyOf(alternatives ...*Pattern) *Pattern {
	if len(alternatives) < 2 {
		exceptions.Panicf("pattern.AnyOf: needs at least 2 alternatives, got %d", len(alternatives))
	}
	return &Pattern{kind: kindOr, alts: alternatives}
}

type constSpec struct {
	elems  []*Symbol // integer elements, possibly symbolic
	floats []float64 // floating-point elements
	pred   func(n *ir.Node) bool
}

// Const matches a constant node with the given integer elements, each an
// int, a string symbol name ("?" accepts anything) or a *Symbol. A single
// element matches scalar and one-element constants alike.
func Const(values ...any) *Pattern {
	spec := &constSpec{elems: make([]*Symbol, len(values))}
	for i, v := range values {
		spec.elems[i] = coerceSymbol(v)
	}
	return &Pattern{kind: kindConst, constSpec: spec}
}

// ConstF matches a constant node with the given floating-point elements.
// Integer-typed constants with equal values match too.
func ConstF(values ...float64) *Pattern {
	return &Pattern{kind: kindConst, constSpec: &constSpec{floats: values}}
}

// ConstWhere matches a constant node satisfying an arbitrary predicate.
func ConstWhere(pred func(n *ir.Node) bool) *Pattern {
	return &Pattern{kind: kindConst, constSpec: &constSpec{pred: pred}}
}

func coerceInputs(opType ir.OpType, inputs []any) []*Pattern {
	coerced := make([]*Pattern, len(inputs))
	for i, raw := range inputs {
		switch v := raw.(type) {
		case *Pattern:
			coerced[i] = v
		case int:
			coerced[i] = Const(v)
		case float64:
			coerced[i] = ConstF(v)
		case string:
			coerced[i] = Const(v)
		case *Symbol:
			coerced[i] = Const(v)
		case []int:
			coerced[i] = Const(xslices.Map(v, func(e int) any { return e })...)
		case []*Symbol:
			coerced[i] = Const(xslices.Map(v, func(e *Symbol) any { return e })...)
		case []any:
			coerced[i] = Const(v...)
		default:
			exceptions.Panicf("pattern.Op(%s): cannot use %T as input #%d", opType, raw, i)
		}
	}
	return coerced
}

// WithName names the pattern position, for debugging only.
func (p *Pattern) WithName(name string) *Pattern {
	p.name = name
	return p
}

// WithRank constrains the matched value's rank.
func (p *Pattern) WithRank(rank int) *Pattern {
	p.preds = append(p.preds, func(n *ir.Node) bool { return n.Rank() == rank })
	return p
}

// WithDType constrains the matched value's element type.
func (p *Pattern) WithDType(dtype dtypes.DType) *Pattern {
	p.preds = append(p.preds, func(n *ir.Node) bool { return n.DType() == dtype })
	return p
}

// WithWhere adds an arbitrary node predicate.
func (p *Pattern) WithWhere(preds ...Predicate) *Pattern {
	p.preds = append(p.preds, preds...)
	return p
}

// WithShape constrains the matched value's shape against a symbolic
// template. Each part is an int (exact dim), a *Symbol, a string ("?" for
// any dim, "NAME..." for a named ellipsis group matching any run of dims,
// anything else for Sym(name)). The rank is implied by the template; with
// an ellipsis group it is a minimum.
func (p *Pattern) WithShape(parts ...any) *Pattern {
	p.shape = make([]dimMatcher, len(parts))
	p.hasShape = true
	groups := 0
	for i, part := range parts {
		p.shape[i] = coerceDim(part)
		if p.shape[i].group != "" {
			groups++
		}
	}
	if groups > 1 {
		exceptions.Panicf("pattern.WithShape: at most one ellipsis group allowed, got %d", groups)
	}
	return p
}

// WithAttrs constrains the node's attribute payload. See Attrs for a typed
// helper.
func (p *Pattern) WithAttrs(pred func(data any) bool) *Pattern {
	p.attrPred = pred
	return p
}

// Attrs builds a payload predicate for WithAttrs that narrows to the
// concrete attribute kind T and fails on any other kind.
func Attrs[T any](pred func(attrs T) bool) func(data any) bool {
	return func(data any) bool {
		attrs, ok := data.(T)
		if !ok {
			return false
		}
		return pred(attrs)
	}
}

// WithOutputs declares the matched node to be a multi-output node with
// exactly n outputs; individual outputs are then referenced with Out.
func (p *Pattern) WithOutputs(n int) *Pattern {
	if p.kind != kindOp {
		exceptions.Panicf("pattern.WithOutputs: only operator patterns have multiple outputs")
	}
	p.numOutputs = n
	return p
}

// Out selects the idx-th output of a multi-output operator pattern.
func (p *Pattern) Out(idx int) *Pattern {
	if p.kind != kindOp || p.numOutputs < 2 {
		exceptions.Panicf("pattern.Out(%d): receiver is not a multi-output operator pattern", idx)
	}
	if idx < 0 || idx >= p.numOutputs {
		exceptions.Panicf("pattern.Out(%d): out of range for %d outputs", idx, p.numOutputs)
	}
	return &Pattern{kind: kindOutput, inner: p, outIdx: idx}
}

type dimMatcher struct {
	sym   *Symbol // nil for any-dim and groups
	group string  // ellipsis group name
	any   bool
}

func coerceDim(part any) dimMatcher {
	switch v := part.(type) {
	case int:
		return dimMatcher{sym: Lit(v)}
	case *Symbol:
		return dimMatcher{sym: v}
	case string:
		if v == "?" {
			return dimMatcher{any: true}
		}
		if len(v) > 3 && v[len(v)-3:] == "..." {
			return dimMatcher{group: v[:len(v)-3]}
		}
		return dimMatcher{sym: Sym(v)}
	}
	exceptions.Panicf("pattern.WithShape: cannot use %T (%v) as a dimension", part, part)
	return dimMatcher{}
}
