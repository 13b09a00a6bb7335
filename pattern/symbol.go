// Package pattern implements the symbolic pattern language and the matcher
// of the rewriting engine: templates over graph shapes with
// unknown-but-constrained integer dimensions (symbols), alternative
// sub-patterns and optional nodes.
//
// A Pattern is an explicit combinator tree (Any, Op, AnyOf, Optional, Const)
// rather than an operator-overloading DSL; matching is recursive,
// root-outward over producer edges and side-effect free until it succeeds.
package pattern

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

type symbolOp int

const (
	symLeaf symbolOp = iota
	symLit
	symAdd
	symSub
	symMul
	symDiv
)

// Symbol is a named algebraic placeholder for an unknown integer, bound
// during matching. Symbols with the same name are the same symbol, so two
// pattern sites naming "ndims" must observe equal values for the match to
// hold (unless the symbol is non-validating).
//
// Symbols compose arithmetically: Sym("ndims").Div(2) is resolved lazily
// once "ndims" is known, or solved backwards (with an integrality check)
// when the composite value is observed first.
type Symbol struct {
	name       string
	op         symbolOp
	lhs, rhs   *Symbol
	literal    int
	noValidate bool
}

// Sym returns the validating symbol with the given name.
func Sym(name string) *Symbol { return &Symbol{name: name, op: symLeaf} }

// NoValidate returns a symbol whose observed values are recorded but never
// cross-checked between sites. Needed for structurally underdetermined
// values, such as batch/sequence dims read from reshape target-shape
// constants, where -1/0 placeholders do not reflect the semantic value.
func NoValidate(name string) *Symbol {
	return &Symbol{name: name, op: symLeaf, noValidate: true}
}

// AnyValue returns an anonymous symbol that accepts any value.
func AnyValue() *Symbol { return &Symbol{op: symLeaf} }

// Lit returns a literal-valued symbol.
func Lit(value int) *Symbol { return &Symbol{op: symLit, literal: value} }

// coerceSymbol converts int or string shorthand into a Symbol:
// "?" is AnyValue, any other string is Sym(name).
func coerceSymbol(v any) *Symbol {
	switch s := v.(type) {
	case *Symbol:
		return s
	case int:
		return Lit(s)
	case string:
		if s == "?" {
			return AnyValue()
		}
		return Sym(s)
	}
	exceptions.Panicf("pattern: cannot use %T (%v) as a Symbol", v, v)
	return nil
}

func compose(op symbolOp, lhs *Symbol, rhs any) *Symbol {
	return &Symbol{op: op, lhs: lhs, rhs: coerceSymbol(rhs)}
}

// Add returns the symbol s+other; other may be an int or a *Symbol.
func (s *Symbol) Add(other any) *Symbol { return compose(symAdd, s, other) }

// Sub returns the symbol s-other.
func (s *Symbol) Sub(other any) *Symbol { return compose(symSub, s, other) }

// Mul returns the symbol s*other.
func (s *Symbol) Mul(other any) *Symbol { return compose(symMul, s, other) }

// Div returns the symbol s/other. Bindings only resolve it for exact
// integer division.
func (s *Symbol) Div(other any) *Symbol { return compose(symDiv, s, other) }

// String implements fmt.Stringer.
func (s *Symbol) String() string {
	switch s.op {
	case symLit:
		return fmt.Sprintf("%d", s.literal)
	case symLeaf:
		if s.name == "" {
			return "?"
		}
		return s.name
	case symAdd:
		return fmt.Sprintf("(%s+%s)", s.lhs, s.rhs)
	case symSub:
		return fmt.Sprintf("(%s-%s)", s.lhs, s.rhs)
	case symMul:
		return fmt.Sprintf("(%s*%s)", s.lhs, s.rhs)
	default:
		return fmt.Sprintf("(%s/%s)", s.lhs, s.rhs)
	}
}

type pendingCheck struct {
	sym   *Symbol
	value int
}

// Bindings is the symbol table of one match attempt: resolved values by
// symbol name, dimension-group bindings for ellipsis shape templates, and
// composite constraints deferred until enough leaves resolve.
type Bindings struct {
	values  map[string]int
	groups  map[string][]int
	pending []pendingCheck
}

// NewBindings returns an empty symbol table.
func NewBindings() *Bindings {
	return &Bindings{values: make(map[string]int), groups: make(map[string][]int)}
}

// Clone returns an independent copy. The matcher clones on every
// alternation/optionality branch so failed branches leave no bindings
// behind.
func (b *Bindings) Clone() *Bindings {
	clone := &Bindings{
		values:  make(map[string]int, len(b.values)),
		groups:  make(map[string][]int, len(b.groups)),
		pending: append([]pendingCheck(nil), b.pending...),
	}
	for k, v := range b.values {
		clone.values[k] = v
	}
	for k, v := range b.groups {
		clone.groups[k] = v
	}
	return clone
}

// Bind records that symbol s was observed with the given value. It reports
// false on a conflict with an earlier binding, which rejects the current
// match candidate.
func (b *Bindings) Bind(s *Symbol, value int) bool {
	switch s.op {
	case symLit:
		return s.literal == value
	case symLeaf:
		if s.name == "" {
			return true
		}
		if s.noValidate {
			if _, exists := b.values[s.name]; !exists {
				b.values[s.name] = value
			}
			return true
		}
		if existing, exists := b.values[s.name]; exists {
			return existing == value
		}
		b.values[s.name] = value
		return true
	default:
		return b.bindComposite(s, value, true)
	}
}

// bindComposite checks a composite symbol against an observed value,
// solving for a single unknown side when possible. With deferOK, an
// unsolvable constraint is queued for Finalize instead of failing.
func (b *Bindings) bindComposite(s *Symbol, value int, deferOK bool) bool {
	if resolved, ok := b.eval(s); ok {
		return resolved == value
	}
	lhs, lhsOK := b.eval(s.lhs)
	rhs, rhsOK := b.eval(s.rhs)
	switch s.op {
	case symAdd:
		if lhsOK {
			return b.Bind(s.rhs, value-lhs)
		}
		if rhsOK {
			return b.Bind(s.lhs, value-rhs)
		}
	case symSub:
		if lhsOK {
			return b.Bind(s.rhs, lhs-value)
		}
		if rhsOK {
			return b.Bind(s.lhs, value+rhs)
		}
	case symMul:
		if lhsOK {
			if lhs == 0 || value%lhs != 0 {
				return false
			}
			return b.Bind(s.rhs, value/lhs)
		}
		if rhsOK {
			if rhs == 0 || value%rhs != 0 {
				return false
			}
			return b.Bind(s.lhs, value/rhs)
		}
	case symDiv:
		if rhsOK {
			return b.Bind(s.lhs, value*rhs)
		}
		if lhsOK {
			if value == 0 || lhs%value != 0 {
				return false
			}
			return b.Bind(s.rhs, lhs/value)
		}
	}
	if deferOK {
		b.pending = append(b.pending, pendingCheck{sym: s, value: value})
		return true
	}
	return false
}

// eval computes a symbol's value from current bindings. Division fails
// unless exact: symbols stand for integer dimensions.
func (b *Bindings) eval(s *Symbol) (int, bool) {
	switch s.op {
	case symLit:
		return s.literal, true
	case symLeaf:
		if s.name == "" {
			return 0, false
		}
		v, ok := b.values[s.name]
		return v, ok
	}
	lhs, ok := b.eval(s.lhs)
	if !ok {
		return 0, false
	}
	rhs, ok := b.eval(s.rhs)
	if !ok {
		return 0, false
	}
	switch s.op {
	case symAdd:
		return lhs + rhs, true
	case symSub:
		return lhs - rhs, true
	case symMul:
		return lhs * rhs, true
	default:
		if rhs == 0 || lhs%rhs != 0 {
			return 0, false
		}
		return lhs / rhs, true
	}
}

// Resolve returns the bound value of a named symbol.
func (b *Bindings) Resolve(name string) (value int, ok bool) {
	value, ok = b.values[name]
	return
}

// BindGroup records the dims captured by an ellipsis group, failing on a
// mismatch with an earlier capture of the same group.
func (b *Bindings) BindGroup(name string, dims []int) bool {
	if existing, exists := b.groups[name]; exists {
		if len(existing) != len(dims) {
			return false
		}
		for i, d := range existing {
			if d != dims[i] {
				return false
			}
		}
		return true
	}
	b.groups[name] = append([]int(nil), dims...)
	return true
}

// Group returns the dims captured by an ellipsis group, or nil.
func (b *Bindings) Group(name string) []int { return b.groups[name] }

// Finalize replays deferred composite constraints until a fixed point.
// It reports false if any constraint fails or remains unresolvable:
// a structural match with unverifiable symbol algebra is not a match.
func (b *Bindings) Finalize() bool {
	for len(b.pending) > 0 {
		progressed := false
		var remaining []pendingCheck
		pending := b.pending
		b.pending = nil
		for _, p := range pending {
			if resolved, ok := b.eval(p.sym); ok {
				if resolved != p.value {
					return false
				}
				progressed = true
				continue
			}
			if b.bindComposite(p.sym, p.value, false) {
				progressed = true
				continue
			}
			remaining = append(remaining, p)
		}
		b.pending = append(remaining, b.pending...)
		if !progressed {
			return false
		}
	}
	return true
}
