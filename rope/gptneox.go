package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newGPTNeoXRule fuses the rotate-half motif:
//
//	y = x*cos + rotate_half(x)*sin
//	rotate_half(x) = concat(-x[..., half:], x[..., :half], -1)
//
// Multiply is commutative, so matching x against the x*cos branch
// directly can bind x to the cos value and fail the rotate-half branch.
// Both operands of that branch are matched as free wildcards instead,
// and the callback checks which one is the x already bound on the sin
// side; the other is cos. Neither being x means this is not a rotary
// embedding at all.
func newGPTNeoXRule() rewrite.Rule {
	x := pattern.Any().WithRank(4)
	xOrCos1 := pattern.Any().WithRank(4)
	xOrCos2 := pattern.Any().WithRank(4)
	tSin := pattern.Any().WithRank(4)

	halfNdims := pattern.Sym("half_ndims")
	varsplit := pattern.Op(ir.OpTypeVariadicSplit, x, 3,
		[]any{halfNdims, pattern.AnyValue()}).
		WithOutputs(2)

	x2 := genSlice(x, halfNdims, int32Max, 1, 3)
	x2neg := pattern.Op(ir.OpTypeMultiply, pattern.AnyOf(x2, varsplit.Out(1)), -1.0)
	x1 := genSlice(x, 0, halfNdims, 1, 3)
	rotateHalf := pattern.Op(ir.OpTypeConcat, x2neg, pattern.AnyOf(x1, varsplit.Out(0))).
		WithAttrs(pattern.Attrs[*ir.ConcatAttrs](func(attrs *ir.ConcatAttrs) bool {
			return attrs.Axis == -1
		}))

	mulCos := pattern.Op(ir.OpTypeMultiply, xOrCos1, xOrCos2)
	mulSin := pattern.Op(ir.OpTypeMultiply, rotateHalf, tSin)
	result := pattern.Op(ir.OpTypeAdd, mulCos, mulSin)

	return rewrite.NewRule("gptneox", result, func(g *ir.Graph, m *pattern.Match) bool {
		var vCos *ir.Node
		switch m.Node(x) {
		case m.Node(xOrCos1):
			vCos = m.Node(xOrCos2)
		case m.Node(xOrCos2):
			vCos = m.Node(xOrCos1)
		default:
			return false
		}

		half, ok := m.Symbols.Resolve("half_ndims")
		if !ok {
			return false
		}

		cfg := &Config{RotaryNdims: 2 * half}
		fused, err := NewNode(g, cfg, m.Node(x), vCos, m.Node(tSin))
		if err != nil {
			return false
		}
		ir.CopyOrigins([]*ir.Node{
			m.Node(x2neg), m.Node(rotateHalf), m.Node(mulCos), m.Node(mulSin), m.Root,
		}, fused)
		g.ReplaceNode(m.Root, fused)
		return true
	})
}
