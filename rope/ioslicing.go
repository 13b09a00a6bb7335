package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newIOSlicingRule strips the slice/concat pair around a fused node when
// only the first rotary_ndims of the head are rotated: the fused node
// reads the unsliced input directly (it knows rotary_ndims) and replaces
// the concat that stitched the untouched tail back on.
func newIOSlicingRule() rewrite.Rule {
	ndims := pattern.Sym("ndims")
	data := pattern.Any().WithRank(4)

	varsplit := pattern.Op(ir.OpTypeVariadicSplit, data, 3,
		[]any{ndims, pattern.AnyValue()}).
		WithOutputs(2)

	x := genSlice(data, 0, ndims, 1, 3)
	y := genSlice(data, ndims, int32Max, 1, 3)
	xIn := pattern.AnyOf(x, varsplit.Out(0))
	xEmb := pattern.AnyOf(
		pattern.Op(ir.OpTypeRoPE, xIn, pattern.Any(), pattern.Any()),
		pattern.Op(ir.OpTypeRoPE, xIn, pattern.Any(), pattern.Any(), pattern.Any()),
	)
	result := pattern.Op(ir.OpTypeConcat, xEmb, pattern.AnyOf(y, varsplit.Out(1))).
		WithAttrs(concatAxis(-1))

	return rewrite.NewRule("io-slicing", result, func(g *ir.Graph, m *pattern.Match) bool {
		ropeNode := m.Node(xEmb)
		cfg := ConfigOf(ropeNode)
		if cfg == nil {
			return false
		}
		nd, ok := m.Symbols.Resolve("ndims")
		if !ok || cfg.RotaryNdims != nd {
			return false
		}

		oldData := ropeNode.Input(0)
		ropeNode.SetInput(0, m.Node(data))
		ropeNode.SetShape(m.Root.Shape())
		ropeNode.SetName(m.Root.Name())
		ir.CopyOrigins([]*ir.Node{m.Root}, ropeNode)
		g.ReplaceNode(m.Root, ropeNode)
		g.Prune(oldData)
		return true
	})
}
