package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newFluxRule fuses the Flux-style interleaved rotation where the whole
// head is rotated:
//
//	x1 = reshape(x, [..., head_size/2, 2])
//	lo, hi = split(x1, -1)
//	x2 = concat(-hi, lo, -1)
//	x3 = reshape(x2, [..., head_size])
//	y  = x*cos + x3*sin
func newFluxRule() rewrite.Rule {
	x := pattern.Any().WithRank(4).WithShape("PRESERVED_DIMS...", "head_size")
	tCos := pattern.Any().WithRank(4)
	tSin := pattern.Any().WithRank(4)

	x1 := pattern.Op(ir.OpTypeReshape, x, pattern.Any()).
		WithShape("PRESERVED_DIMS...", "?", 2)
	split := pattern.Op(ir.OpTypeSplit, x1, -1).
		WithAttrs(pattern.Attrs[*ir.SplitAttrs](func(attrs *ir.SplitAttrs) bool {
			return attrs.NumSplits == 2
		})).
		WithOutputs(2)

	// Depending on prior passes the negated half shows up with or
	// without squeeze/unsqueeze wrappers.
	optSqueeze := pattern.Optional(ir.OpTypeSqueeze, split.Out(1), -1)
	neg := pattern.Op(ir.OpTypeMultiply, optSqueeze, -1.0)
	optSqueeze1 := pattern.Optional(ir.OpTypeSqueeze, neg, -1)
	optUnsqueeze := pattern.Optional(ir.OpTypeUnsqueeze, optSqueeze1, -1)

	x2 := pattern.Op(ir.OpTypeConcat, optUnsqueeze, split.Out(0)).
		WithAttrs(pattern.Attrs[*ir.ConcatAttrs](func(attrs *ir.ConcatAttrs) bool {
			return attrs.Axis == -1
		}))
	x3 := pattern.Op(ir.OpTypeReshape, x2, pattern.Any()).
		WithShape("PRESERVED_DIMS...", "head_size")

	y1 := pattern.Op(ir.OpTypeMultiply, x, tCos)
	y2 := pattern.Op(ir.OpTypeMultiply, x3, tSin)
	result := pattern.Op(ir.OpTypeAdd, y1, y2)

	return rewrite.NewRule("flux", result, func(g *ir.Graph, m *pattern.Match) bool {
		preserved := m.Symbols.Group("PRESERVED_DIMS")
		headSize, ok := m.Symbols.Resolve("head_size")
		if !ok || len(preserved) < 2 || preserved[1] == ir.DynamicDim {
			return false
		}

		cfg := &Config{
			HeadCnt:       preserved[1],
			HeadSize:      headSize,
			RotaryNdims:   headSize,
			IsInterleaved: true,
		}
		fused, err := NewNode(g, cfg, m.Node(x), m.Node(tCos), m.Node(tSin))
		if err != nil {
			return false
		}
		ir.CopyOrigins([]*ir.Node{
			m.Node(x1), m.Node(split), m.Node(x2), m.Node(x3),
			m.Node(y1), m.Node(y2), m.Root,
		}, fused)
		g.ReplaceNode(m.Root, fused)
		return true
	})
}
