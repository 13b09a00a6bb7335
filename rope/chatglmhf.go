package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newChatGLMHFRule fuses the HuggingFace ChatGLM export, which applies
// the interleaved rotation per single-token step with separate cos/sin
// inputs repeated along the last axis. Always a 2d rope.
func newChatGLMHFRule() rewrite.Rule {
	ndims := pattern.Sym("ndims")

	qkLinear := pattern.Any().WithShape("?", 1, "?")
	cos := pattern.Any().WithShape("?", 1, 1, "?")
	sin := pattern.Any().WithShape("?", 1, 1, "?")

	reshape := pattern.Op(ir.OpTypeReshape, qkLinear, pattern.Any()).
		WithShape("?", "head_cnt", 1, "head_size").
		WithAttrs(reshapeSpecialZero(false))
	sliceRot := genSlice(reshape, 0, ndims, 1, 3)

	constIdx := pattern.ConstWhere(repeatInterleaveIdx)
	repeatCos := pattern.Op(ir.OpTypeGather, cos, constIdx, -1).WithAttrs(gatherBatchDims(0))
	repeatSin := pattern.Op(ir.OpTypeGather, sin, constIdx, -1).WithAttrs(gatherBatchDims(0))

	mulCos := pattern.Op(ir.OpTypeMultiply, sliceRot, repeatCos)
	sliceOdd := genSlice(sliceRot, 1, int32Max, 2, 3)
	neg := pattern.Op(ir.OpTypeMultiply, sliceOdd, -1.0)
	negView := pattern.Op(ir.OpTypeReshape, neg, pattern.Any()).
		WithShape("?", "head_cnt", 1, ndims.Div(2), 1).
		WithAttrs(reshapeSpecialZero(false))
	sliceEven := genSlice(sliceRot, 0, int32Max, 2, 3)
	evenView := pattern.Op(ir.OpTypeReshape, sliceEven, pattern.Any()).
		WithShape("?", "head_cnt", 1, ndims.Div(2), 1).
		WithAttrs(reshapeSpecialZero(false))
	stack := pattern.Op(ir.OpTypeConcat, negView, evenView).WithAttrs(concatAxis(-1))
	flatten := pattern.Op(ir.OpTypeReshape, stack, pattern.Any()).
		WithShape("?", "head_cnt", 1, ndims).
		WithAttrs(reshapeSpecialZero(true))
	mulSin := pattern.Op(ir.OpTypeMultiply, flatten, repeatSin)
	add := pattern.Op(ir.OpTypeAdd, mulCos, mulSin)

	slicePass := genSlice(reshape, ndims, int32Max, 1, 3)
	result := pattern.Op(ir.OpTypeConcat, add, slicePass).WithAttrs(concatAxis(-1))

	return rewrite.NewRule("chatglm-hf", result, func(g *ir.Graph, m *pattern.Match) bool {
		nd, okN := m.Symbols.Resolve("ndims")
		hc, okH := m.Symbols.Resolve("head_cnt")
		hs, okS := m.Symbols.Resolve("head_size")
		if !okN || !okH || !okS || nd%2 != 0 {
			return false
		}

		cfg := &Config{
			RotaryNdims:   nd,
			IsChatGLM:     true,
			Support2DRope: true,
			HeadCnt:       hc,
			HeadSize:      hs,
		}
		fused, err := NewNode(g, cfg, m.Node(qkLinear), m.Node(cos), m.Node(sin))
		if err != nil {
			return false
		}
		ir.CopyOrigins([]*ir.Node{m.Root.Input(0), m.Root}, fused)
		g.ReplaceNode(m.Root, fused)
		return true
	})
}
