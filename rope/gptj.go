package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// repeatInterleaveIdx matches an i32 constant of the form
// [0,0,1,1,2,2,...], the gather indices that duplicate every table
// column for the interleaved layout.
func repeatInterleaveIdx(n *ir.Node) bool {
	values, ok := ir.ConstIntValues(n)
	if !ok || len(values)%2 != 0 {
		return false
	}
	for i := 0; i < len(values); i += 2 {
		if values[i] != i/2 || values[i+1] != i/2 {
			return false
		}
	}
	return true
}

// repeatInterleave matches the repeat-interleave of one half of the
// sin/cos table: unsqueeze (or an equivalent reshape) followed by a
// gather with [0,0,1,1,...] indices on the last axis.
func repeatInterleave(varSplitOutput *pattern.Pattern) *pattern.Pattern {
	unsqueeze := pattern.AnyOf(
		pattern.Op(ir.OpTypeReshape, varSplitOutput,
			[]any{pattern.Sym("dim0"), pattern.Sym("dim1"), 1, 32}),
		pattern.Op(ir.OpTypeUnsqueeze, varSplitOutput, 2),
	)
	constIdx := pattern.ConstWhere(repeatInterleaveIdx)
	return pattern.Op(ir.OpTypeGather, unsqueeze, constIdx, 3).
		WithAttrs(pattern.Attrs[*ir.GatherAttrs](func(attrs *ir.GatherAttrs) bool {
			return attrs.BatchDims == 0
		}))
}

// newGPTJRule fuses the GPT-J interleaved rotation, where only the first
// rotary_ndims of the head are rotated and the sin/cos halves come from
// one gathered table. A trailing Transpose{0,2,1,3} consumer of the
// match root is folded into the config, and a ShapeOf reading the
// pre-concat sum is re-homed onto the fused node's data input so no
// stale subgraph survives the splice.
func newGPTJRule() rewrite.Rule {
	ndims := pattern.Sym("ndims")

	gatherSinCos := pattern.Any().WithDType(dtypeF32)
	varsplit := pattern.Op(ir.OpTypeVariadicSplit, gatherSinCos, -1,
		[]any{ndims.Div(2), -1}).
		WithOutputs(2)
	repeatSin := repeatInterleave(varsplit.Out(0))
	repeatCos := repeatInterleave(varsplit.Out(1))

	view := pattern.Any().WithRank(4)
	sliceRot := genSlice(view, 0, ndims, 1, 3)
	varsplitView := pattern.Op(ir.OpTypeVariadicSplit, view, 3,
		[]any{ndims, pattern.AnyValue()}).
		WithOutputs(2)
	xRot := pattern.AnyOf(sliceRot, varsplitView.Out(0))

	// x interleave: (-x[..., 1::2], x[..., 0::2])
	sliceOdd := genSlice(xRot, 1, int32Max, 2, 3)
	neg := pattern.Op(ir.OpTypeMultiply, sliceOdd, -1.0)
	negUnsqueeze := pattern.AnyOf(
		pattern.Op(ir.OpTypeUnsqueeze, neg, -1),
		pattern.Op(ir.OpTypeReshape, neg,
			[]any{-1, 1, pattern.Sym("head_num"), 32, 1}).
			WithAttrs(reshapeSpecialZero(false)),
	)
	sliceEven := genSlice(xRot, 0, int32Max, 2, 3)
	evenUnsqueeze := pattern.AnyOf(
		pattern.Op(ir.OpTypeUnsqueeze, sliceEven, -1),
		pattern.Op(ir.OpTypeReshape, sliceEven,
			[]any{-1, 1, pattern.Sym("head_num"), 32, 1}).
			WithAttrs(reshapeSpecialZero(false)),
	)
	stack := pattern.Op(ir.OpTypeConcat, negUnsqueeze, evenUnsqueeze).
		WithAttrs(concatAxis(-1))

	// Two encodings of the flatten back to [..., ndims]: via a
	// shape-of/concat computed target, or a special-zero reshape.
	shapeOf := pattern.Op(ir.OpTypeShapeOf, stack)
	flattenSlice := genSlice(shapeOf, 0, 3, 1, 0)
	flattenConcat := pattern.Op(ir.OpTypeConcat, flattenSlice, -1).
		WithAttrs(concatAxis(0))
	flatten := pattern.AnyOf(
		pattern.Op(ir.OpTypeReshape, stack, flattenConcat),
		pattern.Op(ir.OpTypeReshape, stack, pattern.Any()).
			WithAttrs(reshapeSpecialZero(true)),
	)

	mulCos := pattern.Op(ir.OpTypeMultiply, xRot, repeatCos)
	mulSin := pattern.Op(ir.OpTypeMultiply, flatten, repeatSin)
	rotaryEmb := pattern.Op(ir.OpTypeAdd, mulCos, mulSin)

	slicePass := genSlice(view, ndims, int32Max, 1, 3)
	result := pattern.Op(ir.OpTypeConcat, rotaryEmb, pattern.AnyOf(slicePass, varsplitView.Out(1))).
		WithAttrs(concatAxis(-1))

	return rewrite.NewRule("gptj", result, func(g *ir.Graph, m *pattern.Match) bool {
		nd, ok := m.Symbols.Resolve("ndims")
		if !ok || nd%2 != 0 {
			return false
		}

		cfg := &Config{RotaryNdims: nd, IsInterleaved: true}
		origins := []*ir.Node{
			m.Node(varsplit), m.Node(repeatSin), m.Node(repeatCos),
			m.Node(neg), m.Node(stack), m.Node(mulCos), m.Node(mulSin),
			m.Node(rotaryEmb), m.Root,
		}

		// Fold a lone trailing [0,2,1,3] transpose into the output
		// layout.
		root := m.Root
		if consumers := root.Consumers(); len(consumers) == 1 {
			next := consumers[0]
			if next.Type() == ir.OpTypeTranspose && next.NumInputs() == 2 {
				if perm, ok := ir.ConstIntValues(next.Input(1)); ok &&
					intsEqual(perm, []int{0, 2, 1, 3}) {
					cfg.OutputTrans0213 = true
					origins = append(origins, next)
					root = next
				}
			}
		}

		viewNode := m.Node(view)
		fused, err := NewNode(g, cfg, viewNode, m.Node(gatherSinCos), m.Node(gatherSinCos))
		if err != nil {
			return false
		}

		// A ShapeOf may read the pre-concat sum (moved up from the
		// transpose); point it at the data input before the splice so
		// the matched subgraph dies cleanly.
		emb := m.Node(rotaryEmb)
		if consumers := append([]*ir.Node(nil), emb.Consumers()...); len(consumers) == 2 {
			for _, c := range consumers {
				if c.Type() == ir.OpTypeShapeOf {
					c.SetInput(0, viewNode)
				}
			}
		}

		ir.CopyOrigins(origins, fused)
		g.ReplaceNode(root, fused)
		return true
	})
}
