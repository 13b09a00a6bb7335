package rope

import (
	"fmt"

	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newQwenRule fuses the Qwen rotary embedding, which slices q (or k, per
// splitOutputID) out of a combined qkv projection with a variadic split
// and rotates the whole head. The cos/sin tables are sliced to the
// present kv-length, or gathered at explicit position ids; in the latter
// case the position ids become a fourth input.
func newQwenRule(splitOutputID int) rewrite.Rule {
	headCnt := pattern.Sym("head_cnt")
	headSize := pattern.Sym("head_size")

	ropeCos := pattern.Any().WithShape(1, "?", 1, "?")
	ropeSin := pattern.Any().WithShape(1, "?", 1, "?")
	qkvProj := pattern.Any().WithShape("?", "?", "?")
	positionIDs := pattern.Any()

	varSplit := pattern.Op(ir.OpTypeVariadicSplit, qkvProj, 2,
		[]any{headCnt.Mul(headSize), headCnt.Mul(headSize), pattern.AnyValue()}).
		WithOutputs(3)
	// B,L,H,S
	view := pattern.Op(ir.OpTypeReshape, varSplit.Out(splitOutputID), pattern.Any()).
		WithShape("?", "?", "head_cnt", "head_size").
		WithAttrs(reshapeSpecialZero(true))
	sliceHead := genSlice(view, 0, headSize, 1, 3)

	// present kv-length as a negative offset from the table end
	shapeOf1 := pattern.Op(ir.OpTypeShapeOf, pattern.Any())
	negShape := pattern.Op(ir.OpTypeMultiply, shapeOf1, -1)
	gatherNegLen := pattern.Op(ir.OpTypeGather, negShape, 1, 0).WithAttrs(gatherBatchDims(0))

	shapeOf2 := pattern.Op(ir.OpTypeShapeOf, pattern.Any())
	gatherLen := pattern.Op(ir.OpTypeGather, shapeOf2, 1, 0).WithAttrs(gatherBatchDims(0))
	negLen := pattern.Op(ir.OpTypeMultiply, gatherLen, -1)
	kvOffset := pattern.AnyOf(gatherNegLen, negLen)

	scatter := pattern.Op(ir.OpTypeScatterUpdate, []int{0, 0}, 1, kvOffset, 0)

	sliceCos := pattern.Op(ir.OpTypeSlice, ropeCos, kvOffset, int32Max, 1, 1)
	gatherCosByPos := pattern.Op(ir.OpTypeGather, ropeCos, positionIDs, 1).WithAttrs(gatherBatchDims(0))
	reshapeCos := pattern.Op(ir.OpTypeReshape, gatherCosByPos, pattern.Any()).
		WithShape("?", 1, 1, 128).
		WithAttrs(reshapeSpecialZero(false))
	stridedCos := genStridedSlice(ropeCos, scatter, []int{0, int32Max}, []int{1, 1}, 1)
	mulCos := pattern.Op(ir.OpTypeMultiply, sliceHead,
		pattern.AnyOf(stridedCos, sliceCos, reshapeCos))

	// pairwise view of the head for the rotate-half, two encodings
	reshapePairs := func(input *pattern.Pattern) *pattern.Pattern {
		shapeOf := pattern.Op(ir.OpTypeShapeOf, input)
		gatherSeq := pattern.Op(ir.OpTypeGather, shapeOf, 1, 0).WithAttrs(gatherBatchDims(0))
		gatherBatch := pattern.Any().WithDType(dtypeI32).WithShape(1)
		listConstruct := pattern.Op(ir.OpTypeConcat,
			gatherBatch, gatherSeq, headCnt, 2, headSize.Div(2)).
			WithAttrs(concatAxis(0))
		gatherBL := pattern.Op(ir.OpTypeGather, shapeOf, []int{0, 1}, 0).WithAttrs(gatherBatchDims(0))
		listConstruct2 := pattern.Op(ir.OpTypeConcat, gatherBL, 32, 2, 64).
			WithAttrs(concatAxis(0))

		inner := pattern.Op(ir.OpTypeReshape, input, pattern.Any()).
			WithShape("?", 2, headSize.Div(2)).
			WithAttrs(reshapeSpecialZero(true))
		return pattern.Op(ir.OpTypeReshape, inner,
			pattern.AnyOf(listConstruct, listConstruct2)).
			WithAttrs(reshapeSpecialZero(false))
	}
	reshapeSpecial := pattern.AnyOf(
		pattern.Op(ir.OpTypeReshape, sliceHead, pattern.Any()).
			WithShape("BATCH_SEQ...", 0, 2, headSize.Div(2)).
			WithAttrs(reshapeSpecialZero(true)),
		pattern.Op(ir.OpTypeReshape, sliceHead, pattern.Any()).
			WithShape("BATCH_SEQ...", "head_cnt", 2, headSize.Div(2)).
			WithAttrs(reshapeSpecialZero(true)),
	)

	split := pattern.Op(ir.OpTypeSplit, pattern.AnyOf(reshapePairs(sliceHead), reshapeSpecial), -2).
		WithAttrs(pattern.Attrs[*ir.SplitAttrs](func(attrs *ir.SplitAttrs) bool {
			return attrs.NumSplits == 2
		})).
		WithOutputs(2)
	negHalf := pattern.Op(ir.OpTypeMultiply, split.Out(1), -1.0)
	squeezeNeg := pattern.Op(ir.OpTypeSqueeze, negHalf, -2)
	squeezeEven := pattern.Op(ir.OpTypeSqueeze, split.Out(0), -2)
	reshapeNeg := pattern.Op(ir.OpTypeReshape, negHalf, pattern.Any()).
		WithShape("?", 1, 32, 64).
		WithAttrs(reshapeSpecialZero(false))
	reshapeEven := pattern.Op(ir.OpTypeReshape, split.Out(0), pattern.Any()).
		WithShape("?", 1, 32, 64).
		WithAttrs(reshapeSpecialZero(false))

	rotated := pattern.Op(ir.OpTypeConcat,
		pattern.AnyOf(squeezeNeg, reshapeNeg),
		pattern.AnyOf(squeezeEven, reshapeEven)).
		WithAttrs(concatAxis(-1))

	stridedSin := genStridedSlice(ropeSin, scatter, []int{0, int32Max}, []int{1, 1}, 1)
	sliceSin := pattern.Op(ir.OpTypeSlice, ropeSin, kvOffset, int32Max, 1, 1)
	gatherSinByPos := pattern.Op(ir.OpTypeGather, ropeSin, positionIDs, 1).WithAttrs(gatherBatchDims(0))
	reshapeSin := pattern.Op(ir.OpTypeReshape, gatherSinByPos, pattern.Any()).
		WithShape("?", 1, 1, 128).
		WithAttrs(reshapeSpecialZero(false))
	mulSin := pattern.Op(ir.OpTypeMultiply, rotated,
		pattern.AnyOf(stridedSin, sliceSin, reshapeSin))

	result := pattern.Op(ir.OpTypeAdd, mulCos, mulSin)

	return rewrite.NewRule(fmt.Sprintf("qwen-%d", splitOutputID), result,
		func(g *ir.Graph, m *pattern.Match) bool {
			hc, okC := m.Symbols.Resolve("head_cnt")
			hs, okS := m.Symbols.Resolve("head_size")
			if !okC || !okS || hs%2 != 0 {
				return false
			}

			cfg := &Config{
				IsQwen:      true,
				HeadCnt:     hc,
				HeadSize:    hs,
				RotaryNdims: hs,
			}
			if splitOutputID == 0 {
				cfg.SliceStart = 0
				cfg.SliceStop = hc * hs
			} else {
				cfg.SliceStart = hc * hs
				cfg.SliceStop = 2 * hc * hs
			}

			args := []*ir.Node{m.Node(qkvProj), m.Node(ropeCos), m.Node(ropeSin)}
			origins := []*ir.Node{
				m.Node(negHalf), m.Node(rotated), m.Node(mulSin), m.Root,
			}
			if m.Has(positionIDs) {
				args = append(args, m.Node(positionIDs))
				cfg.GatherPositionArgID = 3
				origins = append(origins, m.Node(reshapeNeg), m.Node(reshapeEven))
			} else {
				origins = append(origins, m.Node(squeezeNeg), m.Node(squeezeEven))
			}

			fused, err := NewNode(g, cfg, args...)
			if err != nil {
				return false
			}
			ir.CopyOrigins(origins, fused)
			g.ReplaceNode(m.Root, fused)
			return true
		})
}
