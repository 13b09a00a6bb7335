package rope

import (
	"fmt"

	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// validReshapeSymbols checks the (A,B,C) constants of the paired
// unsqueeze-reshapes against the layouts seen in real ChatGLM exports.
// The symbol table cannot express "some permutation of these symbols",
// so the observed combinations are enumerated; anything else rejects the
// candidate rather than guessing.
func validReshapeSymbols(a, b, c, headCnt int) bool {
	switch {
	case a == -1 && b == headCnt && c == 1: // ChatGLM4
		return true
	case a == 1 && b == -1 && c == headCnt: // ChatGLM3
		return true
	case a == 0 && b == 0 && c == 0: // ChatGLM nano
		return true
	}
	return false
}

// newChatGLMRule fuses the ChatGLM rotary embedding reading one output
// of the combined qkv variadic split: splitOutputID 0 is the query, 1
// the key. The 2d form matches the layout produced for paged-attention
// models where positions are encoded over [batch, head, seq].
func newChatGLMRule(splitOutputID int, support2DRope bool) rewrite.Rule {
	qkvLinear := pattern.Any().WithShape("?", "?", "?")
	seqLength := pattern.Any().WithDType(dtypeI32).WithShape(1)
	cosSinCache := pattern.Any().WithRank(4)

	ndims := pattern.Sym("ndims")
	headCnt := pattern.Sym("head_cnt")
	headSize := pattern.Sym("head_size")
	totalSizeQ := pattern.Sym("total_size_q")
	totalSizeK := pattern.Sym("total_size_k")
	totalSizeV := pattern.Sym("total_size_v")
	// Reshape constants may hold -1/0 placeholders instead of the real
	// batch/seq values, so these two are exempt from cross-checking.
	batch := pattern.NoValidate("batch")
	seqLen := pattern.NoValidate("seq_len")
	symA := pattern.Sym("A")
	symB := pattern.Sym("B")
	symC := pattern.Sym("C")

	qkvProj := pattern.Op(ir.OpTypeVariadicSplit, qkvLinear, -1,
		[]any{totalSizeQ, totalSizeK, totalSizeV}).
		WithOutputs(3)
	curKey := pattern.Op(ir.OpTypeReshape, qkvProj.Out(splitOutputID),
		[]any{0, 0, headCnt, headSize}).
		WithAttrs(reshapeSpecialZero(true))

	var inputKey *pattern.Pattern
	if support2DRope {
		// Paged-attention exports reshape instead of transposing, all
		// sequences being length 1 there.
		transposedCurKey := pattern.Op(ir.OpTypeReshape, qkvProj.Out(splitOutputID),
			[]any{-1, headCnt, 1, headSize}).
			WithAttrs(reshapeSpecialZero(false))
		inputKey = pattern.AnyOf(
			pattern.Op(ir.OpTypeTranspose, curKey, []int{0, 2, 1, 3}),
			transposedCurKey,
		)
	} else {
		inputKey = curKey
	}

	sliceRot := genSlice(inputKey, 0, ndims, 1, 3)
	varSplit1 := pattern.Op(ir.OpTypeVariadicSplit, inputKey, 3,
		[]any{ndims, pattern.AnyValue()}).
		WithOutputs(2)

	// rotate-half reshape to [..., ndims/2, 2]
	var pairReshape *pattern.Pattern
	rotIn := pattern.AnyOf(sliceRot, varSplit1.Out(0))
	if support2DRope {
		pairReshape = pattern.Op(ir.OpTypeReshape, rotIn,
			[]any{0, headCnt, 0, ndims.Div(2), 2}).
			WithAttrs(reshapeSpecialZero(true))
	} else {
		listConstruct := pattern.Op(ir.OpTypeConcat,
			seqLength, -1, headCnt, ndims.Div(2), 2).
			WithAttrs(concatAxis(0))
		targetShape0 := pattern.Const(0, 0, headCnt, ndims.Div(2), 2)
		targetShape1 := pattern.Const(seqLen, batch, headCnt, ndims.Div(2), 2)
		pairReshape = pattern.Op(ir.OpTypeReshape, rotIn,
			pattern.AnyOf(listConstruct, targetShape1, targetShape0))
	}

	xEven := pattern.Op(ir.OpTypeGather, pairReshape, 0, -1).WithAttrs(gatherBatchDims(0))
	xOdd := pattern.Op(ir.OpTypeGather, pairReshape, 1, -1).WithAttrs(gatherBatchDims(0))

	varSplit2 := pattern.Op(ir.OpTypeVariadicSplit, cosSinCache, 0,
		[]any{0, pattern.AnyValue()}).
		WithOutputs(2)

	// cos/sin cache sliced to the sequence and viewed pairwise.
	var cacheView *pattern.Pattern
	if support2DRope {
		listConstruct := pattern.Op(ir.OpTypeConcat,
			-1, 1, seqLength, ndims.Div(2), 2).
			WithAttrs(concatAxis(0))
		targetShape := pattern.Const(batch, 1, seqLen, ndims.Div(2), 2)

		scatter := pattern.Op(ir.OpTypeScatterUpdate, []int{0, 0}, 1, seqLength, 0)
		slice1d := pattern.Op(ir.OpTypeSlice, cosSinCache, []int{0}, seqLength, []int{1}, []int{1})
		slice2d := pattern.Op(ir.OpTypeSlice, cosSinCache, []int{0, 0}, scatter, []int{1, 1}, []int{0})
		strided := genStridedSlice(cosSinCache, []int{0, 0},
			pattern.AnyOf(anyConstant(), scatter), []int{1, 1}, 1)

		cacheView = pattern.Op(ir.OpTypeReshape,
			pattern.AnyOf(strided, slice1d, slice2d, varSplit2.Out(0)),
			pattern.AnyOf(listConstruct, targetShape))
	} else {
		listConstruct := pattern.Op(ir.OpTypeConcat,
			seqLength, -1, 1, ndims.Div(2), 2).
			WithAttrs(concatAxis(0))
		targetShape0 := pattern.Const(1, -1, 1, ndims.Div(2), 2)
		targetShape2 := pattern.Const(seqLen, batch, 1, ndims.Div(2), 2)

		slice := pattern.Op(ir.OpTypeSlice, cosSinCache, []int{0}, seqLength, []int{1}, []int{0})
		strided := genStridedSlice(cosSinCache, []int{0}, seqLength, []int{1}, 0)

		cacheView = pattern.Op(ir.OpTypeReshape,
			pattern.AnyOf(strided, slice, varSplit2.Out(0)),
			pattern.AnyOf(listConstruct, targetShape0, targetShape2))
	}

	cosTab := pattern.Op(ir.OpTypeGather, cacheView, 0, -1).WithAttrs(gatherBatchDims(0))
	sinTab := pattern.Op(ir.OpTypeGather, cacheView, 1, -1).WithAttrs(gatherBatchDims(0))

	xEvenCos := pattern.Op(ir.OpTypeMultiply, xEven, cosTab)
	xOddSin := pattern.Op(ir.OpTypeMultiply, xOdd, sinTab)
	negXOddSin := pattern.Op(ir.OpTypeMultiply, xOddSin, -1.0)
	even := pattern.Op(ir.OpTypeAdd, xEvenCos, negXOddSin)
	yEven := pattern.AnyOf(
		pattern.Op(ir.OpTypeUnsqueeze, even, -1),
		pattern.Op(ir.OpTypeReshape, even,
			[]any{symA, symB, symC, ndims.Div(2), 1}).
			WithAttrs(reshapeSpecialZero(false)),
	)
	xOddCos := pattern.Op(ir.OpTypeMultiply, xOdd, cosTab)
	xEvenSin := pattern.Op(ir.OpTypeMultiply, xEven, sinTab)
	odd := pattern.Op(ir.OpTypeAdd, xOddCos, xEvenSin)
	yOdd := pattern.AnyOf(
		pattern.Op(ir.OpTypeUnsqueeze, odd, -1),
		pattern.Op(ir.OpTypeReshape, odd,
			[]any{symA, symB, symC, ndims.Div(2), 1}).
			WithAttrs(reshapeSpecialZero(false)),
	)

	stack := pattern.Op(ir.OpTypeConcat, yEven, yOdd).WithAttrs(concatAxis(-1))

	shapeOf := pattern.Op(ir.OpTypeShapeOf, stack)
	flattenSlice := genSlice(shapeOf, 0, 3, 1, 0)
	flattenConcat := pattern.Op(ir.OpTypeConcat, flattenSlice, -1).WithAttrs(concatAxis(0))

	var flatten *pattern.Pattern
	if support2DRope {
		targetShape := pattern.Const(batch, headCnt, seqLen, ndims)
		flatten = pattern.Op(ir.OpTypeReshape, stack,
			pattern.AnyOf(flattenConcat, targetShape)).
			WithAttrs(reshapeSpecialZero(true))
	} else {
		targetShape0 := pattern.Const(0, 0, headCnt, ndims)
		targetShape3 := pattern.Const(seqLen, batch, headCnt, ndims)
		flatten = pattern.Op(ir.OpTypeReshape, stack,
			pattern.AnyOf(flattenConcat, targetShape3, targetShape0)).
			WithAttrs(reshapeSpecialZero(true))
	}

	slicePass := genSlice(inputKey, ndims, int32Max, 1, 3)
	concatTail := pattern.Op(ir.OpTypeConcat, flatten, pattern.AnyOf(slicePass, varSplit1.Out(1))).
		WithAttrs(concatAxis(-1))
	result := pattern.AnyOf(concatTail, flatten)

	name := fmt.Sprintf("chatglm-%d", splitOutputID)
	if support2DRope {
		name += "-2d"
	}
	return rewrite.NewRule(name, result, func(g *ir.Graph, m *pattern.Match) bool {
		nd, okN := m.Symbols.Resolve("ndims")
		hc, okH := m.Symbols.Resolve("head_cnt")
		hs, okS := m.Symbols.Resolve("head_size")
		tq, okQ := m.Symbols.Resolve("total_size_q")
		tk, okK := m.Symbols.Resolve("total_size_k")
		if !okN || !okH || !okS || !okQ || !okK {
			return false
		}

		// Unbound A/B/C means both pair-reshapes matched as Unsqueeze,
		// which the (0,0,0) row covers.
		a, _ := m.Symbols.Resolve("A")
		b, _ := m.Symbols.Resolve("B")
		c, _ := m.Symbols.Resolve("C")
		if !validReshapeSymbols(a, b, c, hc) {
			return false
		}

		cfg := &Config{
			RotaryNdims:   nd,
			IsChatGLM:     true,
			Support2DRope: support2DRope,
			UseRopeCache:  true,
			HeadCnt:       hc,
			HeadSize:      hs,
		}
		if splitOutputID == 0 {
			cfg.SliceStart = 0
			cfg.SliceStop = tq
		} else {
			cfg.SliceStart = tq
			cfg.SliceStop = tq + tk
		}

		// Without the tail concat the whole head must be rotated.
		if m.Root.Type() == ir.OpTypeReshape && cfg.RotaryNdims != cfg.HeadSize {
			return false
		}

		cache := m.Node(cosSinCache)
		fused, err := NewNode(g, cfg, m.Node(qkvLinear), cache, cache)
		if err != nil {
			return false
		}
		ir.CopyOrigins([]*ir.Node{m.Root.Input(0), m.Root}, fused)
		g.ReplaceNode(m.Root, fused)
		return true
	})
}
