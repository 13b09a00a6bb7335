package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newPreprocessRule folds input preprocessing into a fused node: a slice
// of the combined qkv projection on the last axis (recorded as
// slice_start/slice_stop) and/or a [B,L,H,S] to [B,H,L,S] transpose
// (recorded as input_trans0213).
func newPreprocessRule() rewrite.Rule {
	inputToSlice := pattern.Any().WithRank(4)
	inputToTrans := pattern.Any().WithRank(4)

	sliceStart := pattern.Sym("slice_start")
	sliceStop := pattern.Sym("slice_stop")
	inputSlice := genSlice(inputToSlice, sliceStart, sliceStop, 1, 3)

	x := pattern.Op(ir.OpTypeTranspose, pattern.AnyOf(inputSlice, inputToTrans), []int{0, 2, 1, 3})
	root := pattern.AnyOf(
		pattern.Op(ir.OpTypeRoPE, x, pattern.Any(), pattern.Any()),
		pattern.Op(ir.OpTypeRoPE, x, pattern.Any(), pattern.Any(), pattern.Any()),
	)

	return rewrite.NewRule("preprocess", root, func(g *ir.Graph, m *pattern.Match) bool {
		ropeNode := m.Root
		cfg := ConfigOf(ropeNode)
		if cfg == nil {
			return false
		}
		cfg = cfg.Clone()

		var newData *ir.Node
		switch {
		case m.Has(inputToSlice):
			start, okStart := m.Symbols.Resolve("slice_start")
			stop, okStop := m.Symbols.Resolve("slice_stop")
			if !okStart || !okStop {
				return false
			}
			cfg.SliceStart = start
			cfg.SliceStop = stop
			cfg.InputTrans0213 = true
			newData = m.Node(inputToSlice)
		case m.Has(inputToTrans):
			cfg.InputTrans0213 = true
			newData = m.Node(inputToTrans)
		default:
			return false
		}

		oldData := ropeNode.Input(0)
		ropeNode.SetInput(0, newData)
		ropeNode.SetData(cfg)
		g.Prune(oldData)
		return true
	})
}
