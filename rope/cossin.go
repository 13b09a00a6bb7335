package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
)

// newCosSinPreprocessRule folds the cos/sin table preparation feeding an
// already fused node into the node itself: the tables' backing constants
// become the cos/sin inputs directly, and a position-gather in the
// preparation is attached as an extra input with its role recorded in
// the config. This is incremental reconfiguration, not replacement: the
// fused node stays, only its arguments and Config change.
func newCosSinPreprocessRule() rewrite.Rule {
	cosConst := constWithDType(dtypeF32)
	sinConst := constWithDType(dtypeF32)

	batchSize := pattern.Any().WithDType(dtypeI32).WithShape(1)
	gatherPositions := pattern.Any().WithDType(dtypeI32).WithRank(4)

	// gptneox style: slice the table to the batch, gather per position.
	prepareGPTNeoX := func(table *pattern.Pattern) *pattern.Pattern {
		slice := pattern.Op(ir.OpTypeSlice, table, []int{0}, batchSize, []int{1}, []int{0})
		strided := genStridedSlice(table, []int{0}, batchSize, []int{1}, 0)
		return pattern.Op(ir.OpTypeGatherElements, pattern.AnyOf(strided, slice), gatherPositions).
			WithAttrs(pattern.Attrs[*ir.GatherElementsAttrs](func(attrs *ir.GatherElementsAttrs) bool {
				return attrs.Axis == 2
			}))
	}

	seqLen := pattern.Any().WithDType(dtypeI32).WithShape(1)
	gatherPositions2D := pattern.Any().WithDType(dtypeI32).WithRank(2)

	// llama style: slice the table to the sequence length, gather rows
	// at position ids, reshape back to [1, 1, L, head_dims].
	prepareLlama := func(table *pattern.Pattern) *pattern.Pattern {
		scatter := pattern.Op(ir.OpTypeScatterUpdate, []int{0, 0, 0}, 2, seqLen, 0)
		slice := pattern.Op(ir.OpTypeSlice, table, []int{0}, seqLen, []int{1}, []int{2})
		strided := genStridedSlice(table, []int{0, 0, 0}, scatter, []int{1, 1, 1}, 2)
		squeeze := pattern.Op(ir.OpTypeReshape, pattern.AnyOf(strided, slice), pattern.Any()).
			WithShape("?", "head_dims")
		indexGather := pattern.Op(ir.OpTypeGather, squeeze, gatherPositions2D, 0).
			WithAttrs(gatherBatchDims(0))

		// simplified variant gathering straight off the sliced table
		slice2 := pattern.Op(ir.OpTypeSlice, table, []int{0}, seqLen, []int{1}, []int{0})
		strided2 := genStridedSlice(table, []int{0}, seqLen, []int{1}, 0)
		indexGather2 := pattern.Op(ir.OpTypeGather, pattern.AnyOf(slice2, strided2), gatherPositions2D, 0).
			WithAttrs(gatherBatchDims(0))

		unsqueeze := pattern.Op(ir.OpTypeReshape, pattern.AnyOf(indexGather, indexGather2), pattern.Any()).
			WithShape(1, 1, "?", "head_dims")
		unsqueeze2 := pattern.Op(ir.OpTypeUnsqueeze, indexGather2, 1)
		return pattern.AnyOf(unsqueeze2, unsqueeze)
	}

	cosTab := pattern.AnyOf(prepareGPTNeoX(cosConst), prepareLlama(cosConst))
	sinTab := pattern.AnyOf(prepareGPTNeoX(sinConst), prepareLlama(sinConst))

	x := pattern.Any().WithRank(4)
	root := pattern.Op(ir.OpTypeRoPE, x, cosTab, sinTab)

	return rewrite.NewRule("cos-sin-preprocess", root, func(g *ir.Graph, m *pattern.Match) bool {
		ropeNode := m.Root
		cfg := ConfigOf(ropeNode)
		if cfg == nil {
			return false
		}
		cfg = cfg.Clone()

		oldCos := ropeNode.Input(1)
		oldSin := ropeNode.Input(2)
		if m.Has(cosConst) {
			ropeNode.SetInput(1, m.Node(cosConst))
		}
		if m.Has(sinConst) {
			ropeNode.SetInput(2, m.Node(sinConst))
		}

		if m.Has(gatherPositions) {
			cfg.GatherPositionArgID = ropeNode.NumInputs()
			ropeNode.AppendInput(m.Node(gatherPositions))
		} else if m.Has(gatherPositions2D) {
			cfg.GatherPositionArgID = ropeNode.NumInputs()
			ropeNode.AppendInput(m.Node(gatherPositions2D))
		}
		ropeNode.SetData(cfg)

		g.Prune(oldCos)
		g.Prune(oldSin)
		return true
	})
}
