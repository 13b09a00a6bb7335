package rope

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
)

const (
	dtypeF32 = dtypes.Float32
	dtypeI32 = dtypes.Int32
)

func concatAxis(axis int) func(any) bool {
	return pattern.Attrs[*ir.ConcatAttrs](func(attrs *ir.ConcatAttrs) bool {
		return attrs.Axis == axis
	})
}

// reshapeSpecialZero matches Reshape's special-zero flag; a missing
// attribute payload counts as false.
func reshapeSpecialZero(want bool) func(any) bool {
	return func(data any) bool {
		attrs, ok := data.(*ir.ReshapeAttrs)
		if !ok {
			return !want
		}
		return attrs.SpecialZero == want
	}
}

func gatherBatchDims(want int) func(any) bool {
	return pattern.Attrs[*ir.GatherAttrs](func(attrs *ir.GatherAttrs) bool {
		return attrs.BatchDims == want
	})
}

// anyConstant matches any constant node regardless of payload.
func anyConstant() *pattern.Pattern {
	return pattern.ConstWhere(func(n *ir.Node) bool { return true })
}

func constWithDType(dtype dtypes.DType) *pattern.Pattern {
	return pattern.ConstWhere(func(n *ir.Node) bool { return n.DType() == dtype })
}
