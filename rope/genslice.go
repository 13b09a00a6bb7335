package rope

import (
	"math"

	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
)

// int32Max marks "slice to the end" in converted models.
const int32Max = math.MaxInt32

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// stridedMasks matches the StridedSlice mask layout of a plain
// single-axis slice: every axis up to and including axis is masked out
// except axis itself, and no new/shrink/ellipsis axes.
func stridedMasks(axis int) func(any) bool {
	beginMask := make([]int, axis+1)
	endMask := make([]int, axis+1)
	for i := 0; i < axis; i++ {
		beginMask[i] = 1
		endMask[i] = 1
	}
	return pattern.Attrs[*ir.StridedSliceAttrs](func(attrs *ir.StridedSliceAttrs) bool {
		return intsEqual(attrs.BeginMask, beginMask) &&
			intsEqual(attrs.EndMask, endMask) &&
			len(attrs.NewAxisMask) == 0 &&
			len(attrs.ShrinkAxisMask) == 0 &&
			len(attrs.EllipsisMask) == 0
	})
}

// genSlice matches a single-axis slice of data in either of its two
// graph encodings: a Slice node, or a StridedSlice whose begin/end/stride
// vectors touch only the given axis. start, stop and step may be ints or
// *pattern.Symbols.
func genSlice(data *pattern.Pattern, start, stop, step any, axis int) *pattern.Pattern {
	slice := pattern.Op(ir.OpTypeSlice, data, start, stop, step, axis)

	begin := make([]any, axis+1)
	end := make([]any, axis+1)
	stride := make([]any, axis+1)
	for i := 0; i < axis; i++ {
		begin[i] = 0
		end[i] = 0
		stride[i] = 1
	}
	begin[axis] = start
	end[axis] = stop
	stride[axis] = step

	strided := pattern.Op(ir.OpTypeStridedSlice, data, begin, end, stride).
		WithAttrs(stridedMasks(axis))
	return pattern.AnyOf(slice, strided)
}

// genStridedSlice matches only the StridedSlice encoding, with
// begin/stop/step given as whole patterns (or constant shorthand) rather
// than per-axis scalars. Used where the slice bounds are computed
// subgraphs instead of constants.
func genStridedSlice(data *pattern.Pattern, start, stop, step any, axis int) *pattern.Pattern {
	return pattern.Op(ir.OpTypeStridedSlice, data, start, stop, step).
		WithAttrs(stridedMasks(axis))
}
