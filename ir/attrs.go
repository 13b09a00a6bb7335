package ir

// Per-kind attribute payloads. Only attributes the source IR models as
// static node attributes live here; axes, permutations and target shapes
// that graphs encode as constant operands stay constant operands.
//
// Input conventions, mirroring the source IR:
//
//	Reshape(data, targetShape)            + *ReshapeAttrs
//	Squeeze(data, axes), Unsqueeze(data, axes)
//	Transpose(data, perm)
//	Concat(parts...)                      + *ConcatAttrs
//	Split(data, axis)                     + *SplitAttrs, multi-output
//	VariadicSplit(data, axis, lengths)    multi-output
//	Slice(data, start, stop, step, axes)
//	StridedSlice(data, begin, end, stride) + *StridedSliceAttrs
//	Gather(data, indices, axis)           + *GatherAttrs
//	GatherElements(data, indices)         + *GatherElementsAttrs
//	ScatterUpdate(data, indices, updates, axis)
//	Broadcast(value, targetShape, axesMapping)
//	MatMul(a, b)                          + *MatMulAttrs
//	ShapeOf(data), Cos(x), Sin(x), Add/Subtract/Multiply(lhs, rhs)
//
// Binary elementwise ops always use numpy-style broadcast semantics, so they
// carry no payload.

// ConcatAttrs configures a Concat node.
type ConcatAttrs struct {
	Axis int
}

// SplitAttrs configures a Split node; the split axis is a constant operand.
type SplitAttrs struct {
	NumSplits int
}

// ReshapeAttrs configures a Reshape node. SpecialZero gives target dimension
// 0 the meaning "copy from input" instead of a literal extent.
type ReshapeAttrs struct {
	SpecialZero bool
}

// GatherAttrs configures a Gather node.
type GatherAttrs struct {
	BatchDims int
}

// GatherElementsAttrs configures a GatherElements node.
type GatherElementsAttrs struct {
	Axis int
}

// StridedSliceAttrs configures a StridedSlice node. Mask entries are 0 or 1,
// per axis of the begin/end operands.
type StridedSliceAttrs struct {
	BeginMask      []int
	EndMask        []int
	NewAxisMask    []int
	ShrinkAxisMask []int
	EllipsisMask   []int
}

// MatMulAttrs configures a MatMul node.
type MatMulAttrs struct {
	TransposeA bool
	TransposeB bool
}

// BroadcastAttrs configures a Broadcast node.
type BroadcastAttrs struct {
	Mode string
}
