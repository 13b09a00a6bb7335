// Package ir provides the minimal dataflow-graph substrate the rewriting
// engine operates on: an arena of operator nodes connected by producer /
// consumer edges, with value shapes that may carry dynamic dimensions.
//
// It deliberately implements only the contract the matcher and the rewrite
// rules in packages pattern, rewrite and rope require: stable node identity,
// enumeration of a node's inputs and consumers, constant payload access and
// atomic subgraph splicing (see ReplaceNode). Execution, serialization and
// classic compiler optimizations (DCE, constant folding) belong to other
// layers.
package ir

// OpType is the closed enum of operator kinds known to the rewriting engine.
//
// Static per-kind attributes are carried in the node's data payload (see
// attrs.go). Axes and target shapes that the source IR encodes as constant
// operands stay constant operands here, so patterns can match them.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant

	OpTypeAdd
	OpTypeSubtract
	OpTypeMultiply
	OpTypeMatMul
	OpTypeBroadcast

	OpTypeReshape
	OpTypeSqueeze
	OpTypeUnsqueeze
	OpTypeTranspose
	OpTypeConcat
	OpTypeSplit
	OpTypeVariadicSplit
	OpTypeSlice
	OpTypeStridedSlice
	OpTypeGather
	OpTypeGatherElements
	OpTypeScatterUpdate
	OpTypeShapeOf

	OpTypeCos
	OpTypeSin

	// OpTypeRoPE is the fused rotary-positional-embedding node created by the
	// rules in package rope. Its data payload is a *rope.Config.
	OpTypeRoPE
)
