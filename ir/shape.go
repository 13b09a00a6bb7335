package ir

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// DynamicDim marks a dimension whose extent is unknown at rewrite time.
// Symbolic shape predicates never bind symbols to dynamic dimensions.
const DynamicDim = -1

// Shape of a value flowing on a graph edge: an element type plus an ordered
// list of dimensions. Each dimension is either a concrete extent (>= 0) or
// DynamicDim.
type Shape struct {
	DType      dtypes.DType
	Dimensions []int
}

// Make returns a Shape with the given element type and dimensions.
// It panics on dimensions that are neither non-negative nor DynamicDim.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	for _, dim := range dimensions {
		if dim < 0 && dim != DynamicDim {
			exceptions.Panicf("ir.Make(%s, %v): invalid dimension %d", dtype, dimensions, dim)
		}
	}
	return Shape{DType: dtype, Dimensions: append([]int(nil), dimensions...)}
}

// Scalar returns a rank-0 shape of the given element type.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns the invalid shape, used for nodes that have no single
// output value of their own (multi-output parents).
func Invalid() Shape { return Shape{DType: dtypes.InvalidDType} }

// Ok reports whether the shape holds a valid element type.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape. Scalars have rank 0.
func (s Shape) Rank() int { return len(s.Dimensions) }

// IsScalar reports whether the shape is rank-0.
func (s Shape) IsScalar() bool { return len(s.Dimensions) == 0 }

// Dim returns the dimension at the given axis. Negative axes count from the
// end, so Dim(-1) is the last dimension.
func (s Shape) Dim(axis int) int {
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.Rank()
	}
	if adjusted < 0 || adjusted >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d): axis out of range for rank %d", axis, s.Rank())
	}
	return s.Dimensions[adjusted]
}

// IsFullyDefined reports whether no dimension is dynamic.
func (s Shape) IsFullyDefined() bool {
	for _, dim := range s.Dimensions {
		if dim == DynamicDim {
			return false
		}
	}
	return true
}

// Size is the number of elements the shape holds, or DynamicDim if any
// dimension is dynamic.
func (s Shape) Size() int {
	size := 1
	for _, dim := range s.Dimensions {
		if dim == DynamicDim {
			return DynamicDim
		}
		size *= dim
	}
	return size
}

// Memory is the number of bytes needed to store a fully defined shape.
func (s Shape) Memory() uintptr {
	size := s.Size()
	if size == DynamicDim {
		exceptions.Panicf("Shape.Memory: shape %s is not fully defined", s)
	}
	return s.DType.Memory() * uintptr(size)
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dimensions: append([]int(nil), s.Dimensions...)}
}

// Equal reports whether both shapes have the same element type and the same
// dimensions, dynamic ones included.
func (s Shape) Equal(other Shape) bool {
	if s.DType != other.DType || len(s.Dimensions) != len(other.Dimensions) {
		return false
	}
	for i, dim := range s.Dimensions {
		if dim != other.Dimensions[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer: e.g. "F32[?, 32, 128]".
func (s Shape) String() string {
	if !s.Ok() {
		return "(invalid shape)"
	}
	parts := make([]string, 0, s.Rank())
	for _, dim := range s.Dimensions {
		if dim == DynamicDim {
			parts = append(parts, "?")
		} else {
			parts = append(parts, strconv.Itoa(dim))
		}
	}
	return s.DType.String() + "[" + strings.Join(parts, ", ") + "]"
}
