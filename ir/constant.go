package ir

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/x448/float16"
)

// Constant is the data payload of OpTypeConstant nodes: the raw value bytes
// in row-major order, little-endian. Keeping the payload as bytes makes the
// exact-equality check of the deduplication pass a plain byte compare.
type Constant struct {
	raw []byte
}

// Raw returns the constant's payload bytes. The slice is owned by the node.
func (c *Constant) Raw() []byte { return c.raw }

// ConstInts adds an integer constant node. Supported dtypes: Int32, Int64.
// A nil dims makes a 1-D constant of len(values); use []int{} for a scalar.
func (g *Graph) ConstInts(dtype dtypes.DType, dims []int, values ...int) *Node {
	if dims == nil {
		dims = []int{len(values)}
	}
	shape := Make(dtype, dims...)
	if shape.Size() != len(values) {
		exceptions.Panicf("graph %q: ConstInts shape %s needs %d values, got %d",
			g.name, shape, shape.Size(), len(values))
	}
	var raw []byte
	switch dtype {
	case dtypes.Int32:
		raw = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], uint32(int32(v)))
		}
	case dtypes.Int64:
		raw = make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(raw[8*i:], uint64(int64(v)))
		}
	default:
		exceptions.Panicf("graph %q: ConstInts does not support dtype %s", g.name, dtype)
	}
	return g.AddNode(OpTypeConstant, shape, &Constant{raw: raw})
}

// ConstFloats adds a floating-point constant node. Supported dtypes:
// Float16, Float32, Float64. See ConstInts for the dims convention.
func (g *Graph) ConstFloats(dtype dtypes.DType, dims []int, values ...float64) *Node {
	if dims == nil {
		dims = []int{len(values)}
	}
	shape := Make(dtype, dims...)
	if shape.Size() != len(values) {
		exceptions.Panicf("graph %q: ConstFloats shape %s needs %d values, got %d",
			g.name, shape, shape.Size(), len(values))
	}
	var raw []byte
	switch dtype {
	case dtypes.Float16:
		raw = make([]byte, 2*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint16(raw[2*i:], float16.Fromfloat32(float32(v)).Bits())
		}
	case dtypes.Float32:
		raw = make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(float32(v)))
		}
	case dtypes.Float64:
		raw = make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
		}
	default:
		exceptions.Panicf("graph %q: ConstFloats does not support dtype %s", g.name, dtype)
	}
	return g.AddNode(OpTypeConstant, shape, &Constant{raw: raw})
}

// ConstRaw adds a constant node from pre-encoded payload bytes.
func (g *Graph) ConstRaw(shape Shape, raw []byte) *Node {
	if want := shape.Memory(); uintptr(len(raw)) != want {
		exceptions.Panicf("graph %q: ConstRaw shape %s needs %d bytes, got %d",
			g.name, shape, want, len(raw))
	}
	return g.AddNode(OpTypeConstant, shape, &Constant{raw: append([]byte(nil), raw...)})
}

// ConstantPayload returns the Constant payload of a constant node, or nil.
func ConstantPayload(n *Node) *Constant {
	if n == nil || n.opType != OpTypeConstant {
		return nil
	}
	c, _ := n.data.(*Constant)
	return c
}

// ConstIntValues decodes an integer constant node's elements.
// ok is false if the node is not an integer constant.
func ConstIntValues(n *Node) (values []int, ok bool) {
	c := ConstantPayload(n)
	if c == nil {
		return nil, false
	}
	switch n.DType() {
	case dtypes.Int32:
		values = make([]int, len(c.raw)/4)
		for i := range values {
			values[i] = int(int32(binary.LittleEndian.Uint32(c.raw[4*i:])))
		}
	case dtypes.Int64:
		values = make([]int, len(c.raw)/8)
		for i := range values {
			values[i] = int(int64(binary.LittleEndian.Uint64(c.raw[8*i:])))
		}
	default:
		return nil, false
	}
	return values, true
}

// ConstFloatValues decodes a constant node's elements as float64, accepting
// both floating-point and integer dtypes. Patterns matching "multiply by -1"
// use this, since the negation constant shows up in either family.
func ConstFloatValues(n *Node) (values []float64, ok bool) {
	if ints, intOk := ConstIntValues(n); intOk {
		values = make([]float64, len(ints))
		for i, v := range ints {
			values[i] = float64(v)
		}
		return values, true
	}
	c := ConstantPayload(n)
	if c == nil {
		return nil, false
	}
	switch n.DType() {
	case dtypes.Float16:
		values = make([]float64, len(c.raw)/2)
		for i := range values {
			values[i] = float64(float16.Frombits(binary.LittleEndian.Uint16(c.raw[2*i:])).Float32())
		}
	case dtypes.Float32:
		values = make([]float64, len(c.raw)/4)
		for i := range values {
			values[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(c.raw[4*i:])))
		}
	case dtypes.Float64:
		values = make([]float64, len(c.raw)/8)
		for i := range values {
			values[i] = math.Float64frombits(binary.LittleEndian.Uint64(c.raw[8*i:]))
		}
	default:
		return nil, false
	}
	return values, true
}
