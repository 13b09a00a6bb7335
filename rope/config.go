// Package rope fuses rotary positional embedding motifs into single nodes.
//
// The rules recognize the subgraph lowerings produced by popular
// transformer families (GPT-NeoX, GPT-J, ChatGLM, Qwen, Flux and the
// llama-style cos/sin preparation) and replace each with one node
// carrying a Config. A final sharing pass deduplicates identical cos/sin
// table computations across layers.
package rope

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/pkg/errors"
)

// Config is the payload of a fused rotary-embedding node. It fully
// determines the node's semantics: which slice of a combined qkv
// projection it reads, the input/output layouts, the rotated fraction of
// the head and the model-family interpretation of the cos/sin inputs.
type Config struct {
	// SliceStart and SliceStop select the q (or k) block out of a
	// combined qkv projection on the last axis. Both zero means the
	// input is not sliced.
	SliceStart int
	SliceStop  int

	// InputTrans0213 transposes the input from [B,L,H,S] to [B,H,L,S]
	// before rotation.
	InputTrans0213 bool

	// OutputTrans0213 transposes the output the same way, folded in
	// from a trailing Transpose consumer.
	OutputTrans0213 bool

	// IsInterleaved selects the even/odd pairing of rotated lanes
	// instead of the rotate-half layout.
	IsInterleaved bool

	// RotaryNdims is how many of the head's dims are rotated. Usually
	// equals HeadSize, smaller when only a fraction is embedded.
	RotaryNdims int

	IsChatGLM     bool
	Support2DRope bool
	UseRopeCache  bool
	IsQwen        bool

	HeadCnt  int
	HeadSize int

	// GatherPositionArgID is the input index of an optional position
	// ids tensor used to gather rows from the cos/sin tables, or zero
	// when positions are not gathered.
	GatherPositionArgID int
}

// Clone returns a copy, so in-place node reconfiguration never aliases
// another node's Config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// ConfigOf returns the Config of a fused rotary-embedding node, or nil
// when n is not one.
func ConfigOf(n *ir.Node) *Config {
	if n == nil || n.Type() != ir.OpTypeRoPE {
		return nil
	}
	cfg, _ := ir.DataOf[*Config](n)
	return cfg
}

// inferShape computes the output shape of a fused node from its Config
// and data input. It mirrors the layout transformations the Config
// encodes, so a Config inconsistent with the input is caught before any
// graph mutation.
func inferShape(cfg *Config, data *ir.Node) (ir.Shape, error) {
	in := data.Shape()
	switch {
	case cfg.IsQwen:
		// Input is the combined [B, L, 3*H*S] qkv projection.
		if in.Rank() != 3 {
			return ir.Shape{}, errors.Errorf("qwen rotary embedding wants a rank-3 qkv input, got %s", in)
		}
		return ir.Make(in.DType, in.Dim(0), in.Dim(1), cfg.HeadCnt, cfg.HeadSize), nil
	case cfg.IsChatGLM:
		if in.Rank() != 3 {
			return ir.Shape{}, errors.Errorf("chatglm rotary embedding wants a rank-3 qkv input, got %s", in)
		}
		if cfg.Support2DRope {
			// [B, L, 3*H*S] -> [B, H, L, S]
			return ir.Make(in.DType, in.Dim(0), cfg.HeadCnt, in.Dim(1), cfg.HeadSize), nil
		}
		// [L, B, 3*H*S] -> [L, B, H, S]
		return ir.Make(in.DType, in.Dim(0), in.Dim(1), cfg.HeadCnt, cfg.HeadSize), nil
	default:
		if in.Rank() != 4 {
			return ir.Shape{}, errors.Errorf("rotary embedding wants a rank-4 input, got %s", in)
		}
		dims := []int{in.Dim(0), in.Dim(1), in.Dim(2), in.Dim(3)}
		if cfg.SliceStop > cfg.SliceStart {
			dims[3] = cfg.SliceStop - cfg.SliceStart
		}
		if cfg.InputTrans0213 {
			dims[1], dims[2] = dims[2], dims[1]
		}
		if cfg.OutputTrans0213 {
			dims[1], dims[2] = dims[2], dims[1]
		}
		return ir.Make(in.DType, dims...), nil
	}
}

// NewNode validates cfg against the data input, then adds a fused
// rotary-embedding node to g. Inputs are (data, cos, sin) plus an
// optional position-ids tensor.
func NewNode(g *ir.Graph, cfg *Config, inputs ...*ir.Node) (*ir.Node, error) {
	if len(inputs) < 3 {
		return nil, errors.Errorf("rotary embedding node wants at least (data, cos, sin) inputs, got %d", len(inputs))
	}
	shape, err := inferShape(cfg, inputs[0])
	if err != nil {
		return nil, err
	}
	return g.AddNode(ir.OpTypeRoPE, shape, cfg, inputs...), nil
}
