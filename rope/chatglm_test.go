package rope

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/rewrite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vecI32 builds a 1-D i32 constant.
func vecI32(g *ir.Graph, values ...int) *ir.Node {
	return g.ConstInts(dtypes.Int32, nil, values...)
}

// buildChatGLM builds the ChatGLM rotary motif on a [seq=7, batch=2,
// 3*H*S=192] combined qkv projection, H=4, S=16, rotating ndims=8 of the
// head. outID selects the query (0) or key (1) block; pairView encodes
// the even/odd lanes back to rank 5, either as an Unsqueeze or as a
// Reshape carrying explicit layout constants.
func buildChatGLM(outID int, pairView func(g *ir.Graph, half *ir.Node) *ir.Node) (g *ir.Graph, qkv, cache, sink *ir.Node) {
	g = ir.New("chatglm")
	qkv = g.Parameter("qkv", f32(7, 2, 192))
	cache = g.Parameter("cossin", f32(16, 2, 1, 8))
	seqLen := g.Parameter("seq_len", i32(1))

	split := g.AddMultiOutputNode(ir.OpTypeVariadicSplit,
		[]ir.Shape{f32(7, 2, 64), f32(7, 2, 64), f32(7, 2, 64)},
		nil, qkv, scalarI32(g, -1), vecI32(g, 64, 64, 64))
	key := g.AddNode(ir.OpTypeReshape, f32(7, 2, 4, 16), &ir.ReshapeAttrs{SpecialZero: true},
		split.Out(outID), vecI32(g, 0, 0, 4, 16))

	rot := slice4(g, f32(7, 2, 4, 8), key, 0, 8, 1, 3)
	pairs := g.AddNode(ir.OpTypeReshape, f32(7, 2, 4, 4, 2), nil,
		rot, vecI32(g, 0, 0, 4, 4, 2))
	xEven := g.AddNode(ir.OpTypeGather, f32(7, 2, 4, 4), &ir.GatherAttrs{},
		pairs, scalarI32(g, 0), scalarI32(g, -1))
	xOdd := g.AddNode(ir.OpTypeGather, f32(7, 2, 4, 4), &ir.GatherAttrs{},
		pairs, scalarI32(g, 1), scalarI32(g, -1))

	view := g.AddNode(ir.OpTypeSlice, f32(7, 2, 1, 8), nil, cache,
		vecI32(g, 0), seqLen, vecI32(g, 1), vecI32(g, 0))
	tables := g.AddNode(ir.OpTypeReshape, f32(7, 2, 1, 4, 2), nil,
		view, vecI32(g, 7, 2, 1, 4, 2))
	cosTab := g.AddNode(ir.OpTypeGather, f32(7, 2, 1, 4), &ir.GatherAttrs{},
		tables, scalarI32(g, 0), scalarI32(g, -1))
	sinTab := g.AddNode(ir.OpTypeGather, f32(7, 2, 1, 4), &ir.GatherAttrs{},
		tables, scalarI32(g, 1), scalarI32(g, -1))

	evenCos := g.AddNode(ir.OpTypeMultiply, f32(7, 2, 4, 4), nil, xEven, cosTab)
	oddSin := g.AddNode(ir.OpTypeMultiply, f32(7, 2, 4, 4), nil, xOdd, sinTab)
	negOddSin := g.AddNode(ir.OpTypeMultiply, f32(7, 2, 4, 4), nil, oddSin, scalarF32(g, -1))
	even := g.AddNode(ir.OpTypeAdd, f32(7, 2, 4, 4), nil, evenCos, negOddSin)
	oddCos := g.AddNode(ir.OpTypeMultiply, f32(7, 2, 4, 4), nil, xOdd, cosTab)
	evenSin := g.AddNode(ir.OpTypeMultiply, f32(7, 2, 4, 4), nil, xEven, sinTab)
	odd := g.AddNode(ir.OpTypeAdd, f32(7, 2, 4, 4), nil, oddCos, evenSin)

	stack := g.AddNode(ir.OpTypeConcat, f32(7, 2, 4, 4, 2), &ir.ConcatAttrs{Axis: -1},
		pairView(g, even), pairView(g, odd))
	flat := g.AddNode(ir.OpTypeReshape, f32(7, 2, 4, 8), &ir.ReshapeAttrs{SpecialZero: true},
		stack, vecI32(g, 0, 0, 4, 8))
	tail := slice4(g, f32(7, 2, 4, 8), key, 8, int32Max, 1, 3)
	out := g.AddNode(ir.OpTypeConcat, f32(7, 2, 4, 16), &ir.ConcatAttrs{Axis: -1}, flat, tail)
	sink = g.AddNode(ir.OpTypeCos, out.Shape(), nil, out)
	return g, qkv, cache, sink
}

func unsqueezePair(g *ir.Graph, half *ir.Node) *ir.Node {
	return g.AddNode(ir.OpTypeUnsqueeze, f32(7, 2, 4, 4, 1), nil, half, scalarI32(g, -1))
}

func reshapePair(a, b, c int) func(g *ir.Graph, half *ir.Node) *ir.Node {
	return func(g *ir.Graph, half *ir.Node) *ir.Node {
		return g.AddNode(ir.OpTypeReshape, f32(7, 2, 4, 4, 1), nil,
			half, vecI32(g, a, b, c, 4, 1))
	}
}

func TestChatGLMFusion(t *testing.T) {
	cases := []struct {
		name     string
		outID    int
		pairView func(g *ir.Graph, half *ir.Node) *ir.Node
		start    int
		stop     int
	}{
		{"query-unsqueeze", 0, unsqueezePair, 0, 64},
		{"key-unsqueeze", 1, unsqueezePair, 64, 128},
		// (-1, head_cnt, 1) is the ChatGLM4 pair-reshape layout.
		{"query-reshape", 0, reshapePair(-1, 4, 1), 0, 64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, qkv, cache, sink := buildChatGLM(tc.outID, tc.pairView)
			pass := rewrite.NewPass("test").Register(newChatGLMRule(tc.outID, false))
			require.True(t, pass.Run(g))
			g.MustValidate()

			fused := findFused(g)
			require.NotNil(t, fused)
			assert.Equal(t, fused, sink.Input(0))
			assert.Equal(t, []*ir.Node{qkv, cache, cache}, fused.Inputs())
			assert.Equal(t, f32(7, 2, 4, 16), fused.Shape())

			cfg := ConfigOf(fused)
			require.NotNil(t, cfg)
			assert.True(t, cfg.IsChatGLM)
			assert.True(t, cfg.UseRopeCache)
			assert.False(t, cfg.Support2DRope)
			assert.Equal(t, 8, cfg.RotaryNdims)
			assert.Equal(t, 4, cfg.HeadCnt)
			assert.Equal(t, 16, cfg.HeadSize)
			assert.Equal(t, tc.start, cfg.SliceStart)
			assert.Equal(t, tc.stop, cfg.SliceStop)

			// Only the graph inputs, the fused node and its consumer
			// survive. The qkv split stays: its other two outputs are
			// dangling here, where a real model reads them.
			for _, n := range g.Nodes() {
				switch n.Type() {
				case ir.OpTypeParameter, ir.OpTypeRoPE, ir.OpTypeCos,
					ir.OpTypeVariadicSplit, ir.OpTypeConstant:
				default:
					t.Errorf("residual %s node #%d survived the fusion", n.Type(), n.ID())
				}
			}
			assert.False(t, pass.Run(g))
		})
	}
}

func TestChatGLMRejectsUnknownReshapeLayout(t *testing.T) {
	// (2, head_cnt, 1) matches no known export layout, so the candidate
	// is dropped instead of fused.
	g, _, _, _ := buildChatGLM(0, reshapePair(2, 4, 1))
	before := len(g.Nodes())

	pass := rewrite.NewPass("test").Register(newChatGLMRule(0, false))
	assert.False(t, pass.Run(g))
	assert.Nil(t, findFused(g))
	assert.Equal(t, before, len(g.Nodes()))
}

func TestChatGLM2DFusion(t *testing.T) {
	// Paged-attention layout: [batch=2, seq=1, 3*H*S], the head view
	// produced by a reshape instead of a transpose, the cos/sin cache
	// sliced on axis 1 and the whole head rotated, so there is no
	// pass-through tail and the flatten reshape is the motif root.
	g := ir.New("chatglm-2d")
	qkv := g.Parameter("qkv", f32(2, 1, 192))
	cache := g.Parameter("cossin", f32(2, 16, 8, 2))
	seqLen := g.Parameter("seq_len", i32(1))

	split := g.AddMultiOutputNode(ir.OpTypeVariadicSplit,
		[]ir.Shape{f32(2, 1, 64), f32(2, 1, 64), f32(2, 1, 64)},
		nil, qkv, scalarI32(g, -1), vecI32(g, 64, 64, 64))
	key := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 16), nil,
		split.Out(0), vecI32(g, -1, 4, 1, 16))

	rot := slice4(g, f32(2, 4, 1, 16), key, 0, 16, 1, 3)
	pairs := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 8, 2), &ir.ReshapeAttrs{SpecialZero: true},
		rot, vecI32(g, 0, 4, 0, 8, 2))
	xEven := g.AddNode(ir.OpTypeGather, f32(2, 4, 1, 8), &ir.GatherAttrs{},
		pairs, scalarI32(g, 0), scalarI32(g, -1))
	xOdd := g.AddNode(ir.OpTypeGather, f32(2, 4, 1, 8), &ir.GatherAttrs{},
		pairs, scalarI32(g, 1), scalarI32(g, -1))

	view := g.AddNode(ir.OpTypeSlice, f32(2, 1, 8, 2), nil, cache,
		vecI32(g, 0), seqLen, vecI32(g, 1), vecI32(g, 1))
	tables := g.AddNode(ir.OpTypeReshape, f32(2, 1, 1, 8, 2), nil,
		view, vecI32(g, 2, 1, 1, 8, 2))
	cosTab := g.AddNode(ir.OpTypeGather, f32(2, 1, 1, 8), &ir.GatherAttrs{},
		tables, scalarI32(g, 0), scalarI32(g, -1))
	sinTab := g.AddNode(ir.OpTypeGather, f32(2, 1, 1, 8), &ir.GatherAttrs{},
		tables, scalarI32(g, 1), scalarI32(g, -1))

	evenCos := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, xEven, cosTab)
	oddSin := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, xOdd, sinTab)
	negOddSin := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, oddSin, scalarF32(g, -1))
	even := g.AddNode(ir.OpTypeAdd, f32(2, 4, 1, 8), nil, evenCos, negOddSin)
	oddCos := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, xOdd, cosTab)
	evenSin := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, xEven, sinTab)
	odd := g.AddNode(ir.OpTypeAdd, f32(2, 4, 1, 8), nil, oddCos, evenSin)

	yEven := g.AddNode(ir.OpTypeUnsqueeze, f32(2, 4, 1, 8, 1), nil, even, scalarI32(g, -1))
	yOdd := g.AddNode(ir.OpTypeUnsqueeze, f32(2, 4, 1, 8, 1), nil, odd, scalarI32(g, -1))
	stack := g.AddNode(ir.OpTypeConcat, f32(2, 4, 1, 8, 2), &ir.ConcatAttrs{Axis: -1}, yEven, yOdd)
	out := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 16), &ir.ReshapeAttrs{SpecialZero: true},
		stack, vecI32(g, 2, 4, 1, 16))
	sink := g.AddNode(ir.OpTypeCos, out.Shape(), nil, out)

	pass := rewrite.NewPass("test").Register(newChatGLMRule(0, true))
	require.True(t, pass.Run(g))
	g.MustValidate()

	fused := findFused(g)
	require.NotNil(t, fused)
	assert.Equal(t, fused, sink.Input(0))
	assert.Equal(t, []*ir.Node{qkv, cache, cache}, fused.Inputs())
	assert.Equal(t, f32(2, 4, 1, 16), fused.Shape())

	cfg := ConfigOf(fused)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsChatGLM)
	assert.True(t, cfg.Support2DRope)
	assert.True(t, cfg.UseRopeCache)
	assert.Equal(t, 16, cfg.RotaryNdims)
	assert.Equal(t, 4, cfg.HeadCnt)
	assert.Equal(t, 16, cfg.HeadSize)
	assert.Equal(t, 0, cfg.SliceStart)
	assert.Equal(t, 64, cfg.SliceStop)
	for _, old := range []*ir.Node{key, rot, pairs, tables, stack, out} {
		assert.True(t, old.IsDead())
		assert.Zero(t, old.NumConsumers())
	}
	assert.False(t, pass.Run(g))
}

func TestChatGLMHFFusion(t *testing.T) {
	// Single-token HuggingFace export: cos/sin come in halved and are
	// repeated along the last axis with a [0,0,1,1,...] gather.
	g := ir.New("chatglm-hf")
	qk := g.Parameter("qk", f32(2, 1, 64))
	cos := g.Parameter("cos", f32(2, 1, 1, 4))
	sin := g.Parameter("sin", f32(2, 1, 1, 4))

	heads := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 16), nil,
		qk, vecI32(g, 2, 4, 1, 16))
	rot := slice4(g, f32(2, 4, 1, 8), heads, 0, 8, 1, 3)

	idx := vecI32(g, 0, 0, 1, 1, 2, 2, 3, 3)
	repCos := g.AddNode(ir.OpTypeGather, f32(2, 1, 1, 8), &ir.GatherAttrs{},
		cos, idx, scalarI32(g, -1))
	repSin := g.AddNode(ir.OpTypeGather, f32(2, 1, 1, 8), &ir.GatherAttrs{},
		sin, idx, scalarI32(g, -1))

	mulCos := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, rot, repCos)
	oddSl := slice4(g, f32(2, 4, 1, 4), rot, 1, int32Max, 2, 3)
	neg := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 4), nil, oddSl, scalarF32(g, -1))
	negView := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 4, 1), nil,
		neg, vecI32(g, 2, 4, 1, 4, 1))
	evenSl := slice4(g, f32(2, 4, 1, 4), rot, 0, int32Max, 2, 3)
	evenView := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 4, 1), nil,
		evenSl, vecI32(g, 2, 4, 1, 4, 1))
	stack := g.AddNode(ir.OpTypeConcat, f32(2, 4, 1, 4, 2), &ir.ConcatAttrs{Axis: -1},
		negView, evenView)
	flat := g.AddNode(ir.OpTypeReshape, f32(2, 4, 1, 8), &ir.ReshapeAttrs{SpecialZero: true},
		stack, vecI32(g, 2, 4, 1, 8))
	mulSin := g.AddNode(ir.OpTypeMultiply, f32(2, 4, 1, 8), nil, flat, repSin)
	add := g.AddNode(ir.OpTypeAdd, f32(2, 4, 1, 8), nil, mulCos, mulSin)
	tail := slice4(g, f32(2, 4, 1, 8), heads, 8, int32Max, 1, 3)
	out := g.AddNode(ir.OpTypeConcat, f32(2, 4, 1, 16), &ir.ConcatAttrs{Axis: -1}, add, tail)
	sink := g.AddNode(ir.OpTypeCos, out.Shape(), nil, out)

	pass := rewrite.NewPass("test").Register(newChatGLMHFRule())
	require.True(t, pass.Run(g))
	g.MustValidate()

	fused := findFused(g)
	require.NotNil(t, fused)
	assert.Equal(t, fused, sink.Input(0))
	assert.Equal(t, []*ir.Node{qk, cos, sin}, fused.Inputs())
	assert.Equal(t, f32(2, 4, 1, 16), fused.Shape())

	cfg := ConfigOf(fused)
	require.NotNil(t, cfg)
	assert.True(t, cfg.IsChatGLM)
	assert.True(t, cfg.Support2DRope)
	assert.False(t, cfg.UseRopeCache)
	assert.Equal(t, 8, cfg.RotaryNdims)
	assert.Equal(t, 4, cfg.HeadCnt)
	assert.Equal(t, 16, cfg.HeadSize)
	for _, old := range []*ir.Node{heads, rot, flat, add, out} {
		assert.True(t, old.IsDead())
		assert.Zero(t, old.NumConsumers())
	}
	assert.False(t, pass.Run(g))
}
