package rewrite

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(dims ...int) ir.Shape { return ir.Make(dtypes.Float32, dims...) }

// fuseSinCos rewrites Sin(Cos(x)) into a single Cos(x) node, a stand-in
// motif with the same splice mechanics real rules use.
func fuseSinCos() Rule {
	px := pattern.Any()
	root := pattern.Op(ir.OpTypeSin, pattern.Op(ir.OpTypeCos, px))
	return NewRule("fuse-sin-cos", root, func(g *ir.Graph, m *pattern.Match) bool {
		x := m.Node(px)
		fused := g.AddNode(ir.OpTypeCos, m.Root.Shape(), nil, x)
		ir.CopyOrigins([]*ir.Node{m.Root}, fused)
		g.ReplaceNode(m.Root, fused)
		return true
	})
}

func TestPatternRuleRewrites(t *testing.T) {
	g := ir.New("test")
	x := g.Parameter("x", f32(4))
	cos := g.AddNode(ir.OpTypeCos, f32(4), nil, x)
	sin := g.AddNode(ir.OpTypeSin, f32(4), nil, cos)
	sink := g.AddNode(ir.OpTypeAdd, f32(4), nil, sin, x)

	pass := NewPass("test").Register(fuseSinCos())
	require.True(t, pass.Run(g))
	g.MustValidate()

	fused := sink.Input(0)
	assert.Equal(t, ir.OpTypeCos, fused.Type())
	assert.Equal(t, x, fused.Input(0))
	assert.True(t, sin.IsDead())
	assert.True(t, cos.IsDead())

	// Nothing left to match: a second run is a no-op.
	assert.False(t, pass.Run(g))
}

func TestCallbackDecline(t *testing.T) {
	// A callback that declines must leave the graph untouched and the
	// pass reports no change.
	px := pattern.Any()
	root := pattern.Op(ir.OpTypeCos, px)
	declined := 0
	rule := NewRule("decline", root, func(g *ir.Graph, m *pattern.Match) bool {
		declined++
		return false
	})

	g := ir.New("test")
	x := g.Parameter("x", f32(4))
	g.AddNode(ir.OpTypeCos, f32(4), nil, x)

	numNodes := g.NumNodes()
	assert.False(t, NewPass("test").Register(rule).Run(g))
	assert.Equal(t, 1, declined)
	assert.Equal(t, numNodes, g.NumNodes())
}

func TestChainedMotifsCollapseInOneSweep(t *testing.T) {
	// Rewriting the inner Sin(Cos(x)) retargets the outer motif onto
	// the freshly appended node, and the sweep still recognizes the
	// outer motif when it reaches it.
	g := ir.New("test")
	x := g.Parameter("x", f32(4))
	c1 := g.AddNode(ir.OpTypeCos, f32(4), nil, x)
	s1 := g.AddNode(ir.OpTypeSin, f32(4), nil, c1)
	c2 := g.AddNode(ir.OpTypeCos, f32(4), nil, s1)
	s2 := g.AddNode(ir.OpTypeSin, f32(4), nil, c2)
	sink := g.AddNode(ir.OpTypeAdd, f32(4), nil, s2, x)

	require.True(t, NewPass("test").Register(fuseSinCos()).Run(g))
	g.MustValidate()

	// Both motifs collapsed: sink now sees Cos(Cos(x)).
	top := sink.Input(0)
	assert.Equal(t, ir.OpTypeCos, top.Type())
	assert.Equal(t, ir.OpTypeCos, top.Input(0).Type())
	assert.Equal(t, x, top.Input(0).Input(0))
}

func TestPipelineOrder(t *testing.T) {
	var order []string
	mk := func(name string) Pass {
		return NewPass(name).Register(NewRule(name, pattern.Any(), func(g *ir.Graph, m *pattern.Match) bool {
			if len(order) == 0 || order[len(order)-1] != name {
				order = append(order, name)
			}
			return false
		}))
	}

	g := ir.New("test")
	g.Parameter("x", f32(2))

	pl := NewPipeline("test").Register(mk("first"), mk("second"))
	pl.RegisterRules("third", NewRule("third", pattern.Any(), func(g *ir.Graph, m *pattern.Match) bool {
		order = append(order, "third")
		return false
	}))
	// A Pipeline is itself a Pass, so pipelines nest.
	pl.Register(NewPipeline("nested").Register(mk("fourth")))
	assert.False(t, pl.Run(g))
	assert.Equal(t, []string{"first", "second", "third", "fourth"}, order)
}
