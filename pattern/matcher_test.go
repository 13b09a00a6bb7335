package pattern

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/rewriter/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32(dims ...int) ir.Shape { return ir.Make(dtypes.Float32, dims...) }

func TestMatchSimpleChain(t *testing.T) {
	g := ir.New("test")
	x := g.Parameter("x", f32(2, 4))
	cos := g.AddNode(ir.OpTypeCos, x.Shape(), nil, x)
	sin := g.AddNode(ir.OpTypeSin, x.Shape(), nil, cos)

	px := Any().WithRank(2)
	pat := Op(ir.OpTypeSin, Op(ir.OpTypeCos, px))
	m, ok := MatchNode(pat, sin)
	require.True(t, ok)
	assert.Equal(t, x, m.Node(px))
	assert.Equal(t, sin, m.Root)

	// Wrong root kind fails without touching anything.
	_, ok = MatchNode(pat, cos)
	assert.False(t, ok)
}

func TestSharedPatternBindsSameNode(t *testing.T) {
	g := ir.New("test")
	x := g.Parameter("x", f32(2))
	y := g.Parameter("y", f32(2))
	same := g.AddNode(ir.OpTypeAdd, f32(2), nil, x, x)
	mixed := g.AddNode(ir.OpTypeAdd, f32(2), nil, x, y)

	operand := Any()
	pat := Op(ir.OpTypeAdd, operand, operand)
	_, ok := MatchNode(pat, same)
	assert.True(t, ok)
	_, ok = MatchNode(pat, mixed)
	assert.False(t, ok)
}

func TestAlternationCoverage(t *testing.T) {
	// Two encodings of "negate": x*(-1) and 0-x. One rule pattern covers
	// both, binding the input equivalently.
	px := Any().WithShape("b", "d")
	encodingA := Op(ir.OpTypeMultiply, px, ConstF(-1))
	encodingB := Op(ir.OpTypeSubtract, ConstF(0), px)
	neg := AnyOf(encodingA, encodingB)

	g := ir.New("test")
	x := g.Parameter("x", f32(2, 8))
	viaMul := g.AddNode(ir.OpTypeMultiply, x.Shape(), nil, x, g.ConstFloats(dtypes.Float32, []int{}, -1))
	viaSub := g.AddNode(ir.OpTypeSubtract, x.Shape(), nil, g.ConstFloats(dtypes.Float32, []int{}, 0), x)

	mA, ok := MatchNode(neg, viaMul)
	require.True(t, ok)
	assert.True(t, mA.Has(encodingA))
	assert.False(t, mA.Has(encodingB))

	mB, ok := MatchNode(neg, viaSub)
	require.True(t, ok)
	assert.True(t, mB.Has(encodingB))
	assert.Equal(t, x, mB.Node(px))

	// Both alternatives bind the same symbols to equivalent values.
	for _, m := range []*Match{mA, mB} {
		d, resolved := m.Symbols.Resolve("d")
		require.True(t, resolved)
		assert.Equal(t, 8, d)
	}
}

func TestFailedAlternativeLeavesNoBindings(t *testing.T) {
	// encodingA binds symbol "d" before failing on the constant; the
	// successful encodingB must not see the stale binding.
	px := Any().WithShape("d")
	encodingA := Op(ir.OpTypeMultiply, px.WithName("a"), ConstF(-1))
	other := Any().WithShape(Sym("d").Mul(2))
	encodingB := Op(ir.OpTypeMultiply, other, ConstF(2))

	g := ir.New("test")
	x := g.Parameter("x", f32(8))
	two := g.ConstFloats(dtypes.Float32, []int{}, 2)
	doubled := g.AddNode(ir.OpTypeMultiply, f32(8), nil, x, two)

	m, ok := MatchNode(AnyOf(encodingA, encodingB), doubled)
	require.True(t, ok)
	d, resolved := m.Symbols.Resolve("d")
	require.True(t, resolved)
	assert.Equal(t, 4, d)
}

func TestOptionalNode(t *testing.T) {
	inner := Any()
	pat := Op(ir.OpTypeCos, Optional(ir.OpTypeSqueeze, inner, Const(-1)))

	// Present.
	g := ir.New("with")
	x := g.Parameter("x", f32(2, 4, 1))
	squeeze := g.AddNode(ir.OpTypeSqueeze, f32(2, 4), nil, x, g.ConstInts(dtypes.Int32, []int{}, -1))
	root := g.AddNode(ir.OpTypeCos, f32(2, 4), nil, squeeze)
	m, ok := MatchNode(pat, root)
	require.True(t, ok)
	assert.Equal(t, x, m.Node(inner))

	// Absent: the optional transparently matches its passthrough input.
	g2 := ir.New("without")
	x2 := g2.Parameter("x", f32(2, 4))
	root2 := g2.AddNode(ir.OpTypeCos, f32(2, 4), nil, x2)
	m, ok = MatchNode(pat, root2)
	require.True(t, ok)
	assert.Equal(t, x2, m.Node(inner))

	// Present but with a different axis constant: the wrapped form is
	// rejected, and the passthrough binds the squeeze node itself.
	g3 := ir.New("other-axis")
	x3 := g3.Parameter("x", f32(1, 2, 4))
	squeeze3 := g3.AddNode(ir.OpTypeSqueeze, f32(2, 4), nil, x3, g3.ConstInts(dtypes.Int32, []int{}, 0))
	root3 := g3.AddNode(ir.OpTypeCos, f32(2, 4), nil, squeeze3)
	m, ok = MatchNode(pat, root3)
	require.True(t, ok)
	assert.Equal(t, squeeze3, m.Node(inner))
}

func TestSymbolMismatchRejectsMatch(t *testing.T) {
	// The same symbol bound at two sites with different concrete dims
	// must fail the match.
	px := Any().WithShape("b", "n")
	py := Any().WithShape("b", "n")
	pat := Op(ir.OpTypeAdd, px, py)

	g := ir.New("test")
	x := g.Parameter("x", f32(2, 8))
	y := g.Parameter("y", f32(2, 9))
	sum := g.AddNode(ir.OpTypeAdd, f32(2, 9), nil, x, y)
	_, ok := MatchNode(pat, sum)
	assert.False(t, ok)

	g2 := ir.New("test2")
	x2 := g2.Parameter("x", f32(2, 8))
	y2 := g2.Parameter("y", f32(2, 8))
	sum2 := g2.AddNode(ir.OpTypeAdd, f32(2, 8), nil, x2, y2)
	_, ok = MatchNode(pat, sum2)
	assert.True(t, ok)
}

func TestShapeTemplates(t *testing.T) {
	g := ir.New("test")
	x := g.Parameter("x", ir.Make(dtypes.Float32, ir.DynamicDim, 24, ir.DynamicDim, 128))

	// Ellipsis groups capture dynamic dims; symbols never bind them.
	m, ok := MatchNode(Any().WithShape("PRESERVED_DIMS...", "head_size"), x)
	require.True(t, ok)
	assert.Equal(t, []int{ir.DynamicDim, 24, ir.DynamicDim}, m.Symbols.Group("PRESERVED_DIMS"))
	head, _ := m.Symbols.Resolve("head_size")
	assert.Equal(t, 128, head)

	_, ok = MatchNode(Any().WithShape("a", "b", "c", "d"), x)
	assert.False(t, ok, "symbols must not bind dynamic dimensions")

	m, ok = MatchNode(Any().WithShape("?", 24, "?", "head_size"), x)
	require.True(t, ok)

	_, ok = MatchNode(Any().WithShape("?", "?"), x)
	assert.False(t, ok, "rank mismatch")

	// Prefix dims before the group.
	m, ok = MatchNode(Any().WithShape("?", "MID...", 128), x)
	require.True(t, ok)
	assert.Equal(t, []int{24, ir.DynamicDim}, m.Symbols.Group("MID"))
}

func TestMultiOutputPatterns(t *testing.T) {
	g := ir.New("test")
	x := g.Parameter("x", f32(4, 8))
	axis := g.ConstInts(dtypes.Int32, []int{}, -1)
	split := g.AddMultiOutputNode(ir.OpTypeSplit,
		[]ir.Shape{f32(4, 4), f32(4, 4)},
		&ir.SplitAttrs{NumSplits: 2}, x, axis)
	root := g.AddNode(ir.OpTypeConcat, f32(4, 8), &ir.ConcatAttrs{Axis: -1},
		split.Out(1), split.Out(0))

	px := Any()
	psplit := Op(ir.OpTypeSplit, px, Const(-1)).
		WithAttrs(Attrs[*ir.SplitAttrs](func(a *ir.SplitAttrs) bool { return a.NumSplits == 2 })).
		WithOutputs(2)
	pat := Op(ir.OpTypeConcat, psplit.Out(1), psplit.Out(0)).
		WithAttrs(Attrs[*ir.ConcatAttrs](func(a *ir.ConcatAttrs) bool { return a.Axis == -1 }))

	m, ok := MatchNode(pat, root)
	require.True(t, ok)
	assert.Equal(t, x, m.Node(px))
	assert.Equal(t, split, m.Node(psplit))

	// Swapped outputs do not match.
	swapped := Op(ir.OpTypeConcat, psplit.Out(0), psplit.Out(1))
	_, ok = MatchNode(swapped, root)
	assert.False(t, ok)
}

func TestConstPatterns(t *testing.T) {
	g := ir.New("test")
	perm := g.ConstInts(dtypes.Int32, nil, 0, 2, 1, 3)

	_, ok := MatchNode(Const(0, 2, 1, 3), perm)
	assert.True(t, ok)
	_, ok = MatchNode(Const(0, 1, 2, 3), perm)
	assert.False(t, ok)

	// Symbolic elements bind.
	m, ok := MatchNode(Const(0, "a", "b", 3), perm)
	require.True(t, ok)
	a, _ := m.Symbols.Resolve("a")
	b, _ := m.Symbols.Resolve("b")
	assert.Equal(t, 2, a)
	assert.Equal(t, 1, b)

	// Float constants accept int payloads and both scalar encodings.
	scalar := g.ConstFloats(dtypes.Float32, []int{}, -1)
	vec1 := g.ConstInts(dtypes.Int64, nil, -1)
	_, ok = MatchNode(ConstF(-1), scalar)
	assert.True(t, ok)
	_, ok = MatchNode(ConstF(-1), vec1)
	assert.True(t, ok)
	_, ok = MatchNode(ConstF(1), scalar)
	assert.False(t, ok)

	// Arbitrary payload predicates.
	pred := ConstWhere(func(n *ir.Node) bool {
		values, ok := ir.ConstIntValues(n)
		return ok && len(values) == 4 && values[0] == 0
	})
	_, ok = MatchNode(pred, perm)
	assert.True(t, ok)
}
