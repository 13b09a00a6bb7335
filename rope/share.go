package rope

import (
	"bytes"

	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"github.com/gomlx/rewriter/rewrite"
	"k8s.io/klog/v2"
)

// ShareCosSin deduplicates the cos/sin table subgraphs that rotary
// blocks recompute per layer. All layers derive their tables from the
// same inverse-frequency constant and the same position inputs, so the
// first cos and first sin encountered become canonical and every later
// occurrence is retargeted onto them.
//
// The pass carries match state across nodes of a single Run: the shared
// position inputs, the inverse-frequency constant they must agree with
// byte for byte, and the first cos/sin roots. State is reset on every
// Run so the pass can be reused across graphs.
type ShareCosSin struct {
	rule rewrite.Rule

	sharedInputs [2]*ir.Node
	invFreq      *ir.Node
	sharedCos0   *ir.Node
	sharedSin0   *ir.Node
}

// NewShareCosSin creates the deduplication pass.
func NewShareCosSin() *ShareCosSin {
	p := &ShareCosSin{}

	input0 := pattern.Any()
	input1 := pattern.Any()
	invFreq := anyConstant()

	//	bcast  = broadcast(1.0, shape=input0)
	//	expand = inv_freq * bcast
	//	angles = transpose(matmul(expand, input1), [0,2,1])
	//	table  = unsqueeze(cos(concat(angles, angles, -1)), 1)  (or sin)
	bcast := pattern.Op(ir.OpTypeBroadcast, pattern.ConstF(1), input0, anyConstant()).
		WithAttrs(pattern.Attrs[*ir.BroadcastAttrs](func(attrs *ir.BroadcastAttrs) bool {
			return attrs.Mode == "numpy"
		}))
	expand := pattern.Op(ir.OpTypeMultiply, invFreq, bcast)
	matmul := pattern.Op(ir.OpTypeMatMul, expand, input1).
		WithAttrs(pattern.Attrs[*ir.MatMulAttrs](func(attrs *ir.MatMulAttrs) bool {
			return !attrs.TransposeA && !attrs.TransposeB
		}))
	transpose := pattern.Op(ir.OpTypeTranspose, matmul, []int{0, 2, 1})
	// The same pattern instance on both concat inputs requires the
	// matched node to feed itself twice.
	cat := pattern.Op(ir.OpTypeConcat, transpose, transpose).WithAttrs(concatAxis(-1))
	cosP := pattern.Op(ir.OpTypeCos, cat)
	sinP := pattern.Op(ir.OpTypeSin, cat)
	result := pattern.Op(ir.OpTypeUnsqueeze, pattern.AnyOf(cosP, sinP), 1)

	p.rule = rewrite.NewRule("share-cos-sin", result, func(g *ir.Graph, m *pattern.Match) bool {
		curInvFreq := ir.ConstantPayload(m.Node(invFreq))
		if curInvFreq == nil {
			return false
		}

		// First match seeds the shared state.
		if p.invFreq == nil {
			p.sharedInputs[0] = m.Node(input0)
			p.sharedInputs[1] = m.Node(input1)
			p.invFreq = m.Node(invFreq)
		}

		// Later matches must reproduce the seeded subgraph exactly:
		// same input nodes and an inverse-frequency constant identical
		// in dtype, shape and payload.
		seed := ir.ConstantPayload(p.invFreq)
		if !m.Node(invFreq).Shape().Equal(p.invFreq.Shape()) {
			return false
		}
		if !bytes.Equal(curInvFreq.Raw(), seed.Raw()) {
			return false
		}
		if m.Node(input0) != p.sharedInputs[0] || m.Node(input1) != p.sharedInputs[1] {
			return false
		}

		isSin := m.Has(sinP)
		if isSin && p.sharedSin0 == nil {
			p.sharedSin0 = m.Root
			return false
		}
		if !isSin && p.sharedCos0 == nil {
			p.sharedCos0 = m.Root
			return false
		}

		replacement := p.sharedCos0
		if isSin {
			replacement = p.sharedSin0
		}
		if replacement == m.Root {
			return false
		}
		klog.V(2).Infof("share-cos-sin: folding #%d into #%d", m.Root.ID(), replacement.ID())
		g.ReplaceNode(m.Root, replacement)
		return true
	})
	return p
}

// Name implements rewrite.Pass.
func (p *ShareCosSin) Name() string { return "share-cos-sin" }

// Run implements rewrite.Pass. Shared state from a previous Run is
// discarded first.
func (p *ShareCosSin) Run(g *ir.Graph) bool {
	p.sharedInputs = [2]*ir.Node{}
	p.invFreq = nil
	p.sharedCos0 = nil
	p.sharedSin0 = nil

	changed := false
	for id := 0; id < g.NumNodes(); id++ {
		n := g.NodeByID(ir.NodeID(id))
		if n.IsDead() || n.IsMultiOutput() {
			continue
		}
		if p.rule.Apply(g, n) {
			changed = true
		}
	}
	return changed
}
