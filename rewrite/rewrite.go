// Package rewrite runs pattern-based rewrite rules over a graph.
//
// A Rule is offered graph nodes one at a time and may splice in a
// replacement subgraph when it recognizes the motif it is looking for.
// Rules are grouped into passes, and passes into a Pipeline that runs
// them in registration order over the whole graph.
package rewrite

import (
	"github.com/gomlx/rewriter/ir"
	"github.com/gomlx/rewriter/pattern"
	"k8s.io/klog/v2"
)

// Rule recognizes one motif rooted at a node and rewrites the graph in
// place when it fires. Apply returns true if it changed the graph.
type Rule interface {
	Name() string
	Apply(g *ir.Graph, n *ir.Node) bool
}

// Pass transforms a whole graph. Run returns true if anything changed.
type Pass interface {
	Name() string
	Run(g *ir.Graph) bool
}

// Callback receives a successful match and performs the rewrite. It
// returns true if the graph was changed: a callback is free to inspect
// the match, decide the motif does not apply after all, and return
// false without touching anything.
type Callback func(g *ir.Graph, m *pattern.Match) bool

// PatternRule pairs a root pattern with the rewrite callback to run on
// each match.
type PatternRule struct {
	name     string
	root     *pattern.Pattern
	callback Callback
}

// NewRule creates a rule that matches root against candidate nodes and
// invokes callback on success.
func NewRule(name string, root *pattern.Pattern, callback Callback) *PatternRule {
	return &PatternRule{name: name, root: root, callback: callback}
}

// Name implements Rule.
func (r *PatternRule) Name() string { return r.name }

// Apply implements Rule. It attempts the match anchored at n and, on
// success, hands the match to the rule's callback.
func (r *PatternRule) Apply(g *ir.Graph, n *ir.Node) bool {
	m, ok := pattern.MatchNode(r.root, n)
	if !ok {
		return false
	}
	if !r.callback(g, m) {
		klog.V(2).Infof("rule %s: matched node %s but callback declined", r.name, n)
		return false
	}
	klog.V(1).Infof("rule %s: rewrote graph %q at node #%d", r.name, g.Name(), n.ID())
	return true
}

// RulePass runs a set of rules over the graph, each rule sweeping all
// nodes in construction order before the next rule starts. Nodes
// created by a rewrite are appended to the graph and therefore offered
// to the currently running rule and to every later one.
type RulePass struct {
	name  string
	rules []Rule
}

// NewPass creates an empty pass. Add rules with Register.
func NewPass(name string) *RulePass {
	return &RulePass{name: name}
}

// Register appends rules to the pass, keeping registration order.
func (p *RulePass) Register(rules ...Rule) *RulePass {
	p.rules = append(p.rules, rules...)
	return p
}

// Name implements Pass.
func (p *RulePass) Name() string { return p.name }

// Run implements Pass.
func (p *RulePass) Run(g *ir.Graph) bool {
	changed := false
	for _, rule := range p.rules {
		// NumNodes is re-evaluated every iteration so nodes appended
		// by a rewrite are visited in the same sweep.
		for id := 0; id < g.NumNodes(); id++ {
			n := g.NodeByID(ir.NodeID(id))
			if n.IsDead() || n.IsMultiOutput() {
				continue
			}
			if rule.Apply(g, n) {
				changed = true
			}
		}
	}
	return changed
}

// Pipeline runs passes in registration order.
type Pipeline struct {
	name   string
	passes []Pass
}

// NewPipeline creates an empty pipeline.
func NewPipeline(name string) *Pipeline {
	return &Pipeline{name: name}
}

// Register appends passes in order.
func (pl *Pipeline) Register(passes ...Pass) *Pipeline {
	pl.passes = append(pl.passes, passes...)
	return pl
}

// RegisterRules wraps the given rules in a single pass and appends it.
func (pl *Pipeline) RegisterRules(passName string, rules ...Rule) *Pipeline {
	return pl.Register(NewPass(passName).Register(rules...))
}

// Name implements Pass.
func (pl *Pipeline) Name() string { return pl.name }

// Run implements Pass: it runs every registered pass once, in order,
// and reports whether any of them changed the graph.
func (pl *Pipeline) Run(g *ir.Graph) bool {
	changed := false
	for _, pass := range pl.passes {
		if pass.Run(g) {
			klog.V(1).Infof("pipeline %s: pass %s changed graph %q", pl.name, pass.Name(), g.Name())
			changed = true
		}
	}
	return changed
}
