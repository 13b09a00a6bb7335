package rope

import (
	"github.com/gomlx/rewriter/rewrite"
)

// Fusion builds the full rotary-embedding fusion pipeline. Rule order
// matters: the model-family fusions run first, then the incremental
// rules that fold slicing, transposes and table preprocessing into an
// already fused node, and finally the cos/sin table deduplication.
//
// support2DRope additionally enables the ChatGLM variants that keep the
// [batch, head_cnt, seq, head_size] layout.
func Fusion(support2DRope bool) *rewrite.Pipeline {
	rules := []rewrite.Rule{
		newFluxRule(),
		newGPTNeoXRule(),
		newGPTJRule(),
		newCosSinPreprocessRule(),
		newIOSlicingRule(),
		newPreprocessRule(),
		newChatGLMRule(0, false),
		newChatGLMRule(1, false),
	}
	if support2DRope {
		rules = append(rules,
			newChatGLMRule(0, true),
			newChatGLMRule(1, true),
			newChatGLMHFRule(),
		)
	}
	rules = append(rules,
		newQwenRule(0),
		newQwenRule(1),
	)

	return rewrite.NewPipeline("rope-fusion").
		RegisterRules("fuse", rules...).
		Register(NewShareCosSin())
}
