package matching

import (
	"fmt"

	"github.com/agenthands/crosswalk/internal/llm"
)

// Strategy names accepted by New.
const (
	StrategyLLM       = strategyLLM
	StrategyEmbedding = strategyEmbedding
)

// New builds the matcher for the configured strategy.
func New(strategy string, gen llm.LLMClient, emb llm.EmbedderClient, opts Options) (BatchMatcher, error) {
	switch strategy {
	case "", StrategyLLM:
		if gen == nil {
			return nil, fmt.Errorf("llm strategy requires a chat client")
		}
		m, err := NewLLMMatcher(gen, opts)
		if err != nil {
			return nil, err
		}
		return m, nil
	case StrategyEmbedding:
		if emb == nil {
			return nil, fmt.Errorf("embedding strategy requires a provider with embeddings")
		}
		return NewEmbeddingMatcher(emb, opts), nil
	default:
		return nil, fmt.Errorf("unsupported matcher strategy: %s", strategy)
	}
}
