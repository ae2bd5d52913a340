package matching

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agenthands/crosswalk/internal/llm"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

const (
	strategyEmbedding = "embedding"
	embedBatchSize    = 128
)

// EmbeddingMatcher picks the candidate with the highest cosine similarity.
// Vectors are cached per prepared text for the life of the matcher.
type EmbeddingMatcher struct {
	Embedder llm.EmbedderClient
	retry    retrier
	maxChars int
	log      *logger.Logger
	metrics  *metrics.Metrics

	mu     sync.RWMutex
	cache  map[string][]float32
	flight singleflight.Group
}

func NewEmbeddingMatcher(embedder llm.EmbedderClient, opts Options) *EmbeddingMatcher {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	m := &EmbeddingMatcher{
		Embedder: embedder,
		maxChars: opts.MaxTextChars,
		log:      log.With("component", "matcher", "strategy", strategyEmbedding),
		metrics:  opts.Metrics,
		cache:    make(map[string][]float32),
	}
	m.retry = retrier{cfg: opts.Retry, onRetry: func(err error, wait time.Duration) {
		m.metrics.MatcherRetry(strategyEmbedding)
		m.log.Warn("embedding call failed, retrying", "error", err, "wait", wait)
	}}
	return m
}

func (m *EmbeddingMatcher) Match(ctx context.Context, source string, candidates []string) (Result, error) {
	results, err := m.MatchBatch(ctx, []string{source}, candidates)
	if err != nil {
		return NoMatch(), err
	}
	return results[0], nil
}

func (m *EmbeddingMatcher) MatchBatch(ctx context.Context, sources []string, candidates []string) ([]Result, error) {
	results := make([]Result, len(sources))
	for i := range results {
		results[i] = NoMatch()
	}
	if len(sources) == 0 || len(candidates) == 0 {
		return results, nil
	}

	targets, err := m.vectors(ctx, prepare(candidates, m.maxChars))
	if err != nil {
		m.unavailable(ctx)
		return results, err
	}
	srcs, err := m.vectors(ctx, prepare(sources, m.maxChars))
	if err != nil {
		m.unavailable(ctx)
		return results, err
	}

	for i, sv := range srcs {
		best, bestScore := -1, math.Inf(-1)
		for j, tv := range targets {
			score := cosine(sv, tv)
			if score > bestScore {
				best, bestScore = j, score
			}
		}
		results[i] = Validate(best, similarity(bestScore), len(candidates))
		m.metrics.MatcherCall(strategyEmbedding, outcome(results[i]))
	}
	return results, nil
}

func (m *EmbeddingMatcher) unavailable(ctx context.Context) {
	if ctx.Err() == nil {
		m.metrics.MatcherCall(strategyEmbedding, "unavailable")
	}
}

// vectors returns one embedding per text, embedding only cache misses.
func (m *EmbeddingMatcher) vectors(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	seen := make(map[string]bool)

	m.mu.RLock()
	for i, t := range texts {
		if v, ok := m.cache[t]; ok {
			out[i] = v
		} else if !seen[t] {
			seen[t] = true
			missing = append(missing, t)
		}
	}
	m.mu.RUnlock()

	if len(missing) > 0 {
		if err := m.fill(ctx, missing); err != nil {
			return nil, err
		}
		m.mu.RLock()
		for i, t := range texts {
			if out[i] == nil {
				out[i] = m.cache[t]
			}
		}
		m.mu.RUnlock()
	}
	return out, nil
}

func (m *EmbeddingMatcher) fill(ctx context.Context, texts []string) error {
	if be, ok := m.Embedder.(llm.BatchEmbedder); ok {
		for start := 0; start < len(texts); start += embedBatchSize {
			end := min(start+embedBatchSize, len(texts))
			chunk := texts[start:end]
			var vecs [][]float32
			err := m.retry.do(ctx, func(ctx context.Context) error {
				v, err := be.EmbedBatch(ctx, chunk)
				if err != nil {
					return llm.Classify(err)
				}
				vecs = v
				return nil
			})
			if err != nil {
				return err
			}
			m.store(chunk, vecs)
		}
		return nil
	}

	for _, t := range texts {
		text := t
		v, err, _ := m.flight.Do(text, func() (interface{}, error) {
			var vec []float32
			err := m.retry.do(ctx, func(ctx context.Context) error {
				out, err := m.Embedder.Embed(ctx, text)
				if err != nil {
					return llm.Classify(err)
				}
				vec = out
				return nil
			})
			return vec, err
		})
		if err != nil {
			return err
		}
		m.store([]string{text}, [][]float32{v.([]float32)})
	}
	return nil
}

func (m *EmbeddingMatcher) store(texts []string, vecs [][]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range texts {
		if i < len(vecs) && len(vecs[i]) > 0 {
			m.cache[t] = vecs[i]
		}
	}
}

// similarity clamps a cosine score to [0,1]. Rounding can push identical
// vectors slightly above 1.
func similarity(score float64) float64 {
	switch {
	case math.IsInf(score, -1):
		return score
	case score < 0:
		return 0
	case score > 1:
		return 1
	}
	return score
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.Inf(-1)
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return math.Inf(-1)
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
