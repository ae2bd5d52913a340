package matching

import (
	"context"
	"time"

	"github.com/agenthands/crosswalk/internal/config"
	"github.com/agenthands/crosswalk/internal/core/common"
	"github.com/agenthands/crosswalk/internal/llm"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

const strategyLLM = "llm"

type Options struct {
	Retry        RetryConfig
	MaxTextChars int
	Prompts      config.MatchPrompts
	Log          *logger.Logger
	Metrics      *metrics.Metrics
}

// LLMMatcher asks a chat model to pick the equivalent candidate.
type LLMMatcher struct {
	LLM      llm.LLMClient
	prompts  prompts
	retry    retrier
	maxChars int
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewLLMMatcher(client llm.LLMClient, opts Options) (*LLMMatcher, error) {
	p, err := newPrompts(opts.Prompts)
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	m := &LLMMatcher{
		LLM:      client,
		prompts:  p,
		maxChars: opts.MaxTextChars,
		log:      log.With("component", "matcher", "strategy", strategyLLM),
		metrics:  opts.Metrics,
	}
	m.retry = retrier{cfg: opts.Retry, onRetry: func(err error, wait time.Duration) {
		m.metrics.MatcherRetry(strategyLLM)
		m.log.Warn("matcher call failed, retrying", "error", err, "wait", wait)
	}}
	return m, nil
}

type singleAnswer struct {
	Index      *int     `json:"index"`
	Confidence *float64 `json:"confidence"`
}

type batchAnswer struct {
	Matches []struct {
		Source     *int     `json:"source"`
		Index      *int     `json:"index"`
		Confidence *float64 `json:"confidence"`
	} `json:"matches"`
}

func (m *LLMMatcher) Match(ctx context.Context, source string, candidates []string) (Result, error) {
	if len(candidates) == 0 {
		return NoMatch(), nil
	}
	prompt, err := render(m.prompts.single, promptData{
		Source:     common.Truncate(common.OneLine(source), m.maxChars),
		Candidates: prepare(candidates, m.maxChars),
	})
	if err != nil {
		return NoMatch(), err
	}

	response, err := m.generate(ctx, prompt)
	if err != nil {
		return NoMatch(), err
	}

	ans, err := common.ParseJSON[singleAnswer](response)
	if err != nil || ans.Index == nil || ans.Confidence == nil {
		m.log.Warn("unparseable matcher response", "error", err, "response", common.Truncate(response, 200))
		m.metrics.MatcherCall(strategyLLM, "invalid")
		return NoMatch(), nil
	}
	res := Validate(*ans.Index, *ans.Confidence, len(candidates))
	m.metrics.MatcherCall(strategyLLM, outcome(res))
	return res, nil
}

func (m *LLMMatcher) MatchBatch(ctx context.Context, sources []string, candidates []string) ([]Result, error) {
	results := make([]Result, len(sources))
	for i := range results {
		results[i] = NoMatch()
	}
	if len(sources) == 0 || len(candidates) == 0 {
		return results, nil
	}
	prompt, err := render(m.prompts.batch, promptData{
		Sources:    prepare(sources, m.maxChars),
		Candidates: prepare(candidates, m.maxChars),
	})
	if err != nil {
		return results, err
	}

	response, err := m.generate(ctx, prompt)
	if err != nil {
		return results, err
	}

	ans, err := common.ParseJSON[batchAnswer](response)
	if err != nil {
		m.log.Warn("unparseable batch matcher response", "error", err, "response", common.Truncate(response, 200))
		m.metrics.MatcherCall(strategyLLM, "invalid")
		return results, nil
	}

	seen := make(map[int]bool, len(ans.Matches))
	for _, a := range ans.Matches {
		if a.Source == nil || a.Index == nil || a.Confidence == nil {
			continue
		}
		s := *a.Source
		if s < 0 || s >= len(sources) || seen[s] {
			continue
		}
		seen[s] = true
		results[s] = Validate(*a.Index, *a.Confidence, len(candidates))
	}
	for _, r := range results {
		m.metrics.MatcherCall(strategyLLM, outcome(r))
	}
	return results, nil
}

func (m *LLMMatcher) generate(ctx context.Context, prompt string) (string, error) {
	var response string
	err := m.retry.do(ctx, func(ctx context.Context) error {
		out, err := m.LLM.Generate(ctx, prompt)
		if err != nil {
			return llm.Classify(err)
		}
		response = out
		return nil
	})
	if err != nil && ctx.Err() == nil {
		m.metrics.MatcherCall(strategyLLM, "unavailable")
	}
	return response, err
}

func outcome(r Result) string {
	if r.Matched {
		return "matched"
	}
	return "no_match"
}
