package core

import (
	"context"
	"errors"
	"sync"

	"github.com/agenthands/crosswalk/internal/core/matching"
	"github.com/agenthands/crosswalk/internal/store"
)

type answer struct {
	target     string
	confidence float64
}

// MockMatcher answers by source text. The chosen candidate is looked up by
// text so answers do not depend on candidate order.
type MockMatcher struct {
	mu      sync.Mutex
	Answers map[string]answer
	Errs    map[string]error
	Calls   map[string]int
}

func (m *MockMatcher) Match(ctx context.Context, source string, candidates []string) (matching.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Calls == nil {
		m.Calls = make(map[string]int)
	}
	m.Calls[source]++
	if err := ctx.Err(); err != nil {
		return matching.NoMatch(), err
	}
	if err, ok := m.Errs[source]; ok {
		return matching.NoMatch(), err
	}
	a, ok := m.Answers[source]
	if !ok {
		return matching.NoMatch(), nil
	}
	for i, c := range candidates {
		if c == a.target {
			return matching.Validate(i, a.confidence, len(candidates)), nil
		}
	}
	return matching.NoMatch(), nil
}

func (m *MockMatcher) set(source, target string, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Answers == nil {
		m.Answers = make(map[string]answer)
	}
	m.Answers[source] = answer{target, confidence}
}

type MockBatchMatcher struct {
	MockMatcher
	BatchCalls int
	Sizes      []int
}

func (m *MockBatchMatcher) MatchBatch(ctx context.Context, sources []string, candidates []string) ([]matching.Result, error) {
	m.mu.Lock()
	m.BatchCalls++
	m.Sizes = append(m.Sizes, len(sources))
	m.mu.Unlock()
	out := make([]matching.Result, len(sources))
	for i, s := range sources {
		r, err := m.Match(ctx, s, candidates)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

var errDiskFull = errors.New("disk full")

// failingStore fails edge writes whose source control is in failFor.
type failingStore struct {
	*store.Store
	failFor map[string]bool
}

func (f *failingStore) UpsertEdgePair(ctx context.Context, src, tgt string, confidence float64) error {
	if f.failFor[src] {
		return errDiskFull
	}
	return f.Store.UpsertEdgePair(ctx, src, tgt, confidence)
}

type countingInvalidator struct {
	mu sync.Mutex
	n  int
}

func (c *countingInvalidator) Invalidate(context.Context) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingInvalidator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// gatedMatcher blocks every Match until release is closed and closes
// started on the first call.
type gatedMatcher struct {
	*MockMatcher
	once    sync.Once
	started chan struct{}
	release chan struct{}
}

func newGatedMatcher(m *MockMatcher) *gatedMatcher {
	return &gatedMatcher{MockMatcher: m, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedMatcher) Match(ctx context.Context, source string, candidates []string) (matching.Result, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return matching.NoMatch(), ctx.Err()
	}
	return g.MockMatcher.Match(ctx, source, candidates)
}
