package populate

import (
	"context"
	"fmt"
	"sync"

	"github.com/agenthands/crosswalk/internal/catalog"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/projection"
)

type MockCatalog struct {
	Items          []model.Product
	Questionnaires map[string]string
	Err            error
	// Gate, when set, blocks Products until it is closed.
	Gate chan struct{}
}

func (m *MockCatalog) Products(ctx context.Context) ([]model.Product, error) {
	if m.Gate != nil {
		select {
		case <-m.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Items, nil
}

func (m *MockCatalog) Questionnaire(ctx context.Context, productID string) ([]byte, error) {
	q, ok := m.Questionnaires[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNoQuestionnaire, productID)
	}
	return []byte(q), nil
}

type MockMapper struct {
	mu    sync.Mutex
	Calls [][]string
}

func (m *MockMapper) MapAll(ctx context.Context, ids []string) (model.BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, append([]string(nil), ids...))
	return model.BatchResult{Pairs: make([]model.PairOutcome, len(ids)*(len(ids)-1))}, nil
}

type MockGraph struct {
	Syncs int
	Err   error
}

func (m *MockGraph) Enabled() bool { return true }

func (m *MockGraph) Sync(ctx context.Context) (projection.Result, error) {
	m.Syncs++
	return projection.Result{RunID: "r", Edges: 2}, m.Err
}

// memCache is an in-process coverage cache keyed by generation.
type memCache struct {
	mu          sync.Mutex
	values      map[string]float64
	gen         int64
	storedGen   int64
	invalidated int
}

func (c *memCache) Load(context.Context) (map[string]float64, int64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil || c.storedGen != c.gen {
		return nil, c.gen, false, nil
	}
	return c.values, c.gen, true, nil
}

func (c *memCache) Store(_ context.Context, gen int64, values map[string]float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values, c.storedGen = values, gen
	return nil
}

func (c *memCache) Invalidate(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.invalidated++
}
