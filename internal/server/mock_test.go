package server

import (
	"context"
	"strings"

	"github.com/agenthands/crosswalk/internal/core/matching"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/populate"
	"github.com/agenthands/crosswalk/internal/core/projection"
)

// MockMatcher matches texts that are equal ignoring case.
type MockMatcher struct{}

func (MockMatcher) Match(ctx context.Context, source string, candidates []string) (matching.Result, error) {
	for i, c := range candidates {
		if strings.EqualFold(c, source) {
			return matching.Result{Index: i, Confidence: 0.95, Matched: true}, nil
		}
	}
	return matching.NoMatch(), nil
}

type MockPopulator struct {
	Err    error
	Starts int
	Report *populate.Report
}

func (m *MockPopulator) Start(ctx context.Context) error {
	if m.Err != nil {
		return m.Err
	}
	m.Starts++
	return nil
}

func (m *MockPopulator) Last() (populate.Report, bool) {
	if m.Report == nil {
		return populate.Report{}, false
	}
	return *m.Report, true
}

type MockGraph struct {
	On  bool
	Err error
}

func (m *MockGraph) Enabled() bool { return m.On }

func (m *MockGraph) Sync(ctx context.Context) (projection.Result, error) {
	return projection.Result{RunID: "run", Products: 2, Edges: 4}, m.Err
}

type MockPinger struct{ Err error }

func (m MockPinger) Ping(ctx context.Context) error { return m.Err }

type MockMapper struct {
	Err error
}

func (m MockMapper) Remap(ctx context.Context, productID string) (model.RemapResult, error) {
	return model.RemapResult{ProductID: productID}, m.Err
}

func (m MockMapper) AllEdges(ctx context.Context) ([]model.MappingEdge, error) {
	return nil, m.Err
}
