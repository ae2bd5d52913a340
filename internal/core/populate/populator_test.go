package populate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenthands/crosswalk/internal/core/coverage"
	"github.com/agenthands/crosswalk/internal/core/importer"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/store"
	"github.com/agenthands/crosswalk/internal/store/storetest"
)

const vaultQuestionnaire = `[
	{"question": "Encryption", "children": [
		{"id": "v1", "question": "Is data encrypted at rest?", "type": "yes_no"},
		{"id": "v2", "question": "Are keys rotated?"}
	]}
]`

func catalogFixture() *MockCatalog {
	return &MockCatalog{
		Items: []model.Product{
			{ID: "vault", Name: "Vault", Premium: true, Approved: true},
			{ID: "gate", Name: "Gate", Premium: true, Approved: true},
			{ID: "empty", Name: "Empty", Premium: true, Approved: true},
			{ID: "free", Name: "Free", Premium: false, Approved: true},
		},
		Questionnaires: map[string]string{
			"vault": vaultQuestionnaire,
			"gate":  `[{"id": "g1", "question": "Is MFA enforced?"}]`,
			"free":  `[{"id": "f1", "question": "never imported"}]`,
		},
	}
}

func newPopulator(t *testing.T, c Catalog, g GraphSyncer) (*Populator, *store.Store, *MockMapper) {
	t.Helper()
	s := storetest.New(t)
	m := &MockMapper{}
	im := importer.New(s, nil, logger.Nop(), nil)
	return New(c, s, im, nil, m, g, g != nil, logger.Nop(), nil), s, m
}

func TestRun_PopulatesAndMaps(t *testing.T) {
	ctx := context.Background()
	g := &MockGraph{}
	p, s, m := newPopulator(t, catalogFixture(), g)

	report, err := p.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Products)
	assert.Equal(t, []string{"vault", "gate", "empty"}, report.Eligible)
	assert.Equal(t, []string{"empty"}, report.NoQuestionnaire)
	require.Len(t, report.Imported, 2)
	assert.Equal(t, 2, report.Imported[0].Inserted)

	require.Len(t, m.Calls, 1)
	assert.Equal(t, report.Eligible, m.Calls[0])
	assert.Len(t, report.Mapping.Pairs, 6)

	assert.Equal(t, 1, g.Syncs)
	require.NotNil(t, report.Graph)

	free, err := s.GetProduct(ctx, "free")
	require.NoError(t, err)
	assert.False(t, free.Eligible())
	controls, err := s.ActiveControls(ctx, "free")
	require.NoError(t, err)
	assert.Empty(t, controls)

	vault, err := s.ActiveControls(ctx, "vault")
	require.NoError(t, err)
	require.Len(t, vault, 2)
	assert.Equal(t, "Encryption", vault[0].Section)

	last, ok := p.Last()
	require.True(t, ok)
	assert.Equal(t, report.Eligible, last.Eligible)
}

func TestRun_MalformedQuestionnaireIsContained(t *testing.T) {
	c := catalogFixture()
	c.Questionnaires["gate"] = `{"questionnaire": 7}`
	p, _, m := newPopulator(t, c, nil)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Contains(t, report.ImportFailures, "gate")
	assert.Len(t, m.Calls, 1, "mapping still runs")
}

func TestRun_CatalogFailure(t *testing.T) {
	c := &MockCatalog{Err: errors.New("catalog down")}
	p, _, m := newPopulator(t, c, nil)

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, report.Error, "catalog down")
	assert.Empty(t, m.Calls)

	last, ok := p.Last()
	require.True(t, ok)
	assert.NotEmpty(t, last.Error)
}

func TestRun_GraphFailureIsReported(t *testing.T) {
	g := &MockGraph{Err: errors.New("bolt refused")}
	p, _, _ := newPopulator(t, catalogFixture(), g)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "bolt refused", report.GraphError)
}

func TestStart_NoOverlap(t *testing.T) {
	c := catalogFixture()
	c.Gate = make(chan struct{})
	p, _, _ := newPopulator(t, c, nil)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.Running())
	assert.ErrorIs(t, p.Start(context.Background()), ErrRunning)
	_, err := p.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunning)

	close(c.Gate)
	require.Eventually(t, func() bool { return !p.Running() }, 5*time.Second, 10*time.Millisecond)
	_, ok := p.Last()
	assert.True(t, ok)
}

func TestLoop_StopsWithContext(t *testing.T) {
	p, _, m := newPopulator(t, catalogFixture(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Loop(ctx, 20*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return len(m.Calls) > 0
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestRun_FlagChangeInvalidatesCoverage(t *testing.T) {
	ctx := context.Background()
	s := storetest.New(t)
	cache := &memCache{}
	calc := coverage.NewCalculator(s, cache, logger.Nop())
	c := catalogFixture()
	im := importer.New(s, nil, logger.Nop(), nil)
	p := New(c, s, im, calc, &MockMapper{}, nil, false, logger.Nop(), nil)

	_, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, cache.invalidated, "new eligible products")

	all, err := calc.PercentageAll(ctx)
	require.NoError(t, err)
	assert.Contains(t, all, "gate")

	_, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated, "unchanged flags keep the cache")

	c.Items[1].Approved = false
	_, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidated)

	all, err = calc.PercentageAll(ctx)
	require.NoError(t, err)
	assert.NotContains(t, all, "gate", "ineligible products leave the result")
	assert.Contains(t, all, "vault")
}
