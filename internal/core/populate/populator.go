package populate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agenthands/crosswalk/internal/catalog"
	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/core/projection"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

// ErrRunning is returned when a population is already in progress.
var ErrRunning = errors.New("population already running")

type Catalog interface {
	Products(ctx context.Context) ([]model.Product, error)
	Questionnaire(ctx context.Context, productID string) ([]byte, error)
}

type ProductStore interface {
	GetProduct(ctx context.Context, id string) (model.Product, error)
	UpsertProduct(ctx context.Context, p model.Product) error
}

// Invalidator drops cached coverage, which depends on the eligible set.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Importer interface {
	ImportControls(ctx context.Context, productID string, payload []byte) (model.ImportResult, error)
}

type Mapper interface {
	MapAll(ctx context.Context, productIDs []string) (model.BatchResult, error)
}

type GraphSyncer interface {
	Enabled() bool
	Sync(ctx context.Context) (projection.Result, error)
}

type Report struct {
	StartedAt       time.Time            `json:"started_at"`
	FinishedAt      time.Time            `json:"finished_at"`
	Products        int                  `json:"products"`
	Eligible        []string             `json:"eligible"`
	Imported        []model.ImportResult `json:"imported"`
	NoQuestionnaire []string             `json:"no_questionnaire,omitempty"`
	ImportFailures  map[string]string    `json:"import_failures,omitempty"`
	Mapping         model.BatchResult    `json:"mapping"`
	Graph           *projection.Result   `json:"graph,omitempty"`
	GraphError      string               `json:"graph_error,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// Populator pulls products and questionnaires from the catalog, stores them
// and maps every eligible pair. Runs never overlap.
type Populator struct {
	Catalog   Catalog
	Store     ProductStore
	Importer  Importer
	Coverage  Invalidator
	Mapper    Mapper
	Graph     GraphSyncer
	SyncGraph bool

	log     *logger.Logger
	metrics *metrics.Metrics
	running atomic.Bool

	mu   sync.Mutex
	last *Report
}

func New(c Catalog, s ProductStore, im Importer, cov Invalidator, m Mapper, g GraphSyncer, syncGraph bool, baseLog *logger.Logger, mt *metrics.Metrics) *Populator {
	return &Populator{
		Catalog:   c,
		Store:     s,
		Importer:  im,
		Coverage:  cov,
		Mapper:    m,
		Graph:     g,
		SyncGraph: syncGraph,
		log:       baseLog.With("component", "populator"),
		metrics:   mt,
	}
}

// Run populates synchronously.
func (p *Populator) Run(ctx context.Context) (Report, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Report{}, ErrRunning
	}
	defer p.running.Store(false)
	return p.run(ctx)
}

// Start populates in the background and returns at once.
func (p *Populator) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	go func() {
		defer p.running.Store(false)
		_, _ = p.run(ctx)
	}()
	return nil
}

func (p *Populator) Running() bool {
	return p.running.Load()
}

// Last returns the report of the most recent finished run.
func (p *Populator) Last() (Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Report{}, false
	}
	return *p.last, true
}

// Loop repopulates every interval until ctx is done.
func (p *Populator) Loop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Run(ctx); errors.Is(err, ErrRunning) {
				p.log.Info("skipping scheduled population, one is running")
			}
		}
	}
}

func (p *Populator) run(ctx context.Context) (Report, error) {
	report := Report{StartedAt: time.Now().UTC()}
	err := p.populate(ctx, &report)
	report.FinishedAt = time.Now().UTC()
	if err != nil {
		report.Error = err.Error()
		p.log.Error("population failed", "error", err)
	} else {
		p.log.Info("population finished",
			"products", report.Products,
			"eligible", len(report.Eligible),
			"pairs", len(report.Mapping.Pairs),
			"pairs_failed", report.Mapping.Failed,
			"duration", report.FinishedAt.Sub(report.StartedAt),
		)
	}
	p.metrics.Populated(err)

	p.mu.Lock()
	p.last = &report
	p.mu.Unlock()
	return report, err
}

func (p *Populator) populate(ctx context.Context, report *Report) error {
	products, err := p.Catalog.Products(ctx)
	if err != nil {
		return fmt.Errorf("fetch catalog products: %w", err)
	}
	report.Products = len(products)

	flagsChanged := false
	for _, pr := range products {
		prev, err := p.Store.GetProduct(ctx, pr.ID)
		switch {
		case errors.Is(err, model.ErrProductNotFound):
			flagsChanged = flagsChanged || pr.Eligible()
		case err != nil:
			return err
		case prev.Premium != pr.Premium || prev.Approved != pr.Approved:
			p.log.Info("product flags changed", "product_id", pr.ID, "premium", pr.Premium, "approved", pr.Approved)
			flagsChanged = true
		}
		if err := p.Store.UpsertProduct(ctx, pr); err != nil {
			return err
		}
		if pr.Eligible() {
			report.Eligible = append(report.Eligible, pr.ID)
		}
	}
	if flagsChanged && p.Coverage != nil {
		p.Coverage.Invalidate(ctx)
	}

	for _, id := range report.Eligible {
		payload, err := p.Catalog.Questionnaire(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if errors.Is(err, catalog.ErrNoQuestionnaire) {
				report.NoQuestionnaire = append(report.NoQuestionnaire, id)
				continue
			}
			p.failImport(report, id, err)
			continue
		}
		res, err := p.Importer.ImportControls(ctx, id, payload)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.failImport(report, id, err)
			continue
		}
		report.Imported = append(report.Imported, res)
	}

	if len(report.Eligible) > 1 {
		batch, err := p.Mapper.MapAll(ctx, report.Eligible)
		report.Mapping = batch
		if err != nil {
			return fmt.Errorf("map products: %w", err)
		}
	}

	if p.SyncGraph && p.Graph != nil && p.Graph.Enabled() {
		res, err := p.Graph.Sync(ctx)
		if err != nil {
			report.GraphError = err.Error()
		} else {
			report.Graph = &res
		}
	}
	return nil
}

func (p *Populator) failImport(report *Report, productID string, err error) {
	p.log.Warn("questionnaire import failed", "product_id", productID, "error", err)
	if report.ImportFailures == nil {
		report.ImportFailures = make(map[string]string)
	}
	report.ImportFailures[productID] = err.Error()
}
