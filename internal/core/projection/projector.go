package projection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/driver"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
)

// ErrDisabled is returned by a projector without a graph driver.
var ErrDisabled = errors.New("graph projection disabled")

type Source interface {
	ListEligibleProducts(ctx context.Context) ([]model.Product, error)
	ActiveControls(ctx context.Context, productID string) ([]model.Control, error)
	AllEdges(ctx context.Context) ([]model.MappingEdge, error)
}

type Result struct {
	RunID    string `json:"run_id"`
	Products int    `json:"products"`
	Controls int    `json:"controls"`
	Edges    int    `json:"edges"`
	Removed  int64  `json:"removed"`
}

// Projector mirrors eligible products, their active controls and the edge
// snapshot into a Memgraph read model. The relational store stays the
// source of truth; the graph is rebuilt by upsert and then pruned of
// everything the run did not touch.
type Projector struct {
	Driver    driver.GraphDriver
	Source    Source
	BatchSize int
	NewRunID  func() string

	log     *logger.Logger
	metrics *metrics.Metrics
	mu      sync.Mutex
	indexed bool
}

func New(d driver.GraphDriver, src Source, batchSize int, baseLog *logger.Logger, mt *metrics.Metrics) *Projector {
	if batchSize < 1 {
		batchSize = 500
	}
	return &Projector{
		Driver:    d,
		Source:    src,
		BatchSize: batchSize,
		NewRunID:  uuid.NewString,
		log:       baseLog.With("component", "projection"),
		metrics:   mt,
	}
}

func (p *Projector) Enabled() bool {
	return p != nil && p.Driver != nil
}

// Sync runs one full projection. Concurrent calls are serialized.
func (p *Projector) Sync(ctx context.Context) (Result, error) {
	if !p.Enabled() {
		return Result{}, ErrDisabled
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	res, err := p.sync(ctx)
	p.metrics.GraphSynced(err)
	if err != nil {
		p.log.Error("graph sync failed", "run_id", res.RunID, "error", err)
		return res, err
	}
	p.log.Info("graph synced",
		"run_id", res.RunID,
		"products", res.Products,
		"controls", res.Controls,
		"edges", res.Edges,
		"removed", res.Removed,
		"duration", time.Since(start),
	)
	return res, nil
}

func (p *Projector) sync(ctx context.Context) (Result, error) {
	res := Result{RunID: p.NewRunID()}

	if !p.indexed {
		if err := p.Driver.BuildIndices(ctx); err != nil {
			return res, fmt.Errorf("build indices: %w", err)
		}
		p.indexed = true
	}

	products, err := p.Source.ListEligibleProducts(ctx)
	if err != nil {
		return res, err
	}
	productRows := make([]map[string]interface{}, 0, len(products))
	for _, pr := range products {
		productRows = append(productRows, map[string]interface{}{"id": pr.ID, "name": pr.Name})
	}
	if err := p.write(ctx, driver.UpsertProductsQuery, productRows, res.RunID); err != nil {
		return res, fmt.Errorf("project products: %w", err)
	}
	res.Products = len(productRows)

	known := make(map[string]bool)
	var controlRows []map[string]interface{}
	for _, pr := range products {
		controls, err := p.Source.ActiveControls(ctx, pr.ID)
		if err != nil {
			return res, err
		}
		for _, c := range controls {
			known[c.ID] = true
			controlRows = append(controlRows, map[string]interface{}{
				"id":         c.ID,
				"product_id": c.ProductID,
				"key":        c.Key,
				"text":       c.Text,
				"section":    c.Section,
				"ordinal":    c.Ordinal,
			})
		}
	}
	if err := p.write(ctx, driver.UpsertControlsQuery, controlRows, res.RunID); err != nil {
		return res, fmt.Errorf("project controls: %w", err)
	}
	res.Controls = len(controlRows)

	edges, err := p.Source.AllEdges(ctx)
	if err != nil {
		return res, err
	}
	edgeRows := make([]map[string]interface{}, 0, len(edges))
	for _, e := range edges {
		if !known[e.SourceControlID] || !known[e.TargetControlID] {
			continue
		}
		edgeRows = append(edgeRows, map[string]interface{}{
			"source":     e.SourceControlID,
			"target":     e.TargetControlID,
			"confidence": e.Confidence,
			"updated_at": e.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := p.write(ctx, driver.UpsertEdgesQuery, edgeRows, res.RunID); err != nil {
		return res, fmt.Errorf("project edges: %w", err)
	}
	res.Edges = len(edgeRows)

	for _, q := range []string{driver.DeleteStaleEdgesQuery, driver.DeleteStaleControlsQuery, driver.DeleteStaleProductsQuery} {
		out, err := p.Driver.ExecuteQuery(ctx, q, map[string]interface{}{"run": res.RunID})
		if err != nil {
			return res, fmt.Errorf("prune graph: %w", err)
		}
		res.Removed += count(out, "removed")
	}
	return res, nil
}

func (p *Projector) write(ctx context.Context, query string, rows []map[string]interface{}, run string) error {
	for start := 0; start < len(rows); start += p.BatchSize {
		batch := rows[start:min(start+p.BatchSize, len(rows))]
		if _, err := p.Driver.ExecuteQuery(ctx, query, map[string]interface{}{"rows": batch, "run": run}); err != nil {
			return err
		}
	}
	return nil
}

func count(res neo4j.EagerResult, key string) int64 {
	var n int64
	for _, rec := range res.Records {
		for i, k := range rec.Keys {
			if k != key || i >= len(rec.Values) {
				continue
			}
			if v, ok := rec.Values[i].(int64); ok {
				n += v
			}
		}
	}
	return n
}
