package coverage

import (
	"context"
	"fmt"
	"math"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/logger"
)

type Store interface {
	GetProduct(ctx context.Context, id string) (model.Product, error)
	ListEligibleProducts(ctx context.Context) ([]model.Product, error)
	CountActiveControls(ctx context.Context, productID string) (int64, error)
	CountMappedControls(ctx context.Context, productID string, counterparts []string) (int64, error)
	MappedControlsByCounterpart(ctx context.Context, productID string, counterparts []string) (map[string]int64, error)
}

// Cache holds the last PercentageAll result. gen is a generation token:
// values stored under an older generation than the current one are misses.
type Cache interface {
	Load(ctx context.Context) (values map[string]float64, gen int64, ok bool, err error)
	Store(ctx context.Context, gen int64, values map[string]float64) error
	Invalidate(ctx context.Context)
}

type Calculator struct {
	Store Store
	Cache Cache
	log   *logger.Logger
}

func NewCalculator(s Store, cache Cache, baseLog *logger.Logger) *Calculator {
	return &Calculator{Store: s, Cache: cache, log: baseLog.With("component", "coverage")}
}

// Percentage is the share of the product's active controls that have at
// least one edge into an active control of any other eligible product.
func (c *Calculator) Percentage(ctx context.Context, productID string) (float64, error) {
	if err := c.requireEligible(ctx, productID); err != nil {
		return 0, err
	}
	if values, ok := c.cached(ctx); ok {
		if v, hit := values[productID]; hit {
			return v, nil
		}
	}
	eligible, err := c.Store.ListEligibleProducts(ctx)
	if err != nil {
		return 0, err
	}
	return c.percentage(ctx, productID, counterparts(eligible, productID))
}

// PercentageAll computes Percentage for every eligible product.
func (c *Calculator) PercentageAll(ctx context.Context) (map[string]float64, error) {
	var gen int64
	if c.Cache != nil {
		values, g, ok, err := c.Cache.Load(ctx)
		switch {
		case err != nil:
			c.log.Warn("coverage cache read failed, recomputing", "error", err)
		case ok:
			return values, nil
		default:
			gen = g
		}
	}

	eligible, err := c.Store.ListEligibleProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(eligible))
	for _, p := range eligible {
		v, err := c.percentage(ctx, p.ID, counterparts(eligible, p.ID))
		if err != nil {
			return nil, err
		}
		out[p.ID] = v
	}

	if c.Cache != nil {
		if err := c.Cache.Store(ctx, gen, out); err != nil {
			c.log.Warn("coverage cache write failed", "error", err)
		}
	}
	return out, nil
}

// Breakdown gives the coverage of productID restricted to each eligible
// counterpart in turn.
func (c *Calculator) Breakdown(ctx context.Context, productID string) (map[string]float64, error) {
	if err := c.requireEligible(ctx, productID); err != nil {
		return nil, err
	}
	eligible, err := c.Store.ListEligibleProducts(ctx)
	if err != nil {
		return nil, err
	}
	others := counterparts(eligible, productID)
	out := make(map[string]float64, len(others))
	if len(others) == 0 {
		return out, nil
	}

	total, err := c.Store.CountActiveControls(ctx, productID)
	if err != nil {
		return nil, err
	}
	mapped, err := c.Store.MappedControlsByCounterpart(ctx, productID, others)
	if err != nil {
		return nil, err
	}
	for _, id := range others {
		out[id] = ratio(mapped[id], total)
	}
	return out, nil
}

// Invalidate drops the cached result after edges or controls change.
func (c *Calculator) Invalidate(ctx context.Context) {
	if c.Cache != nil {
		c.Cache.Invalidate(ctx)
	}
}

func (c *Calculator) requireEligible(ctx context.Context, productID string) error {
	p, err := c.Store.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if !p.Eligible() {
		return fmt.Errorf("%w: %s", model.ErrProductIneligible, productID)
	}
	return nil
}

func (c *Calculator) cached(ctx context.Context) (map[string]float64, bool) {
	if c.Cache == nil {
		return nil, false
	}
	values, _, ok, err := c.Cache.Load(ctx)
	if err != nil {
		c.log.Warn("coverage cache read failed, recomputing", "error", err)
		return nil, false
	}
	return values, ok
}

func (c *Calculator) percentage(ctx context.Context, productID string, others []string) (float64, error) {
	total, err := c.Store.CountActiveControls(ctx, productID)
	if err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	mapped, err := c.Store.CountMappedControls(ctx, productID, others)
	if err != nil {
		return 0, err
	}
	return ratio(mapped, total), nil
}

func counterparts(eligible []model.Product, self string) []string {
	out := make([]string, 0, len(eligible))
	for _, p := range eligible {
		if p.ID != self {
			out = append(out, p.ID)
		}
	}
	return out
}

// ratio returns 100*mapped/total rounded to two decimals, 0 when total is 0.
func ratio(mapped, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(mapped)/float64(total)*100*100) / 100
}
