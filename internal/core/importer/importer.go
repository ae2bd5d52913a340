package importer

import (
	"context"
	"fmt"

	"github.com/agenthands/crosswalk/internal/core/model"
	"github.com/agenthands/crosswalk/internal/logger"
	"github.com/agenthands/crosswalk/internal/metrics"
	"github.com/agenthands/crosswalk/internal/store"
)

type ControlStore interface {
	GetProduct(ctx context.Context, id string) (model.Product, error)
	SyncControls(ctx context.Context, productID string, controls []model.Control) (store.SyncCounts, error)
}

// Invalidator drops derived data that depends on the control set.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type Importer struct {
	Store   ControlStore
	Cache   Invalidator
	log     *logger.Logger
	metrics *metrics.Metrics
}

func New(s ControlStore, cache Invalidator, baseLog *logger.Logger, m *metrics.Metrics) *Importer {
	return &Importer{
		Store:   s,
		Cache:   cache,
		log:     baseLog.With("component", "importer"),
		metrics: m,
	}
}

// ImportControls decodes a questionnaire and upserts its items as the
// product's controls. Items without a key, or repeating an earlier key, are
// reported as failed while the rest are imported. A payload in which no
// item has a key fails as malformed and leaves the stored controls alone.
func (im *Importer) ImportControls(ctx context.Context, productID string, payload []byte) (model.ImportResult, error) {
	result := model.ImportResult{ProductID: productID}

	p, err := im.Store.GetProduct(ctx, productID)
	if err != nil {
		return result, err
	}
	if !p.Eligible() {
		return result, fmt.Errorf("%w: %s", model.ErrProductIneligible, productID)
	}

	items, err := Decode(payload)
	if err != nil {
		im.log.Warn("questionnaire rejected", "product_id", productID, "error", err)
		return result, err
	}

	return im.importItems(ctx, productID, items, result)
}

func (im *Importer) importItems(ctx context.Context, productID string, items []Item, result model.ImportResult) (model.ImportResult, error) {
	controls := make([]model.Control, 0, len(items))
	seen := make(map[string]int, len(items))
	for i, it := range items {
		if it.Key == "" {
			result.Failed++
			result.Errors = append(result.Errors, model.ImportError{Index: i, Message: "item has no key"})
			continue
		}
		if first, dup := seen[it.Key]; dup {
			result.Failed++
			result.Errors = append(result.Errors, model.ImportError{
				Index:   i,
				Key:     it.Key,
				Message: fmt.Sprintf("duplicate key, first seen at item %d", first),
			})
			continue
		}
		seen[it.Key] = i
		controls = append(controls, model.Control{
			ID:          model.ControlID(productID, it.Key),
			ProductID:   productID,
			Key:         it.Key,
			Text:        it.Text,
			Ordinal:     i,
			Section:     it.Section,
			ItemType:    it.ItemType,
			Description: it.Description,
		})
	}

	// an empty list retires everything; a list where nothing decodes to a
	// keyed item must not
	if len(controls) == 0 && len(items) > 0 {
		im.metrics.Imported("failed", result.Failed)
		im.log.Warn("questionnaire rejected", "product_id", productID, "failed", result.Failed)
		return result, fmt.Errorf("%w: none of %d items has a key", model.ErrMalformedPayload, len(items))
	}

	counts, err := im.Store.SyncControls(ctx, productID, controls)
	if err != nil {
		return result, fmt.Errorf("import controls for %s: %w", productID, err)
	}
	result.Inserted = counts.Inserted
	result.Updated = counts.Updated
	result.Unchanged = counts.Unchanged
	result.Retired = counts.Retired

	im.metrics.Imported("inserted", result.Inserted)
	im.metrics.Imported("updated", result.Updated)
	im.metrics.Imported("unchanged", result.Unchanged)
	im.metrics.Imported("retired", result.Retired)
	im.metrics.Imported("failed", result.Failed)

	if im.Cache != nil && (result.Inserted > 0 || result.Updated > 0 || result.Retired > 0) {
		im.Cache.Invalidate(ctx)
	}

	im.log.Info("questionnaire imported",
		"product_id", productID,
		"inserted", result.Inserted,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
		"retired", result.Retired,
		"failed", result.Failed,
	)
	return result, nil
}
