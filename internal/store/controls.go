package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/agenthands/crosswalk/internal/core/model"
)

type SyncCounts struct {
	Inserted  int
	Updated   int
	Unchanged int
	Retired   int
}

// SyncControls makes the product's stored controls match the given set in one
// transaction. Controls are keyed by (product, key); keys absent from the set
// are retired, never deleted, and no mapping edge is touched.
func (s *Store) SyncControls(ctx context.Context, productID string, controls []model.Control) (SyncCounts, error) {
	var counts SyncCounts
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []controlRow
		if err := tx.Where("product_id = ?", productID).Find(&existing).Error; err != nil {
			return fmt.Errorf("load controls: %w", err)
		}
		byKey := make(map[string]controlRow, len(existing))
		for _, r := range existing {
			byKey[r.ItemKey] = r
		}

		now := time.Now().UTC()
		keep := make([]string, 0, len(controls))
		var inserts []controlRow
		for _, c := range controls {
			id := model.ControlID(productID, c.Key)
			keep = append(keep, id)

			cur, ok := byKey[c.Key]
			switch {
			case !ok:
				inserts = append(inserts, controlRow{
					ID:          id,
					ProductID:   productID,
					ItemKey:     c.Key,
					Text:        c.Text,
					Ordinal:     c.Ordinal,
					Section:     c.Section,
					ItemType:    c.ItemType,
					Description: c.Description,
					CreatedAt:   now,
					UpdatedAt:   now,
				})
				counts.Inserted++
			case cur.sameContent(c):
				counts.Unchanged++
			default:
				err := tx.Model(&controlRow{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
					"text":        c.Text,
					"ordinal":     c.Ordinal,
					"section":     c.Section,
					"item_type":   c.ItemType,
					"description": c.Description,
					"retired":     false,
					"updated_at":  now,
				}).Error
				if err != nil {
					return fmt.Errorf("update control %s: %w", cur.ID, err)
				}
				counts.Updated++
			}
		}

		if len(inserts) > 0 {
			if err := tx.CreateInBatches(inserts, 200).Error; err != nil {
				return fmt.Errorf("insert controls: %w", err)
			}
		}

		retire := tx.Model(&controlRow{}).Where("product_id = ? AND retired = ?", productID, false)
		if len(keep) > 0 {
			retire = retire.Where("id NOT IN ?", keep)
		}
		res := retire.Updates(map[string]interface{}{"retired": true, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("retire controls: %w", res.Error)
		}
		counts.Retired = int(res.RowsAffected)
		return nil
	})
	if err != nil {
		return SyncCounts{}, fmt.Errorf("sync controls for %s: %w", productID, err)
	}
	return counts, nil
}

// ActiveControls returns the product's non-retired controls in questionnaire order.
func (s *Store) ActiveControls(ctx context.Context, productID string) ([]model.Control, error) {
	return s.controls(s.db.WithContext(ctx).Where("product_id = ? AND retired = ?", productID, false))
}

// ListControls returns every control of the product, retired ones included.
func (s *Store) ListControls(ctx context.Context, productID string) ([]model.Control, error) {
	return s.controls(s.db.WithContext(ctx).Where("product_id = ?", productID))
}

func (s *Store) controls(q *gorm.DB) ([]model.Control, error) {
	var rows []controlRow
	if err := q.Order("ordinal ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list controls: %w", err)
	}
	out := make([]model.Control, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
