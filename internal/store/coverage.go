package store

import (
	"context"
	"fmt"
)

// CountActiveControls counts the product's non-retired controls.
func (s *Store) CountActiveControls(ctx context.Context, productID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&controlRow{}).
		Where("product_id = ? AND retired = ?", productID, false).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count controls of %s: %w", productID, err)
	}
	return n, nil
}

type counterpartCount struct {
	ProductID string
	Mapped    int64
}

// MappedControlsByCounterpart counts, per counterpart product, the active
// controls of productID that have at least one edge into an active control of
// that counterpart.
func (s *Store) MappedControlsByCounterpart(ctx context.Context, productID string, counterparts []string) (map[string]int64, error) {
	out := make(map[string]int64, len(counterparts))
	if len(counterparts) == 0 {
		return out, nil
	}
	var rows []counterpartCount
	err := s.db.WithContext(ctx).
		Table("controls AS c").
		Select("t.product_id AS product_id, COUNT(DISTINCT c.id) AS mapped").
		Joins("JOIN mapping_edges e ON e.source_control_id = c.id").
		Joins("JOIN controls t ON t.id = e.target_control_id").
		Where("c.product_id = ? AND c.retired = ? AND t.retired = ? AND t.product_id IN ? AND t.product_id <> c.product_id",
			productID, false, false, counterparts).
		Group("t.product_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count mapped controls of %s: %w", productID, err)
	}
	for _, r := range rows {
		out[r.ProductID] = r.Mapped
	}
	return out, nil
}

// CountMappedControls counts the active controls of productID with at least
// one edge into an active control of any of the counterparts.
func (s *Store) CountMappedControls(ctx context.Context, productID string, counterparts []string) (int64, error) {
	if len(counterparts) == 0 {
		return 0, nil
	}
	var n int64
	err := s.db.WithContext(ctx).
		Table("controls AS c").
		Joins("JOIN mapping_edges e ON e.source_control_id = c.id").
		Joins("JOIN controls t ON t.id = e.target_control_id").
		Where("c.product_id = ? AND c.retired = ? AND t.retired = ? AND t.product_id IN ? AND t.product_id <> c.product_id",
			productID, false, false, counterparts).
		Distinct("c.id").
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count mapped controls of %s: %w", productID, err)
	}
	return n, nil
}
