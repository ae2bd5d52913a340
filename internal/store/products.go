package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agenthands/crosswalk/internal/core/model"
)

// UpsertProduct creates the product or refreshes its name and eligibility flags.
func (s *Store) UpsertProduct(ctx context.Context, p model.Product) error {
	if p.ID == "" {
		return fmt.Errorf("upsert product: empty id")
	}
	now := time.Now().UTC()
	row := productRow{
		ID:        p.ID,
		Name:      p.Name,
		Premium:   p.Premium,
		Approved:  p.Approved,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "premium", "approved", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (model.Product, error) {
	var row productRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Product{}, fmt.Errorf("%w: %s", model.ErrProductNotFound, id)
		}
		return model.Product{}, fmt.Errorf("get product %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *Store) ListProducts(ctx context.Context) ([]model.Product, error) {
	return s.listProducts(s.db.WithContext(ctx))
}

// ListEligibleProducts returns premium and approved products ordered by id.
func (s *Store) ListEligibleProducts(ctx context.Context) ([]model.Product, error) {
	return s.listProducts(s.db.WithContext(ctx).Where("premium = ? AND approved = ?", true, true))
}

func (s *Store) listProducts(q *gorm.DB) ([]model.Product, error) {
	var rows []productRow
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]model.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}
