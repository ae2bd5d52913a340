package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/agenthands/crosswalk/internal/core/model"
)

var edgeConflict = clause.OnConflict{
	Columns:   []clause.Column{{Name: "source_control_id"}, {Name: "target_control_id"}},
	DoUpdates: clause.AssignmentColumns([]string{"confidence", "updated_at"}),
}

// UpsertEdgePair writes the edge and its reverse in one transaction. Rows are
// written in (source, target) order so concurrent writers of the same pair
// acquire row locks in the same sequence.
func (s *Store) UpsertEdgePair(ctx context.Context, sourceControlID, targetControlID string, confidence float64) error {
	if sourceControlID == targetControlID {
		return fmt.Errorf("upsert edge pair: self edge on %s", sourceControlID)
	}
	now := time.Now().UTC()
	rows := []edgeRow{
		{SourceControlID: sourceControlID, TargetControlID: targetControlID, Confidence: confidence, UpdatedAt: now},
		{SourceControlID: targetControlID, TargetControlID: sourceControlID, Confidence: confidence, UpdatedAt: now},
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].SourceControlID < rows[j].SourceControlID
	})

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Clauses(edgeConflict).Create(&rows[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert edge pair %s<->%s: %w", sourceControlID, targetControlID, err)
	}
	return nil
}

// ClearPairEdges deletes every edge between the two products, in both directions.
func (s *Store) ClearPairEdges(ctx context.Context, productA, productB string) (int64, error) {
	db := s.db.WithContext(ctx)
	subA := db.Model(&controlRow{}).Select("id").Where("product_id = ?", productA)
	subB := db.Model(&controlRow{}).Select("id").Where("product_id = ?", productB)

	res := db.
		Where("(source_control_id IN (?) AND target_control_id IN (?)) OR (source_control_id IN (?) AND target_control_id IN (?))",
			subA, subB, subB, subA).
		Delete(&edgeRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("clear edges %s<->%s: %w", productA, productB, res.Error)
	}
	return res.RowsAffected, nil
}

type edgeView struct {
	SourceControlID string
	TargetControlID string
	SourceProductID string
	TargetProductID string
	Confidence      float64
	UpdatedAt       time.Time
}

// AllEdges reads every stored edge ordered by (source, target).
func (s *Store) AllEdges(ctx context.Context) ([]model.MappingEdge, error) {
	edges, err := s.scanEdges(s.edgeQuery(ctx))
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}

// EdgesBetween returns the edges from sourceProduct controls into targetProduct controls.
func (s *Store) EdgesBetween(ctx context.Context, sourceProduct, targetProduct string) ([]model.MappingEdge, error) {
	q := s.edgeQuery(ctx).Where("sc.product_id = ? AND tc.product_id = ?", sourceProduct, targetProduct)
	edges, err := s.scanEdges(q)
	if err != nil {
		return nil, fmt.Errorf("list edges %s->%s: %w", sourceProduct, targetProduct, err)
	}
	return edges, nil
}

func (s *Store) edgeQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("mapping_edges AS e").
		Select("e.source_control_id, e.target_control_id, sc.product_id AS source_product_id, tc.product_id AS target_product_id, e.confidence, e.updated_at").
		Joins("JOIN controls sc ON sc.id = e.source_control_id").
		Joins("JOIN controls tc ON tc.id = e.target_control_id")
}

func (s *Store) scanEdges(q *gorm.DB) ([]model.MappingEdge, error) {
	var rows []edgeView
	if err := q.Order("e.source_control_id ASC, e.target_control_id ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.MappingEdge, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MappingEdge{
			SourceControlID: r.SourceControlID,
			TargetControlID: r.TargetControlID,
			SourceProductID: r.SourceProductID,
			TargetProductID: r.TargetProductID,
			Confidence:      r.Confidence,
			UpdatedAt:       r.UpdatedAt,
		})
	}
	return out, nil
}
