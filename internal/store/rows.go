package store

import (
	"time"

	"github.com/agenthands/crosswalk/internal/core/model"
)

type productRow struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"not null;default:''"`
	Premium   bool   `gorm:"not null;default:false"`
	Approved  bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (productRow) TableName() string { return "products" }

func (r productRow) toModel() model.Product {
	return model.Product{
		ID:        r.ID,
		Name:      r.Name,
		Premium:   r.Premium,
		Approved:  r.Approved,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

type controlRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	ProductID   string `gorm:"size:64;not null;index;uniqueIndex:ux_controls_product_key,priority:1"`
	ItemKey     string `gorm:"size:255;not null;uniqueIndex:ux_controls_product_key,priority:2"`
	Text        string `gorm:"type:text;not null;default:''"`
	Ordinal     int    `gorm:"not null;default:0"`
	Section     string `gorm:"type:text;not null;default:''"`
	ItemType    string `gorm:"size:64;not null;default:''"`
	Description string `gorm:"type:text;not null;default:''"`
	Retired     bool   `gorm:"not null;default:false;index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (controlRow) TableName() string { return "controls" }

func (r controlRow) toModel() model.Control {
	return model.Control{
		ID:          r.ID,
		ProductID:   r.ProductID,
		Key:         r.ItemKey,
		Text:        r.Text,
		Ordinal:     r.Ordinal,
		Section:     r.Section,
		ItemType:    r.ItemType,
		Description: r.Description,
		Retired:     r.Retired,
		UpdatedAt:   r.UpdatedAt,
	}
}

// sameContent reports whether the stored row already carries the control's data.
func (r controlRow) sameContent(c model.Control) bool {
	return r.Text == c.Text &&
		r.Ordinal == c.Ordinal &&
		r.Section == c.Section &&
		r.ItemType == c.ItemType &&
		r.Description == c.Description &&
		!r.Retired
}

// edgeRow is one directed mapping. The composite primary key enforces one row
// per ordered (source, target) pair.
type edgeRow struct {
	SourceControlID string    `gorm:"primaryKey;size:64"`
	TargetControlID string    `gorm:"primaryKey;size:64;index"`
	Confidence      float64   `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

func (edgeRow) TableName() string { return "mapping_edges" }
