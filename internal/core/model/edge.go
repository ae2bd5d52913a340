package model

import "time"

// MappingEdge is one directed row of the symmetric "maps to" relation.
type MappingEdge struct {
	SourceControlID string    `json:"source_control_id"`
	TargetControlID string    `json:"target_control_id"`
	SourceProductID string    `json:"source_product_id"`
	TargetProductID string    `json:"target_product_id"`
	Confidence      float64   `json:"confidence"`
	UpdatedAt       time.Time `json:"updated_at"`
}
