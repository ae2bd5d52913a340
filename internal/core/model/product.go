package model

import "time"

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Premium   bool      `json:"premium"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the product takes part in mapping and coverage.
func (p Product) Eligible() bool {
	return p.Premium && p.Approved
}
