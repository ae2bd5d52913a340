package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// controlNamespace seeds deterministic control identifiers.
var controlNamespace = uuid.MustParse("6f1d2c1e-8a4b-5d7e-9c3f-2b1a0e9d8c7b")

type Control struct {
	ID          string    `json:"id"`
	ProductID   string    `json:"product_id"`
	Key         string    `json:"key"`
	Text        string    `json:"text"`
	Ordinal     int       `json:"ordinal"`
	Section     string    `json:"section,omitempty"`
	ItemType    string    `json:"item_type,omitempty"`
	Description string    `json:"description,omitempty"`
	Retired     bool      `json:"retired"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ControlID derives the stable identifier of the control keyed by (productID, key).
func ControlID(productID, key string) string {
	return uuid.NewSHA1(controlNamespace, []byte(productID+":"+key)).String()
}

// HasText reports whether the control carries a statement worth matching.
func (c Control) HasText() bool {
	return strings.TrimSpace(c.Text) != ""
}
