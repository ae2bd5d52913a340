package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/agenthands/crosswalk/internal/core/model"
)

// ErrNoQuestionnaire means the product detail carries no questionnaire.
var ErrNoQuestionnaire = errors.New("catalog: product has no questionnaire")

type accessRequest struct {
	ProductID string `json:"product_id"`
	Status    string `json:"status"`
}

type productMeta struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	IsFree *bool  `json:"is_free"`
}

// Products lists every catalog product with its eligibility flags. A
// product is premium when is_free is false and approved when the account's
// access request for it has status "approved".
func (c *Client) Products(ctx context.Context) ([]model.Product, error) {
	var access []accessRequest
	if err := c.get(ctx, "/products/request-access/", &access); err != nil {
		return nil, err
	}
	var metas []productMeta
	if err := c.get(ctx, "/products/", &metas); err != nil {
		return nil, err
	}

	approved := make(map[string]bool, len(access))
	for _, a := range access {
		if strings.EqualFold(strings.TrimSpace(a.Status), "approved") {
			approved[a.ProductID] = true
		}
	}

	out := make([]model.Product, 0, len(metas))
	for _, m := range metas {
		if m.ID == "" {
			continue
		}
		out = append(out, model.Product{
			ID:       m.ID,
			Name:     m.Name,
			Premium:  m.IsFree != nil && !*m.IsFree,
			Approved: approved[m.ID],
		})
	}
	return out, nil
}

type productDetail struct {
	Questionnaire json.RawMessage `json:"questionnaire"`
}

// Questionnaire returns the raw questionnaire sections of a product.
func (c *Client) Questionnaire(ctx context.Context, productID string) ([]byte, error) {
	var detail productDetail
	if err := c.get(ctx, fmt.Sprintf("/products/%s/", url.PathEscape(productID)), &detail); err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(detail.Questionnaire)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("[]")) {
		return nil, fmt.Errorf("%w: %s", ErrNoQuestionnaire, productID)
	}
	return raw, nil
}
