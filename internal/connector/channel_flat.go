package connector

import (
	"context"
	"net/http"

	"catalog-sync/internal/reconcile/model"
)

// FlatChannel publishes listings as one product with a flat variant array
// (storefront-style APIs). POST {endpoint}/products upserts by SKU.
type FlatChannel struct {
	t transport
}

func NewFlatChannel(client *http.Client) *FlatChannel {
	return &FlatChannel{t: newTransport(client)}
}

type flatVariant struct {
	SKU      string            `json:"sku"`
	Title    string            `json:"title"`
	Price    float64           `json:"price"`
	Quantity int               `json:"inventory_quantity"`
	Options  map[string]string `json:"options,omitempty"`
}

type flatPayload struct {
	ExternalID  string        `json:"external_id"`
	Title       string        `json:"title"`
	Description string        `json:"body,omitempty"`
	Vendor      string        `json:"vendor,omitempty"`
	ProductType string        `json:"product_type,omitempty"`
	Currency    string        `json:"currency,omitempty"`
	Images      []string      `json:"images,omitempty"`
	Variants    []flatVariant `json:"variants"`
}

type flatResponse struct {
	ID string `json:"id"`
}

// flatten: without own variants the parent becomes the single default variant.
func flatten(p model.ProductRecord) flatPayload {
	out := flatPayload{
		ExternalID:  p.ID,
		Title:       p.Title,
		Description: p.Description,
		Vendor:      p.Brand,
		ProductType: p.Category,
		Currency:    p.Currency,
		Images:      p.Images,
	}
	if len(p.Variants) == 0 {
		out.Variants = []flatVariant{{SKU: p.SKU, Title: "Default", Price: p.Price, Quantity: p.Stock}}
		return out
	}
	for _, v := range p.Variants {
		out.Variants = append(out.Variants, flatVariant{
			SKU:      v.SKU,
			Title:    v.Title,
			Price:    v.Price,
			Quantity: v.Stock,
			Options:  v.Options,
		})
	}
	return out
}

func (c *FlatChannel) Push(ctx context.Context, ch model.ChannelIntegration, p model.ProductRecord) (PushResult, error) {
	var resp flatResponse
	err := c.t.do(ctx, call{
		connector: ch.ID,
		op:        "push",
		ref:       p.ID,
		method:    http.MethodPost,
		url:       joinURL(ch.Endpoint, "products"),
		token:     ch.Settings["token"],
		body:      flatten(p),
	}, &resp)
	if err != nil {
		return PushResult{}, err
	}
	return PushResult{RemoteID: resp.ID}, nil
}
