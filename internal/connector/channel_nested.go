package connector

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"catalog-sync/internal/reconcile/model"
)

// NestedChannel publishes listings to marketplace-style APIs that want the
// category path as a nested tree. PUT {endpoint}/items/{id}.
type NestedChannel struct {
	t transport
}

func NewNestedChannel(client *http.Client) *NestedChannel {
	return &NestedChannel{t: newTransport(client)}
}

type nestedCategory struct {
	Name     string           `json:"name"`
	Children []nestedCategory `json:"children,omitempty"`
}

type nestedMoney struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type nestedItem struct {
	ExternalID  string            `json:"externalId"`
	SKU         string            `json:"sku,omitempty"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Price       nestedMoney       `json:"price"`
	Stock       int               `json:"stock"`
	Images      []string          `json:"images,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type nestedPayload struct {
	Item       nestedItem       `json:"item"`
	Categories []nestedCategory `json:"categories,omitempty"`
}

type nestedResponse struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
}

var categorySep = regexp.MustCompile(`\s*(?:>|/|»|\\)\s*`)

// categoryTree turns "Home > Kitchen > Knives" into a single-branch tree.
func categoryTree(path string) []nestedCategory {
	var parts []string
	for _, p := range categorySep.Split(strings.TrimSpace(path), -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	node := nestedCategory{Name: parts[len(parts)-1]}
	for i := len(parts) - 2; i >= 0; i-- {
		node = nestedCategory{Name: parts[i], Children: []nestedCategory{node}}
	}
	return []nestedCategory{node}
}

func nest(p model.ProductRecord) nestedPayload {
	return nestedPayload{
		Item: nestedItem{
			ExternalID:  p.ID,
			SKU:         p.SKU,
			Name:        p.Title,
			Description: p.Description,
			Brand:       p.Brand,
			Price:       nestedMoney{Amount: p.Price, Currency: p.Currency},
			Stock:       p.Stock,
			Images:      p.Images,
			Attributes:  p.Attributes,
		},
		Categories: categoryTree(p.Category),
	}
}

func (c *NestedChannel) Push(ctx context.Context, ch model.ChannelIntegration, p model.ProductRecord) (PushResult, error) {
	var resp nestedResponse
	err := c.t.do(ctx, call{
		connector: ch.ID,
		op:        "push",
		ref:       p.ID,
		method:    http.MethodPut,
		url:       joinURL(ch.Endpoint, "items", url.PathEscape(p.ID)),
		token:     ch.Settings["token"],
		body:      nest(p),
	}, &resp)
	if err != nil {
		return PushResult{}, err
	}
	return PushResult{RemoteID: resp.Item.ID}, nil
}
