// Package connector adapts the catalogue model to supplier and channel APIs.
// Connectors are selected by the type tag of the integration record.
package connector

import (
	"context"
	"fmt"
	"sync"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

// PriceQuote is a supplier's answer about a price. Unchanged is a normal
// business answer, not an error; Price is then meaningless.
type PriceQuote struct {
	Price     float64
	Unchanged bool
}

// Supplier reads authoritative stock and price from an upstream source.
// Unreachable or rate-limited sources fail with an errs.ConnectorError.
type Supplier interface {
	FetchStock(ctx context.Context, s model.SupplierIntegration, productRef string) (int, error)
	FetchPrice(ctx context.Context, s model.SupplierIntegration, productRef string) (PriceQuote, error)
}

// PushResult is what a channel reports back for an accepted listing.
type PushResult struct {
	RemoteID string
}

// Channel publishes a listing to a downstream sales channel.
type Channel interface {
	Push(ctx context.Context, ch model.ChannelIntegration, p model.ProductRecord) (PushResult, error)
}

// Registry maps integration type tags to connectors.
type Registry struct {
	mu        sync.RWMutex
	suppliers map[string]Supplier
	channels  map[string]Channel
}

func NewRegistry() *Registry {
	return &Registry{
		suppliers: make(map[string]Supplier),
		channels:  make(map[string]Channel),
	}
}

func (r *Registry) RegisterSupplier(typ string, s Supplier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppliers[typ] = s
}

func (r *Registry) RegisterChannel(typ string, c Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[typ] = c
}

func (r *Registry) Supplier(typ string) (Supplier, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.suppliers[typ]
	if !ok {
		return nil, errs.NewConfigError("supplier.type", fmt.Sprintf("no connector for supplier type %q", typ), errs.ErrInvalidConfig)
	}
	return s, nil
}

func (r *Registry) Channel(typ string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.channels[typ]
	if !ok {
		return nil, errs.NewConfigError("channel.type", fmt.Sprintf("no connector for channel type %q", typ), errs.ErrInvalidConfig)
	}
	return c, nil
}
