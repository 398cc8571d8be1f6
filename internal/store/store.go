// Package store holds the catalogue store and the audit sink.
// Writes to one record are serialized by every implementation: concurrent
// source workers may race on a record, the last writer wins, but field
// updates never interleave.
package store

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"

	"catalog-sync/internal/reconcile/model"
)

// Catalogue is the generic record store of an account's products,
// integrations and sync configuration.
type Catalogue interface {
	Read(ctx context.Context, accountID string, f model.Filter) ([]model.ProductRecord, error)
	Get(ctx context.Context, accountID, id string) (model.ProductRecord, error)
	// Update applies f atomically and returns the record as stored.
	// UpdatedAt moves only when price or stock actually changed.
	Update(ctx context.Context, accountID, id string, f model.Fields) (model.ProductRecord, error)
	Put(ctx context.Context, accountID string, p model.ProductRecord) error
	Delete(ctx context.Context, accountID, id string) error

	GetConfig(ctx context.Context, accountID string) (model.SyncConfig, error)
	PutConfig(ctx context.Context, accountID string, cfg model.SyncConfig) error

	Suppliers(ctx context.Context, accountID string) ([]model.SupplierIntegration, error)
	PutSupplier(ctx context.Context, accountID string, s model.SupplierIntegration) error
	Channels(ctx context.Context, accountID string) ([]model.ChannelIntegration, error)
	PutChannel(ctx context.Context, accountID string, c model.ChannelIntegration) error
	SetChannelWatermark(ctx context.Context, accountID, channelID string, at time.Time) error

	Accounts(ctx context.Context) ([]string, error)
}

// AuditSink is the append-only log of run outcomes and price adjustments,
// keyed by account and timestamp.
type AuditSink interface {
	AppendOutcome(ctx context.Context, o model.SyncOutcome) error
	AppendPriceAdjustment(ctx context.Context, a model.PriceAdjustment) error
	// Outcomes and PriceAdjustments return the newest entries first.
	Outcomes(ctx context.Context, accountID string, limit int) ([]model.SyncOutcome, error)
	PriceAdjustments(ctx context.Context, accountID string, limit int) ([]model.PriceAdjustment, error)
}

// ensureID gives records from feeds without an id a fresh one.
func ensureID(p *model.ProductRecord) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
}

var nowFunc = time.Now

// cloneRecord detaches p from the caller's slices, maps and pointers.
func cloneRecord(p model.ProductRecord) model.ProductRecord {
	p.Images = slices.Clone(p.Images)
	p.Attributes = maps.Clone(p.Attributes)
	if p.Variants != nil {
		vs := make([]model.Variant, len(p.Variants))
		for i, v := range p.Variants {
			v.Options = maps.Clone(v.Options)
			vs[i] = v
		}
		p.Variants = vs
	}
	if p.CostPrice != nil {
		v := *p.CostPrice
		p.CostPrice = &v
	}
	if p.Weight != nil {
		v := *p.Weight
		p.Weight = &v
	}
	if p.Dimensions != nil {
		d := *p.Dimensions
		p.Dimensions = &d
	}
	return p
}

// applyUpdate is the shared Update rule of every implementation.
func applyUpdate(p *model.ProductRecord, f model.Fields) {
	if f.Apply(p) {
		p.UpdatedAt = nowFunc()
	}
}

// auditKey orders entries by time inside an account bucket.
func auditKey(ts time.Time, id string) []byte {
	return []byte(ts.UTC().Format("20060102T150405.000000000Z") + "/" + id)
}

var (
	_ Catalogue = (*Memory)(nil)
	_ AuditSink = (*Memory)(nil)
	_ Catalogue = (*Bolt)(nil)
	_ AuditSink = (*Bolt)(nil)
)
