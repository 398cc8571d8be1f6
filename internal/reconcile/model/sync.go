package model

import (
	"fmt"
	"time"

	"catalog-sync/internal/errs"
)

type Frequency string

const (
	Hourly Frequency = "hourly"
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

// Window is how old a record's last refresh must be before a pull touches it again.
func (f Frequency) Window() time.Duration {
	switch f {
	case Hourly:
		return time.Hour
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// CronSpec maps the frequency onto a robfig/cron descriptor.
func (f Frequency) CronSpec() string {
	switch f {
	case Hourly:
		return "@hourly"
	case Daily:
		return "@daily"
	case Weekly:
		return "@weekly"
	}
	return ""
}

// SyncConfig is owned by the account and read-only during a run.
type SyncConfig struct {
	Enabled                   bool      `json:"enabled"`
	Frequency                 Frequency `json:"frequency"`
	AutoAdjustPrices          bool      `json:"autoAdjustPrices"`
	StockThreshold            int       `json:"stockThreshold"`
	PriceVarianceLimitPercent float64   `json:"priceVarianceLimitPercent"`
}

// Validate reports the first problem that makes the config unusable for a run.
func (c SyncConfig) Validate() error {
	if c.Frequency.Window() == 0 {
		return errs.NewConfigError("frequency", fmt.Sprintf("unknown frequency %q", c.Frequency), errs.ErrInvalidConfig)
	}
	if c.StockThreshold < 0 {
		return errs.NewConfigError("stockThreshold", "must be >= 0", errs.ErrInvalidConfig)
	}
	if c.PriceVarianceLimitPercent < 0 || c.PriceVarianceLimitPercent > 100 {
		return errs.NewConfigError("priceVarianceLimitPercent", "must be within 0..100", errs.ErrInvalidConfig)
	}
	return nil
}

// SyncOutcome is created fresh per run, written to the audit sink and never mutated afterwards.
type SyncOutcome struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"accountId"`
	StartedAt   time.Time `json:"startedAt"`
	Success     bool      `json:"success"`
	ItemsSynced int       `json:"itemsSynced"`
	Errors      []string  `json:"errors"`
	DurationMs  int64     `json:"durationMs"`
}

// PriceAdjustment is the append-only audit artifact of an automatic price change.
type PriceAdjustment struct {
	ID              string    `json:"id"`
	AccountID       string    `json:"accountId"`
	ProductID       string    `json:"productId"`
	PreviousPrice   float64   `json:"previousPrice"`
	NewPrice        float64   `json:"newPrice"`
	StockAtDecision int       `json:"stockAtDecision"`
	Reason          string    `json:"reason"`
	Timestamp       time.Time `json:"timestamp"`
}

// SupplierIntegration is an upstream source configured on an account.
// Type selects the connector ("http", "feed", ...).
type SupplierIntegration struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Name     string            `json:"name,omitempty"`
	Active   bool              `json:"active"`
	Endpoint string            `json:"endpoint,omitempty"`
	Settings map[string]string `json:"settings,omitempty"`
}

// ChannelIntegration is a downstream sales channel configured on an account.
// LastSyncAt is the watermark of the last fully successful push.
type ChannelIntegration struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Name       string            `json:"name,omitempty"`
	Active     bool              `json:"active"`
	Endpoint   string            `json:"endpoint,omitempty"`
	Settings   map[string]string `json:"settings,omitempty"`
	LastSyncAt time.Time         `json:"lastSyncAt,omitempty"`
}

// Filter narrows a catalogue read. Zero values mean "no constraint".
type Filter struct {
	SupplierID      string
	RefreshedBefore time.Time
	UpdatedSince    time.Time
	Limit           int
}

// Match reports whether p passes the filter (limit is applied by the caller).
func (f Filter) Match(p ProductRecord) bool {
	if f.SupplierID != "" && p.SupplierRef.SupplierID != f.SupplierID {
		return false
	}
	if !f.RefreshedBefore.IsZero() && !p.RefreshedAt.Before(f.RefreshedBefore) {
		return false
	}
	if !f.UpdatedSince.IsZero() && !p.UpdatedAt.After(f.UpdatedSince) {
		return false
	}
	return true
}

// Fields is a partial update of a record. Nil pointers are left untouched.
type Fields struct {
	Stock       *int
	Price       *float64
	RefreshedAt *time.Time
}

// Apply writes the set fields into p and reports whether price or stock changed.
func (f Fields) Apply(p *ProductRecord) bool {
	changed := false
	if f.Stock != nil && *f.Stock != p.Stock {
		p.Stock = *f.Stock
		changed = true
	}
	if f.Price != nil && *f.Price != p.Price {
		p.Price = *f.Price
		changed = true
	}
	if f.RefreshedAt != nil {
		p.RefreshedAt = *f.RefreshedAt
	}
	return changed
}
