// Package pricing decides automatic price changes from stock level.
package pricing

import (
	"github.com/shopspring/decimal"

	"catalog-sync/internal/reconcile/model"
)

const (
	ReasonLowStock  = "Low stock - price increased"
	ReasonHighStock = "High stock - price decreased"

	// overstockFactor: stock above threshold*overstockFactor counts as overstock
	overstockFactor = 3

	minorUnits = 2
)

var (
	hundred = decimal.NewFromInt(100)
	half    = decimal.NewFromFloat(0.5)
)

// Decision is the outcome of Evaluate. Changed is false for "no change".
type Decision struct {
	Changed  bool
	NewPrice float64
	Reason   string
}

// Evaluate applies the stock-driven policy. Below the threshold the price
// goes up by the full variance limit; above three times the threshold it
// goes down by half of it. The asymmetry is the policy, not a rounding
// artefact. Prices are rounded to the minor unit.
func Evaluate(p model.ProductRecord, cfg model.SyncConfig) Decision {
	price := decimal.NewFromFloat(p.Price)
	variance := decimal.NewFromFloat(cfg.PriceVarianceLimitPercent).Div(hundred)

	switch {
	case p.Stock < cfg.StockThreshold:
		np := price.Mul(decimal.NewFromInt(1).Add(variance)).Round(minorUnits)
		return decision(p.Price, np, ReasonLowStock)
	case p.Stock > cfg.StockThreshold*overstockFactor:
		np := price.Mul(decimal.NewFromInt(1).Sub(variance.Mul(half))).Round(minorUnits)
		return decision(p.Price, np, ReasonHighStock)
	}
	return Decision{}
}

// decision drops adjustments that round back to the current price.
func decision(current float64, np decimal.Decimal, reason string) Decision {
	f, _ := np.Float64()
	if f == current {
		return Decision{}
	}
	return Decision{Changed: true, NewPrice: f, Reason: reason}
}
