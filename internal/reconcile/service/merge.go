package service

import (
	"maps"
	"strings"
	"unicode/utf8"

	"catalog-sync/internal/reconcile/model"
)

const descriptionSimilar = 0.8

// Completeness is the heuristic used to pick a merge primary.
func Completeness(p model.ProductRecord) float64 {
	var s float64
	for _, f := range []string{p.Title, p.Description, p.SKU, p.Brand, p.Category} {
		if present(f) {
			s++
		}
	}
	if p.Weight != nil {
		s += 0.5
	}
	if p.Dimensions != nil {
		s += 0.5
	}
	if p.CostPrice != nil {
		s += 0.5
	}
	if len(p.Variants) > 0 {
		s += 0.5
	}
	if len(p.Images) > 0 {
		s++
	}
	return s
}

// Merge folds two records of one product into a canonical record.
// The more complete record is the primary (ties keep a) and the result keeps
// its id and supplier reference. Price is the lower of the two on purpose:
// the catalogue publishes the more competitive offer. Stock is the higher so
// availability is not under-reported. Inputs are not modified.
func Merge(a, b model.ProductRecord) model.ProductRecord {
	primary, secondary := a, b
	if Completeness(b) > Completeness(a) {
		primary, secondary = b, a
	}

	out := primary
	out.SKU = pick(primary.SKU, secondary.SKU)
	out.Title = pick(primary.Title, secondary.Title)
	out.Category = pick(primary.Category, secondary.Category)
	out.Brand = pick(primary.Brand, secondary.Brand)
	out.Currency = pick(primary.Currency, secondary.Currency)
	out.Weight = pickPtr(primary.Weight, secondary.Weight)
	out.CostPrice = pickPtr(primary.CostPrice, secondary.CostPrice)
	out.Dimensions = pickPtr(primary.Dimensions, secondary.Dimensions)

	out.Price = min(primary.Price, secondary.Price)
	out.Stock = max(primary.Stock, secondary.Stock)

	out.Images = unionStrings(primary.Images, secondary.Images)
	out.Variants = unionVariants(primary.Variants, secondary.Variants)
	out.Attributes = mergeAttributes(primary.Attributes, secondary.Attributes)
	out.Description = mergeDescription(primary.Description, secondary.Description)

	if secondary.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = secondary.UpdatedAt
	}
	return out
}

func pick(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}

func pickPtr[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}

// unionStrings keeps first-seen order, a's items first.
func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

func unionVariants(a, b []model.Variant) []model.Variant {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]model.Variant, 0, len(a)+len(b))
	for _, list := range [][]model.Variant{a, b} {
		for _, v := range list {
			k := v.Key()
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

// mergeAttributes: shallow merge, primary wins on conflict.
func mergeAttributes(primary, secondary map[string]string) map[string]string {
	if len(primary) == 0 && len(secondary) == 0 {
		return nil
	}
	out := make(map[string]string, len(primary)+len(secondary))
	maps.Copy(out, secondary)
	maps.Copy(out, primary)
	return out
}

// mergeDescription keeps the longer text when both say the same thing,
// otherwise keeps both separated by a blank line.
func mergeDescription(primary, secondary string) string {
	switch {
	case !present(secondary):
		return primary
	case !present(primary):
		return secondary
	}
	if textSimilarity(primary, secondary) > descriptionSimilar {
		if utf8.RuneCountInString(secondary) > utf8.RuneCountInString(primary) {
			return secondary
		}
		return primary
	}
	return primary + "\n\n" + secondary
}
