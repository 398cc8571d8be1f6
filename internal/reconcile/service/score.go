package service

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

// веса слагаемых итогового score
const (
	weightTitle    = 0.4
	weightBrand    = 0.2
	weightPrice    = 0.2
	weightCategory = 0.1
	weightImage    = 0.1

	priceTolerance = 0.10

	titleEvidence    = 0.8
	brandEvidence    = 0.9
	categoryEvidence = 0.8

	variantScore = 0.8
)

// Score compares two product records. It is pure and symmetric:
// Score(a, b) and Score(b, a) carry the same score, class and evidence.
func Score(a, b model.ProductRecord) model.SimilarityResult {
	res := model.SimilarityResult{RecordA: a, RecordB: b}

	// (1) SKU: детерминированный ключ
	if sa, sb := strings.TrimSpace(a.SKU), strings.TrimSpace(b.SKU); sa != "" && sa == sb {
		res.Score = 1
		res.Classification = model.ClassExact
		res.Evidence = []string{"Exact SKU match"}
		return res
	}
	if sameRecord(a, b) {
		res.Score = 1
		res.Classification = model.ClassExact
		res.Evidence = []string{"Identical record"}
		return res
	}

	// (2) взвешенная сумма
	var total float64
	evidence := make([]string, 0, 5)

	if sim := textSimilarity(a.Title, b.Title); sim > 0 {
		total += clamp01(sim) * weightTitle
		if sim > titleEvidence {
			evidence = append(evidence, fmt.Sprintf("Title similarity %.0f%%", sim*100))
		}
	}

	if present(a.Brand) && present(b.Brand) {
		sim := textSimilarity(a.Brand, b.Brand)
		total += clamp01(sim) * weightBrand
		if sim > brandEvidence {
			evidence = append(evidence, "Brand match")
		}
	}

	if priceClose(a.Price, b.Price) {
		total += weightPrice
		evidence = append(evidence, "Price within 10%")
	}

	if present(a.Category) && present(b.Category) {
		sim := textSimilarity(a.Category, b.Category)
		total += clamp01(sim) * weightCategory
		if sim > categoryEvidence {
			evidence = append(evidence, "Category match")
		}
	}

	if sharedImage(a.Images, b.Images) {
		total += weightImage
		evidence = append(evidence, "Shared image found")
	}

	// срезаем хвосты float, чтобы 0.4+0.2+0.1 не превращалось в 0.6999…
	res.Score = math.Min(1, math.Round(total*1e9)/1e9)
	res.Classification = model.ClassFuzzy
	if res.Score > variantScore {
		res.Classification = model.ClassVariant
	}
	res.Evidence = evidence
	return res
}

// sameRecord: one record compared with itself, by id or by full content.
func sameRecord(a, b model.ProductRecord) bool {
	if a.ID != "" && a.ID == b.ID {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func present(s string) bool { return strings.TrimSpace(s) != "" }

// priceClose is skipped (false) for invalid prices and when both are zero.
func priceClose(pa, pb float64) bool {
	if !validPrice(pa) || !validPrice(pb) {
		return false
	}
	avg := (pa + pb) / 2
	if avg == 0 {
		return false
	}
	return math.Abs(pa-pb)/avg < priceTolerance
}

func validPrice(p float64) bool {
	return p >= 0 && !math.IsNaN(p) && !math.IsInf(p, 0)
}

func sharedImage(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(a))
	for _, u := range a {
		if n := normalizeImageURL(u); n != "" {
			seen[n] = struct{}{}
		}
	}
	for _, u := range b {
		if _, ok := seen[normalizeImageURL(u)]; ok {
			return true
		}
	}
	return false
}

// CheckRecord lists the fields of p the scorer has to skip.
// Scoring never fails on them; the caller decides whether to log.
func CheckRecord(p model.ProductRecord) []error {
	var out []error
	if !present(p.Title) {
		out = append(out, &errs.ScoringError{RecordID: p.ID, Field: "title"})
	}
	if !validPrice(p.Price) {
		out = append(out, &errs.ScoringError{RecordID: p.ID, Field: "price"})
	}
	if p.Stock < 0 {
		out = append(out, &errs.ScoringError{RecordID: p.ID, Field: "stock"})
	}
	return out
}
