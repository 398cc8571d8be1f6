// Package model holds the catalogue types shared by deduplication and sync.
package model

import (
	"strings"
	"time"
)

type Dimensions struct {
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit,omitempty"`
}

// Variant is a sub-record sharing the parent's identity (size, colour...).
type Variant struct {
	SKU     string            `json:"sku,omitempty"`
	Title   string            `json:"title,omitempty"`
	Price   float64           `json:"price"`
	Stock   int               `json:"stock"`
	Options map[string]string `json:"options,omitempty"`
}

// Key identifies a variant inside its parent: SKU when present, otherwise the title.
func (v Variant) Key() string {
	if s := strings.TrimSpace(v.SKU); s != "" {
		return "sku:" + s
	}
	return "title:" + strings.ToLower(strings.TrimSpace(v.Title))
}

// SupplierRef is the identity of a record's origin.
type SupplierRef struct {
	SupplierID string `json:"supplierId"`
	ProductRef string `json:"productRef"` // id of the product on the supplier side
}

type ProductRecord struct {
	ID          string            `json:"id"`
	SKU         string            `json:"sku,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Price       float64           `json:"price"`
	CostPrice   *float64          `json:"costPrice,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Stock       int               `json:"stock"`
	Images      []string          `json:"images,omitempty"`
	Category    string            `json:"category,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Weight      *float64          `json:"weight,omitempty"`
	Dimensions  *Dimensions       `json:"dimensions,omitempty"`
	Variants    []Variant         `json:"variants,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	SupplierRef SupplierRef       `json:"supplierRef"`

	RefreshedAt time.Time `json:"refreshedAt,omitempty"` // last pull from the supplier
	UpdatedAt   time.Time `json:"updatedAt,omitempty"`   // last local change of price/stock/content
}

type Classification string

const (
	ClassExact   Classification = "exact"
	ClassVariant Classification = "variant"
	ClassFuzzy   Classification = "fuzzy"
)

// SimilarityResult is computed once per candidate pair per batch run and never persisted.
type SimilarityResult struct {
	RecordA        ProductRecord  `json:"recordA"`
	RecordB        ProductRecord  `json:"recordB"`
	Score          float64        `json:"score"`
	Classification Classification `json:"classification"`
	Evidence       []string       `json:"evidence"`
}

// DedupeReport is what a deduplication pass hands back to the caller.
type DedupeReport struct {
	Matches   []SimilarityResult `json:"matches"`
	Canonical []ProductRecord    `json:"canonical"`
	Removed   []string           `json:"removed"` // ids absorbed into a canonical record
}

// FeedMapping says which columns of a supplier feed hold which fields.
// Each key may list alternatives separated by "|".
type FeedMapping struct {
	SKUKey         string `json:"sku"`
	TitleKey       string `json:"title"`
	PriceKey       string `json:"price"`
	StockKey       string `json:"stock"`
	BrandKey       string `json:"brand"`
	CategoryKey    string `json:"category"`
	DescriptionKey string `json:"description"`
	ImagesKey      string `json:"images"`
	CurrencyKey    string `json:"currency"`
	HeaderRow      int    `json:"headerRow"` // 1-based
}

// DefaultFeedMapping covers the usual header spellings of supplier price lists.
func DefaultFeedMapping() FeedMapping {
	return FeedMapping{
		SKUKey:         "sku|артикул|article|code",
		TitleKey:       "title|name|наименование|номенклатура",
		PriceKey:       "price|цена",
		StockKey:       "stock|qty|quantity|количество|остаток",
		BrandKey:       "brand|бренд|производитель",
		CategoryKey:    "category|категория",
		DescriptionKey: "description|описание",
		ImagesKey:      "images|image|изображения|фото",
		CurrencyKey:    "currency|валюта",
		HeaderRow:      1,
	}
}
