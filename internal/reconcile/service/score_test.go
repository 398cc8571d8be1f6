package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

func mouse() model.ProductRecord {
	return model.ProductRecord{
		ID:       "m1",
		Title:    "Logitech M185 Wireless Mouse",
		Brand:    "Logitech",
		Category: "Peripherals",
		Price:    20,
		Stock:    4,
		Images:   []string{"https://cdn.example.com/m185.jpg?v=3"},
	}
}

func TestDamerauLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"ca", "ac", 1},
		{"abcd", "acbd", 1},
		{"молоко", "малако", 2},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, damerauLevenshtein(tt.a, tt.b))
			assert.Equal(t, tt.want, damerauLevenshtein(tt.b, tt.a))
		})
	}
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "hello world 2", normalizeText("  Hello,   WORLD!! ２ "))
	assert.Equal(t, "", normalizeText("!!!"))
	assert.Equal(t, "ёлка", normalizeText("ЁЛКА"))
}

func TestNormalizeImageURL(t *testing.T) {
	want := "cdn.example.com/a.jpg"
	for _, in := range []string{
		"https://cdn.example.com/a.jpg",
		"http://cdn.example.com/a.jpg?w=200",
		"//cdn.example.com/a.jpg#frag",
		"  cdn.example.com/a.jpg ",
	} {
		assert.Equal(t, want, normalizeImageURL(in), in)
	}
}

func TestTextSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, textSimilarity("", "abc"))
	assert.Equal(t, 0.0, textSimilarity("abc", "   "))
	assert.Equal(t, 1.0, textSimilarity("Red Apple", "red   apple!"))
	assert.InDelta(t, 0.75, textSimilarity("abcd", "abcx"), 1e-9)
}

func TestScore(t *testing.T) {
	t.Run("exact sku wins over everything else", func(t *testing.T) {
		a := model.ProductRecord{ID: "1", SKU: "ABC", Title: "Chair", Price: 10}
		b := model.ProductRecord{ID: "2", SKU: "ABC", Title: "Completely different", Price: 999}

		res := Score(a, b)
		assert.Equal(t, 1.0, res.Score)
		assert.Equal(t, model.ClassExact, res.Classification)
		assert.Equal(t, []string{"Exact SKU match"}, res.Evidence)
	})

	t.Run("record against itself", func(t *testing.T) {
		for _, p := range []model.ProductRecord{
			mouse(),
			{Title: "no id, no sku"},
			{},
		} {
			res := Score(p, p)
			assert.Equal(t, 1.0, res.Score)
			assert.Equal(t, model.ClassExact, res.Classification)
		}
	})

	t.Run("near duplicate is a variant", func(t *testing.T) {
		a := mouse()
		b := mouse()
		b.ID = "m2"
		b.Title = "Logitech M185 Wireless Mouse Grey"
		b.Price = 21
		b.Images = []string{"http://cdn.example.com/m185.jpg"}

		res := Score(a, b)
		// title 1-5/33, brand, price, category, image
		assert.InDelta(t, (1-5.0/33)*0.4+0.2+0.2+0.1+0.1, res.Score, 1e-9)
		assert.Equal(t, model.ClassVariant, res.Classification)
		assert.Equal(t, []string{
			"Title similarity 85%",
			"Brand match",
			"Price within 10%",
			"Category match",
			"Shared image found",
		}, res.Evidence)
	})

	t.Run("weak match is fuzzy", func(t *testing.T) {
		a := model.ProductRecord{ID: "1", Title: "Office chair", Price: 100}
		b := model.ProductRecord{ID: "2", Title: "Gaming mouse", Price: 500}

		res := Score(a, b)
		assert.Less(t, res.Score, 0.4)
		assert.Equal(t, model.ClassFuzzy, res.Classification)
		assert.Empty(t, res.Evidence)
	})

	t.Run("missing fields contribute nothing", func(t *testing.T) {
		a := model.ProductRecord{ID: "1", Price: -1}
		b := model.ProductRecord{ID: "2", Price: -1}

		res := Score(a, b)
		assert.Equal(t, 0.0, res.Score)
		assert.Equal(t, model.ClassFuzzy, res.Classification)
	})

	t.Run("zero prices are not a price match", func(t *testing.T) {
		a := model.ProductRecord{ID: "1", Title: "x"}
		b := model.ProductRecord{ID: "2", Title: "y"}
		assert.NotContains(t, Score(a, b).Evidence, "Price within 10%")
	})
}

func TestScoreSymmetric(t *testing.T) {
	records := []model.ProductRecord{
		mouse(),
		{ID: "a", Title: "Logitech M185 mouse", Brand: "logitech", Price: 19},
		{ID: "b", Title: "M185", Category: "Peripherals", Price: 22, Images: []string{"//cdn.example.com/m185.jpg"}},
		{ID: "c", SKU: "Z-1", Title: "Стол письменный", Brand: "Икеа", Price: 5000},
		{ID: "d", SKU: "Z-1", Title: "Desk", Price: 10},
		{ID: "e"},
	}
	for i := range records {
		for j := range records {
			ab, ba := Score(records[i], records[j]), Score(records[j], records[i])
			assert.Equal(t, ab.Score, ba.Score, "%d/%d", i, j)
			assert.Equal(t, ab.Classification, ba.Classification, "%d/%d", i, j)
			assert.Equal(t, ab.Evidence, ba.Evidence, "%d/%d", i, j)
		}
	}
}

func TestCheckRecord(t *testing.T) {
	assert.Empty(t, CheckRecord(mouse()))

	problems := CheckRecord(model.ProductRecord{ID: "x", Price: -5, Stock: -1})
	require.Len(t, problems, 3)
	for _, p := range problems {
		assert.ErrorIs(t, p, errs.ErrMalformedRecord)
	}
}
