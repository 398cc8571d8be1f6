// Package feed turns supplier price lists (rows keyed by header) into product records.
package feed

import (
	"io"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"catalog-sync/internal/fileio"
	"catalog-sync/internal/reconcile/model"
	"catalog-sync/internal/utils"
)

// Read parses a CSV/XLS/XLSX feed and maps its rows onto records of supplierID.
func Read(r io.Reader, filename string, m model.FeedMapping, supplierID string) ([]model.ProductRecord, error) {
	if m.HeaderRow <= 0 {
		m.HeaderRow = 1
	}
	rows, err := fileio.ReadAnyMaps(r, filename, m.HeaderRow)
	if err != nil {
		return nil, err
	}
	return ToRecords(rows, m, supplierID), nil
}

var headerJunk = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// нормализуем имя колонки: нижний регистр, убираем служ.символы/множественные пробелы/ё→е
func normHeaderKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("\u00A0", " ", "\u202F", " ", "ё", "е").Replace(s) // NBSP/NNBSP
	s = headerJunk.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// resolveKey ищет реальный ключ записи по желаемому имени.
// Поддерживает альтернативы через "|" (например: "sku|артикул").
func resolveKey(rec map[string]string, want string) string {
	want = strings.TrimSpace(want)
	if want == "" {
		return ""
	}
	alts := strings.Split(want, "|")
	for i := range alts {
		alts[i] = strings.TrimSpace(alts[i])
	}

	// 1) точное совпадение (как есть)
	for _, a := range alts {
		if _, ok := rec[a]; ok {
			return a
		}
	}

	// 2) нормализованное совпадение, затем вхождение (составные заголовки)
	norm := make([]string, 0, len(alts))
	for _, a := range alts {
		if n := normHeaderKey(a); n != "" {
			norm = append(norm, n)
		}
	}
	bestKey, bestScore := "", 0
	for k := range rec {
		nk := normHeaderKey(k)
		if nk == "" {
			continue
		}
		score := 0
		for _, n := range norm {
			if nk == n {
				return k
			}
			if strings.Contains(nk, n) || strings.Contains(n, nk) {
				score = max(score, len(n))
			}
		}
		// при равенстве берём лексикографически меньший ключ, чтобы не зависеть от порядка map
		if score > bestScore || (score == bestScore && score > 0 && k < bestKey) {
			bestScore, bestKey = score, k
		}
	}
	return bestKey
}

// resolved holds the actual column names of one feed.
type resolved struct {
	sku, title, price, stock, brand, category, description, images, currency string
}

func resolveAll(rec map[string]string, m model.FeedMapping) resolved {
	return resolved{
		sku:         resolveKey(rec, m.SKUKey),
		title:       resolveKey(rec, m.TitleKey),
		price:       resolveKey(rec, m.PriceKey),
		stock:       resolveKey(rec, m.StockKey),
		brand:       resolveKey(rec, m.BrandKey),
		category:    resolveKey(rec, m.CategoryKey),
		description: resolveKey(rec, m.DescriptionKey),
		images:      resolveKey(rec, m.ImagesKey),
		currency:    resolveKey(rec, m.CurrencyKey),
	}
}

// ToRecords maps rows onto records. Repeated header rows and rows with
// neither title nor SKU are skipped. Ids are derived from supplier and SKU
// (or title) so that re-importing a feed yields the same ids.
func ToRecords(rows []map[string]string, m model.FeedMapping, supplierID string) []model.ProductRecord {
	if len(rows) == 0 {
		return nil
	}
	cols := resolveAll(rows[0], m)
	out := make([]model.ProductRecord, 0, len(rows))
	for _, rec := range rows {
		if looksLikeHeaderMap(rec) {
			continue
		}
		get := func(k string) string {
			if k == "" {
				return ""
			}
			return strings.TrimSpace(rec[k])
		}

		p := model.ProductRecord{
			SKU:         get(cols.sku),
			Title:       get(cols.title),
			Brand:       get(cols.brand),
			Category:    get(cols.category),
			Description: get(cols.description),
			Currency:    strings.ToUpper(get(cols.currency)),
			Images:      splitImages(get(cols.images)),
		}
		if p.Title == "" && p.SKU == "" {
			continue
		}
		if v, ok := utils.ParseFloatRU(get(cols.price)); ok && v >= 0 {
			p.Price = v
		}
		if v, ok := utils.ParseFloatRU(get(cols.stock)); ok && v > 0 {
			p.Stock = int(math.Floor(v))
		}

		ref := p.SKU
		if ref == "" {
			ref = p.Title
		}
		p.SupplierRef = model.SupplierRef{SupplierID: supplierID, ProductRef: ref}
		p.ID = RecordID(supplierID, ref)
		out = append(out, p)
	}
	return out
}

// RecordID is the stable id of a feed row.
func RecordID(supplierID, ref string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(supplierID+"/"+strings.ToLower(ref))).String()
}

var imageSep = regexp.MustCompile(`[\s;,|]+`)

func splitImages(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, u := range imageSep.Split(s, -1) {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

// looksLikeHeaderMap ловит повторённые шапки внутри выгрузки (1С любит так делать).
func looksLikeHeaderMap(m map[string]string) bool {
	cnt := 0
	for _, v := range m {
		s := strings.ToLower(strings.TrimSpace(v))
		if strings.Contains(s, "наимен") || strings.Contains(s, "артикул") ||
			strings.Contains(s, "колич") || s == "sku" || s == "title" || s == "price" {
			cnt++
		}
	}
	return cnt >= 2
}
