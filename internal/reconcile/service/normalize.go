package service

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// всё, что не буква/цифра/подчёркивание/пробел
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)

// normalizeText: общий конвейер для title/brand/category/description:
// NFKC, case-fold, вырезать пунктуацию, схлопнуть пробелы, trim.
func normalizeText(s string) string {
	if s == "" {
		return ""
	}
	out := norm.NFKC.String(s)
	// cases.Caser хранит состояние, поэтому новый на каждый вызов
	out = cases.Fold().String(out)
	out = nonWord.ReplaceAllString(out, "")
	return collapseSpaces(out)
}

// Схлопывание пробелов
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var urlScheme = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.\-]*:`)

// normalizeImageURL drops the protocol and the query string so that
// http/https copies and CDN cache-busters of one image compare equal.
func normalizeImageURL(u string) string {
	u = strings.TrimSpace(u)
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	u = urlScheme.ReplaceAllString(u, "")
	u = strings.TrimPrefix(u, "//")
	return u
}

// textSimilarity is 1 - editDistance/maxLen over normalized text.
// Empty input on either side contributes nothing.
func textSimilarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	d := damerauLevenshtein(na, nb)
	m := max(len([]rune(na)), len([]rune(nb)))
	return clamp01(1 - float64(d)/float64(m))
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
