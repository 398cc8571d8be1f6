// Package fileio reads supplier feeds (CSV, XLS, XLSX) into rows keyed by header.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for extensions other than .csv/.xls/.xlsx.
var ErrUnsupportedFormat = errors.New("unsupported feed format")

// ReadAnyMaps: выберет парсер по расширению и вернёт строки как срез map[header]value.
// headerRow: номер строки заголовков (1-based).
func ReadAnyMaps(r io.Reader, filename string, headerRow int) ([]map[string]string, error) {
	if headerRow <= 0 {
		headerRow = 1
	}
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".xlsx":
		return readXLSX(r, headerRow)
	case ".xls":
		return readXLS(r, headerRow)
	case ".csv", ".txt":
		return readCSV(r, headerRow)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filename)
	}
}

// ReadFileMaps is ReadAnyMaps over a file on disk.
func ReadFileMaps(path string, headerRow int) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadAnyMaps(f, filepath.Base(path), headerRow)
}

// pickHeader: берёт строку заголовков и подставляет Column N для пустых.
// Повторяющиеся заголовки получают суффикс " (2)", " (3)"…
func pickHeader(rows [][]string, headerRow int) []string {
	if len(rows) == 0 {
		return nil
	}
	idx := headerRow - 1
	if idx < 0 || idx >= len(rows) {
		idx = 0
	}
	seen := make(map[string]int)
	out := make([]string, len(rows[idx]))
	for i, v := range rows[idx] {
		v = normalizeCell(v)
		if v == "" {
			v = fmt.Sprintf("Column %d", i+1)
		}
		seen[v]++
		if n := seen[v]; n > 1 {
			v = fmt.Sprintf("%s (%d)", v, n)
		}
		out[i] = v
	}
	return out
}

// rowsToMaps: конвертирует AoA в []map по заголовкам, пропуская полностью пустые строки.
func rowsToMaps(rows [][]string, headers []string, headerRow int) []map[string]string {
	var out []map[string]string
	for r := headerRow; r < len(rows); r++ {
		rec := rows[r]
		m := make(map[string]string, len(headers))
		empty := true
		for c, h := range headers {
			var v string
			if c < len(rec) {
				v = normalizeCell(rec[c])
			}
			if v != "" {
				empty = false
			}
			m[h] = v
		}
		if !empty {
			out = append(out, m)
		}
	}
	return out
}

var cellSpaces = strings.NewReplacer("\u00A0", " ", "\u202F", " ", "\r", " ", "\n", " ")

// normalizeCell: NBSP → пробел, переносы строк внутри ячейки → пробел, trim.
func normalizeCell(s string) string {
	return strings.TrimSpace(cellSpaces.Replace(s))
}
