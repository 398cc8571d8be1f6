package connector

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/feed"
	"catalog-sync/internal/fileio"
	"catalog-sync/internal/reconcile/model"
)

// FeedSupplier answers from a spreadsheet the supplier drops on disk
// (settings["path"], optional settings["header_row"]). The parsed feed is
// cached per path and reloaded when the file's mtime changes.
type FeedSupplier struct {
	mu    sync.Mutex
	cache map[string]*feedIndex
}

type feedIndex struct {
	modTime time.Time
	byRef   map[string]model.ProductRecord
}

func NewFeedSupplier() *FeedSupplier {
	return &FeedSupplier{cache: make(map[string]*feedIndex)}
}

func (f *FeedSupplier) FetchStock(ctx context.Context, s model.SupplierIntegration, productRef string) (int, error) {
	p, err := f.lookup(ctx, s, productRef)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

func (f *FeedSupplier) FetchPrice(ctx context.Context, s model.SupplierIntegration, productRef string) (PriceQuote, error) {
	p, err := f.lookup(ctx, s, productRef)
	if err != nil {
		return PriceQuote{}, err
	}
	return PriceQuote{Price: p.Price}, nil
}

func (f *FeedSupplier) lookup(ctx context.Context, s model.SupplierIntegration, productRef string) (model.ProductRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ProductRecord{}, errs.NewConnectorError(s.ID, "feed", productRef, errs.ErrUnreachable, err)
	}
	idx, err := f.load(s)
	if err != nil {
		return model.ProductRecord{}, errs.NewConnectorError(s.ID, "feed", productRef, errs.ErrUnreachable, err)
	}
	p, ok := idx.byRef[refKey(productRef)]
	if !ok {
		return model.ProductRecord{}, errs.NewConnectorError(s.ID, "feed", productRef, errs.ErrRejected, errs.NewNotFoundError("feed row", productRef))
	}
	return p, nil
}

func (f *FeedSupplier) load(s model.SupplierIntegration) (*feedIndex, error) {
	path := s.Settings["path"]
	if path == "" {
		return nil, errors.New("feed path is not configured")
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if idx, ok := f.cache[path]; ok && idx.modTime.Equal(st.ModTime()) {
		return idx, nil
	}

	m := model.DefaultFeedMapping()
	if hr, err := strconv.Atoi(s.Settings["header_row"]); err == nil && hr > 0 {
		m.HeaderRow = hr
	}
	rows, err := fileio.ReadFileMaps(path, m.HeaderRow)
	if err != nil {
		return nil, err
	}
	idx := &feedIndex{modTime: st.ModTime(), byRef: make(map[string]model.ProductRecord)}
	for _, p := range feed.ToRecords(rows, m, s.ID) {
		// первая строка с тем же артикулом выигрывает
		if _, dup := idx.byRef[refKey(p.SupplierRef.ProductRef)]; !dup {
			idx.byRef[refKey(p.SupplierRef.ProductRef)] = p
		}
	}
	f.cache[path] = idx
	return idx, nil
}

func refKey(ref string) string { return strings.ToLower(strings.TrimSpace(ref)) }
