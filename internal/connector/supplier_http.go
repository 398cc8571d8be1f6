package connector

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/reconcile/model"
)

// HTTPSupplier talks to suppliers exposing
//
//	GET {endpoint}/products/{ref}/stock  -> {"stock": 12}  (304 is rejected)
//	GET {endpoint}/products/{ref}/price  -> {"price": 9.99}  (304 = unchanged)
//
// The bearer token is taken from settings["token"].
type HTTPSupplier struct {
	t transport
}

func NewHTTPSupplier(client *http.Client) *HTTPSupplier {
	return &HTTPSupplier{t: newTransport(client)}
}

type stockResponse struct {
	Stock *int `json:"stock"`
}

type priceResponse struct {
	Price *float64 `json:"price"`
}

func (h *HTTPSupplier) FetchStock(ctx context.Context, s model.SupplierIntegration, productRef string) (int, error) {
	var resp stockResponse
	err := h.t.do(ctx, call{
		connector: s.ID,
		op:        "fetchStock",
		ref:       productRef,
		method:    http.MethodGet,
		url:       joinURL(s.Endpoint, "products", url.PathEscape(productRef), "stock"),
		token:     s.Settings["token"],
	}, &resp)
	if errors.Is(err, errNotModified) {
		return 0, errs.NewConnectorError(s.ID, "fetchStock", productRef, errs.ErrRejected, errors.New("304 without a stock level"))
	}
	if err != nil {
		return 0, err
	}
	if resp.Stock == nil || *resp.Stock < 0 {
		return 0, errs.NewConnectorError(s.ID, "fetchStock", productRef, errs.ErrRejected, errors.New("missing or negative stock"))
	}
	return *resp.Stock, nil
}

func (h *HTTPSupplier) FetchPrice(ctx context.Context, s model.SupplierIntegration, productRef string) (PriceQuote, error) {
	var resp priceResponse
	err := h.t.do(ctx, call{
		connector: s.ID,
		op:        "fetchPrice",
		ref:       productRef,
		method:    http.MethodGet,
		url:       joinURL(s.Endpoint, "products", url.PathEscape(productRef), "price"),
		token:     s.Settings["token"],
	}, &resp)
	if errors.Is(err, errNotModified) {
		return PriceQuote{Unchanged: true}, nil
	}
	if err != nil {
		return PriceQuote{}, err
	}
	if resp.Price == nil {
		return PriceQuote{Unchanged: true}, nil
	}
	if *resp.Price < 0 {
		return PriceQuote{}, errs.NewConnectorError(s.ID, "fetchPrice", productRef, errs.ErrRejected, errors.New("negative price"))
	}
	return PriceQuote{Price: *resp.Price}, nil
}
