package handler

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"catalog-sync/internal/errs"
	"catalog-sync/internal/feed"
	"catalog-sync/internal/reconcile/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Service is the part of syncer.Service the HTTP layer needs.
type Service interface {
	RunReconciliation(ctx context.Context, accountID string) model.SyncOutcome
	Deduplicate(ctx context.Context, accountID string, batch []model.ProductRecord, threshold float64) (model.DedupeReport, error)
	Config(ctx context.Context, accountID string) (model.SyncConfig, error)
	SetConfig(ctx context.Context, accountID string, cfg model.SyncConfig) error
	Outcomes(ctx context.Context, accountID string, limit int) ([]model.SyncOutcome, error)
	PriceAdjustments(ctx context.Context, accountID string, limit int) ([]model.PriceAdjustment, error)
	Suppliers(ctx context.Context, accountID string) ([]model.SupplierIntegration, error)
	PutSupplier(ctx context.Context, accountID string, s model.SupplierIntegration) error
	Channels(ctx context.Context, accountID string) ([]model.ChannelIntegration, error)
	PutChannel(ctx context.Context, accountID string, ch model.ChannelIntegration) error
}

// ConfigListener is told when an account's sync config changes (the scheduler).
type ConfigListener interface {
	Reload(ctx context.Context) error
}

type Handler struct {
	svc         Service
	listener    ConfigListener
	maxUploadMB int
}

func New(svc Service, listener ConfigListener, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 256
	}
	return &Handler{svc: svc, listener: listener, maxUploadMB: maxUploadMB}
}

// Routes монтируется под /accounts/{accountID}.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/reconcile", h.Reconcile)
	r.Post("/deduplicate", h.Deduplicate)
	r.Get("/config", h.GetConfig)
	r.Put("/config", h.PutConfig)
	r.Get("/outcomes", h.Outcomes)
	r.Get("/price-adjustments", h.PriceAdjustments)
	r.Get("/suppliers", h.Suppliers)
	r.Put("/suppliers/{integrationID}", h.PutSupplier)
	r.Get("/channels", h.Channels)
	r.Put("/channels/{integrationID}", h.PutChannel)
}

// Reconcile runs a reconciliation now and returns its outcome. A failed run is
// still 200: the outcome carries the errors.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "accountID")
	// ран не должен обрываться, если клиент отвалился
	out := h.svc.RunReconciliation(context.WithoutCancel(r.Context()), acct)
	writeJSON(w, r, http.StatusOK, out)
}

type dedupeRequest struct {
	Records   []model.ProductRecord `json:"records"`
	Threshold float64               `json:"threshold"`
}

// Deduplicate accepts either a JSON batch or a multipart spreadsheet upload
// (field "file", optional "supplier_id", "threshold", "header_row" and
// per-column overrides "col_sku", "col_title", ...).
func (h *Handler) Deduplicate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	acct := chi.URLParam(r, "accountID")
	log := zerolog.Ctx(r.Context())

	var (
		req dedupeRequest
		err error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		req, err = h.readUpload(r)
	} else {
		err = json.NewDecoder(r.Body).Decode(&req)
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	rep, err := h.svc.Deduplicate(r.Context(), acct, req.Records, req.Threshold)
	if err != nil {
		// отчёт отдаём и при частичных ошибках записи
		log.Error().Err(err).Str("account_id", acct).Msg("dedupe persist")
		writeJSON(w, r, http.StatusMultiStatus, struct {
			model.DedupeReport
			Error string `json:"error"`
		}{rep, err.Error()})
		return
	}

	log.Info().
		Str("account_id", acct).
		Int("records", len(req.Records)).
		Int("canonical", len(rep.Canonical)).
		Dur("elapsed", time.Since(start)).
		Msg("deduplicate done")
	writeJSON(w, r, http.StatusOK, rep)
}

func (h *Handler) readUpload(r *http.Request) (dedupeRequest, error) {
	var req dedupeRequest
	if err := r.ParseMultipartForm(int64(h.maxUploadMB) << 20); err != nil {
		return req, errors.New("bad multipart form: " + err.Error())
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return req, errors.New("missing file: " + err.Error())
	}
	defer file.Close()

	m := mappingFromForm(r)
	req.Records, err = feed.Read(file, header.Filename, m, r.FormValue("supplier_id"))
	if err != nil {
		return req, err
	}
	req.Threshold = toFloat(r.FormValue("threshold"), 0)
	return req, nil
}

// mappingFromForm: непустые col_* заменяют дефолтные варианты заголовков.
func mappingFromForm(r *http.Request) model.FeedMapping {
	m := model.DefaultFeedMapping()
	override := func(dst *string, field string) {
		if v := strings.TrimSpace(r.FormValue(field)); v != "" {
			*dst = v
		}
	}
	override(&m.SKUKey, "col_sku")
	override(&m.TitleKey, "col_title")
	override(&m.PriceKey, "col_price")
	override(&m.StockKey, "col_stock")
	override(&m.BrandKey, "col_brand")
	override(&m.CategoryKey, "col_category")
	override(&m.DescriptionKey, "col_description")
	override(&m.ImagesKey, "col_images")
	override(&m.CurrencyKey, "col_currency")
	m.HeaderRow = atoi(r.FormValue("header_row"), 1)
	return m
}

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.Config(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, cfg)
}

func (h *Handler) PutConfig(w http.ResponseWriter, r *http.Request) {
	acct := chi.URLParam(r, "accountID")
	var cfg model.SyncConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	if err := h.svc.SetConfig(r.Context(), acct, cfg); err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	if h.listener != nil {
		if err := h.listener.Reload(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("schedule reload")
		}
	}
	writeJSON(w, r, http.StatusOK, cfg)
}

func (h *Handler) Outcomes(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Outcomes(r.Context(), chi.URLParam(r, "accountID"), atoi(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(out))
}

func (h *Handler) PriceAdjustments(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.PriceAdjustments(r.Context(), chi.URLParam(r, "accountID"), atoi(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(out))
}

func (h *Handler) Suppliers(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Suppliers(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(out))
}

func (h *Handler) PutSupplier(w http.ResponseWriter, r *http.Request) {
	var si model.SupplierIntegration
	if err := json.NewDecoder(r.Body).Decode(&si); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	si.ID = chi.URLParam(r, "integrationID")
	if err := h.svc.PutSupplier(r.Context(), chi.URLParam(r, "accountID"), si); err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, si)
}

func (h *Handler) Channels(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.Channels(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, nonNil(out))
}

func (h *Handler) PutChannel(w http.ResponseWriter, r *http.Request) {
	var ch model.ChannelIntegration
	if err := json.NewDecoder(r.Body).Decode(&ch); err != nil {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}
	ch.ID = chi.URLParam(r, "integrationID")
	if err := h.svc.PutChannel(r.Context(), chi.URLParam(r, "accountID"), ch); err != nil {
		writeError(w, r, statusOf(err), err)
		return
	}
	writeJSON(w, r, http.StatusOK, ch)
}

// nonNil: пустой список отдаём как [], а не null
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func statusOf(err error) int {
	switch {
	case errs.IsNotFound(err):
		return http.StatusNotFound
	case errs.IsConfig(err):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("write json")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, map[string]string{"error": err.Error()})
}

func atoi(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil || i <= 0 {
		return def
	}
	return i
}

func toFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}
