package serverhttp

import (
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"catalog-sync/internal/config"
	"catalog-sync/internal/middleware"
	recHnd "catalog-sync/internal/reconcile/handler"
	"catalog-sync/server/http/handlers"
)

func NewRouter(cfg config.Config, logger zerolog.Logger, h *recHnd.Handler, store handlers.Pinger) *chi.Mux {
	r := chi.NewRouter()

	// порядок важен: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(cfg.MaxUploadMB) << 20))

	r.Get("/health", handlers.Health(store))

	r.Route("/accounts/{accountID}", h.Routes)

	return r
}
