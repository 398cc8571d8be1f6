package handlers

import (
	"context"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Pinger reports whether a backing store is usable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Time   string `json:"time"`
}

// Health отвечает 200, пока хранилище доступно; иначе 503.
func Health(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Store: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
		status := http.StatusOK

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			resp.Status, resp.Store = "degraded", err.Error()
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = jsoniter.NewEncoder(w).Encode(resp)
	}
}
