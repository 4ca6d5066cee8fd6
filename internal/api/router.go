package api

import (
	"net/http"

	"github.com/besitobot/economy/internal/infra/metrics"
	"github.com/besitobot/economy/internal/services/dispatch"
	"github.com/besitobot/economy/internal/services/ledger"
	"github.com/besitobot/economy/internal/services/streak"
	"github.com/go-chi/chi/v5"
)

// NewRouter constructs the router with all API endpoints registered.
func NewRouter(led *ledger.Service, st *streak.Service, dsp *dispatch.Service) http.Handler {
	h := NewHandler(led, st, dsp)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/user/{userID}/balance", h.GetBalanceHandler)
	r.Get("/user/{userID}/transactions", h.GetHistoryHandler)
	r.Get("/user/{userID}/streak", h.GetStreakHandler)
	r.Post("/user/{userID}/debit", h.DebitHandler)
	r.Post("/events", h.ProcessEventHandler)

	return r
}
