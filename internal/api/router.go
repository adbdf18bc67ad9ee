/**
 * @description
 * This file sets up the HTTP router for the ledger-service, defining the API
 * routes and the per-route role guards.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: The router and its middleware.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 * - github.com/prometheus/client_golang/prometheus/promhttp: The /metrics endpoint.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds what the router needs beyond the handlers.
type RouterConfig struct {
	SigningKey     []byte
	AllowedOrigins []string
}

// NewRouter creates and configures a new chi router with all the necessary routes.
func NewRouter(h *LedgerHandlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/ledger", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(cfg.SigningKey))

		r.Post("/redemptions", h.RequestRedemptionHandler)
		r.Post("/transfers", h.TransferHandler)
		r.Get("/accounts/{id}/balance", h.GetBalanceHandler)
		r.Get("/accounts/{id}/transactions", h.ListAccountTransactionsHandler)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleCashier))
			r.Post("/purchases", h.CreatePurchaseHandler)
			r.Patch("/redemptions/{id}/processed", h.ProcessRedemptionHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(RoleManager))
			r.Post("/adjustments", h.CreateAdjustmentHandler)
			r.Post("/events/{id}/awards", h.AwardEventPointsHandler)
			r.Patch("/transactions/{id}/suspicious", h.SetSuspiciousHandler)
			r.Get("/transactions/{id}", h.GetTransactionHandler)
			r.Get("/events/{id}", h.GetEventHandler)
		})
	})

	return r
}
