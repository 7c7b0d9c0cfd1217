package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/punchamoorthee/cardledger/internal/ratelimit"
)

// NewRouter wires the HTTP surface. Requests under /api/v1 are authenticated
// first, then admitted by the rate limiter. Failed authentication is limited
// per client IP inside AuthMiddleware.
func NewRouter(h *Handler, limiter *ratelimit.Limiter, jwtSecret []byte, logger *logrus.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(MetricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(AuthMiddleware(jwtSecret, limiter, logger), RateLimitMiddleware(limiter))
	apiV1.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")
	apiV1.HandleFunc("/accounts", h.ListOwnAccounts).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/transactions", h.ListTransactions).Methods("GET")
	apiV1.HandleFunc("/accounts/{id}/block-request", h.RequestBlock).Methods("POST")
	apiV1.HandleFunc("/reports/my-stats", h.MyStats).Methods("GET")

	admin := apiV1.PathPrefix("/admin").Subrouter()
	admin.Use(RequireAdmin)
	admin.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	admin.HandleFunc("/accounts", h.ListAccounts).Methods("GET")
	admin.HandleFunc("/accounts/{id}/status", h.UpdateStatus).Methods("PATCH")
	admin.HandleFunc("/accounts/{id}/credit", h.Credit).Methods("POST")
	admin.HandleFunc("/block-requests", h.ListBlockRequests).Methods("GET")
	admin.HandleFunc("/reports/daily", h.DailyReport).Methods("GET")

	return r
}
