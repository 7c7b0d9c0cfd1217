package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/punchamoorthee/cardledger/internal/ratelimit"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware records count and latency per route template.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		httpLatency.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpReqTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	})
}

// RateLimitMiddleware admits each request against the class its path
// belongs to. Authenticated callers are keyed by user, others by client IP.
func RateLimitMiddleware(limiter *ratelimit.Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(actorKeyFor(r), ClassifyPath(r.URL.Path)) {
				respondRateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respondRateLimited(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "60")
	respondError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
}

// ClassifyPath maps a request path to its rate-limit class.
func ClassifyPath(path string) ratelimit.Class {
	switch {
	case strings.Contains(path, "/auth/login"):
		return ratelimit.AuthAttempt
	case strings.HasSuffix(strings.TrimSuffix(path, "/"), "/transfers"):
		return ratelimit.Transfer
	}
	return ratelimit.GeneralRequest
}

func actorKeyFor(r *http.Request) string {
	if actor, ok := ActorFrom(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.UserID, 10)
	}
	return "ip:" + ClientIP(r)
}

// ClientIP is the first X-Forwarded-For hop, or the remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
