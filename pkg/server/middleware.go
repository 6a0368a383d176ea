package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/defispring/allocation-merkle-go/pkg/metrics"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// query wraps a read endpoint: GET only, CORS, rate limit, metrics.
func (s *Server) query(endpoint string, h http.HandlerFunc) http.Handler {
	return s.instrument(endpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")

		switch r.Method {
		case http.MethodGet:
		case http.MethodOptions:
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		h(w, r)
	})
}

// instrument applies the rate limiter and records request metrics.
func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		if s.limiter != nil && !s.limiter.Allow() {
			metrics.RateLimitedTotal.Inc()
			writeError(rec, http.StatusTooManyRequests, "rate limit exceeded")
		} else {
			h(rec, r)
		}

		metrics.QueryRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(rec.status)).Inc()
		metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	})
}
