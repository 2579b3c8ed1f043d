package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics returns middleware that counts requests and observes their duration.
// Both vectors must be labeled by method and status.
func Metrics(requests *prometheus.CounterVec, duration *prometheus.HistogramVec) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			labels := prometheus.Labels{
				"method": r.Method,
				"status": strconv.Itoa(rec.status),
			}
			requests.With(labels).Inc()
			duration.With(labels).Observe(time.Since(start).Seconds())
		})
	}
}
