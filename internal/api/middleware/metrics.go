// SPDX-License-Identifier: MIT

package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ManuGH/sportsdvr/internal/metrics"
)

var httpRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sportsdvr_http_requests_in_flight",
	Help: "Current number of HTTP requests being served",
})

// Metrics records request count and latency labelled by chi route pattern.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			mw := &metricsWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(mw, r)

			// Pattern, not path, to bound label cardinality.
			route := ""
			if rc := chi.RouteContext(r.Context()); rc != nil {
				route = rc.RoutePattern()
			}
			metrics.RecordHTTPRequest(r.Method, route, mw.statusCode, time.Since(start))
		})
	}
}

type metricsWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (mw *metricsWriter) WriteHeader(statusCode int) {
	if !mw.written {
		mw.statusCode = statusCode
		mw.written = true
	}
	mw.ResponseWriter.WriteHeader(statusCode)
}

func (mw *metricsWriter) Write(b []byte) (int, error) {
	if !mw.written {
		mw.WriteHeader(http.StatusOK)
	}
	return mw.ResponseWriter.Write(b)
}
