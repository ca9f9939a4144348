// SPDX-License-Identifier: MIT

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_http_requests_total",
		Help: "API requests by route pattern and status code",
	}, []string{"method", "route", "code"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sportsdvr_http_request_duration_seconds",
		Help:    "API request latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(route).Observe(d.Seconds())
}
