// SPDX-License-Identifier: MIT

// Package metrics exposes the Prometheus metrics of the scheduler, the retention
// sweeper and the receiver client.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_scans_total",
		Help: "Completed scans by final status",
	}, []string{"status"}) // status=success|degraded|failed|cancelled

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sportsdvr_scan_duration_seconds",
		Help:    "Wall-clock duration of a scan",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	scanDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_scan_decisions_total",
		Help: "Schedule decisions by action",
	}, []string{"action"})

	channelFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsdvr_channel_fetch_failures_total",
		Help: "Guide channel fetches that failed and were skipped",
	})

	scheduledCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsdvr_scheduled_cache_entries",
		Help: "Entries in the scheduled-programs cache",
	})

	lastScanTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sportsdvr_last_scan_timestamp_seconds",
		Help: "Unix time of the last finished scan",
	})
)

// RecordScan records one finished scan.
func RecordScan(status string, d time.Duration, finished time.Time) {
	scansTotal.WithLabelValues(status).Inc()
	scanDuration.Observe(d.Seconds())
	lastScanTimestamp.Set(float64(finished.Unix()))
}

// RecordDecision counts one schedule decision.
func RecordDecision(action string) {
	scanDecisions.WithLabelValues(action).Inc()
}

// IncChannelFetchFailure counts a skipped channel.
func IncChannelFetchFailure() {
	channelFetchFailures.Inc()
}

// SetScheduledCacheEntries publishes the cache size.
func SetScheduledCacheEntries(n int) {
	scheduledCacheEntries.Set(float64(n))
}
