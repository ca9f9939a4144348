// SPDX-License-Identifier: MIT

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	timerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_timer_operations_total",
		Help: "Timer store operations by kind and outcome",
	}, []string{"op", "outcome"}) // op=create|cancel|cancel_all, outcome=success|failure

	retentionDeletions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_retention_deletions_total",
		Help: "Recordings deleted by the retention manager, by reason",
	}, []string{"reason"})

	retentionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sportsdvr_retention_delete_failures_total",
		Help: "Recording deletions that failed",
	})
)

// RecordTimerOperation counts one timer store call.
func RecordTimerOperation(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	timerOperations.WithLabelValues(op, outcome).Inc()
}

// RecordRetentionDeletion counts a deleted recording under its primary reason.
func RecordRetentionDeletion(reason string) {
	retentionDeletions.WithLabelValues(reason).Inc()
}

// IncRetentionFailure counts a failed deletion.
func IncRetentionFailure() {
	retentionFailures.Inc()
}
