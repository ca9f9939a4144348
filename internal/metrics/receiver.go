// SPDX-License-Identifier: MIT

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	receiverRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_receiver_requests_total",
		Help: "Requests to the receiver API by endpoint and outcome",
	}, []string{"endpoint", "outcome"}) // outcome=success|error|timeout|short_circuit

	receiverLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sportsdvr_receiver_request_duration_seconds",
		Help:    "Receiver API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sportsdvr_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state, 0 otherwise)",
	}, []string{"name", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sportsdvr_circuit_breaker_trips_total",
		Help: "Transitions of a circuit breaker to open",
	}, []string{"name"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// RecordReceiverRequest records one receiver API call.
func RecordReceiverRequest(endpoint, outcome string, d time.Duration) {
	receiverRequests.WithLabelValues(endpoint, outcome).Inc()
	receiverLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetCircuitBreakerState marks state as the active one for name.
func SetCircuitBreakerState(name, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(name, s).Set(value)
	}
}

// RecordCircuitBreakerTrip counts a transition to open.
func RecordCircuitBreakerTrip(name string) {
	circuitBreakerTrips.WithLabelValues(name).Inc()
}
