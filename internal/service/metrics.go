package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_attempts_total",
			Help: "Total number of checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	sagaStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_saga_step_duration_seconds",
			Help:    "Duration of individual checkout saga steps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step", "status"},
	)

	manualResolutionCarts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "checkout_manual_resolution_carts",
			Help: "Number of carts frozen pending manual resolution",
		},
	)
)

// observeStep records a saga step duration with its terminal status.
func observeStep(step, status string, start time.Time) {
	sagaStepDuration.WithLabelValues(step, status).Observe(time.Since(start).Seconds())
}

// recordOutcome increments the checkout attempt counter. The outcome label
// is "committed" for success or the failure kind otherwise.
func recordOutcome(outcome string) {
	checkoutAttemptsTotal.WithLabelValues(outcome).Inc()
}
