package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_created_total",
			Help: "Pending transactions persisted",
		},
	)

	paymentsInitiated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Pending transactions accepted by the provider",
		},
	)

	paymentsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_completed_total",
			Help: "Completed payment records by terminal status",
		},
		[]string{"status"},
	)

	providerCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_call_duration_seconds",
			Help:    "Duration of mobile-money provider calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation", "outcome"},
	)
)

// TrackPaymentCreated counts a persisted pending transaction.
func TrackPaymentCreated() {
	paymentsCreated.Inc()
}

// TrackPaymentInitiated counts a provider-accepted submission.
func TrackPaymentInitiated() {
	paymentsInitiated.Inc()
}

// TrackPaymentCompleted counts a terminal record by status.
func TrackPaymentCompleted(status string) {
	paymentsCompleted.WithLabelValues(status).Inc()
}

// ObserveProviderCall records the duration of one provider round trip.
func ObserveProviderCall(operation string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	providerCallDuration.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
}
