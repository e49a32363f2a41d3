package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ProviderAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_attempts_total",
			Help: "Total provider call attempts by feature, model and outcome",
		},
		[]string{"feature", "model", "outcome"},
	)
	ProviderAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_attempt_duration_seconds",
			Help:    "Provider call attempt duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"feature", "model"},
	)

	CredentialRotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_rotations_total",
			Help: "Total credential rotations triggered by quota or transient errors",
		},
		[]string{"feature"},
	)
	ModelAdvancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "model_advances_total",
			Help: "Total fallback-chain advances to the next model",
		},
		[]string{"feature"},
	)
	RequestsExhaustedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_exhausted_total",
			Help: "Logical requests that failed every (model, credential) combination",
		},
		[]string{"feature"},
	)

	RequestsDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "requests_denied_total",
			Help: "Logical requests denied before any provider call",
		},
		[]string{"feature", "reason"},
	)
	CreditsDeductedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_deducted_total",
			Help: "Total credits deducted after successful provider calls",
		},
	)

	FeatureRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "feature_request_duration_seconds",
			Help:    "End-to-end logical request duration by feature",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"feature"},
	)
)

var registerOnce sync.Once

// InitMetrics registers all engine metrics with the default registry.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(ProviderAttemptsTotal)
		prometheus.MustRegister(ProviderAttemptDuration)
		prometheus.MustRegister(CredentialRotationsTotal)
		prometheus.MustRegister(ModelAdvancesTotal)
		prometheus.MustRegister(RequestsExhaustedTotal)
		prometheus.MustRegister(RequestsDeniedTotal)
		prometheus.MustRegister(CreditsDeductedTotal)
		prometheus.MustRegister(FeatureRequestDuration)
	})
}
