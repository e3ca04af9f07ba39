package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for SynthesisTotal.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeDiscarded = "discarded"
)

var (
	TryOnsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tryon_started_total",
			Help: "Count of synthesis calls started",
		},
	)
	SynthesisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryon_synthesis_total",
			Help: "Count of finished synthesis calls by outcome",
		},
		[]string{"outcome"},
	)
	SynthesisDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tryon_synthesis_duration_seconds",
			Help:    "Time taken by the image synthesis provider",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tryon_sessions_active",
			Help: "Current number of sessions held in the registry",
		},
	)
	Checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_checkouts_total",
			Help: "Count of checkout attempts by provider and status",
		},
		[]string{"provider", "status"},
	)
	PaymentsConfirmed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_payments_confirmed_total",
			Help: "Count of payments confirmed as paid",
		},
		[]string{"provider", "plan"},
	)
)

// Init registers every collector with the default registry. Call it once
// from main.
func Init() {
	prometheus.MustRegister(
		TryOnsStarted,
		SynthesisTotal,
		SynthesisDuration,
		ActiveSessions,
		Checkouts,
		PaymentsConfirmed,
	)
}
