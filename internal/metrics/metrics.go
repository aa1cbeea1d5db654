package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PredictionCalls The total number of prediction provider calls by outcome (ok, no_data, error, timeout, cached)
	PredictionCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "prediction",
			Name:      "calls_total",
			Help:      "The total number of prediction provider calls",
		},
		[]string{"provider", "outcome"},
	)

	// PredictionDuration Time spent waiting for a prediction provider
	PredictionDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace:  "prediction",
			Name:       "call_duration_seconds",
			Help:       "Time spent waiting for a prediction provider",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"provider"},
	)

	// LiveEvents Push events seen by subscriptions (accepted, filtered, malformed)
	LiveEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "live",
			Name:      "events_total",
			Help:      "Push events seen by live subscriptions",
		},
		[]string{"result"},
	)

	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "live",
			Name:      "subscriptions_open",
			Help:      "Currently open live subscriptions",
		},
	)

	// Cancellations Cancel attempts by outcome (cancelled or the store error kind)
	Cancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trips",
			Name:      "cancellations_total",
			Help:      "Cancel attempts by outcome",
		},
		[]string{"outcome"},
	)
)
