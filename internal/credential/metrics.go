package credential

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credential_refresh_total",
			Help: "Delegated credential refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	refreshShared = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credential_refresh_shared_total",
		Help: "Callers that received the result of another caller's refresh",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "credential_refresh_duration_seconds",
		Help:    "Duration of delegated credential refresh flights",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	})
)

const (
	outcomeSuccess         = "success"
	outcomeConsentRequired = "consent_required"
	outcomeFailed          = "failed"
)
