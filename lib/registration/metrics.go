package registration

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_registration_transitions_total",
		Help: "Registration session state transitions",
	}, []string{"from", "to"})

	staleResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_registration_stale_results_total",
		Help: "Backend results dropped because the session had moved on",
	}, []string{"call"})

	completionTime = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "expoasia_registration_completion_seconds",
		Help:    "Time from the form being shown to the credential being issued",
		Buckets: prometheus.ExponentialBucketsRange(10, 3600, 12),
	})
)
