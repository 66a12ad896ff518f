package challenge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TimeTaken = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "expoasia_backend_call_duration_seconds",
		Help:    "The time taken by calls to the event backend",
		Buckets: prometheus.ExponentialBucketsRange(0.005, 30, 16),
	}, []string{"call", "result"})

	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "expoasia_otp_outcomes_total",
		Help: "Passcode challenges by outcome (issued, matched, mismatched, expired, exhausted)",
	}, []string{"outcome"})
)
