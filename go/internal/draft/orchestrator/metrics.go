package orchestrator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Expiry outcomes recorded per fire.
const (
	outcomeExpired    = "expired"
	outcomeNotDue     = "not_due"
	outcomeSuperseded = "superseded"
	outcomeError      = "error"
)

var (
	metricsOnce    sync.Once
	expiryAttempts *prometheus.CounterVec
	expiryLag      prometheus.Histogram
)

func ensureMetrics() {
	metricsOnce.Do(func() {
		expiryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "draftclock",
			Subsystem: "scheduler",
			Name:      "expiry_attempts_total",
			Help:      "Expire calls made by the scheduler, by outcome",
		}, []string{"outcome"})
		expiryLag = promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "draftclock",
			Subsystem: "scheduler",
			Name:      "expiry_lag_seconds",
			Help:      "How far past the deadline an expire was appended",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		})
	})
}
