package outbox

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines the interface for collecting outbox metrics
type MetricsCollector interface {
	RecordEventProcessed(eventType string, success bool, duration time.Duration)
	RecordBatchProcessed(count int, duration time.Duration)
	RecordOutboxLag(lag int)
	RecordPublishAttempt(eventType string, attempt int, success bool)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (n *NoOpMetricsCollector) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
}
func (n *NoOpMetricsCollector) RecordBatchProcessed(count int, duration time.Duration) {}
func (n *NoOpMetricsCollector) RecordOutboxLag(lag int)                                {}
func (n *NoOpMetricsCollector) RecordPublishAttempt(eventType string, attempt int, success bool) {
}

// CounterMetrics keeps process-local counters that the health exporter reports.
type CounterMetrics struct {
	published      atomic.Uint64
	failed         atomic.Uint64
	retries        atomic.Uint64
	lag            atomic.Int64
	publishNanos   atomic.Int64
	lastBatchNanos atomic.Int64
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{}
}

func (m *CounterMetrics) RecordEventProcessed(eventType string, success bool, duration time.Duration) {
	if success {
		m.published.Add(1)
		m.publishNanos.Add(int64(duration))
		return
	}
	m.failed.Add(1)
}

func (m *CounterMetrics) RecordBatchProcessed(count int, duration time.Duration) {
	m.lastBatchNanos.Store(int64(duration))
}

func (m *CounterMetrics) RecordOutboxLag(lag int) {
	m.lag.Store(int64(lag))
}

func (m *CounterMetrics) RecordPublishAttempt(eventType string, attempt int, success bool) {
	if attempt > 1 {
		m.retries.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Published        uint64
	Failed           uint64
	Retries          uint64
	Lag              int64
	AvgPublish       time.Duration
	LastBatchLatency time.Duration
}

func (m *CounterMetrics) Snapshot() Snapshot {
	s := Snapshot{
		Published:        m.published.Load(),
		Failed:           m.failed.Load(),
		Retries:          m.retries.Load(),
		Lag:              m.lag.Load(),
		LastBatchLatency: time.Duration(m.lastBatchNanos.Load()),
	}
	if s.Published > 0 {
		s.AvgPublish = time.Duration(m.publishNanos.Load() / int64(s.Published))
	}
	return s
}
