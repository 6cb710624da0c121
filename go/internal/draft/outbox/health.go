package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool
	LastEventTime     time.Time
	EventsProcessed   uint64
	PendingEvents     int
	DatabaseConnected bool
	NATSConnected     bool
	ListenerActive    bool
	Errors            []string
}

type HealthChecker interface {
	Check(ctx context.Context) HealthStatus
}

// PendingStore is the part of the repository the health check reads.
type PendingStore interface {
	Ping(ctx context.Context) error
	CountPending(ctx context.Context) (int, error)
}

// RelayStats is implemented by Listener.
type RelayStats interface {
	Stats() (processed uint64, last time.Time)
	Running() bool
}

// Connection is implemented by *nats.Conn.
type Connection interface {
	IsConnected() bool
}

type RealtimeHealthChecker struct {
	relay     RelayStats
	store     PendingStore
	natsConn  Connection
	threshold time.Duration // How long without events before unhealthy
	now       func() time.Time
}

func NewRealtimeHealthChecker(relay RelayStats, store PendingStore, natsConn Connection, threshold time.Duration) *RealtimeHealthChecker {
	return &RealtimeHealthChecker{
		relay:     relay,
		store:     store,
		natsConn:  natsConn,
		threshold: threshold,
		now:       time.Now,
	}
}

func (h *RealtimeHealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Errors:  []string{},
	}

	processed, lastTime := h.relay.Stats()
	status.EventsProcessed = processed
	status.LastEventTime = lastTime

	if err := h.store.Ping(ctx); err != nil {
		status.DatabaseConnected = false
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.natsConn != nil {
		status.NATSConnected = h.natsConn.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	status.ListenerActive = h.relay.Running()
	if !status.ListenerActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "listener not active")
	}

	if status.DatabaseConnected {
		pending, err := h.store.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > 1000 {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	// Only a backlog makes a quiet relay suspicious.
	if status.PendingEvents > 0 && !status.LastEventTime.IsZero() {
		timeSinceLastEvent := h.now().Sub(status.LastEventTime)
		if timeSinceLastEvent > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", timeSinceLastEvent))
		}
	}

	return status
}

// HTTP handler helper
func (h *RealtimeHealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	response := map[string]interface{}{
		"healthy":            status.Healthy,
		"events_processed":   status.EventsProcessed,
		"pending_events":     status.PendingEvents,
		"last_event_time":    status.LastEventTime,
		"database_connected": status.DatabaseConnected,
		"nats_connected":     status.NATSConnected,
		"listener_active":    status.ListenerActive,
		"errors":             status.Errors,
	}

	w.Header().Set("Content-Type", "application/json")

	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("failed to encode health response")
	}
}

var (
	descHealthy           = prometheus.NewDesc("outbox_healthy", "Whether the outbox system is healthy", nil, nil)
	descEventsProcessed   = prometheus.NewDesc("outbox_events_processed_total", "Total number of events processed", nil, nil)
	descPublishFailures   = prometheus.NewDesc("outbox_publish_failures_total", "Events that exhausted their publish retries", nil, nil)
	descPublishRetries    = prometheus.NewDesc("outbox_publish_retries_total", "Publish attempts after the first", nil, nil)
	descPendingEvents     = prometheus.NewDesc("outbox_pending_events", "Current number of pending events", nil, nil)
	descDatabaseConnected = prometheus.NewDesc("outbox_database_connected", "Whether database is connected", nil, nil)
	descNATSConnected     = prometheus.NewDesc("outbox_nats_connected", "Whether NATS is connected", nil, nil)
	descListenerActive    = prometheus.NewDesc("outbox_listener_active", "Whether the listener is active", nil, nil)
	descLastEvent         = prometheus.NewDesc("outbox_last_event_timestamp", "Unix timestamp of last processed event", nil, nil)
)

// PrometheusExporter is a prometheus.Collector over the health check and the
// relay counters. Every scrape runs a fresh Check.
type PrometheusExporter struct {
	checker HealthChecker
	metrics *CounterMetrics
	timeout time.Duration
}

func NewPrometheusExporter(checker HealthChecker, metrics *CounterMetrics) *PrometheusExporter {
	return &PrometheusExporter{checker: checker, metrics: metrics, timeout: 5 * time.Second}
}

func (e *PrometheusExporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- descHealthy
	ch <- descEventsProcessed
	ch <- descPublishFailures
	ch <- descPublishRetries
	ch <- descPendingEvents
	ch <- descDatabaseConnected
	ch <- descNATSConnected
	ch <- descListenerActive
	ch <- descLastEvent
}

func (e *PrometheusExporter) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	status := e.checker.Check(ctx)
	var snap Snapshot
	if e.metrics != nil {
		snap = e.metrics.Snapshot()
	}

	ch <- prometheus.MustNewConstMetric(descHealthy, prometheus.GaugeValue, boolGauge(status.Healthy))
	ch <- prometheus.MustNewConstMetric(descEventsProcessed, prometheus.CounterValue, float64(status.EventsProcessed))
	ch <- prometheus.MustNewConstMetric(descPublishFailures, prometheus.CounterValue, float64(snap.Failed))
	ch <- prometheus.MustNewConstMetric(descPublishRetries, prometheus.CounterValue, float64(snap.Retries))
	ch <- prometheus.MustNewConstMetric(descPendingEvents, prometheus.GaugeValue, float64(status.PendingEvents))
	ch <- prometheus.MustNewConstMetric(descDatabaseConnected, prometheus.GaugeValue, boolGauge(status.DatabaseConnected))
	ch <- prometheus.MustNewConstMetric(descNATSConnected, prometheus.GaugeValue, boolGauge(status.NATSConnected))
	ch <- prometheus.MustNewConstMetric(descListenerActive, prometheus.GaugeValue, boolGauge(status.ListenerActive))

	var last float64
	if !status.LastEventTime.IsZero() {
		last = float64(status.LastEventTime.Unix())
	}
	ch <- prometheus.MustNewConstMetric(descLastEvent, prometheus.GaugeValue, last)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
