package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for the broadcaster
type Metrics struct {
	// Delivery counters
	MessagesSentTotal   prometheus.Counter
	MessagesFailedTotal prometheus.Counter
	BroadcastsTotal     *prometheus.CounterVec
	SendDurationSeconds prometheus.Histogram
	BroadcastRunning    prometheus.Gauge

	// Session events
	SessionEventsTotal        *prometheus.CounterVec
	SessionEventsDroppedTotal prometheus.Counter

	// Application state gauges
	ContactsLoaded   prometheus.Gauge
	ContactsSelected prometheus.Gauge
	ListsTotal       prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	// System metrics
	UptimeSeconds    prometheus.Gauge
	Goroutines       prometheus.Gauge
	StorageUsedBytes prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		MessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcaster_messages_sent_total",
				Help: "Total number of messages accepted by the session",
			},
		),
		MessagesFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcaster_messages_failed_total",
				Help: "Total number of messages the session refused or failed to send",
			},
		),
		BroadcastsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcaster_broadcasts_total",
				Help: "Total number of finished broadcasts by status",
			},
			[]string{"status"},
		),
		SendDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "broadcaster_send_duration_seconds",
				Help:    "Duration of a single message send in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		BroadcastRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_broadcast_running",
				Help: "1 while a broadcast is in progress",
			},
		),

		SessionEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcaster_session_events_total",
				Help: "Total number of session push events received",
			},
			[]string{"type"},
		),
		SessionEventsDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "broadcaster_session_events_dropped_total",
				Help: "Total number of session events dropped because the event buffer was full",
			},
		),

		ContactsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_contacts_loaded",
				Help: "Number of recipients in the contact directory",
			},
		),
		ContactsSelected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_contacts_selected",
				Help: "Number of currently selected recipients",
			},
		),
		ListsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_lists",
				Help: "Number of stored broadcast lists",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcaster_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "broadcaster_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "broadcaster_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		UptimeSeconds: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
		Goroutines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_goroutines",
				Help: "Number of active goroutines",
			},
		),
		StorageUsedBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "broadcaster_storage_used_bytes",
				Help: "BoltDB file size in bytes",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.MessagesSentTotal,
		m.MessagesFailedTotal,
		m.BroadcastsTotal,
		m.SendDurationSeconds,
		m.BroadcastRunning,
		m.SessionEventsTotal,
		m.SessionEventsDroppedTotal,
		m.ContactsLoaded,
		m.ContactsSelected,
		m.ListsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
		m.UptimeSeconds,
		m.Goroutines,
		m.StorageUsedBytes,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncMessagesSent increments the sent message counter
func IncMessagesSent() {
	if m := Global(); m != nil {
		m.MessagesSentTotal.Inc()
	}
}

// IncMessagesFailed increments the failed message counter
func IncMessagesFailed() {
	if m := Global(); m != nil {
		m.MessagesFailedTotal.Inc()
	}
}

// ObserveSendDuration records how long one send took
func ObserveSendDuration(d time.Duration) {
	if m := Global(); m != nil {
		m.SendDurationSeconds.Observe(d.Seconds())
	}
}

// IncBroadcasts counts a finished broadcast
func IncBroadcasts(status string) {
	if m := Global(); m != nil {
		m.BroadcastsTotal.WithLabelValues(status).Inc()
	}
}

// SetBroadcastRunning flags whether a broadcast is in progress
func SetBroadcastRunning(running bool) {
	m := Global()
	if m == nil {
		return
	}
	if running {
		m.BroadcastRunning.Set(1)
	} else {
		m.BroadcastRunning.Set(0)
	}
}

// IncSessionEvents counts a received session event
func IncSessionEvents(eventType string) {
	if m := Global(); m != nil {
		m.SessionEventsTotal.WithLabelValues(eventType).Inc()
	}
}

// IncSessionEventsDropped counts an event lost to a full buffer
func IncSessionEventsDropped() {
	if m := Global(); m != nil {
		m.SessionEventsDroppedTotal.Inc()
	}
}
