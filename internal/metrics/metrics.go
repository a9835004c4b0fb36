package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Flush triggers, used as the "trigger" label.
const (
	TriggerTimer      = "timer"
	TriggerBoundary   = "boundary"
	TriggerCompletion = "completion"
)

// Metrics holds all Prometheus metrics for the application.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// Buffering
	FragmentsBufferedTotal prometheus.Counter
	FragmentBytesTotal     prometheus.Counter
	BufferedSessions       prometheus.Gauge

	// Flushing
	CoalescedEventsTotal *prometheus.CounterVec
	FlushDuration        *prometheus.HistogramVec
	BoundaryEventsTotal  *prometheus.CounterVec

	// Link traffic
	MessagesForwardedTotal *prometheus.CounterVec
	LinksActive            prometheus.Gauge
	LinkErrorsTotal        prometheus.Counter
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		FragmentsBufferedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "decaf_fragments_buffered_total",
				Help: "Total number of text fragments accumulated into session buffers",
			},
		),
		FragmentBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "decaf_fragment_bytes_total",
				Help: "Total bytes of text accumulated into session buffers",
			},
		),
		BufferedSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "decaf_buffered_sessions",
				Help: "Number of session buffer records held across running links",
			},
		),
		CoalescedEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decaf_coalesced_events_total",
				Help: "Total number of coalesced chunks sent downstream",
			},
			[]string{"trigger"},
		),
		FlushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "decaf_flush_duration_seconds",
				Help:    "Duration of flush passes in seconds",
				Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
			},
			[]string{"trigger"},
		),
		BoundaryEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decaf_boundary_events_total",
				Help: "Total number of boundary session updates by update kind",
			},
			[]string{"update"},
		),
		MessagesForwardedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "decaf_messages_forwarded_total",
				Help: "Total number of JSON-RPC messages forwarded by direction and kind",
			},
			[]string{"to", "kind"},
		),
		LinksActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "decaf_links_active",
				Help: "Number of running proxy links",
			},
		),
		LinkErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "decaf_link_errors_total",
				Help: "Total number of links terminated by an error",
			},
		),
	}

	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.FragmentsBufferedTotal)
	m.registry.MustRegister(m.FragmentBytesTotal)
	m.registry.MustRegister(m.BufferedSessions)

	m.registry.MustRegister(m.CoalescedEventsTotal)
	m.registry.MustRegister(m.FlushDuration)
	m.registry.MustRegister(m.BoundaryEventsTotal)

	m.registry.MustRegister(m.MessagesForwardedTotal)
	m.registry.MustRegister(m.LinksActive)
	m.registry.MustRegister(m.LinkErrorsTotal)
}

// ObserveFragment records one accumulated fragment of n bytes.
func (m *Metrics) ObserveFragment(n int) {
	if m == nil {
		return
	}
	m.FragmentsBufferedTotal.Inc()
	m.FragmentBytesTotal.Add(float64(n))
}

// AddBufferedSessions adjusts the number of buffer records by delta. Links
// sharing a Metrics each report their own records.
func (m *Metrics) AddBufferedSessions(delta int) {
	if m == nil {
		return
	}
	m.BufferedSessions.Add(float64(delta))
}

// ObserveCoalesced records one coalesced chunk sent for trigger.
func (m *Metrics) ObserveCoalesced(trigger string) {
	if m == nil {
		return
	}
	m.CoalescedEventsTotal.WithLabelValues(trigger).Inc()
}

// ObserveFlush records how long a flush pass for trigger took.
func (m *Metrics) ObserveFlush(trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.FlushDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObserveBoundary records a boundary session update of the given kind.
func (m *Metrics) ObserveBoundary(update string) {
	if m == nil {
		return
	}
	if update == "" {
		update = "unknown"
	}
	m.BoundaryEventsTotal.WithLabelValues(update).Inc()
}

// ObserveForward records a message forwarded to a peer role.
func (m *Metrics) ObserveForward(to, kind string) {
	if m == nil {
		return
	}
	m.MessagesForwardedTotal.WithLabelValues(to, kind).Inc()
}

// LinkStarted marks a link as running.
func (m *Metrics) LinkStarted() {
	if m == nil {
		return
	}
	m.LinksActive.Inc()
}

// LinkStopped marks a link as finished, counting it as failed if err is set.
func (m *Metrics) LinkStopped(err error) {
	if m == nil {
		return
	}
	m.LinksActive.Dec()
	if err != nil {
		m.LinkErrorsTotal.Inc()
	}
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
