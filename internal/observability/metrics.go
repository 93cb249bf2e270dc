package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private Prometheus registry. All recorders are safe on a
// nil receiver so callers may run without metrics.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec
	ticketsIssued   *prometheus.CounterVec
	assignments     *prometheus.CounterVec
	completions     *prometheus.CounterVec
	writeConflicts  prometheus.Counter
	waiting         *prometheus.GaugeVec
}

// NewMetrics registers the queue service collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "queue_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_http_errors_total",
			Help: "Error responses by route, method and domain error code.",
		}, []string{"path", "method", "code"}),
		ticketsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_tickets_issued_total",
			Help: "Tickets issued by priority lane.",
		}, []string{"priority"}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_assignments_total",
			Help: "Tickets assigned to each module.",
		}, []string{"module"}),
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "queue_completions_total",
			Help: "Tickets completed by each module.",
		}, []string{"module"}),
		writeConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "queue_state_write_conflicts_total",
			Help: "Snapshot writes rejected because another actor wrote first.",
		}),
		waiting: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "queue_waiting_tickets",
			Help: "Tickets waiting per lane as of the last write.",
		}, []string{"lane"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests, m.requestDuration, m.errors,
		m.ticketsIssued, m.assignments, m.completions, m.writeConflicts, m.waiting,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

func (m *Metrics) TicketIssued(priority string) {
	if m == nil {
		return
	}
	m.ticketsIssued.WithLabelValues(priority).Inc()
}

func (m *Metrics) TicketAssigned(moduleID int) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(strconv.Itoa(moduleID)).Inc()
}

func (m *Metrics) TicketCompleted(moduleID int) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(strconv.Itoa(moduleID)).Inc()
}

func (m *Metrics) WriteConflict() {
	if m == nil {
		return
	}
	m.writeConflicts.Inc()
}

// SetWaiting records lane sizes.
func (m *Metrics) SetWaiting(high, normal int) {
	if m == nil {
		return
	}
	m.waiting.WithLabelValues("high").Set(float64(high))
	m.waiting.WithLabelValues("normal").Set(float64(normal))
}
