// Package metrics holds the Prometheus collectors for the query surfaces,
// the store executor and the tool registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/archives-observability/archives/archerr"
	"github.com/archives-observability/archives/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "archives"

// Outcome label values.
const (
	OutcomeOK = "ok"
)

// Metrics owns a private registry so tests and multiple apps in one process
// never collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	queryDuration *prometheus.HistogramVec
	queryRows     *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	tailClients   prometheus.Gauge
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, by surface, method, route and status.",
		}, []string{"surface", "method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"surface", "method", "route"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "query_duration_seconds",
			Help:      "Store query latency including retries.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"query", "outcome"}),
		queryRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "rows_returned_total",
			Help:      "Rows returned by successful store queries.",
		}, []string{"query"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tools",
			Name:      "calls_total",
			Help:      "Tool dispatches by tool and outcome.",
		}, []string{"tool", "outcome"}),
		tailClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tail",
			Name:      "clients",
			Help:      "Connected live tail clients.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.queryDuration,
		m.queryRows,
		m.toolCalls,
		m.tailClients,
	)
	return m
}

// Registry exposes the underlying gatherer.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(surface, method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(surface, method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(surface, method, route).Observe(d.Seconds())
}

// ObserveQuery records a finished store query. kind is empty on success.
func (m *Metrics) ObserveQuery(name string, kind archerr.Kind, d time.Duration, rows int) {
	m.queryDuration.WithLabelValues(name, outcome(kind)).Observe(d.Seconds())
	if kind == "" {
		m.queryRows.WithLabelValues(name).Add(float64(rows))
	}
}

// ObserveTool records one tool dispatch. errKind is the envelope error kind,
// empty on success.
func (m *Metrics) ObserveTool(tool, errKind string) {
	m.toolCalls.WithLabelValues(tool, outcome(archerr.Kind(errKind))).Inc()
}

// SetTailClients reports the number of live tail subscribers.
func (m *Metrics) SetTailClients(n int) {
	m.tailClients.Set(float64(n))
}

// RegisterPool exports connection pool occupancy read from stats on every
// scrape.
func (m *Metrics) RegisterPool(stats func() models.PoolStats) error {
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connections_in_use",
			Help:      "Store connections currently held by queries.",
		}, func() float64 { return float64(stats().InUse) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "connections_max",
			Help:      "Maximum concurrent store connections.",
		}, func() float64 { return float64(stats().MaxConnections) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "acquire_timeouts_total",
			Help:      "Queries rejected because no connection became free in time.",
		}, func() float64 { return float64(stats().AcquireTimeouts) }),
	}
	for _, g := range gauges {
		if err := m.registry.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func outcome(kind archerr.Kind) string {
	if kind == "" {
		return OutcomeOK
	}
	return string(kind)
}
