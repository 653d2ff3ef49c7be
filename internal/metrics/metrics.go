// Package metrics exposes Prometheus instruments for agents, reports,
// operations and the job queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/ashureev/strategic-discovery/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "discovery"

// Metrics owns a private registry. It satisfies agents.Recorder,
// report.Observer and operations.Observer.
type Metrics struct {
	registry *prometheus.Registry

	agentCalls     *prometheus.CounterVec
	agentDuration  *prometheus.HistogramVec
	reports        prometheus.Counter
	reportDuration prometheus.Histogram
	reportFallback prometheus.Histogram
	operations     *prometheus.CounterVec
	opDuration     *prometheus.HistogramVec
}

// New registers all instruments on a fresh registry, plus the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		agentCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_calls_total",
			Help:      "Generation agent calls by agent and outcome.",
		}, []string{"agent", "outcome"}),
		agentDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_duration_seconds",
			Help:      "Wall time of one generation agent call including retries.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 90},
		}, []string{"agent"}),
		reports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_assembled_total",
			Help:      "Strategic reports assembled.",
		}),
		reportDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Wall time of fan-out plus synthesis.",
			Buckets:   []float64{1, 5, 10, 20, 40, 60, 90, 180},
		}),
		reportFallback: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_fallback_sections",
			Help:      "Sections per report that used their fallback.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 6},
		}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_finished_total",
			Help:      "Operations that reached a terminal status.",
		}, []string{"type", "status"}),
		opDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time from operation creation to its terminal status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}
}

// AgentResult records one agent call.
func (m *Metrics) AgentResult(agent string, fallback bool, elapsed time.Duration) {
	outcome := "ok"
	if fallback {
		outcome = "fallback"
	}
	m.agentCalls.WithLabelValues(agent, outcome).Inc()
	m.agentDuration.WithLabelValues(agent).Observe(elapsed.Seconds())
}

// ReportAssembled records one assembled report.
func (m *Metrics) ReportAssembled(elapsed time.Duration, fallbacks int) {
	m.reports.Inc()
	m.reportDuration.Observe(elapsed.Seconds())
	m.reportFallback.Observe(float64(fallbacks))
}

// OperationFinished records a terminal transition.
func (m *Metrics) OperationFinished(typ domain.OperationType, status domain.OperationStatus, elapsed time.Duration) {
	m.operations.WithLabelValues(string(typ), string(status)).Inc()
	m.opDuration.WithLabelValues(string(typ)).Observe(elapsed.Seconds())
}

// GaugeFunc registers a gauge whose value is read on every scrape.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
