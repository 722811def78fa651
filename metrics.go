package junksite

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts archive transfers and inbox submissions.
type Metrics interface {
	IncExport(result string)
	IncImport(result string)
	IncSubmission(kind string)
}

// Transfer results used as metric labels.
const (
	resultOK       = "ok"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

// NoopMetrics implements Metrics without emitting anything.
type NoopMetrics struct{}

func (NoopMetrics) IncExport(string)     {}
func (NoopMetrics) IncImport(string)     {}
func (NoopMetrics) IncSubmission(string) {}

// PromMetrics implements Metrics on a private Prometheus registry, so
// several Apps in one process do not collide.
type PromMetrics struct {
	registry    *prometheus.Registry
	exports     *prometheus.CounterVec
	imports     *prometheus.CounterVec
	submissions *prometheus.CounterVec
}

func NewPromMetrics() *PromMetrics {
	m := &PromMetrics{
		registry: prometheus.NewRegistry(),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junksite",
			Name:      "archive_exports_total",
			Help:      "Post archive exports by result",
		}, []string{"result"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junksite",
			Name:      "archive_imports_total",
			Help:      "Post archive imports by result",
		}, []string{"result"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "junksite",
			Name:      "inbox_submissions_total",
			Help:      "Newsletter signups and contact requests by kind",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		m.exports, m.imports, m.submissions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *PromMetrics) IncExport(result string)   { m.exports.WithLabelValues(result).Inc() }
func (m *PromMetrics) IncImport(result string)   { m.imports.WithLabelValues(result).Inc() }
func (m *PromMetrics) IncSubmission(kind string) { m.submissions.WithLabelValues(kind).Inc() }

// Handler serves the registry in the Prometheus exposition format.
func (m *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
