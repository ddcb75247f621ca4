// Package metrics holds the Prometheus collectors for the scan pipeline.
//
// Every method is safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Listing pipeline stages.
const (
	StageRaw       = "raw"
	StageFiltered  = "filtered"
	StageLedgerHit = "ledger_hit"
	StageScored    = "scored"
	StageAccepted  = "accepted"
)

// Metrics groups the pipeline collectors on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	Scans          *prometheus.CounterVec
	Listings       *prometheus.CounterVec
	SourceFailures *prometheus.CounterVec
	AICalls        *prometheus.CounterVec
	ScanDuration   prometheus.Histogram
	Notifications  *prometheus.CounterVec
}

// New creates and registers the collectors. Go runtime and process
// collectors are included.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		Scans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "competotor_scans_total",
			Help: "Scans by terminal state",
		}, []string{"state"}),
		Listings: f.NewCounterVec(prometheus.CounterOpts{
			Name: "competotor_listings_total",
			Help: "Listings counted at each pipeline stage",
		}, []string{"stage"}),
		SourceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "competotor_source_failures_total",
			Help: "Retrieval failures by source",
		}, []string{"source"}),
		AICalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "competotor_ai_calls_total",
			Help: "AI model calls by outcome",
		}, []string{"outcome"}),
		ScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "competotor_scan_duration_seconds",
			Help:    "Wall time of a full scan",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "competotor_notifications_total",
			Help: "Digest deliveries by result",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) ScanFinished(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.Scans.WithLabelValues(state).Inc()
	m.ScanDuration.Observe(d.Seconds())
}

func (m *Metrics) AddListings(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Listings.WithLabelValues(stage).Add(float64(n))
}

func (m *Metrics) SourceFailed(source string) {
	if m == nil {
		return
	}
	m.SourceFailures.WithLabelValues(source).Inc()
}

// AICall is shaped to plug into ai.Options.Observe.
func (m *Metrics) AICall(outcome string) {
	if m == nil {
		return
	}
	m.AICalls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Notified(ok bool) {
	if m == nil {
		return
	}
	r := "ok"
	if !ok {
		r = "error"
	}
	m.Notifications.WithLabelValues(r).Inc()
}
