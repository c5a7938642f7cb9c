package server

import (
	"net/http"

	"longbridge-rebalance/internal/allocation"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are registered per server so that several servers can live in one
// process.
type metrics struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	debt     prometheus.Gauge
	changes  *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rebalance_runs_total",
			Help: "Rebalance requests by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rebalance_duration_seconds",
			Help:    "Time spent computing a rebalance.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		debt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rebalance_last_debt",
			Help: "Debt reported by the most recent rebalance.",
		}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rebalance_target_changes_total",
			Help: "Target value changes made by the engine, by reason.",
		}, []string{"reason"}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.debt, m.changes)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observe counts a target value change.
func (m *metrics) observe(r allocation.Record) {
	m.changes.WithLabelValues(string(r.Reason)).Inc()
}
