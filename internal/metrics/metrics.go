// Package metrics exposes the executor's operational counters/gauges via
// github.com/prometheus/client_golang, per SPEC_FULL.md's ambient metrics
// section: jobs by terminal status, layer duration, concurrency in use, and
// the dirty-set reuse rate (cache hit ratio) a surgical re-execution run
// achieves.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry groups every metric this process emits, so tests and cmd/ can
// wire a fresh, isolated prometheus.Registry instead of sharing the global
// default one across runs.
type Registry struct {
	reg *prometheus.Registry

	JobsTotal       *prometheus.CounterVec
	LayerDuration   prometheus.Histogram
	ConcurrencyUsed prometheus.Gauge
	DirtySetRatio   prometheus.Gauge
}

// New constructs a Registry and registers every metric against it.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "weavecore",
			Name:      "jobs_total",
			Help:      "Jobs reaching a terminal status, partitioned by status.",
		}, []string{"status"}),
		LayerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "weavecore",
			Name:      "layer_duration_seconds",
			Help:      "Wall-clock duration of one layer barrier.",
			Buckets:   prometheus.DefBuckets,
		}),
		ConcurrencyUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weavecore",
			Name:      "concurrency_in_use",
			Help:      "Worker slots occupied by in-flight jobs at last sample.",
		}),
		DirtySetRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "weavecore",
			Name:      "dirty_set_reuse_ratio",
			Help:      "Fraction of all jobs in the full job set skipped as clean (content-address reuse) on this run.",
		}),
	}
	reg.MustRegister(r.JobsTotal, r.LayerDuration, r.ConcurrencyUsed, r.DirtySetRatio)
	return r
}

// Registerer exposes the underlying prometheus.Registry for an HTTP
// /metrics handler. No such handler is served by this package or by
// cmd/weavecore.
func (r *Registry) Registerer() prometheus.Registerer { return r.reg }

// Gatherer exposes the underlying prometheus.Registry for scraping.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// RecordJob increments the per-status job counter.
func (r *Registry) RecordJob(status string) {
	r.JobsTotal.WithLabelValues(status).Inc()
}

// RecordDirtySetRatio records the reuse rate for one plan: jobs dropped as
// clean versus the full job set the planner considered.
func (r *Registry) RecordDirtySetRatio(totalJobs, plannedJobs int) {
	if totalJobs == 0 {
		r.DirtySetRatio.Set(0)
		return
	}
	reused := totalJobs - plannedJobs
	r.DirtySetRatio.Set(float64(reused) / float64(totalJobs))
}
