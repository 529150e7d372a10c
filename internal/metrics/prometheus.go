package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder exports upsert counters and durations through a
// Prometheus registry.
type PrometheusRecorder struct {
	results   *prometheus.CounterVec
	durations *prometheus.HistogramVec
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs a recorder and registers its collectors
// with reg. Passing nil uses the default registerer.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusRecorder{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "biokb",
			Subsystem: "upsert",
			Name:      "rows_total",
			Help:      "Upserted rows by table and outcome.",
		}, []string{"table", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "biokb",
			Subsystem: "upsert",
			Name:      "row_duration_seconds",
			Help:      "Per-row upsert duration by table.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
	}
	reg.MustRegister(r.results, r.durations)
	return r
}

// Observe implements Recorder.
func (r *PrometheusRecorder) Observe(op string, d time.Duration) {
	r.durations.WithLabelValues(op).Observe(d.Seconds())
}

// Record implements Recorder.
func (r *PrometheusRecorder) Record(op, status string) {
	r.results.WithLabelValues(op, status).Inc()
}
