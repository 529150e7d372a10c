// Package metrics provides recorders for upsert instrumentation: a no-op
// default, a process-local expvar exporter and a Prometheus exporter.
package metrics

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder receives per-operation timing and result counts from the engine.
// Operations are table names; statuses are "inserted", "merged" and
// "skipped".
type Recorder interface {
	Observe(op string, d time.Duration)
	Record(op, status string)
}

// Noop discards everything.
type Noop struct{}

// Observe implements Recorder.
func (Noop) Observe(string, time.Duration) {}

// Record implements Recorder.
func (Noop) Record(string, string) {}

var expvarSeq uint64

// ExpvarRecorder publishes aggregate timing and result counters via expvar.
// It maintains duration totals in milliseconds per operation and counters per
// operation/status pair.
type ExpvarRecorder struct {
	name      string
	mu        sync.Mutex
	durations map[string]float64
	results   map[string]map[string]int64
}

// ExpvarSnapshot captures a read-only view of the recorded metrics.
type ExpvarSnapshot struct {
	DurationsMS map[string]float64          `json:"durations_ms_total"`
	Results     map[string]map[string]int64 `json:"results_total"`
	RecordedAt  time.Time                   `json:"recorded_at"`
}

// NewExpvarRecorder constructs an expvar-backed recorder published under the
// supplied name. When name is empty, a unique identifier is generated.
func NewExpvarRecorder(name string) *ExpvarRecorder {
	if name == "" {
		id := atomic.AddUint64(&expvarSeq, 1)
		name = fmt.Sprintf("biokb_upsert_metrics_%d", id)
	}
	rec := &ExpvarRecorder{
		name:      name,
		durations: make(map[string]float64),
		results:   make(map[string]map[string]int64),
	}
	expvar.Publish(name, expvar.Func(func() any {
		return rec.Snapshot()
	}))
	return rec
}

// Name returns the expvar export name associated with the recorder.
func (r *ExpvarRecorder) Name() string { return r.name }

// Observe implements Recorder.
func (r *ExpvarRecorder) Observe(op string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[op] += float64(d) / float64(time.Millisecond)
}

// Record implements Recorder.
func (r *ExpvarRecorder) Record(op, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses, ok := r.results[op]
	if !ok {
		statuses = make(map[string]int64)
		r.results[op] = statuses
	}
	statuses[status]++
}

// Snapshot returns an immutable copy of the aggregated metrics.
func (r *ExpvarRecorder) Snapshot() ExpvarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	durations := make(map[string]float64, len(r.durations))
	for op, total := range r.durations {
		durations[op] = total
	}
	results := make(map[string]map[string]int64, len(r.results))
	for op, statusCounts := range r.results {
		cpy := make(map[string]int64, len(statusCounts))
		for status, count := range statusCounts {
			cpy[status] = count
		}
		results[op] = cpy
	}
	return ExpvarSnapshot{
		DurationsMS: durations,
		Results:     results,
		RecordedAt:  time.Now().UTC(),
	}
}
