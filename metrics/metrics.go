// Package metrics provides Prometheus metrics for conversion passes
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pass metrics
	StepsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_steps_processed_total",
			Help: "Total number of steps finalized",
		},
		[]string{"pass"},
	)

	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cico_step_duration_seconds",
			Help:    "Time taken to assemble and finalize one step",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pass"},
	)

	// Change-detection metrics
	TopologiesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_topologies_fetched_total",
			Help: "Total number of per-zone topology fetches",
		},
		[]string{"pass"},
	)

	TopologySkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_topology_skips_total",
			Help: "Total number of unchanged-topology markers emitted",
		},
		[]string{"pass"},
	)

	FieldsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_fields_fetched_total",
			Help: "Total number of per-zone field data fetches",
		},
		[]string{"pass"},
	)

	FieldSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_field_skips_total",
			Help: "Total number of unchanged-field markers emitted",
		},
		[]string{"pass"},
	)

	// Output metrics
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_records_written_total",
			Help: "Total number of records handed to the sink",
		},
		[]string{"pass"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cico_errors_total",
			Help: "Total number of errors by kind",
		},
		[]string{"pass", "kind"},
	)
)

// Recorder provides a convenient interface for recording the metrics of one
// conversion pass.
type Recorder struct {
	passID string
}

// NewRecorder creates a metrics recorder labeled with a pass ID.
func NewRecorder(passID string) *Recorder {
	return &Recorder{passID: passID}
}

// RecordStep records a finalized step and its duration.
func (r *Recorder) RecordStep(duration time.Duration) {
	StepsProcessed.WithLabelValues(r.passID).Inc()
	StepDuration.WithLabelValues(r.passID).Observe(duration.Seconds())
}

// RecordTopologies records topology fetches and unchanged markers.
func (r *Recorder) RecordTopologies(fetched, skipped int) {
	TopologiesFetched.WithLabelValues(r.passID).Add(float64(fetched))
	TopologySkips.WithLabelValues(r.passID).Add(float64(skipped))
}

// RecordFields records field data fetches and unchanged markers.
func (r *Recorder) RecordFields(fetched, skipped int) {
	FieldsFetched.WithLabelValues(r.passID).Add(float64(fetched))
	FieldSkips.WithLabelValues(r.passID).Add(float64(skipped))
}

// RecordRecords records records handed to the sink.
func (r *Recorder) RecordRecords(count int) {
	RecordsWritten.WithLabelValues(r.passID).Add(float64(count))
}

// RecordError records an error by kind.
func (r *Recorder) RecordError(kind string) {
	ErrorsTotal.WithLabelValues(r.passID, kind).Inc()
}

// Timer is a helper for measuring duration
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer was created.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
