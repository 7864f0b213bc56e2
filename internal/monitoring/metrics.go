// Package monitoring exposes submission metrics to Prometheus and raises
// webhook alerts when a batch's failure or manual-intervention rate climbs.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"

	"github.com/sells-group/records-cli/internal/model"
)

// Recorder is the Prometheus implementation of the batch metrics hooks.
type Recorder struct {
	registry *prometheus.Registry

	submissions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	skipped     prometheus.Counter
	storeErrors prometheus.Counter
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_submissions_total",
			Help: "Submission attempts by form type and resulting status.",
		}, []string{"form_type", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "records_submission_failures_total",
			Help: "Failed submissions by failure reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "records_submission_duration_seconds",
			Help:    "Wall time of one submission attempt.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}, []string{"form_type"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_entries_skipped_total",
			Help: "Entries skipped because a satisfied result already exists.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "records_store_errors_total",
			Help: "Result store write failures.",
		}),
	}

	registry.MustRegister(r.submissions, r.failures, r.duration, r.skipped, r.storeErrors)
	return r
}

// Registry returns the Prometheus registry for the /metrics handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WatchStore adds gauges for the results held in src.
func (r *Recorder) WatchStore(src StatsSource) error {
	return eris.Wrap(r.registry.Register(NewStoreCollector(src)), "monitoring: register store collector")
}

// WriteTextfile writes the current samples in the text exposition format,
// for a node_exporter textfile directory.
func (r *Recorder) WriteTextfile(path string) error {
	return eris.Wrap(prometheus.WriteToTextfile(path, r.registry), "monitoring: write metrics file")
}

// RecordResult counts one finished submission.
func (r *Recorder) RecordResult(res model.SubmissionResult) {
	formType := res.FormType
	if formType == "" {
		formType = string(model.FormTypeGenericWeb)
	}
	r.submissions.WithLabelValues(formType, string(res.Status)).Inc()
	if res.FailureReason != "" && res.FailureReason != model.FailureNone {
		r.failures.WithLabelValues(string(res.FailureReason)).Inc()
	}
	if !res.StartedAt.IsZero() && !res.CompletedAt.IsZero() {
		r.duration.WithLabelValues(formType).Observe(res.CompletedAt.Sub(res.StartedAt).Seconds())
	}
}

// RecordSkip counts an entry skipped on resume.
func (r *Recorder) RecordSkip() {
	r.skipped.Inc()
}

// RecordStoreError counts a failed result write.
func (r *Recorder) RecordStoreError() {
	r.storeErrors.Inc()
}
