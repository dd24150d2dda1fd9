// Package metrics exposes run metrics in Prometheus format. Batch runs are
// short-lived, so metrics are written to a node_exporter textfile rather than
// scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns a private registry. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	submissionsTotal  *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	imagesTotal       prometheus.Counter
	groupsSkipped     prometheus.Counter
	operationDuration prometheus.Histogram
	operationsPending prometheus.Gauge
	lastRunTimestamp  prometheus.Gauge
}

// NewRecorder creates a recorder with all collectors registered.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,

		submissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionbatch_submissions_total",
				Help: "Total number of batch submissions by submit status",
			},
			[]string{"status"}, // status: submitted, failed, planned
		),

		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "visionbatch_operations_total",
				Help: "Total number of awaited operations by outcome",
			},
			[]string{"status"}, // status: succeeded, failed
		),

		imagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "visionbatch_images_total",
				Help: "Total number of image requests included in submissions",
			},
		),

		groupsSkipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "visionbatch_groups_skipped_total",
				Help: "Total number of groups skipped for having no matching images",
			},
		),

		operationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "visionbatch_operation_duration_seconds",
				Help:    "Time from submission until the operation resolved",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		operationsPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "visionbatch_operations_pending",
				Help: "Number of operations submitted but not yet resolved",
			},
		),

		lastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "visionbatch_last_run_timestamp_seconds",
				Help: "Unix time the last run finished",
			},
		),
	}
}

// ObserveSubmission records one submission attempt.
func (r *Recorder) ObserveSubmission(status string, images int) {
	if r == nil {
		return
	}
	r.submissionsTotal.WithLabelValues(status).Inc()
	if status == "submitted" {
		r.imagesTotal.Add(float64(images))
		r.operationsPending.Inc()
	}
}

// ObserveSkipped records a group with no matching images.
func (r *Recorder) ObserveSkipped() {
	if r == nil {
		return
	}
	r.groupsSkipped.Inc()
}

// ObserveOperation records a resolved operation.
func (r *Recorder) ObserveOperation(status string, d time.Duration) {
	if r == nil {
		return
	}
	r.operationsTotal.WithLabelValues(status).Inc()
	r.operationDuration.Observe(d.Seconds())
	r.operationsPending.Dec()
}

// MarkRunFinished stamps the completion time of a run.
func (r *Recorder) MarkRunFinished(t time.Time) {
	if r == nil {
		return
	}
	r.lastRunTimestamp.Set(float64(t.Unix()))
}

// Gatherer returns the registry for exposition or tests.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile writes all metrics atomically in the text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Gatherer()); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
