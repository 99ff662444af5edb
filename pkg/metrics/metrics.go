// Package metrics exposes the harvester's Prometheus collectors.
//
// # Basic Usage
//
//	// Count a harvested record
//	metrics.RecordsHarvested.WithLabelValues("CKAN").Inc()
//
//	// Time a publish
//	timer := metrics.NewTimer()
//	status, err := broker.Publish(ctx, ref)
//	metrics.PublishLatency.WithLabelValues("FOLDER").Observe(timer.Stop().Seconds())
//
// All collectors register with the default Prometheus registry and are
// served by Handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RecordsHarvested counts data references read from sources.
	// Labels: source (input broker type)
	RecordsHarvested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_records_harvested_total",
			Help: "Total number of data references read from sources",
		},
		[]string{"source"},
	)

	// RecordsPublished counts publish outcomes.
	// Labels: destination (output broker type), status (created/updated/skipped/failed)
	RecordsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_records_published_total",
			Help: "Total number of publish attempts by outcome",
		},
		[]string{"destination", "status"},
	)

	// ProcessingErrors counts reported errors.
	// Labels: category (input/output/processor)
	ProcessingErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Total number of errors reported by processes",
		},
		[]string{"category"},
	)

	// ProcessesFinished counts processes by final state.
	ProcessesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_processes_finished_total",
			Help: "Total number of finished processes by final state",
		},
		[]string{"state"},
	)

	// ActiveProcesses tracks processes currently working
	ActiveProcesses = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_active_processes",
			Help: "Number of processes in the WORKING state",
		},
	)

	// ActiveTriggers tracks active trigger instances.
	// Labels: type (NOW/PERIOD/CRON)
	ActiveTriggers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvester_active_triggers",
			Help: "Number of active trigger instances",
		},
		[]string{"type"},
	)

	// PublishLatency tracks how long destinations take to publish one reference
	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_publish_duration_seconds",
			Help:    "Publish duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"destination"},
	)

	// HTTPRequestDuration tracks outbound requests made by sources.
	// Labels: host, code (status code or "error")
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_http_request_duration_seconds",
			Help:    "Outbound HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host", "code"},
	)
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures the duration of an operation.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called more
// than once.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
