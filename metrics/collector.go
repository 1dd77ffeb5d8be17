// Package metrics records client and run activity in a Prometheus registry.
// The CLI is short-lived, so the registry is exported as a node_exporter
// textfile instead of being served.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Collector holds the comfyagent metrics. A nil *Collector records nothing.
type Collector struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	httpRetries    *prometheus.CounterVec
	runs           *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	progressEvents *prometheus.CounterVec
	outputsSaved   prometheus.Counter
	uploadsStaged  *prometheus.CounterVec
}

// NewCollector creates a collector backed by its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comfyagent_http_requests_total",
				Help: "Total number of HTTP requests sent to the ComfyUI server",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "comfyagent_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		httpRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comfyagent_http_retries_total",
				Help: "Total number of retried HTTP requests",
			},
			[]string{"method", "route"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comfyagent_runs_total",
				Help: "Total number of preset runs",
			},
			[]string{"source", "outcome"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "comfyagent_run_duration_seconds",
				Help:    "Preset run duration in seconds, from submission to saved outputs",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"source"},
		),
		progressEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comfyagent_progress_events_total",
				Help: "Total number of progress events received",
			},
			[]string{"kind"},
		),
		outputsSaved: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "comfyagent_outputs_saved_total",
				Help: "Total number of output files written to disk",
			},
		),
		uploadsStaged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "comfyagent_uploads_total",
				Help: "Total number of files uploaded before a batch",
			},
			[]string{"kind"},
		),
	}
}

// Registry exposes the underlying registry, e.g. for tests or an HTTP handler.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRequest records one HTTP attempt. Status 0 means no response.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if c == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.httpRequests.WithLabelValues(method, route, label).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) ObserveRetry(method, route string) {
	if c == nil {
		return
	}
	c.httpRetries.WithLabelValues(method, route).Inc()
}

// RecordRun records a finished run of a batch.
func (c *Collector) RecordRun(source, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(source, outcome).Inc()
	if outcome == OutcomeSuccess {
		c.runDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

func (c *Collector) RecordProgressEvent(kind string) {
	if c == nil {
		return
	}
	c.progressEvents.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordOutputs(n int) {
	if c == nil {
		return
	}
	c.outputsSaved.Add(float64(n))
}

func (c *Collector) RecordUpload(kind string) {
	if c == nil {
		return
	}
	c.uploadsStaged.WithLabelValues(kind).Inc()
}

// WriteTextfile writes the registry in the text exposition format to path,
// replacing the file atomically.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
