package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PipelineCollector exposes Prometheus metrics for the capture and
// classification pipeline.
type PipelineCollector struct {
	registry *prometheus.Registry

	capturesTotal    *prometheus.CounterVec
	screenshotsTaken prometheus.Counter
	llmCallDuration  *prometheus.HistogramVec
	classifications  *prometheus.CounterVec
	queueDepth       prometheus.Gauge
}

// NewPipelineCollector constructs a collector with its own registry.
func NewPipelineCollector() (*PipelineCollector, error) {
	registry := prometheus.NewRegistry()

	capturesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lenswire",
		Subsystem: "capture",
		Name:      "items_total",
		Help:      "Capture items processed, by content type and outcome.",
	}, []string{"content_type", "outcome"})

	screenshotsTaken := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "lenswire",
		Subsystem: "capture",
		Name:      "screenshots_total",
		Help:      "Screenshots uploaded to blob storage.",
	})

	llmCallDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lenswire",
		Subsystem: "llm",
		Name:      "call_duration_seconds",
		Help:      "Latency distribution for LLM calls.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"model", "purpose", "outcome"})

	classifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lenswire",
		Subsystem: "classify",
		Name:      "results_total",
		Help:      "Classification results by L1 outcome.",
	}, []string{"level1"})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "lenswire",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Messages ready or in flight on the classification queue.",
	})

	for _, c := range []prometheus.Collector{
		capturesTotal, screenshotsTaken, llmCallDuration, classifications, queueDepth,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return &PipelineCollector{
		registry:         registry,
		capturesTotal:    capturesTotal,
		screenshotsTaken: screenshotsTaken,
		llmCallDuration:  llmCallDuration,
		classifications:  classifications,
		queueDepth:       queueDepth,
	}, nil
}

// Handler returns an HTTP handler for exposing the metrics.
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCapture records one processed capture item. Nil-safe.
func (c *PipelineCollector) ObserveCapture(contentType string, ok bool) {
	if c == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	c.capturesTotal.WithLabelValues(contentType, outcome).Inc()
}

// ObserveScreenshots records uploaded screenshots. Nil-safe.
func (c *PipelineCollector) ObserveScreenshots(n int) {
	if c == nil {
		return
	}
	c.screenshotsTaken.Add(float64(n))
}

// ObserveLLMCall records one LLM call. Nil-safe.
func (c *PipelineCollector) ObserveLLMCall(model, purpose string, d time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	c.llmCallDuration.WithLabelValues(model, purpose, outcome).Observe(d.Seconds())
}

// ObserveClassification records one classification result. Nil-safe.
func (c *PipelineCollector) ObserveClassification(level1 string) {
	if c == nil {
		return
	}
	c.classifications.WithLabelValues(level1).Inc()
}

// SetQueueDepth records the current queue depth. Nil-safe.
func (c *PipelineCollector) SetQueueDepth(depth int64) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
}
