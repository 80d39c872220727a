package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the inference service.
type Collector struct {
	// Prediction metrics
	PredictionsTotal   *prometheus.CounterVec
	PredictionDuration prometheus.Histogram
	PredictedPrice     prometheus.Histogram
	ValidationErrors   *prometheus.CounterVec

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RateLimitDrops  prometheus.Counter
	PanicRecoveries prometheus.Counter

	// Artifact metrics
	ArtifactInfo *prometheus.GaugeVec
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		PredictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "predictions_total",
				Help: "Total number of prediction requests by outcome",
			},
			[]string{"outcome"}, // ok, validation_error, internal_error
		),
		PredictionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "prediction_duration_seconds",
				Help:    "Duration of model evaluation including validation",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~400ms
			},
		),
		PredictedPrice: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "predicted_price",
				Help:    "Distribution of returned price predictions",
				Buckets: prometheus.ExponentialBuckets(10, 2, 10),
			},
		),
		ValidationErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "validation_errors_total",
				Help: "Total number of field validation failures",
			},
			[]string{"field"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"path", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		RateLimitDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rate_limit_drops_total",
				Help: "Total number of requests rejected by the rate limiter",
			},
		),
		PanicRecoveries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "panic_recoveries_total",
				Help: "Total number of panics recovered in handlers",
			},
		),
		ArtifactInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "artifact_info",
				Help: "Loaded artifact metadata (value is always 1)",
			},
			[]string{"version", "model_type"},
		),
	}
}

// Describe implements prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.PredictionsTotal.Describe(ch)
	c.PredictionDuration.Describe(ch)
	c.PredictedPrice.Describe(ch)
	c.ValidationErrors.Describe(ch)
	c.RequestsTotal.Describe(ch)
	c.RequestDuration.Describe(ch)
	c.RateLimitDrops.Describe(ch)
	c.PanicRecoveries.Describe(ch)
	c.ArtifactInfo.Describe(ch)
}

// Collect implements prometheus.Collector
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.PredictionsTotal.Collect(ch)
	c.PredictionDuration.Collect(ch)
	c.PredictedPrice.Collect(ch)
	c.ValidationErrors.Collect(ch)
	c.RequestsTotal.Collect(ch)
	c.RequestDuration.Collect(ch)
	c.RateLimitDrops.Collect(ch)
	c.PanicRecoveries.Collect(ch)
	c.ArtifactInfo.Collect(ch)
}
