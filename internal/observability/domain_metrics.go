package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	conversionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_conversions_total",
			Help: "Total number of question-to-SQL conversions by outcome.",
		},
		[]string{"outcome"},
	)
	conversionAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_conversion_attempts",
			Help:    "Generation attempts used per conversion.",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		},
	)
	validationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_validation_failures_total",
			Help: "Total number of rejected model candidates by reason.",
		},
		[]string{"reason"},
	)
	inferenceLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_inference_latency_ms",
			Help:    "Model inference latency in milliseconds, excluding queue wait.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000},
		},
	)
	inferenceQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "querypilot_inference_queue_depth",
			Help: "Callers currently waiting for the inference slot.",
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querypilot_execution_latency_ms",
			Help:    "Validated query execution latency in milliseconds.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)
	executionTruncatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querypilot_execution_truncated_total",
			Help: "Total number of results cut at the row limit.",
		},
	)
	schemaCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querypilot_schema_cache_total",
			Help: "Schema cache lookups by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		conversionsTotal,
		conversionAttempts,
		validationFailuresTotal,
		inferenceLatencyMs,
		inferenceQueueDepth,
		executionLatencyMs,
		executionTruncatedTotal,
		schemaCacheTotal,
	)
}

func ObserveConversion(outcome string, attempts int) {
	conversionsTotal.WithLabelValues(outcome).Inc()
	if attempts > 0 {
		conversionAttempts.Observe(float64(attempts))
	}
}

func IncrementValidationFailure(reason string) {
	validationFailuresTotal.WithLabelValues(reason).Inc()
}

func ObserveInference(elapsed time.Duration) {
	inferenceLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

func AddInferenceQueueDepth(delta int) {
	inferenceQueueDepth.Add(float64(delta))
}

func ObserveExecution(elapsed time.Duration, truncated bool) {
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
	if truncated {
		executionTruncatedTotal.Inc()
	}
}

func IncrementSchemaCache(result string) {
	schemaCacheTotal.WithLabelValues(result).Inc()
}
