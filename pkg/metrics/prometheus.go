package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	agentTotal      *prometheus.CounterVec
	agentDuration   *prometheus.HistogramVec
	agentConfidence *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a Prometheus-based metrics recorder.
// Metric families are registered with the default registry; construct it
// once per process.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by backend, run, and status",
			},
			[]string{"backend", "model", "run_id", "status", "error_type"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"backend", "model", "run_id", "type"},
		),
		costsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_costs_total",
				Help: "Total cost in USD for LLM requests",
			},
			[]string{"backend", "model", "run_id"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "model"},
		),
		throttleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_throttle_total",
				Help: "Total number of resource throttling events",
			},
			[]string{"resource", "reason"},
		),
		agentTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agent_executions_total",
				Help: "Total number of agent executions by role and terminal status",
			},
			[]string{"role", "status"},
		),
		agentDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_execution_duration_seconds",
				Help:    "Duration of agent executions in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"role"},
		),
		agentConfidence: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agent_confidence_score",
				Help:    "Confidence scores reported by completed agents",
				Buckets: []float64{0.1, 0.25, 0.5, 0.7, 0.8, 0.9, 0.95, 1.0},
			},
			[]string{"role"},
		),
	}
}

// ObserveRequest records metrics for a completed backend call.
func (p *PrometheusRecorder) ObserveRequest(
	backend, model, runID string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(backend, model, runID, status, errorType).Inc()

	if success {
		p.tokensTotal.WithLabelValues(backend, model, runID, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(backend, model, runID, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(backend, model, runID).Add(cost)
	}

	p.requestDuration.WithLabelValues(backend, model).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for denied resource requests.
func (p *PrometheusRecorder) IncThrottle(resource, reason string) {
	p.throttleTotal.WithLabelValues(resource, reason).Inc()
}

// ObserveAgent records metrics for a finished agent execution unit.
func (p *PrometheusRecorder) ObserveAgent(role, status string, confidence float64, duration time.Duration) {
	p.agentTotal.WithLabelValues(role, status).Inc()
	p.agentDuration.WithLabelValues(role).Observe(duration.Seconds())
	if confidence > 0 {
		p.agentConfidence.WithLabelValues(role).Observe(confidence)
	}
}
