// Package metrics provides metrics recording for LLM routing and agent
// execution.
package metrics

import "time"

// Recorder defines the interface for recording routing and agent metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed backend call.
	ObserveRequest(
		backend, model, runID string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for denied resource requests.
	IncThrottle(resource, reason string)

	// ObserveAgent records metrics for a finished agent execution unit.
	ObserveAgent(role, status string, confidence float64, duration time.Duration)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {
}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {}

// ObserveAgent does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveAgent(_, _ string, _ float64, _ time.Duration) {}
