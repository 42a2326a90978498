package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or
// propagate errors. If the metrics backend is unavailable, implementations
// log warnings and continue.
type Sink interface {
	// Emitter metrics
	EnvelopeEmitted(operation string)
	EnvelopeDropped()

	// Dispatcher metrics
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryScheduled()
	EventsInFlightIncr()
	EventsInFlightDecr()

	// EventBus metrics
	BufferSizeUpdate(size int)
	EmitError()

	// Reconciler metrics
	StaleRecordsUpdate(count int)
}

// Outcome constants for DeliveryOutcome metric.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
