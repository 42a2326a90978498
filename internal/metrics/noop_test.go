package metrics

import (
	"testing"
	"time"
)

func TestNoopSink_AllMethods(t *testing.T) {
	// Verify that calling all methods on NoopSink does not panic.
	s := NewNoopSink()

	s.EnvelopeEmitted("insert")
	s.EnvelopeDropped()

	s.DeliveryAttemptCompleted(1, "2xx", 200*time.Millisecond)
	s.DeliveryOutcome(OutcomeSuccess)
	s.DeliveryOutcome(OutcomeFailed)
	s.RetryScheduled()
	s.EventsInFlightIncr()
	s.EventsInFlightDecr()

	s.BufferSizeUpdate(10)
	s.EmitError()

	s.StaleRecordsUpdate(3)
}

// Verify NoopSink implements Sink interface.
var _ Sink = (*NoopSink)(nil)
