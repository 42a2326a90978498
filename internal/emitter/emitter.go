// Package emitter observes mutations on event records and produces one
// envelope per mutation for the dispatcher. Envelope production is
// decoupled from the mutating operation: hand-off is non-blocking and
// best-effort, and a hand-off failure never propagates to the mutation
// path. It is surfaced only through logs and metrics, and the record's
// pending status lets the reconciler re-drive it.
package emitter

import (
	"log"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
)

// EnvelopeBus is the hand-off to the dispatcher workers.
type EnvelopeBus interface {
	TryEmit(env domain.Envelope) error
}

// MetricsSink records emitter metrics. Fire-and-forget.
type MetricsSink interface {
	EnvelopeEmitted(operation string)
	EnvelopeDropped()
}

type Emitter struct {
	table   string
	bus     EnvelopeBus
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(table string, bus EnvelopeBus) *Emitter {
	return &Emitter{
		table: table,
		bus:   bus,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// WithMetrics attaches a metrics sink to the emitter.
func (e *Emitter) WithMetrics(sink MetricsSink) *Emitter {
	e.metrics = sink
	return e
}

// RecordInserted emits an insert envelope for a freshly created record.
func (e *Emitter) RecordInserted(rec domain.EventRecord) {
	e.emit(domain.Envelope{
		RequestID:    uuid.New().String(),
		SubjectTable: e.table,
		Operation:    domain.OperationInsert,
		Record:       &rec,
		Timestamp:    e.clock(),
	})
}

// RecordUpdated emits an update envelope carrying both the snapshot before
// and after the mutation.
func (e *Emitter) RecordUpdated(old, rec domain.EventRecord) {
	e.emit(domain.Envelope{
		RequestID:    uuid.New().String(),
		SubjectTable: e.table,
		Operation:    domain.OperationUpdate,
		Record:       &rec,
		OldRecord:    &old,
		Timestamp:    e.clock(),
	})
}

func (e *Emitter) emit(env domain.Envelope) {
	if err := e.bus.TryEmit(env); err != nil {
		// The mutation already committed; dropping the envelope here is
		// recoverable because the record is still pending.
		log.Printf("emitter: record=%s op=%s hand-off failed: %v", env.Record.ID, env.Operation, err)
		if e.metrics != nil {
			e.metrics.EnvelopeDropped()
		}
		return
	}
	if e.metrics != nil {
		e.metrics.EnvelopeEmitted(string(env.Operation))
	}
}
