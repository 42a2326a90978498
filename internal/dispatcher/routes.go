package dispatcher

import (
	"bytes"
	"time"

	"hookrelay/internal/domain"
)

// routeKey selects dispatch behavior by (subject_table, operation). The
// route table is a closed set: envelopes for unknown pairs are rejected at
// validation time, before any attempt is recorded.
type routeKey struct {
	table string
	op    domain.Operation
}

// routeFunc builds the outbound document for an envelope. skip=true means
// the attempt resolves immediately as success with an empty result and no
// network call.
type routeFunc func(env domain.Envelope, source string) (doc OutboundEvent, skip bool)

// eventsTable is the subject table this relay observes.
const eventsTable = "events"

var routes = map[routeKey]routeFunc{
	{eventsTable, domain.OperationInsert}: buildInsertEvent,
	{eventsTable, domain.OperationUpdate}: buildUpdateEvent,
}

func buildInsertEvent(env domain.Envelope, source string) (OutboundEvent, bool) {
	return outboundFromRecord(env, source), false
}

// buildUpdateEvent short-circuits updates that change no significant field:
// they resolve as success without touching the network.
func buildUpdateEvent(env domain.Envelope, source string) (OutboundEvent, bool) {
	if !significantChange(env.OldRecord, env.Record) {
		return OutboundEvent{}, true
	}
	return outboundFromRecord(env, source), false
}

func outboundFromRecord(env domain.Envelope, source string) OutboundEvent {
	rec := env.Record
	return OutboundEvent{
		EventID:    env.RequestID,
		SubjectID:  rec.ID.String(),
		EventType:  rec.EventType,
		Payload:    rec.Payload,
		OccurredAt: rec.CreatedAt.UTC().Format(time.RFC3339),
		Source:     source,
	}
}

// significantChange compares the fixed set of significant fields:
// event_type and payload. Status bookkeeping columns never count.
func significantChange(old, new *domain.EventRecord) bool {
	if old == nil {
		return true
	}
	if old.EventType != new.EventType {
		return true
	}
	return !bytes.Equal(canonicalPayload(old.Payload), canonicalPayload(new.Payload))
}

func canonicalPayload(p []byte) []byte {
	if len(p) == 0 {
		return []byte("null")
	}
	return p
}
