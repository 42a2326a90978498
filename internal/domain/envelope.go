package domain

import (
	"time"
)

// Operation identifies what kind of mutation triggered an envelope.
type Operation string

const (
	OperationInsert Operation = "insert"
	OperationUpdate Operation = "update"
)

// IsValid reports whether the operation is one of the closed set.
func (o Operation) IsValid() bool {
	return o == OperationInsert || o == OperationUpdate
}

// Envelope is the notification produced per observed mutation and consumed
// by the dispatcher. RequestID is minted once per attempt; a retry of the
// same logical delivery carries a new RequestID and a later Timestamp.
type Envelope struct {
	RequestID    string       `json:"request_id"`
	SubjectTable string       `json:"subject_table"`
	Operation    Operation    `json:"operation"`
	Record       *EventRecord `json:"record"`
	OldRecord    *EventRecord `json:"old_record,omitempty"`

	// Timestamp is the attempt timestamp: it defines logical attempt
	// order for status reconciliation, independent of completion order.
	Timestamp time.Time `json:"timestamp"`

	// Attempt is 0 for the original dispatch and increments per retry.
	Attempt int `json:"attempt"`
}
