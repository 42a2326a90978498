package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeliveryStatus is the status of a single dispatch attempt in the log.
// Monotonic within one request_id: sent -> {success|failed}, never reversed.
type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// IsTerminal reports whether the attempt is resolved.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliverySuccess || s == DeliveryFailed
}

// RecordStatus maps the attempt status onto the owning record's status.
func (s DeliveryStatus) RecordStatus() WebhookStatus {
	switch s {
	case DeliverySuccess:
		return StatusSuccess
	case DeliveryFailed:
		return StatusFailed
	default:
		return StatusSent
	}
}

// DeliveryEntry is one row of the delivery log: one dispatch attempt, keyed
// by its globally unique request id. Many entries may reference one record
// across retries; each retry is a new entry, never a mutation of a prior one.
type DeliveryEntry struct {
	ID           uuid.UUID
	SubjectTable string
	Operation    Operation
	RecordID     uuid.UUID
	RequestID    string

	Status       DeliveryStatus
	Attempt      int // 0-based attempt number within the logical delivery
	ErrorMessage string
	ResponseData json.RawMessage

	// AttemptAt orders this attempt against concurrent attempts for the
	// same record; copied from the envelope timestamp.
	AttemptAt time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}
