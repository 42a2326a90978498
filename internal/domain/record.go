package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WebhookStatus is the current delivery status of an event record.
// It always reflects the outcome of the most recently applied attempt.
type WebhookStatus string

const (
	StatusPending WebhookStatus = "pending"
	StatusSent    WebhookStatus = "sent"
	StatusSuccess WebhookStatus = "success"
	StatusFailed  WebhookStatus = "failed"
)

// ParseWebhookStatus validates and converts a raw string status.
func ParseWebhookStatus(raw string) (WebhookStatus, error) {
	status := WebhookStatus(raw)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid webhook status %q", raw)
	}
	return status, nil
}

// IsValid reports whether the status is one of the four defined values.
func (s WebhookStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusSuccess, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status ends an attempt's lifecycle.
// A terminal record status may still be superseded by a later attempt;
// that supersession is guarded by attempt timestamps at the store layer.
func (s WebhookStatus) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// CanTransitionTo reports whether a transition is allowed within a single
// attempt: pending -> sent -> {success|failed}.
func (s WebhookStatus) CanTransitionTo(next WebhookStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next.IsTerminal()
	case StatusSent:
		return next.IsTerminal()
	default:
		return false
	}
}

func (s WebhookStatus) String() string {
	return string(s)
}

// EventRecord is one persisted mutation subject. Records are created by the
// mutation source and never deleted by the relay; only webhook_status,
// processed_at and the attempt-ordering column are mutated here.
type EventRecord struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`

	WebhookStatus WebhookStatus `json:"webhook_status"`

	// LastAttemptAt is the timestamp of the attempt whose outcome the
	// record currently reflects. Nil until a terminal outcome is applied.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
