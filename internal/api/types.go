package api

import (
	"encoding/json"
	"time"
)

type CreateEventRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

// UpdateEventRequest carries a partial mutation. A nil field is left
// unchanged; supplying neither field is rejected.
type UpdateEventRequest struct {
	EventType *string         `json:"event_type,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type EventResponse struct {
	ID            string          `json:"id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	WebhookStatus string          `json:"webhook_status"`
	LastAttemptAt string          `json:"last_attempt_at,omitempty"`
	CreatedAt     string          `json:"created_at"`
	ProcessedAt   string          `json:"processed_at,omitempty"`
}

type AttemptResponse struct {
	ID           string          `json:"id"`
	RecordID     string          `json:"record_id"`
	RequestID    string          `json:"request_id"`
	SubjectTable string          `json:"subject_table"`
	Operation    string          `json:"operation"`
	Attempt      int             `json:"attempt"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ResponseData json.RawMessage `json:"response_data,omitempty"`
	AttemptAt    string          `json:"attempt_at"`
	CreatedAt    string          `json:"created_at"`
	UpdatedAt    string          `json:"updated_at"`
}

type ListAttemptsResponse struct {
	Attempts []AttemptResponse `json:"attempts"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
