package api

import (
	"encoding/json"
	"fmt"
)

// maxEventTypeLen matches the events.event_type column width.
const maxEventTypeLen = 255

func validateCreateEvent(req CreateEventRequest) error {
	if req.EventType == "" {
		return fmt.Errorf("event_type is required")
	}
	if len(req.EventType) > maxEventTypeLen {
		return fmt.Errorf("event_type exceeds %d characters", maxEventTypeLen)
	}
	if len(req.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if !json.Valid(req.Payload) {
		return fmt.Errorf("payload must be valid json")
	}
	return nil
}

func validateUpdateEvent(req UpdateEventRequest) error {
	if req.EventType == nil && req.Payload == nil {
		return fmt.Errorf("at least one of event_type or payload is required")
	}
	if req.EventType != nil {
		if *req.EventType == "" {
			return fmt.Errorf("event_type must not be empty")
		}
		if len(*req.EventType) > maxEventTypeLen {
			return fmt.Errorf("event_type exceeds %d characters", maxEventTypeLen)
		}
	}
	if req.Payload != nil && !json.Valid(req.Payload) {
		return fmt.Errorf("payload must be valid json")
	}
	return nil
}
