package dispatcher

import (
	"errors"
	"fmt"
)

// Sentinel errors for delivery log bookkeeping. Duplicate and
// already-resolved are benign: callers treat them as idempotent no-ops for
// repeated redelivery of the same attempt, never as dispatch failures.
var (
	// ErrDuplicateRequest is returned by DeliveryLog.Open when an entry
	// already exists for the request id. This is the de-duplication point.
	ErrDuplicateRequest = errors.New("delivery log entry already exists for request id")

	// ErrAlreadyResolved is returned by DeliveryLog.Resolve when the entry
	// is already in a terminal state.
	ErrAlreadyResolved = errors.New("delivery log entry already resolved")

	// ErrAttemptNotFound is returned by delivery log reads and resolves
	// when no entry exists for the request id.
	ErrAttemptNotFound = errors.New("no delivery log entry for request id")

	// ErrStatusSuperseded is returned when a record status write is
	// rejected because a later attempt already resolved the record.
	ErrStatusSuperseded = errors.New("record status superseded by a later attempt")
)

// ValidationError reports a malformed envelope. Malformed envelopes are not
// attempts: no log entry is written and no external call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("envelope validation: %s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is an envelope validation failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
