package postgres

const queryInsertRecord = `
INSERT INTO events (id, event_type, payload, webhook_status, created_at)
VALUES ($1, $2, $3, 'pending', $4)
`

const queryGetRecord = `
SELECT id, event_type, payload, webhook_status, last_attempt_at, created_at, processed_at
FROM events
WHERE id = $1
`

const queryUpdateRecordPayload = `
UPDATE events
SET event_type = $2, payload = $3
WHERE id = $1
`

const queryMarkRecordSent = `
UPDATE events
SET webhook_status = 'sent'
WHERE id = $1
  AND webhook_status = 'pending'
`

// Terminal statuses may only be applied by an attempt newer than the one
// whose outcome the record currently reflects. The row lock is acquired
// before the WHERE clause is evaluated, which serializes concurrent
// resolutions without application-level locking.
const queryUpdateRecordStatus = `
UPDATE events
SET webhook_status = $2,
    last_attempt_at = $3,
    processed_at = COALESCE(processed_at, $4)
WHERE id = $1
  AND (last_attempt_at IS NULL OR last_attempt_at < $3)
`

const queryGetRecordStatus = `
SELECT webhook_status FROM events WHERE id = $1
`

const queryGetStaleRecords = `
SELECT id, event_type, payload, webhook_status, last_attempt_at, created_at, processed_at
FROM events
WHERE webhook_status IN ('pending', 'sent')
  AND created_at < $1
ORDER BY created_at ASC
LIMIT $2
`

const queryCountRecordsByStatus = `
SELECT webhook_status, COUNT(*), MAX(created_at)
FROM events
GROUP BY webhook_status
`

const queryOpenDeliveryEntry = `
INSERT INTO delivery_log
  (id, subject_table, operation, record_id, request_id, status, attempt, attempt_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, 'sent', $6, $7, $8, $8)
`

// Resolution is guarded on status = 'sent': an entry resolves exactly once
// and is immutable thereafter.
const queryResolveDeliveryEntry = `
UPDATE delivery_log
SET status = $2, error_message = $3, response_data = $4, updated_at = $5
WHERE request_id = $1
  AND status = 'sent'
`

const queryGetDeliveryEntryStatus = `
SELECT status FROM delivery_log WHERE request_id = $1
`

const queryGetDeliveryEntry = `
SELECT id, subject_table, operation, record_id, request_id, status, attempt,
       error_message, response_data, attempt_at, created_at, updated_at
FROM delivery_log
WHERE request_id = $1
`

const queryListDeliveryEntriesByRecord = `
SELECT id, subject_table, operation, record_id, request_id, status, attempt,
       error_message, response_data, attempt_at, created_at, updated_at
FROM delivery_log
WHERE record_id = $1
ORDER BY created_at ASC
LIMIT $2 OFFSET $3
`

const queryCountDeliveryEntriesByStatus = `
SELECT status, COUNT(*)
FROM delivery_log
WHERE created_at >= $1 AND created_at < $2
GROUP BY status
`
