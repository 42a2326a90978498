package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/api"
	"hookrelay/internal/dispatcher"
	"hookrelay/internal/domain"
	"hookrelay/internal/reconciler"
	"hookrelay/internal/stats"
)

// Store implements the event store and the delivery log on PostgreSQL.
// All status writes are single atomic conditional UPDATEs; there is no
// in-process locking.
type Store struct {
	db        *sql.DB
	opTimeout time.Duration
}

// New creates a PostgreSQL store. opTimeout bounds each operation; 0
// disables the per-operation deadline.
func New(db *sql.DB, opTimeout time.Duration) *Store {
	return &Store{db: db, opTimeout: opTimeout}
}

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

// InsertRecord creates a new event record with status 'pending'.
func (s *Store) InsertRecord(ctx context.Context, rec domain.EventRecord) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryInsertRecord,
		rec.ID, rec.EventType, []byte(rec.Payload), rec.CreatedAt)
	return err
}

// GetRecord returns a record by id. Returns sql.ErrNoRows if absent.
func (s *Store) GetRecord(ctx context.Context, id uuid.UUID) (domain.EventRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	return scanRecord(s.db.QueryRowContext(ctx, queryGetRecord, id))
}

// UpdateRecord replaces the record's mutable fields and returns the
// snapshots before and after the mutation, read and written in one
// transaction so concurrent updates cannot interleave between them.
func (s *Store) UpdateRecord(ctx context.Context, id uuid.UUID, eventType string, payload json.RawMessage) (old, updated domain.EventRecord, err error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.EventRecord{}, domain.EventRecord{}, err
	}
	defer tx.Rollback()

	old, err = scanRecord(tx.QueryRowContext(ctx, queryGetRecord+" FOR UPDATE", id))
	if err != nil {
		return domain.EventRecord{}, domain.EventRecord{}, err
	}

	updated = old
	if eventType != "" {
		updated.EventType = eventType
	}
	if payload != nil {
		updated.Payload = payload
	}

	if _, err = tx.ExecContext(ctx, queryUpdateRecordPayload, id, updated.EventType, []byte(updated.Payload)); err != nil {
		return domain.EventRecord{}, domain.EventRecord{}, err
	}

	if err = tx.Commit(); err != nil {
		return domain.EventRecord{}, domain.EventRecord{}, err
	}
	return old, updated, nil
}

// MarkRecordSent transitions 'pending' -> 'sent'. A record already past
// 'pending' is left untouched and reported as superseded.
func (s *Store) MarkRecordSent(ctx context.Context, recordID uuid.UUID) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryMarkRecordSent, recordID)
	if err != nil {
		return err
	}
	return s.checkRecordWrite(ctx, result, recordID)
}

// UpdateRecordStatus applies a terminal status under the attempt-timestamp
// guard and stamps processed_at on the first terminal outcome.
func (s *Store) UpdateRecordStatus(ctx context.Context, recordID uuid.UUID, status domain.WebhookStatus, attemptAt time.Time) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	result, err := s.db.ExecContext(ctx, queryUpdateRecordStatus,
		recordID, string(status), attemptAt.UTC(), time.Now().UTC())
	if err != nil {
		return err
	}
	return s.checkRecordWrite(ctx, result, recordID)
}

// checkRecordWrite distinguishes a missing row from a guard rejection when
// a conditional record update touched nothing.
func (s *Store) checkRecordWrite(ctx context.Context, result sql.Result, recordID uuid.UUID) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, queryGetRecordStatus, recordID).Scan(&current)
	if err == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	if err != nil {
		return err
	}
	// Row exists but the guard rejected the write.
	return dispatcher.ErrStatusSuperseded
}

// GetStaleRecords returns records still pending or sent that were created
// before the threshold, oldest first.
func (s *Store) GetStaleRecords(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.EventRecord, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryGetStaleRecords, olderThan, maxResults)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EventRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// CountRecordsByStatus returns per-status record counts and the most recent
// record creation time.
func (s *Store) CountRecordsByStatus(ctx context.Context) (map[domain.WebhookStatus]int64, time.Time, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryCountRecordsByStatus)
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	counts := make(map[domain.WebhookStatus]int64)
	var last time.Time
	for rows.Next() {
		var status string
		var count int64
		var max sql.NullTime
		if err := rows.Scan(&status, &count, &max); err != nil {
			return nil, time.Time{}, err
		}
		counts[domain.WebhookStatus(status)] = count
		if max.Valid && max.Time.After(last) {
			last = max.Time
		}
	}
	return counts, last, rows.Err()
}

// Open inserts a delivery log entry in 'sent' state.
// Returns dispatcher.ErrDuplicateRequest if the request id is already used.
func (s *Store) Open(ctx context.Context, entry domain.DeliveryEntry) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, queryOpenDeliveryEntry,
		entry.ID,
		entry.SubjectTable,
		string(entry.Operation),
		entry.RecordID,
		entry.RequestID,
		entry.Attempt,
		entry.AttemptAt.UTC(),
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return dispatcher.ErrDuplicateRequest
		}
		return err
	}
	return nil
}

// Resolve updates the entry to a terminal status exactly once.
func (s *Store) Resolve(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage string, responseData json.RawMessage) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	var errMsg sql.NullString
	if errorMessage != "" {
		errMsg = sql.NullString{String: errorMessage, Valid: true}
	}
	var respData []byte
	if responseData != nil {
		respData = []byte(responseData)
	}

	result, err := s.db.ExecContext(ctx, queryResolveDeliveryEntry,
		requestID, string(status), errMsg, respData, time.Now().UTC())
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, queryGetDeliveryEntryStatus, requestID).Scan(&current)
	if err == sql.ErrNoRows {
		return dispatcher.ErrAttemptNotFound
	}
	if err != nil {
		return err
	}
	return dispatcher.ErrAlreadyResolved
}

// GetByRequestID returns the attempt recorded for a correlation id.
func (s *Store) GetByRequestID(ctx context.Context, requestID string) (domain.DeliveryEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	entry, err := scanDeliveryEntry(s.db.QueryRowContext(ctx, queryGetDeliveryEntry, requestID))
	if err == sql.ErrNoRows {
		return domain.DeliveryEntry{}, dispatcher.ErrAttemptNotFound
	}
	return entry, err
}

// ListAttemptsByRecord returns the full attempt history for a record,
// ordered by creation time.
func (s *Store) ListAttemptsByRecord(ctx context.Context, recordID uuid.UUID, limit, offset int) ([]domain.DeliveryEntry, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryListDeliveryEntriesByRecord, recordID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.DeliveryEntry
	for rows.Next() {
		entry, err := scanDeliveryEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

// CountAttemptsByStatus aggregates delivery log entries by status within
// [from, to).
func (s *Store) CountAttemptsByStatus(ctx context.Context, from, to time.Time) (map[domain.DeliveryStatus]int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, queryCountDeliveryEntriesByStatus, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.DeliveryStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[domain.DeliveryStatus(status)] = count
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.EventRecord, error) {
	var rec domain.EventRecord
	var status string
	var payload []byte
	var lastAttemptAt, processedAt sql.NullTime

	err := row.Scan(&rec.ID, &rec.EventType, &payload, &status, &lastAttemptAt, &rec.CreatedAt, &processedAt)
	if err != nil {
		return domain.EventRecord{}, err
	}
	rec.Payload = json.RawMessage(payload)
	rec.WebhookStatus = domain.WebhookStatus(status)
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		rec.LastAttemptAt = &t
	}
	if processedAt.Valid {
		t := processedAt.Time
		rec.ProcessedAt = &t
	}
	return rec, nil
}

func scanDeliveryEntry(row rowScanner) (domain.DeliveryEntry, error) {
	var entry domain.DeliveryEntry
	var operation, status string
	var errMsg sql.NullString
	var respData []byte

	err := row.Scan(
		&entry.ID,
		&entry.SubjectTable,
		&operation,
		&entry.RecordID,
		&entry.RequestID,
		&status,
		&entry.Attempt,
		&errMsg,
		&respData,
		&entry.AttemptAt,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	)
	if err != nil {
		return domain.DeliveryEntry{}, err
	}
	entry.Operation = domain.Operation(operation)
	entry.Status = domain.DeliveryStatus(status)
	if errMsg.Valid {
		entry.ErrorMessage = errMsg.String
	}
	if respData != nil {
		entry.ResponseData = json.RawMessage(respData)
	}
	return entry, nil
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (23505).
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return contains(errStr, "23505") || contains(errStr, "unique constraint") || contains(errStr, "duplicate key")
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

// Compile-time interface assertions
var (
	_ dispatcher.Store       = (*Store)(nil)
	_ dispatcher.DeliveryLog = (*Store)(nil)
	_ reconciler.Store       = (*Store)(nil)
	_ stats.Store            = (*Store)(nil)
	_ api.Store              = (*Store)(nil)
)
