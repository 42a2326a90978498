package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
)

// Store is the event record side of dispatch: guarded status writes only.
type Store interface {
	// MarkRecordSent sets webhook_status to 'sent' only if the current
	// status is 'pending', so an in-flight attempt never clobbers a
	// concurrently resolved later attempt. Returns ErrStatusSuperseded
	// when the guard rejects the write.
	MarkRecordSent(ctx context.Context, recordID uuid.UUID) error

	// UpdateRecordStatus applies a terminal status and sets processed_at,
	// only if no later attempt already resolved the record (guarded by
	// attemptAt against the record's last applied attempt timestamp).
	// Returns ErrStatusSuperseded when the guard rejects the write.
	UpdateRecordStatus(ctx context.Context, recordID uuid.UUID, status domain.WebhookStatus, attemptAt time.Time) error
}

// DeliveryLog is the append/update ledger of dispatch attempts.
type DeliveryLog interface {
	// Open writes a new entry in 'sent' state. Returns ErrDuplicateRequest
	// if the request id already has an entry.
	Open(ctx context.Context, entry domain.DeliveryEntry) error

	// Resolve updates the entry to its terminal status in place. Returns
	// ErrAttemptNotFound if no entry exists and ErrAlreadyResolved if the
	// entry is already terminal.
	Resolve(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage string, responseData json.RawMessage) error

	GetByRequestID(ctx context.Context, requestID string) (domain.DeliveryEntry, error)
}

// RetryScheduler schedules a follow-up attempt after a transient failure.
// Implementations mint a fresh request id and a later attempt timestamp.
// ScheduleRetry returns false when the attempt budget is exhausted.
type RetryScheduler interface {
	ScheduleRetry(env domain.Envelope) bool
}

// Breaker gates calls to a sink URL. An open circuit is treated as a
// transient failure without a network call.
type Breaker interface {
	Allow(url string) error
	RecordSuccess(url string)
	RecordFailure(url string)
}

// AnalyticsSink records delivery outcomes. Best-effort: implementations
// handle their own errors and never affect dispatch correctness.
type AnalyticsSink interface {
	Record(ctx context.Context, entry domain.DeliveryEntry)
}

// MetricsSink records dispatcher metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	RetryScheduled()
	EventsInFlightIncr()
	EventsInFlightDecr()
}

// Config holds the sink connection settings for the dispatcher.
type Config struct {
	SinkURL     string
	SinkToken   string
	SinkTimeout time.Duration
	UserAgent   string
	Source      string
}

// DeliveryOutcome is what Dispatch reports back to its caller. The durable
// state (delivery log + record status) is the source of truth; this return
// value is purely observational.
type DeliveryOutcome struct {
	RequestID    string
	Status       domain.DeliveryStatus
	ResponseData json.RawMessage
	ErrorMessage string

	// RetryScheduled is true when a transient failure produced a
	// follow-up attempt with a fresh request id.
	RetryScheduled bool

	// Replayed is true when the outcome was read back from the delivery
	// log instead of performed (duplicate redelivery of the same attempt).
	Replayed bool
}

// persistAttempts bounds the separate retry loop for outcome persistence.
const persistAttempts = 3

const persistRetryPause = 50 * time.Millisecond

type Dispatcher struct {
	cfg       Config
	store     Store
	dlog      DeliveryLog
	sender    SinkSender
	retries   RetryScheduler // optional, nil = no retry scheduling
	breaker   Breaker        // optional, nil = disabled
	analytics AnalyticsSink  // optional, nil = disabled
	metrics   MetricsSink    // optional, nil = disabled

	drainTimeout time.Duration
}

func New(cfg Config, store Store, dlog DeliveryLog, sender SinkSender) *Dispatcher {
	return &Dispatcher{
		cfg:          cfg,
		store:        store,
		dlog:         dlog,
		sender:       sender,
		drainTimeout: DrainTimeout,
	}
}

func (d *Dispatcher) WithRetryScheduler(s RetryScheduler) *Dispatcher {
	d.retries = s
	return d
}

func (d *Dispatcher) WithBreaker(b Breaker) *Dispatcher {
	d.breaker = b
	return d
}

func (d *Dispatcher) WithAnalytics(sink AnalyticsSink) *Dispatcher {
	d.analytics = sink
	return d
}

// WithMetrics attaches a metrics sink to the dispatcher.
func (d *Dispatcher) WithMetrics(sink MetricsSink) *Dispatcher {
	d.metrics = sink
	return d
}

// WithDrainTimeout overrides the shutdown drain timeout.
func (d *Dispatcher) WithDrainTimeout(t time.Duration) *Dispatcher {
	if t > 0 {
		d.drainTimeout = t
	}
	return d
}

// Run processes envelopes from the channel until ctx is cancelled.
// After cancellation, it drains remaining buffered envelopes with a timeout.
// Multiple Run loops may consume the same channel concurrently.
func (d *Dispatcher) Run(ctx context.Context, ch <-chan domain.Envelope) {
	for {
		select {
		case <-ctx.Done():
			d.drain(ch)
			return
		case env := <-ch:
			if _, err := d.Dispatch(ctx, env); err != nil {
				log.Printf("dispatcher: request=%s error: %v", env.RequestID, err)
			}
		}
	}
}

// DrainTimeout is the maximum time to wait for buffered envelopes during shutdown.
const DrainTimeout = 30 * time.Second

// drain processes envelopes left in the channel buffer after the shutdown
// signal, under a background context since the main one is cancelled.
func (d *Dispatcher) drain(ch <-chan domain.Envelope) {
	drainCtx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()

	count := 0
	for {
		select {
		case <-drainCtx.Done():
			if count > 0 {
				log.Printf("dispatcher: drain timeout, processed %d envelopes", count)
			}
			return
		case env, ok := <-ch:
			if !ok {
				log.Printf("dispatcher: drain complete, processed %d envelopes", count)
				return
			}
			if _, err := d.Dispatch(drainCtx, env); err != nil {
				log.Printf("dispatcher: drain request=%s error: %v", env.RequestID, err)
			}
			count++
		default:
			if count > 0 {
				log.Printf("dispatcher: drain complete, processed %d envelopes", count)
			}
			return
		}
	}
}

// Dispatch delivers one envelope: validates it, opens a delivery log entry,
// calls the external sink, and persists the classified outcome onto both
// the log entry and the owning record.
func (d *Dispatcher) Dispatch(ctx context.Context, env domain.Envelope) (DeliveryOutcome, error) {
	if d.metrics != nil {
		d.metrics.EventsInFlightIncr()
		defer d.metrics.EventsInFlightDecr()
	}

	route, err := validate(env)
	if err != nil {
		return DeliveryOutcome{}, err
	}

	// Idempotency guard: duplicate redelivery of an already resolved
	// attempt returns the recorded outcome without a network call.
	if entry, gerr := d.dlog.GetByRequestID(ctx, env.RequestID); gerr == nil {
		if entry.Status.IsTerminal() {
			return outcomeFromEntry(entry), nil
		}
	} else if !errors.Is(gerr, ErrAttemptNotFound) {
		// Read failure: fall through, Open still de-duplicates.
		log.Printf("dispatcher: request=%s log lookup: %v", env.RequestID, gerr)
	}

	doc, skip := route(env, d.cfg.Source)

	now := time.Now().UTC()
	entry := domain.DeliveryEntry{
		ID:           uuid.New(),
		SubjectTable: env.SubjectTable,
		Operation:    env.Operation,
		RecordID:     env.Record.ID,
		RequestID:    env.RequestID,
		Status:       domain.DeliverySent,
		Attempt:      env.Attempt,
		AttemptAt:    env.Timestamp,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.dlog.Open(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateRequest) {
			// Lost the race against a concurrent delivery of this same
			// attempt. Benign: report whatever is recorded.
			if existing, gerr := d.dlog.GetByRequestID(ctx, env.RequestID); gerr == nil {
				return outcomeFromEntry(existing), nil
			}
			return DeliveryOutcome{RequestID: env.RequestID, Status: domain.DeliverySent, Replayed: true}, nil
		}
		return DeliveryOutcome{}, fmt.Errorf("open delivery log entry: %w", err)
	}

	if err := d.store.MarkRecordSent(ctx, env.Record.ID); err != nil && !errors.Is(err, ErrStatusSuperseded) {
		// Record status lags the log; the reconciler repairs the gap.
		log.Printf("dispatcher: request=%s mark sent: %v", env.RequestID, err)
	}

	if skip {
		// Update with no significant change: resolve immediately as
		// success with an empty result, zero external calls.
		log.Printf("dispatcher: request=%s record=%s no significant change, skipping sink call",
			env.RequestID, env.Record.ID)
		return d.resolve(ctx, env, SinkResult{StatusCode: 200, Body: []byte(`{}`)}), nil
	}

	result := d.send(ctx, env, doc)

	if d.metrics != nil {
		d.metrics.DeliveryAttemptCompleted(env.Attempt+1, classifyStatus(result.StatusCode, result.Error), result.Duration)
	}

	return d.resolve(ctx, env, result), nil
}

// send performs the external call behind the circuit breaker.
func (d *Dispatcher) send(ctx context.Context, env domain.Envelope, doc OutboundEvent) SinkResult {
	if d.breaker != nil {
		if err := d.breaker.Allow(d.cfg.SinkURL); err != nil {
			return SinkResult{Error: err}
		}
	}

	result := d.sender.Send(ctx, SinkRequest{
		URL:       d.cfg.SinkURL,
		Token:     d.cfg.SinkToken,
		Timeout:   d.cfg.SinkTimeout,
		UserAgent: d.cfg.UserAgent,
		RequestID: env.RequestID,
		Payload:   doc,
	})

	if d.breaker != nil {
		switch {
		case result.IsSuccess():
			d.breaker.RecordSuccess(d.cfg.SinkURL)
		case result.IsRetryable():
			// Only transient failures trip the breaker; a 4xx means the
			// sink is alive and rejecting this event specifically.
			d.breaker.RecordFailure(d.cfg.SinkURL)
		}
	}

	return result
}

// resolve persists the attempt's terminal outcome on the log entry and the
// record, then schedules a retry for transient failures.
func (d *Dispatcher) resolve(ctx context.Context, env domain.Envelope, result SinkResult) DeliveryOutcome {
	outcome := DeliveryOutcome{RequestID: env.RequestID}

	if result.IsSuccess() {
		outcome.Status = domain.DeliverySuccess
		outcome.ResponseData = result.ResponseData()
	} else {
		outcome.Status = domain.DeliveryFailed
		outcome.ErrorMessage = result.FailureMessage()
	}

	if replayed, prior := d.persistOutcome(ctx, env, outcome); replayed {
		return prior
	}

	if outcome.Status == domain.DeliveryFailed && result.IsRetryable() && d.retries != nil {
		if d.retries.ScheduleRetry(env) {
			outcome.RetryScheduled = true
			if d.metrics != nil {
				d.metrics.RetryScheduled()
			}
		} else {
			log.Printf("dispatcher: request=%s record=%s attempts exhausted", env.RequestID, env.Record.ID)
		}
	}

	if d.metrics != nil {
		d.metrics.DeliveryOutcome(string(outcome.Status))
	}
	d.writeAnalytics(ctx, env, outcome)

	if outcome.Status == domain.DeliveryFailed {
		log.Printf("dispatcher: request=%s record=%s attempt=%d failed: %s",
			env.RequestID, env.Record.ID, env.Attempt, outcome.ErrorMessage)
	} else {
		log.Printf("dispatcher: request=%s record=%s attempt=%d delivered", env.RequestID, env.Record.ID, env.Attempt)
	}

	return outcome
}

// persistOutcome writes the terminal outcome to the delivery log and applies
// the guarded record status update. Persistence failures are retried a few
// times here, separately from delivery retries, so the outcome of a
// completed external call is never silently dropped. Returns (true, prior)
// when the entry turned out to be already resolved by a duplicate delivery.
func (d *Dispatcher) persistOutcome(ctx context.Context, env domain.Envelope, outcome DeliveryOutcome) (bool, DeliveryOutcome) {
	var lastErr error
	for i := 0; i < persistAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				log.Printf("dispatcher: request=%s outcome persistence abandoned: %v", env.RequestID, ctx.Err())
				return false, DeliveryOutcome{}
			case <-time.After(persistRetryPause):
			}
		}

		err := d.dlog.Resolve(ctx, env.RequestID, outcome.Status, outcome.ErrorMessage, outcome.ResponseData)
		if errors.Is(err, ErrAlreadyResolved) {
			// Duplicate delivery of the same attempt resolved first.
			// Benign: never reverse a terminal entry.
			if entry, gerr := d.dlog.GetByRequestID(ctx, env.RequestID); gerr == nil {
				return true, outcomeFromEntry(entry)
			}
			return true, DeliveryOutcome{RequestID: env.RequestID, Status: outcome.Status, Replayed: true}
		}
		if err != nil {
			lastErr = err
			continue
		}

		if err := d.store.UpdateRecordStatus(ctx, env.Record.ID, outcome.Status.RecordStatus(), env.Timestamp); err != nil {
			if errors.Is(err, ErrStatusSuperseded) {
				// A later attempt already resolved the record. The log
				// entry keeps this attempt's outcome; the record keeps
				// the fresher one.
				log.Printf("dispatcher: request=%s record=%s status superseded by later attempt",
					env.RequestID, env.Record.ID)
				return false, DeliveryOutcome{}
			}
			lastErr = err
			continue
		}

		return false, DeliveryOutcome{}
	}

	// Operator-visible: the log or record is stale until the reconciler
	// re-drives this record.
	log.Printf("dispatcher: request=%s record=%s failed to persist outcome after %d attempts: %v",
		env.RequestID, env.Record.ID, persistAttempts, lastErr)
	return false, DeliveryOutcome{}
}

func (d *Dispatcher) writeAnalytics(ctx context.Context, env domain.Envelope, outcome DeliveryOutcome) {
	if d.analytics == nil {
		return
	}
	d.analytics.Record(ctx, domain.DeliveryEntry{
		SubjectTable: env.SubjectTable,
		Operation:    env.Operation,
		RecordID:     env.Record.ID,
		RequestID:    env.RequestID,
		Status:       outcome.Status,
		Attempt:      env.Attempt,
		AttemptAt:    env.Timestamp,
	})
}

// validate checks envelope shape and resolves its route. Violations are
// ValidationErrors: not attempts, nothing is logged, nothing is sent.
func validate(env domain.Envelope) (routeFunc, error) {
	if env.RequestID == "" {
		return nil, &ValidationError{Field: "request_id", Message: "required"}
	}
	if env.SubjectTable == "" {
		return nil, &ValidationError{Field: "subject_table", Message: "required"}
	}
	if !env.Operation.IsValid() {
		return nil, &ValidationError{Field: "operation", Message: "must be insert or update"}
	}
	if env.Record == nil || env.Record.ID == uuid.Nil {
		return nil, &ValidationError{Field: "record.id", Message: "required"}
	}
	route, ok := routes[routeKey{env.SubjectTable, env.Operation}]
	if !ok {
		return nil, &ValidationError{Field: "subject_table", Message: fmt.Sprintf("no route for %q %s", env.SubjectTable, env.Operation)}
	}
	return route, nil
}

func outcomeFromEntry(entry domain.DeliveryEntry) DeliveryOutcome {
	return DeliveryOutcome{
		RequestID:    entry.RequestID,
		Status:       entry.Status,
		ResponseData: entry.ResponseData,
		ErrorMessage: entry.ErrorMessage,
		Replayed:     true,
	}
}

// classifyStatus maps a status code and error to a bounded-cardinality
// metrics class: 2xx, 4xx, 5xx, timeout, connection_error, other_error.
func classifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
