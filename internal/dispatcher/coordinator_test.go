package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
	"hookrelay/internal/testutil"
)

// mockStore tracks record status transitions and enforces the guards the
// real store implements.
type mockStore struct {
	mu            sync.Mutex
	status        map[uuid.UUID]domain.WebhookStatus
	lastAttemptAt map[uuid.UUID]time.Time
	markSentErr   error
	updateErr     error
	updateFails   int // fail this many UpdateRecordStatus calls, then succeed
	updates       []recordUpdate
}

type recordUpdate struct {
	RecordID uuid.UUID
	Status   domain.WebhookStatus
	Denied   bool
}

func newMockStore() *mockStore {
	return &mockStore{
		status:        make(map[uuid.UUID]domain.WebhookStatus),
		lastAttemptAt: make(map[uuid.UUID]time.Time),
	}
}

func (s *mockStore) MarkRecordSent(ctx context.Context, recordID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markSentErr != nil {
		return s.markSentErr
	}
	if s.status[recordID] != domain.StatusPending {
		return ErrStatusSuperseded
	}
	s.status[recordID] = domain.StatusSent
	return nil
}

func (s *mockStore) UpdateRecordStatus(ctx context.Context, recordID uuid.UUID, status domain.WebhookStatus, attemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if s.updateFails > 0 {
		s.updateFails--
		return errors.New("transient store error")
	}

	if last, ok := s.lastAttemptAt[recordID]; ok && !last.Before(attemptAt) {
		s.updates = append(s.updates, recordUpdate{RecordID: recordID, Status: status, Denied: true})
		return ErrStatusSuperseded
	}

	s.status[recordID] = status
	s.lastAttemptAt[recordID] = attemptAt
	s.updates = append(s.updates, recordUpdate{RecordID: recordID, Status: status})
	return nil
}

func (s *mockStore) setStatus(id uuid.UUID, status domain.WebhookStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[id] = status
}

func (s *mockStore) setLastAttemptAt(id uuid.UUID, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastAttemptAt[id] = at
}

func (s *mockStore) getStatus(id uuid.UUID) domain.WebhookStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status[id]
}

// mockLog implements DeliveryLog in memory with the same sentinel behavior
// as the postgres store.
type mockLog struct {
	mu          sync.Mutex
	entries     map[string]domain.DeliveryEntry
	openErr     error
	resolveErrs int // fail this many Resolve calls, then succeed
}

func newMockLog() *mockLog {
	return &mockLog{entries: make(map[string]domain.DeliveryEntry)}
}

func (l *mockLog) Open(ctx context.Context, entry domain.DeliveryEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.openErr != nil {
		return l.openErr
	}
	if _, ok := l.entries[entry.RequestID]; ok {
		return ErrDuplicateRequest
	}
	l.entries[entry.RequestID] = entry
	return nil
}

func (l *mockLog) Resolve(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage string, responseData json.RawMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.resolveErrs > 0 {
		l.resolveErrs--
		return errors.New("transient log error")
	}
	entry, ok := l.entries[requestID]
	if !ok {
		return ErrAttemptNotFound
	}
	if entry.Status.IsTerminal() {
		return ErrAlreadyResolved
	}
	entry.Status = status
	entry.ErrorMessage = errorMessage
	entry.ResponseData = responseData
	l.entries[requestID] = entry
	return nil
}

func (l *mockLog) GetByRequestID(ctx context.Context, requestID string) (domain.DeliveryEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[requestID]
	if !ok {
		return domain.DeliveryEntry{}, ErrAttemptNotFound
	}
	return entry, nil
}

func (l *mockLog) get(requestID string) (domain.DeliveryEntry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[requestID]
	return entry, ok
}

func (l *mockLog) put(entry domain.DeliveryEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[entry.RequestID] = entry
}

// mockSender simulates sink delivery with scripted results.
type mockSender struct {
	mu       sync.Mutex
	results  []SinkResult
	index    int
	calls    int
	requests []SinkRequest
}

func (s *mockSender) Send(ctx context.Context, req SinkRequest) SinkResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if s.index < len(s.results) {
		result := s.results[s.index]
		s.index++
		return result
	}
	return SinkResult{StatusCode: 200, Body: []byte(`{"ok":true}`), Duration: 10 * time.Millisecond}
}

func (s *mockSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mockRetry records scheduled retries.
type mockRetry struct {
	mu        sync.Mutex
	scheduled []domain.Envelope
	exhausted bool
}

func (r *mockRetry) ScheduleRetry(env domain.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.exhausted {
		return false
	}
	r.scheduled = append(r.scheduled, env)
	return true
}

func (r *mockRetry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.scheduled)
}

var errBreakerOpen = errors.New("circuit open")

type mockBreaker struct {
	mu        sync.Mutex
	open      bool
	successes int
	failures  int
}

func (b *mockBreaker) Allow(url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open {
		return errBreakerOpen
	}
	return nil
}

func (b *mockBreaker) RecordSuccess(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.successes++
}

func (b *mockBreaker) RecordFailure(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
}

func testConfig() Config {
	return Config{
		SinkURL:     "https://sink.example.com/hook",
		SinkToken:   "sekrit",
		SinkTimeout: 5 * time.Second,
		UserAgent:   "hookrelay-test",
		Source:      "hookrelay",
	}
}

func insertEnvelope(recordID uuid.UUID) domain.Envelope {
	rec := &domain.EventRecord{
		ID:        recordID,
		EventType: "user.created",
		Payload:   json.RawMessage(`{"name":"ada"}`),
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	return domain.Envelope{
		RequestID:    uuid.NewString(),
		SubjectTable: "events",
		Operation:    domain.OperationInsert,
		Record:       rec,
		Timestamp:    time.Date(2025, 3, 10, 9, 0, 1, 0, time.UTC),
	}
}

func TestDispatch_InsertSuccess(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if outcome.Status != domain.DeliverySuccess {
		t.Errorf("outcome status = %s, want success", outcome.Status)
	}
	if outcome.Replayed {
		t.Error("fresh dispatch should not be marked replayed")
	}
	if string(outcome.ResponseData) != `{"ok":true}` {
		t.Errorf("response data = %s", outcome.ResponseData)
	}

	entry, ok := dlog.get(env.RequestID)
	if !ok {
		t.Fatal("delivery log entry not written")
	}
	if entry.Status != domain.DeliverySuccess {
		t.Errorf("log entry status = %s, want success", entry.Status)
	}
	if entry.Attempt != 0 {
		t.Errorf("log entry attempt = %d, want 0", entry.Attempt)
	}

	if got := store.getStatus(recordID); got != domain.StatusSuccess {
		t.Errorf("record status = %s, want success", got)
	}

	if sender.callCount() != 1 {
		t.Errorf("sender calls = %d, want 1", sender.callCount())
	}
	req := sender.requests[0]
	if req.RequestID != env.RequestID {
		t.Errorf("sink request id = %s, want %s", req.RequestID, env.RequestID)
	}
	if req.Payload.EventID != env.RequestID {
		t.Errorf("outbound event_id = %s, want request id %s", req.Payload.EventID, env.RequestID)
	}
	if req.Payload.SubjectID != recordID.String() {
		t.Errorf("outbound subject_id = %s, want %s", req.Payload.SubjectID, recordID)
	}
}

func TestDispatch_ValidationRejectsMalformedEnvelopes(t *testing.T) {
	recordID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*domain.Envelope)
	}{
		{"missing request id", func(e *domain.Envelope) { e.RequestID = "" }},
		{"missing subject table", func(e *domain.Envelope) { e.SubjectTable = "" }},
		{"invalid operation", func(e *domain.Envelope) { e.Operation = "delete" }},
		{"nil record", func(e *domain.Envelope) { e.Record = nil }},
		{"nil record id", func(e *domain.Envelope) { e.Record = &domain.EventRecord{} }},
		{"unknown route", func(e *domain.Envelope) { e.SubjectTable = "orders" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			dlog := newMockLog()
			sender := &mockSender{}
			d := New(testConfig(), store, dlog, sender)

			env := insertEnvelope(recordID)
			tt.mutate(&env)

			_, err := d.Dispatch(testutil.TestContext(t), env)
			if !IsValidationError(err) {
				t.Fatalf("Dispatch() error = %v, want validation error", err)
			}
			if len(dlog.entries) != 0 {
				t.Error("malformed envelope must not produce a log entry")
			}
			if sender.callCount() != 0 {
				t.Error("malformed envelope must not reach the sink")
			}
		})
	}
}

func TestDispatch_DuplicateReplayReturnsRecordedOutcome(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}

	recordID := uuid.New()
	env := insertEnvelope(recordID)

	dlog.put(domain.DeliveryEntry{
		RequestID:    env.RequestID,
		RecordID:     recordID,
		Status:       domain.DeliverySuccess,
		ResponseData: json.RawMessage(`{"seen":1}`),
	})

	d := New(testConfig(), store, dlog, sender)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !outcome.Replayed {
		t.Error("duplicate redelivery should report Replayed")
	}
	if outcome.Status != domain.DeliverySuccess {
		t.Errorf("replayed status = %s, want success", outcome.Status)
	}
	if string(outcome.ResponseData) != `{"seen":1}` {
		t.Errorf("replayed response data = %s", outcome.ResponseData)
	}
	if sender.callCount() != 0 {
		t.Error("duplicate redelivery must not make a network call")
	}
}

func TestDispatch_OpenRaceReplaysExistingEntry(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}

	recordID := uuid.New()
	env := insertEnvelope(recordID)

	// Entry exists but is still in-flight: the first GetByRequestID sees a
	// non-terminal entry, then Open collides.
	dlog.put(domain.DeliveryEntry{
		RequestID: env.RequestID,
		RecordID:  recordID,
		Status:    domain.DeliverySent,
	})

	d := New(testConfig(), store, dlog, sender)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if !outcome.Replayed {
		t.Error("open collision should report Replayed")
	}
	if sender.callCount() != 0 {
		t.Error("open collision must not make a network call")
	}
}

func TestDispatch_TransientFailureSchedulesRetry(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{results: []SinkResult{{StatusCode: 503, Body: []byte("unavailable")}}}
	retries := &mockRetry{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender).WithRetryScheduler(retries)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if outcome.Status != domain.DeliveryFailed {
		t.Errorf("outcome status = %s, want failed", outcome.Status)
	}
	if !outcome.RetryScheduled {
		t.Error("transient failure should schedule a retry")
	}
	if retries.count() != 1 {
		t.Errorf("scheduled retries = %d, want 1", retries.count())
	}

	entry, _ := dlog.get(env.RequestID)
	if entry.Status != domain.DeliveryFailed {
		t.Errorf("log entry status = %s, want failed", entry.Status)
	}
	if entry.ErrorMessage != "sink returned 503" {
		t.Errorf("log entry error = %q", entry.ErrorMessage)
	}

	// Record reflects the latest attempt outcome even while a retry is
	// pending; a successful retry supersedes it later.
	if got := store.getStatus(recordID); got != domain.StatusFailed {
		t.Errorf("record status = %s, want failed", got)
	}
}

func TestDispatch_PermanentFailureNoRetry(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{results: []SinkResult{{StatusCode: 404, Body: []byte("not found")}}}
	retries := &mockRetry{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender).WithRetryScheduler(retries)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if outcome.Status != domain.DeliveryFailed {
		t.Errorf("outcome status = %s, want failed", outcome.Status)
	}
	if outcome.RetryScheduled {
		t.Error("4xx failure must not schedule a retry")
	}
	if retries.count() != 0 {
		t.Errorf("scheduled retries = %d, want 0", retries.count())
	}
}

func TestDispatch_SuccessStatusWithInvalidBodyIsPermanent(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{results: []SinkResult{{StatusCode: 200, Body: []byte("<html>ok</html>")}}}
	retries := &mockRetry{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender).WithRetryScheduler(retries)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if outcome.Status != domain.DeliveryFailed {
		t.Errorf("outcome status = %s, want failed", outcome.Status)
	}
	if outcome.RetryScheduled {
		t.Error("malformed 2xx body is permanent, no retry")
	}
	if outcome.ErrorMessage != "sink returned 200 with non-JSON body" {
		t.Errorf("error message = %q", outcome.ErrorMessage)
	}
}

func TestDispatch_RetryBudgetExhausted(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{results: []SinkResult{{StatusCode: 500}}}
	retries := &mockRetry{exhausted: true}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)
	env.Attempt = 3

	d := New(testConfig(), store, dlog, sender).WithRetryScheduler(retries)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if outcome.RetryScheduled {
		t.Error("exhausted budget must not report RetryScheduled")
	}
	if got := store.getStatus(recordID); got != domain.StatusFailed {
		t.Errorf("record status = %s, want failed", got)
	}
}

func TestDispatch_UpdateWithoutSignificantChangeSkipsSink(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)

	rec := &domain.EventRecord{
		ID:        recordID,
		EventType: "user.created",
		Payload:   json.RawMessage(`{"name":"ada"}`),
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	old := *rec
	old.WebhookStatus = domain.StatusSuccess // bookkeeping fields never count

	env := domain.Envelope{
		RequestID:    uuid.NewString(),
		SubjectTable: "events",
		Operation:    domain.OperationUpdate,
		Record:       rec,
		OldRecord:    &old,
		Timestamp:    time.Date(2025, 3, 10, 9, 5, 0, 0, time.UTC),
	}

	d := New(testConfig(), store, dlog, sender)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if sender.callCount() != 0 {
		t.Error("insignificant update must not reach the sink")
	}
	if outcome.Status != domain.DeliverySuccess {
		t.Errorf("outcome status = %s, want success", outcome.Status)
	}
	if string(outcome.ResponseData) != `{}` {
		t.Errorf("response data = %s, want {}", outcome.ResponseData)
	}

	entry, _ := dlog.get(env.RequestID)
	if entry.Status != domain.DeliverySuccess {
		t.Errorf("log entry status = %s, want success", entry.Status)
	}
	if got := store.getStatus(recordID); got != domain.StatusSuccess {
		t.Errorf("record status = %s, want success", got)
	}
}

func TestDispatch_SupersededRecordKeepsLogEntry(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{results: []SinkResult{{StatusCode: 500}}}

	recordID := uuid.New()
	env := insertEnvelope(recordID)

	// A later attempt already resolved the record.
	store.setStatus(recordID, domain.StatusSuccess)
	store.setLastAttemptAt(recordID, env.Timestamp.Add(time.Minute))

	d := New(testConfig(), store, dlog, sender)
	if _, err := d.Dispatch(testutil.TestContext(t), env); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// The log keeps this attempt's outcome, the record keeps the fresher one.
	entry, _ := dlog.get(env.RequestID)
	if entry.Status != domain.DeliveryFailed {
		t.Errorf("log entry status = %s, want failed", entry.Status)
	}
	if got := store.getStatus(recordID); got != domain.StatusSuccess {
		t.Errorf("record status = %s, want success (unchanged)", got)
	}
}

func TestDispatch_PersistenceFailuresAreRetried(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	dlog.resolveErrs = 2 // fail twice, succeed on the third
	sender := &mockSender{}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender)
	if _, err := d.Dispatch(testutil.TestContext(t), env); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	entry, _ := dlog.get(env.RequestID)
	if entry.Status != domain.DeliverySuccess {
		t.Errorf("log entry status = %s, want success after persistence retries", entry.Status)
	}
	if sender.callCount() != 1 {
		t.Errorf("sender calls = %d, persistence retries must not re-send", sender.callCount())
	}
}

func TestDispatch_OpenCircuitIsTransient(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}
	retries := &mockRetry{}
	breaker := &mockBreaker{open: true}

	recordID := uuid.New()
	store.setStatus(recordID, domain.StatusPending)
	env := insertEnvelope(recordID)

	d := New(testConfig(), store, dlog, sender).
		WithRetryScheduler(retries).
		WithBreaker(breaker)
	outcome, err := d.Dispatch(testutil.TestContext(t), env)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if sender.callCount() != 0 {
		t.Error("open circuit must block the network call")
	}
	if outcome.Status != domain.DeliveryFailed {
		t.Errorf("outcome status = %s, want failed", outcome.Status)
	}
	if !outcome.RetryScheduled {
		t.Error("open circuit is transient, retry should be scheduled")
	}
}

func TestDispatch_BreakerBookkeeping(t *testing.T) {
	tests := []struct {
		name          string
		result        SinkResult
		wantSuccesses int
		wantFailures  int
	}{
		{"success feeds breaker", SinkResult{StatusCode: 200}, 1, 0},
		{"5xx trips breaker", SinkResult{StatusCode: 502}, 0, 1},
		{"4xx leaves breaker alone", SinkResult{StatusCode: 422}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			dlog := newMockLog()
			sender := &mockSender{results: []SinkResult{tt.result}}
			breaker := &mockBreaker{}

			recordID := uuid.New()
			store.setStatus(recordID, domain.StatusPending)
			env := insertEnvelope(recordID)

			d := New(testConfig(), store, dlog, sender).WithBreaker(breaker)
			if _, err := d.Dispatch(testutil.TestContext(t), env); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}

			breaker.mu.Lock()
			defer breaker.mu.Unlock()
			if breaker.successes != tt.wantSuccesses {
				t.Errorf("breaker successes = %d, want %d", breaker.successes, tt.wantSuccesses)
			}
			if breaker.failures != tt.wantFailures {
				t.Errorf("breaker failures = %d, want %d", breaker.failures, tt.wantFailures)
			}
		})
	}
}

func TestRun_DrainsBufferedEnvelopes(t *testing.T) {
	store := newMockStore()
	dlog := newMockLog()
	sender := &mockSender{}

	ch := make(chan domain.Envelope, 10)
	ids := make([]string, 3)
	for i := range ids {
		recordID := uuid.New()
		store.setStatus(recordID, domain.StatusPending)
		env := insertEnvelope(recordID)
		ids[i] = env.RequestID
		ch <- env
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // already cancelled: Run goes straight to drain

	d := New(testConfig(), store, dlog, sender).WithDrainTimeout(2 * time.Second)
	d.Run(ctx, ch)

	for _, id := range ids {
		entry, ok := dlog.get(id)
		if !ok || entry.Status != domain.DeliverySuccess {
			t.Errorf("buffered envelope %s not drained (entry=%+v found=%v)", id, entry, ok)
		}
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		err        error
		want       string
	}{
		{"success", 200, nil, "2xx"},
		{"client error", 404, nil, "4xx"},
		{"server error", 503, nil, "5xx"},
		{"timeout", 0, errors.New("context deadline exceeded"), "timeout"},
		{"refused", 0, errors.New("dial tcp: connection refused"), "connection_error"},
		{"other", 0, errors.New("boom"), "other_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyStatus(tt.statusCode, tt.err); got != tt.want {
				t.Errorf("classifyStatus(%d, %v) = %s, want %s", tt.statusCode, tt.err, got, tt.want)
			}
		})
	}
}
