package reconciler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
)

type mockStore struct {
	mu      sync.Mutex
	stale   []domain.EventRecord
	err     error
	queries []staleQuery
}

type staleQuery struct {
	OlderThan  time.Time
	MaxResults int
}

func (s *mockStore) GetStaleRecords(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, staleQuery{OlderThan: olderThan, MaxResults: maxResults})
	if s.err != nil {
		return nil, s.err
	}
	return s.stale, nil
}

type mockBus struct {
	mu      sync.Mutex
	emitted []domain.Envelope
	err     error
}

func (b *mockBus) Emit(ctx context.Context, env domain.Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.emitted = append(b.emitted, env)
	return nil
}

func (b *mockBus) all() []domain.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Envelope, len(b.emitted))
	copy(out, b.emitted)
	return out
}

type mockMetrics struct {
	mu     sync.Mutex
	counts []int
}

func (m *mockMetrics) StaleRecordsUpdate(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = append(m.counts, count)
}

func staleRecord(status domain.WebhookStatus) domain.EventRecord {
	return domain.EventRecord{
		ID:            uuid.New(),
		EventType:     "user.created",
		WebhookStatus: status,
		CreatedAt:     time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestRunCycle_ReEmitsStaleRecords(t *testing.T) {
	store := &mockStore{stale: []domain.EventRecord{
		staleRecord(domain.StatusPending),
		staleRecord(domain.StatusSent),
	}}
	bus := &mockBus{}
	metrics := &mockMetrics{}

	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	r := New(DefaultConfig(), store, bus).WithMetrics(metrics)
	r.clock = func() time.Time { return now }

	r.runCycle(context.Background())

	emitted := bus.all()
	if len(emitted) != 2 {
		t.Fatalf("emitted %d envelopes, want 2", len(emitted))
	}

	seen := make(map[string]bool)
	for i, env := range emitted {
		if env.Operation != domain.OperationInsert {
			t.Errorf("envelope %d operation = %s, want insert", i, env.Operation)
		}
		if env.SubjectTable != "events" {
			t.Errorf("envelope %d subject table = %s", i, env.SubjectTable)
		}
		if env.Record.ID != store.stale[i].ID {
			t.Errorf("envelope %d record mismatch", i)
		}
		if !env.Timestamp.Equal(now) {
			t.Errorf("envelope %d timestamp = %v, want cycle time %v", i, env.Timestamp, now)
		}
		if seen[env.RequestID] {
			t.Error("re-emits must mint distinct request ids")
		}
		seen[env.RequestID] = true
	}

	// Threshold applied to the query window.
	store.mu.Lock()
	q := store.queries[0]
	store.mu.Unlock()
	wantOlderThan := now.Add(-DefaultConfig().Threshold)
	if !q.OlderThan.Equal(wantOlderThan) {
		t.Errorf("query olderThan = %v, want %v", q.OlderThan, wantOlderThan)
	}
	if q.MaxResults != DefaultConfig().BatchSize {
		t.Errorf("query maxResults = %d, want %d", q.MaxResults, DefaultConfig().BatchSize)
	}

	metrics.mu.Lock()
	defer metrics.mu.Unlock()
	if len(metrics.counts) != 1 || metrics.counts[0] != 2 {
		t.Errorf("stale gauge updates = %v, want [2]", metrics.counts)
	}
}

func TestRunCycle_StoreErrorAbortsCycle(t *testing.T) {
	store := &mockStore{err: errors.New("db down")}
	bus := &mockBus{}

	r := New(DefaultConfig(), store, bus)
	r.runCycle(context.Background())

	if len(bus.all()) != 0 {
		t.Error("store failure must not emit anything")
	}
}

func TestRunCycle_EmitFailureContinues(t *testing.T) {
	store := &mockStore{stale: []domain.EventRecord{
		staleRecord(domain.StatusPending),
		staleRecord(domain.StatusPending),
	}}
	bus := &mockBus{err: errors.New("buffer full")}

	r := New(DefaultConfig(), store, bus)
	r.runCycle(context.Background()) // must not panic; records retry next cycle
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	store := &mockStore{}
	bus := &mockBus{}

	cfg := DefaultConfig()
	cfg.Interval = 10 * time.Millisecond
	r := New(cfg, store, bus)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	store.mu.Lock()
	cycles := len(store.queries)
	store.mu.Unlock()
	if cycles < 2 {
		t.Errorf("expected startup cycle plus ticker cycles, got %d", cycles)
	}
}
