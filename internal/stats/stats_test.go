package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"hookrelay/internal/domain"
	"hookrelay/internal/testutil"
)

type mockStore struct {
	recordCounts  map[domain.WebhookStatus]int64
	lastEvent     time.Time
	attemptCounts map[domain.DeliveryStatus]int64
	attemptFrom   time.Time
	attemptTo     time.Time
	err           error
}

func (s *mockStore) CountRecordsByStatus(ctx context.Context) (map[domain.WebhookStatus]int64, time.Time, error) {
	if s.err != nil {
		return nil, time.Time{}, s.err
	}
	return s.recordCounts, s.lastEvent, nil
}

func (s *mockStore) CountAttemptsByStatus(ctx context.Context, from, to time.Time) (map[domain.DeliveryStatus]int64, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.attemptFrom = from
	s.attemptTo = to
	return s.attemptCounts, nil
}

func TestSnapshot(t *testing.T) {
	last := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	store := &mockStore{
		recordCounts: map[domain.WebhookStatus]int64{
			domain.StatusPending: 3,
			domain.StatusSent:    1,
			domain.StatusSuccess: 10,
			domain.StatusFailed:  2,
		},
		lastEvent: last,
	}

	snap, err := New(store).Snapshot(testutil.TestContext(t))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	if snap.TotalEvents != 16 {
		t.Errorf("total = %d, want 16", snap.TotalEvents)
	}
	if snap.Pending != 3 || snap.Sent != 1 || snap.Success != 10 || snap.Failed != 2 {
		t.Errorf("per-status counts = %+v", snap)
	}
	if snap.TotalEvents != snap.Pending+snap.Sent+snap.Success+snap.Failed {
		t.Error("per-status counts must sum to the total")
	}
	if snap.LastEventTime == nil || !snap.LastEventTime.Equal(last) {
		t.Errorf("last event time = %v, want %v", snap.LastEventTime, last)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	store := &mockStore{recordCounts: map[domain.WebhookStatus]int64{}}

	snap, err := New(store).Snapshot(testutil.TestContext(t))
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if snap.TotalEvents != 0 {
		t.Errorf("total = %d, want 0", snap.TotalEvents)
	}
	if snap.LastEventTime != nil {
		t.Errorf("last event time = %v, want nil", snap.LastEventTime)
	}
}

func TestSnapshot_StoreError(t *testing.T) {
	store := &mockStore{err: errors.New("db down")}
	if _, err := New(store).Snapshot(testutil.TestContext(t)); err == nil {
		t.Fatal("Snapshot() should propagate store errors")
	}
}

func TestAttempts_Window(t *testing.T) {
	store := &mockStore{
		attemptCounts: map[domain.DeliveryStatus]int64{
			domain.DeliverySent:    1,
			domain.DeliverySuccess: 7,
			domain.DeliveryFailed:  4,
		},
	}

	agg := New(store)
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	agg.clock = func() time.Time { return now }

	counts, err := agg.Attempts(testutil.TestContext(t), time.Hour)
	if err != nil {
		t.Fatalf("Attempts() error = %v", err)
	}

	if !counts.WindowEnd.Equal(now) || !counts.WindowStart.Equal(now.Add(-time.Hour)) {
		t.Errorf("window = [%v, %v]", counts.WindowStart, counts.WindowEnd)
	}
	if !store.attemptFrom.Equal(counts.WindowStart) || !store.attemptTo.Equal(counts.WindowEnd) {
		t.Error("query window must match the reported window")
	}
	if counts.Sent != 1 || counts.Success != 7 || counts.Failed != 4 {
		t.Errorf("counts = %+v", counts)
	}
}
