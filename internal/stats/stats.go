// Package stats provides the read-only operational rollup over the event
// store and the delivery log.
package stats

import (
	"context"
	"time"

	"hookrelay/internal/domain"
)

// Store provides the aggregate queries the rollup is built from.
type Store interface {
	CountRecordsByStatus(ctx context.Context) (map[domain.WebhookStatus]int64, time.Time, error)
	CountAttemptsByStatus(ctx context.Context, from, to time.Time) (map[domain.DeliveryStatus]int64, error)
}

// Snapshot is the per-status record rollup. The per-status counts always
// sum to TotalEvents: every record carries exactly one of the four
// statuses.
type Snapshot struct {
	TotalEvents   int64      `json:"total_events"`
	Pending       int64      `json:"pending"`
	Sent          int64      `json:"sent"`
	Success       int64      `json:"success"`
	Failed        int64      `json:"failed"`
	LastEventTime *time.Time `json:"last_event_time,omitempty"`
}

// AttemptCounts is the delivery log rollup for a time window.
type AttemptCounts struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Sent        int64     `json:"sent"`
	Success     int64     `json:"success"`
	Failed      int64     `json:"failed"`
}

type Aggregator struct {
	store Store
	clock func() time.Time
}

func New(store Store) *Aggregator {
	return &Aggregator{
		store: store,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

// Snapshot aggregates current record state.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	counts, last, err := a.store.CountRecordsByStatus(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Pending: counts[domain.StatusPending],
		Sent:    counts[domain.StatusSent],
		Success: counts[domain.StatusSuccess],
		Failed:  counts[domain.StatusFailed],
	}
	snap.TotalEvents = snap.Pending + snap.Sent + snap.Success + snap.Failed
	if !last.IsZero() {
		t := last.UTC()
		snap.LastEventTime = &t
	}
	return snap, nil
}

// Attempts aggregates delivery log entries over the trailing window.
func (a *Aggregator) Attempts(ctx context.Context, window time.Duration) (AttemptCounts, error) {
	now := a.clock()
	from := now.Add(-window)

	counts, err := a.store.CountAttemptsByStatus(ctx, from, now)
	if err != nil {
		return AttemptCounts{}, err
	}

	return AttemptCounts{
		WindowStart: from,
		WindowEnd:   now,
		Sent:        counts[domain.DeliverySent],
		Success:     counts[domain.DeliverySuccess],
		Failed:      counts[domain.DeliveryFailed],
	}, nil
}
