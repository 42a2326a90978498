// Package reconciler re-drives records whose delivery stalled.
//
// A record is stale when it is still 'pending' or 'sent' past a threshold:
// the emitter hand-off was dropped, the process crashed mid-dispatch, or a
// terminal outcome failed to persist. The reconciler periodically scans for
// stale records and emits fresh envelopes for them. Idempotency is
// guaranteed downstream: each re-emit is a new attempt with its own request
// id, and the record-status guards reject anything a fresher attempt
// already settled.
package reconciler

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
)

// Store fetches records whose delivery looks stalled.
type Store interface {
	GetStaleRecords(ctx context.Context, olderThan time.Time, maxResults int) ([]domain.EventRecord, error)
}

// EnvelopeBus re-enqueues envelopes for dispatch.
type EnvelopeBus interface {
	Emit(ctx context.Context, env domain.Envelope) error
}

// MetricsSink records reconciler metrics. Fire-and-forget.
type MetricsSink interface {
	StaleRecordsUpdate(count int)
}

// Config holds reconciler configuration.
type Config struct {
	// Interval is how often the reconciler runs.
	Interval time.Duration

	// Threshold is the age past which a non-terminal record is stale.
	// Must exceed the retry policy's maximum backoff window, or the
	// reconciler races in-flight retries.
	Threshold time.Duration

	// BatchSize is the maximum number of stale records per cycle.
	BatchSize int

	// SubjectTable is stamped on re-emitted envelopes.
	SubjectTable string
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     5 * time.Minute,
		Threshold:    15 * time.Minute,
		BatchSize:    100,
		SubjectTable: "events",
	}
}

type Reconciler struct {
	config  Config
	store   Store
	bus     EnvelopeBus
	metrics MetricsSink // optional, nil = disabled
	clock   func() time.Time
}

func New(config Config, store Store, bus EnvelopeBus) *Reconciler {
	return &Reconciler{
		config: config,
		store:  store,
		bus:    bus,
		clock:  time.Now,
	}
}

// WithMetrics attaches a metrics sink to the reconciler.
func (r *Reconciler) WithMetrics(sink MetricsSink) *Reconciler {
	r.metrics = sink
	return r
}

// Run starts the reconciliation loop. It blocks until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	log.Printf("reconciler: started (interval=%s, threshold=%s, batch=%d)",
		r.config.Interval, r.config.Threshold, r.config.BatchSize)

	// Run immediately on startup, then on ticker
	r.runCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("reconciler: stopped")
			return
		case <-ticker.C:
			r.runCycle(ctx)
		}
	}
}

// runCycle executes one reconciliation cycle.
func (r *Reconciler) runCycle(ctx context.Context) {
	now := r.clock().UTC()
	threshold := now.Add(-r.config.Threshold)

	stale, err := r.store.GetStaleRecords(ctx, threshold, r.config.BatchSize)
	if err != nil {
		// DB error: log and abort cycle. Will retry next interval.
		log.Printf("reconciler: failed to fetch stale records: %v", err)
		return
	}

	if r.metrics != nil {
		r.metrics.StaleRecordsUpdate(len(stale))
	}

	if len(stale) == 0 {
		return
	}

	log.Printf("reconciler: found %d stale records", len(stale))

	emitted := 0
	failed := 0

	for i := range stale {
		if ctx.Err() != nil {
			log.Printf("reconciler: cycle interrupted, processed %d/%d records", emitted+failed, len(stale))
			return
		}

		rec := stale[i]
		env := domain.Envelope{
			RequestID:    uuid.New().String(),
			SubjectTable: r.config.SubjectTable,
			Operation:    domain.OperationInsert,
			Record:       &rec,
			Timestamp:    now,
		}

		if err := r.bus.Emit(ctx, env); err != nil {
			// Emit failed (buffer full, context cancelled).
			// Log and continue - will retry next cycle.
			log.Printf("reconciler: failed to re-emit record=%s: %v", rec.ID, err)
			failed++
			continue
		}

		log.Printf("reconciler: re-emitted record=%s status=%s (age=%s)",
			rec.ID, rec.WebhookStatus, now.Sub(rec.CreatedAt).Round(time.Second))
		emitted++
	}

	log.Printf("reconciler: cycle complete, re-emitted=%d, failed=%d", emitted, failed)
}
