// Package retry schedules follow-up delivery attempts after transient
// failures. Every retry is a new attempt: a fresh request id, a later
// attempt timestamp, and its own delivery log entry referencing the same
// record. Exhausting the attempt budget leaves the record's failed status
// in place terminally.
package retry

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"hookrelay/internal/domain"
)

// Policy holds the backoff parameters.
type Policy struct {
	// MaxAttempts bounds the total number of attempts per logical
	// delivery, the original dispatch included.
	MaxAttempts int

	// BaseDelay is the backoff base: delay grows as base * 2^attempt.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth.
	MaxDelay time.Duration
}

// DefaultPolicy matches the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    2 * time.Minute,
	}
}

// Delay computes the backoff before attempt (1-based retry index): the
// exponential delay capped at MaxDelay, plus random jitter in [0, delay).
func (p Policy) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.BaseDelay
	if base <= 0 {
		base = time.Second
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	// Jitter on top of the capped delay, in [0, delay).
	if rng != nil {
		delay += time.Duration(rng.Int63n(int64(delay)))
	}
	return delay
}

// EnvelopeBus re-enqueues retry envelopes for dispatch.
type EnvelopeBus interface {
	Emit(ctx context.Context, env domain.Envelope) error
}

// Scheduler implements dispatcher.RetryScheduler with in-process timers.
// Scheduled retries do not survive a crash; the reconciler re-drives
// records left in a non-terminal state.
type Scheduler struct {
	policy Policy
	bus    EnvelopeBus

	mu  sync.Mutex
	rng *rand.Rand

	clock func() time.Time
	after func(time.Duration, func()) // overridable in tests

	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
}

func NewScheduler(policy Policy, bus EnvelopeBus) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		policy: policy,
		bus:    bus,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		clock:  func() time.Time { return time.Now().UTC() },
		ctx:    ctx,
		cancel: cancel,
	}
	s.after = func(d time.Duration, fn func()) {
		s.wg.Add(1)
		timer := time.NewTimer(d)
		go func() {
			defer s.wg.Done()
			defer timer.Stop()
			select {
			case <-s.ctx.Done():
			case <-timer.C:
				fn()
			}
		}()
	}
	return s
}

// ScheduleRetry mints the next attempt for the envelope and emits it after
// the backoff delay. Returns false when MaxAttempts is exhausted.
func (s *Scheduler) ScheduleRetry(env domain.Envelope) bool {
	next := env.Attempt + 1
	if next >= s.policy.MaxAttempts {
		return false
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	delay := s.policy.Delay(next, s.rng)
	s.mu.Unlock()

	retry := domain.Envelope{
		RequestID:    uuid.New().String(),
		SubjectTable: env.SubjectTable,
		Operation:    env.Operation,
		Record:       env.Record,
		OldRecord:    env.OldRecord,
		Attempt:      next,
	}

	log.Printf("retry: record=%s attempt=%d request=%s backoff=%s",
		retry.Record.ID, next, retry.RequestID, delay)

	s.after(delay, func() {
		// Timestamp at emit time so logical attempt order follows real
		// attempt order even across uneven backoff delays.
		retry.Timestamp = s.clock()
		if err := s.bus.Emit(s.ctx, retry); err != nil {
			log.Printf("retry: record=%s request=%s emit failed: %v", retry.Record.ID, retry.RequestID, err)
		}
	})

	return true
}

// Stop cancels pending timers and waits for in-flight emits.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
