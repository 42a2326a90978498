// Package analytics records delivery outcomes into Redis as windowed
// counters for operational dashboards. Writes are best-effort and never
// affect dispatch correctness.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"hookrelay/internal/domain"
)

const defaultRetention = 24 * time.Hour

type RedisSink struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{client: client, retention: defaultRetention}
}

// WithRetention overrides the counter TTL.
func (s *RedisSink) WithRetention(d time.Duration) *RedisSink {
	if d > 0 {
		s.retention = d
	}
	return s
}

// Record increments the per-minute counter for the entry's outcome.
// Errors are logged, never returned: the dispatcher must not depend on
// analytics availability.
func (s *RedisSink) Record(ctx context.Context, entry domain.DeliveryEntry) {
	key := buildKey(entry.SubjectTable, string(entry.Operation), string(entry.Status), entry.AttemptAt)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: record request=%s: %v", entry.RequestID, err)
	}
}

func buildKey(table, operation, outcome string, t time.Time) string {
	return fmt.Sprintf("hr:%s:%s:%s:%s", table, operation, outcome, t.UTC().Format("200601021504"))
}
