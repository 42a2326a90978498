package channel

import (
	"context"
	"errors"

	"hookrelay/internal/domain"
)

// ErrBufferFull is returned by TryEmit when the bus cannot accept an
// envelope without blocking.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records bus metrics. Fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	EmitError()
}

// EventBus hands envelopes from the emitter (and retry scheduler,
// reconciler) to the dispatcher workers over a buffered channel.
type EventBus struct {
	ch      chan domain.Envelope
	metrics MetricsSink // optional, nil = disabled
}

type Option func(*EventBus)

func WithMetrics(sink MetricsSink) Option {
	return func(b *EventBus) {
		b.metrics = sink
	}
}

func NewEventBus(buffer int, opts ...Option) *EventBus {
	b := &EventBus{
		ch: make(chan domain.Envelope, buffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit blocks until the envelope is buffered or ctx is done. Used by
// callers that can afford to wait (retry scheduler, reconciler).
func (b *EventBus) Emit(ctx context.Context, env domain.Envelope) error {
	select {
	case b.ch <- env:
		b.observe()
		return nil
	case <-ctx.Done():
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ctx.Err()
	}
}

// TryEmit never blocks: the mutation path must not wait on dispatch. A full
// buffer returns ErrBufferFull; the record stays pending and the reconciler
// re-drives it later.
func (b *EventBus) TryEmit(env domain.Envelope) error {
	select {
	case b.ch <- env:
		b.observe()
		return nil
	default:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.Envelope {
	return b.ch
}

func (b *EventBus) observe() {
	if b.metrics != nil {
		b.metrics.BufferSizeUpdate(len(b.ch))
	}
}
