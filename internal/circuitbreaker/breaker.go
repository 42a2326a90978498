// Package circuitbreaker gates outbound sink calls. After a run of
// consecutive transient failures the circuit opens and dispatch attempts
// fail fast without touching the network until the cooldown elapses; the
// first call after cooldown probes the sink in half-open state.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while the sink is being shed.
// Dispatchers treat it as a transient delivery failure.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type sinkState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*sinkState
	threshold int
	cooldown  time.Duration
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*sinkState),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// Allow reports whether a call to the sink may proceed. In half-open state
// exactly one probe call is let through.
func (cb *CircuitBreaker) Allow(url string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[url]
	if !ok {
		return nil
	}

	switch s.state {
	case stateClosed:
		return nil
	case stateOpen:
		if time.Since(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			s.probing = true
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		if !s.probing {
			s.probing = true
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

// RecordSuccess closes the circuit for the sink.
func (cb *CircuitBreaker) RecordSuccess(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[url]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
	s.probing = false
}

// RecordFailure counts a transient failure; reaching the threshold opens
// the circuit. A failed half-open probe re-opens it immediately.
func (cb *CircuitBreaker) RecordFailure(url string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[url]
	if !ok {
		s = &sinkState{}
		cb.states[url] = s
	}

	if s.state == stateHalfOpen {
		s.state = stateOpen
		s.openedAt = time.Now()
		s.probing = false
		return
	}

	s.consecutiveFailures++
	if cb.threshold > 0 && s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = time.Now()
	}
}
